// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relay implements the three per-event state machines:
// DepositRelay, WithdrawConfirm and WithdrawRelay. Each wraps a
// logstream.LogStream and turns its batches into submitted
// transactions, advancing a checkpoint.Store field only once every
// side effect for a batch has succeeded.
package relay

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/chainbridge-relay/relay/internal/chainclient"
)

// Phase names a relay's current tagged-variant state for structured
// logging, per the "discriminant + variant payload, never booleans"
// guidance: DepositRelay and WithdrawConfirm cycle Wait -> Submit ->
// Yield; WithdrawRelay additionally visits Fetch and RelayWithdraws
// between Wait and Yield.
type Phase int

const (
	PhaseWait Phase = iota
	PhaseFetch
	PhaseSubmit
	PhaseRelayWithdraws
	PhaseYield
)

func (p Phase) String() string {
	switch p {
	case PhaseWait:
		return "wait"
	case PhaseFetch:
		return "fetch"
	case PhaseSubmit:
		return "submit"
	case PhaseRelayWithdraws:
		return "relay_withdraws"
	case PhaseYield:
		return "yield"
	default:
		return "unknown"
	}
}

// TxParams is the static gas configuration for one relay direction's
// transactions (txs.<relay>.{gas,gas_price}).
type TxParams struct {
	Gas      uint64
	GasPrice *big.Int
}

// ErrMalformedLog is an ABI parse error: fatal to the current batch,
// signals a contract/relay version mismatch rather than a transient
// condition.
var ErrMalformedLog = errors.New("relay: log data too short to decode expected event fields")

// addressFromWord returns a 32-byte word as an address (the low 20
// bytes of the word, matching Solidity's address padding).
func addressFromWord(word []byte) common.Address {
	var a common.Address
	copy(a[:], word[12:32])
	return a
}

// parseValueLog decodes the common Deposit/Withdraw event shape --
// both are (address,uint256,bytes32): recipient and value come from
// the log's data (first and second 32-byte words); transactionHash is
// the log's own wire transaction_hash field, not part of the event
// data.
func parseValueLog(kind string, log chainclient.Log) (recipient common.Address, value *big.Int, txHash common.Hash, err error) {
	if len(log.Data) < 64 {
		return common.Address{}, nil, common.Hash{}, fmt.Errorf("%w: %s log data is %d bytes, want >= 64", ErrMalformedLog, kind, len(log.Data))
	}
	recipient = addressFromWord(log.Data[0:32])
	value = new(big.Int).SetBytes(log.Data[32:64])
	return recipient, value, log.TransactionHash, nil
}

func parseDepositLog(log chainclient.Log) (common.Address, *big.Int, common.Hash, error) {
	return parseValueLog("deposit", log)
}

func parseWithdrawLog(log chainclient.Log) (common.Address, *big.Int, common.Hash, error) {
	return parseValueLog("withdraw", log)
}

// parseCollectedSignaturesLog decodes a
// CollectedSignatures(address,bytes32) log: the first word is the
// elected authority, the second is the message hash.
func parseCollectedSignaturesLog(log chainclient.Log) (authority common.Address, messageHash common.Hash, err error) {
	if len(log.Data) < 64 {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: CollectedSignatures log data is %d bytes, want >= 64", ErrMalformedLog, len(log.Data))
	}
	authority = addressFromWord(log.Data[0:32])
	messageHash = common.BytesToHash(log.Data[32:64])
	return authority, messageHash, nil
}

// buildWithdrawMessage assembles the 84-byte message WithdrawConfirm
// signs: recipient (20 bytes, unpadded) || value (32-byte big-endian)
// || transactionHash (32 bytes), the same 84-byte precondition
// abi.PackWithdraw enforces.
func buildWithdrawMessage(recipient common.Address, value *big.Int, txHash common.Hash) []byte {
	msg := make([]byte, 84)
	copy(msg[0:20], recipient.Bytes())
	value.FillBytes(msg[20:52])
	copy(msg[52:84], txHash.Bytes())
	return msg
}

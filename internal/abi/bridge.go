// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package abi hand-packs call data for the bridge contracts' five
// functions (deposit, message, signature, withdraw, submitSignature)
// and defines their three event topics -- built directly
// on go-ethereum's accounts/abi, the same library a contract's
// generated abi-bindings package would wrap.
package abi

import (
	"encoding/hex"
	"fmt"
	"math/big"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Function selectors, asserted in bridge_test.go against the literal
// values the test fixtures require.
const (
	DepositSelectorHex   = "26b3293f"
	MessageSelectorHex   = "490a32c6"
	SignatureSelectorHex = "1812d996"
	WithdrawSelectorHex  = "9ce318f6"
)

// Event topics, keccak-256 of the canonical event signatures, also
// asserted against fixed literal values in tests.
var (
	DepositTopic             = common.HexToHash("0xe1fffcc4923d04b559f4d29a8bfc6cda04eb5b0d3c460751c2402c5c5cc9109c")
	CollectedSignaturesTopic = common.HexToHash("0xeb043d149eedb81369bec43d4c3a3a53087debc88d2525f13bfaa3eecda28b5c")
)

// WithdrawTopic is the Withdraw(address,uint256,bytes32) event topic
// watched by WithdrawConfirm, derived the same way every
// selector/topic in this package ultimately is: keccak-256 of the
// canonical signature.
var WithdrawTopic = crypto.Keccak256Hash([]byte("Withdraw(address,uint256,bytes32)"))

// submitSignatureSelector is likewise derived rather than pinned.
var submitSignatureSelector = crypto.Keccak256([]byte("submitSignature(bytes,bytes)"))[:4]

var (
	addressTy, _   = gethabi.NewType("address", "", nil)
	uint256Ty, _   = gethabi.NewType("uint256", "", nil)
	uint256ArrTy, _ = gethabi.NewType("uint256[]", "", nil)
	uint32Ty, _    = gethabi.NewType("uint32", "", nil)
	bytes32Ty, _   = gethabi.NewType("bytes32", "", nil)
	bytesTy, _     = gethabi.NewType("bytes", "", nil)
)

func mustSelector(hexStr string) []byte {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(fmt.Sprintf("abi: invalid selector literal %q: %v", hexStr, err))
	}
	return b
}

// PadU32 returns a 32-byte big-endian word with index in its last four
// bytes, the "padded u32" encoding used by the signature() call.
// Exposed separately from PackSignature so callers (and tests) can
// construct the exact expected bytes without duplicating the
// abi.Arguments plumbing.
func PadU32(index uint32) [32]byte {
	var out [32]byte
	args := gethabi.Arguments{{Type: uint32Ty}}
	packed, err := args.Pack(index)
	if err != nil {
		panic(fmt.Sprintf("abi: packing uint32 %d: %v", index, err))
	}
	copy(out[:], packed)
	return out
}

// PackDeposit builds call data for testnet.deposit(recipient, value,
// transactionHash).
func PackDeposit(recipient common.Address, value *big.Int, transactionHash common.Hash) ([]byte, error) {
	args := gethabi.Arguments{{Type: addressTy}, {Type: uint256Ty}, {Type: bytes32Ty}}
	packed, err := args.Pack(recipient, value, [32]byte(transactionHash))
	if err != nil {
		return nil, fmt.Errorf("packing deposit call data: %w", err)
	}
	return append(mustSelector(DepositSelectorHex), packed...), nil
}

// PackMessage builds call data for testnet.message(messageHash).
func PackMessage(messageHash common.Hash) ([]byte, error) {
	args := gethabi.Arguments{{Type: bytes32Ty}}
	packed, err := args.Pack([32]byte(messageHash))
	if err != nil {
		return nil, fmt.Errorf("packing message call data: %w", err)
	}
	return append(mustSelector(MessageSelectorHex), packed...), nil
}

// PackSignature builds call data for testnet.signature(messageHash,
// index).
func PackSignature(messageHash common.Hash, index uint32) ([]byte, error) {
	args := gethabi.Arguments{{Type: bytes32Ty}, {Type: uint32Ty}}
	packed, err := args.Pack([32]byte(messageHash), index)
	if err != nil {
		return nil, fmt.Errorf("packing signature call data: %w", err)
	}
	return append(mustSelector(SignatureSelectorHex), packed...), nil
}

// PackSubmitSignature builds call data for testnet.submitSignature
// (signature, message).
func PackSubmitSignature(signature, message []byte) ([]byte, error) {
	args := gethabi.Arguments{{Type: bytesTy}, {Type: bytesTy}}
	packed, err := args.Pack(signature, message)
	if err != nil {
		return nil, fmt.Errorf("packing submitSignature call data: %w", err)
	}
	out := make([]byte, 0, len(submitSignatureSelector)+len(packed))
	out = append(out, submitSignatureSelector...)
	return append(out, packed...), nil
}

// ErrInvalidMessageLength and ErrInvalidSignatureLength guard
// invariant violations: an unrecoverable programming/protocol error
// that should abort the process rather than be treated as a
// retryable batch failure.
var (
	ErrInvalidMessageLength   = fmt.Errorf("abi: withdraw message must be exactly 84 bytes")
	ErrInvalidSignatureLength = fmt.Errorf("abi: withdraw signature must be exactly 65 bytes")
)

// SplitSignature splits a 65-byte r||s||v signature into the three
// uint256 words the mainnet withdraw function expects: v is
// left-zero-padded to 32 bytes with the original v byte in the last
// position.
func SplitSignature(sig []byte) (r, s, v *big.Int, err error) {
	if len(sig) != 65 {
		return nil, nil, nil, ErrInvalidSignatureLength
	}
	r = new(big.Int).SetBytes(sig[0:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes(sig[64:65])
	return r, s, v, nil
}

// PackWithdraw builds call data for mainnet.withdraw(vs, rs, ss,
// message). signatures and message length are validated invariants: a
// violation here means the contract pairing upstream is broken, which
// is not a retryable condition -- callers should treat a non-nil error
// here as process-fatal, not batch-fatal.
func PackWithdraw(signatures [][]byte, message []byte) ([]byte, error) {
	if len(message) != 84 {
		return nil, ErrInvalidMessageLength
	}
	vs := make([]*big.Int, len(signatures))
	rs := make([]*big.Int, len(signatures))
	ss := make([]*big.Int, len(signatures))
	for i, sig := range signatures {
		r, s, v, err := SplitSignature(sig)
		if err != nil {
			return nil, err
		}
		rs[i], ss[i], vs[i] = r, s, v
	}

	args := gethabi.Arguments{
		{Type: uint256ArrTy},
		{Type: uint256ArrTy},
		{Type: uint256ArrTy},
		{Type: bytesTy},
	}
	packed, err := args.Pack(vs, rs, ss, message)
	if err != nil {
		return nil, fmt.Errorf("packing withdraw call data: %w", err)
	}
	return append(mustSelector(WithdrawSelectorHex), packed...), nil
}

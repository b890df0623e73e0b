// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chainclient is the JSON-RPC transport collaborator: a thin,
// retrying wrapper over go-ethereum's rpc.Client exposing exactly the
// four methods the relay engine needs (eth_blockNumber, eth_getLogs,
// eth_call, eth_sendTransaction). It knows nothing about deposits,
// withdrawals, or checkpoints — those live in internal/relay.
package chainclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/chainbridge-relay/relay/internal/utils"
)

// logsCacheSize bounds the eth_getLogs read-cache RPCClient keeps. A
// confirmed block range's logs never change, so a batch replayed after
// a crash (GetLogs succeeded, but the relay died before its checkpoint
// advanced) can be served from cache instead of re-querying the
// endpoint for a range it already fetched this process lifetime.
const logsCacheSize = 256

// Log is the wire-independent form of an Ethereum log entry used
// throughout the relay engine.
type Log struct {
	Address         common.Address
	Topics          []common.Hash
	Data            []byte
	TransactionHash common.Hash
	BlockNumber     uint64
}

// FilterQuery describes an eth_getLogs request. FromBlock/ToBlock are
// both inclusive, matching the RPC's own semantics.
type FilterQuery struct {
	Address   common.Address
	Topics    [4][]common.Hash
	FromBlock uint64
	ToBlock   uint64
}

// TransactionRequest is the payload handed to eth_sendTransaction. Only
// the fields the relay engine populates are present; every other field
// of a full transaction (nonce, value, ...) is left to the endpoint,
// since signing and nonce management are delegated collaborators.
type TransactionRequest struct {
	From     common.Address
	To       common.Address
	Gas      uint64
	GasPrice *big.Int
	Data     []byte
}

// Client is the interface the relay state machines depend on. Keeping
// it as an interface (rather than *RPCClient directly) lets tests
// substitute a fake transport without touching any networking code.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, q FilterQuery) ([]Log, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SendTransaction(ctx context.Context, req TransactionRequest) (common.Hash, error)
}

// RPCClient is the production Client backed by a real JSON-RPC
// endpoint. Every call is wrapped in utils.CallWithRetry so a transient
// connection hiccup doesn't immediately fail a whole batch, but the
// retry budget is bounded by the context deadline the caller supplies
// (the relay's configured request_timeout) -- once that expires the
// call surfaces as a fatal error to the caller.
type RPCClient struct {
	rpc       *gethrpc.Client
	logsCache *lru.Cache[string, []Log]
}

// Dial connects to an Ethereum-style JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*RPCClient, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing rpc endpoint %s", url)
	}
	cache, err := lru.New[string, []Log](logsCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "constructing eth_getLogs cache")
	}
	return &RPCClient{rpc: c, logsCache: cache}, nil
}

func (c *RPCClient) Close() {
	c.rpc.Close()
}

func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	return utils.CallWithRetry(ctx, func() (uint64, error) {
		var result hexutil.Uint64
		if err := c.rpc.CallContext(ctx, &result, "eth_blockNumber"); err != nil {
			return 0, errors.Wrap(err, "eth_blockNumber")
		}
		return uint64(result), nil
	})
}

type getLogsParams struct {
	Address   []common.Address `json:"address"`
	FromBlock string           `json:"fromBlock"`
	ToBlock   string           `json:"toBlock"`
	Topics    [][]common.Hash  `json:"topics"`
}

type rawLog struct {
	Address         common.Address  `json:"address"`
	Topics          []common.Hash   `json:"topics"`
	Data            hexutil.Bytes   `json:"data"`
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     *hexutil.Uint64 `json:"blockNumber"`
}

// GetLogs issues eth_getLogs over the inclusive [q.FromBlock, q.ToBlock]
// range. The request body shape (address as a one-element array,
// topics as a four-slot array of alternatives) mirrors the wire format
// produced by the original bridge's web3_filter helper, preserved here
// because authorities on both sides of the bridge must agree on it.
func (c *RPCClient) GetLogs(ctx context.Context, q FilterQuery) ([]Log, error) {
	key := q.String()
	if cached, ok := c.logsCache.Get(key); ok {
		return cached, nil
	}

	params := getLogsParams{
		Address:   []common.Address{q.Address},
		FromBlock: hexutil.EncodeUint64(q.FromBlock),
		ToBlock:   hexutil.EncodeUint64(q.ToBlock),
		Topics:    make([][]common.Hash, 4),
	}
	for i := 0; i < 4; i++ {
		params.Topics[i] = q.Topics[i]
	}

	raws, err := utils.CallWithRetry(ctx, func() ([]rawLog, error) {
		var result []rawLog
		if err := c.rpc.CallContext(ctx, &result, "eth_getLogs", params); err != nil {
			return nil, errors.Wrap(err, "eth_getLogs")
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	logs := make([]Log, len(raws))
	for i, r := range raws {
		var blockNumber uint64
		if r.BlockNumber != nil {
			blockNumber = uint64(*r.BlockNumber)
		}
		logs[i] = Log{
			Address:         r.Address,
			Topics:          r.Topics,
			Data:            r.Data,
			TransactionHash: r.TransactionHash,
			BlockNumber:     blockNumber,
		}
	}
	c.logsCache.Add(key, logs)
	return logs, nil
}

type callParams struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

func (c *RPCClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return utils.CallWithRetry(ctx, func() ([]byte, error) {
		var result hexutil.Bytes
		params := callParams{To: to, Data: data}
		if err := c.rpc.CallContext(ctx, &result, "eth_call", params, "latest"); err != nil {
			return nil, errors.Wrap(err, "eth_call")
		}
		return result, nil
	})
}

type sendTransactionParams struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Gas      hexutil.Uint64 `json:"gas"`
	GasPrice hexutil.Big    `json:"gasPrice"`
	Data     hexutil.Bytes  `json:"data"`
}

// SendTransaction issues eth_sendTransaction against a pre-unlocked
// account. Signing and nonce assignment happen at the endpoint; this
// client only shapes and dispatches the request -- key management and
// transaction signing are delegated to the RPC endpoint.
func (c *RPCClient) SendTransaction(ctx context.Context, req TransactionRequest) (common.Hash, error) {
	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}
	params := sendTransactionParams{
		From:     req.From,
		To:       req.To,
		Gas:      hexutil.Uint64(req.Gas),
		GasPrice: hexutil.Big(*gasPrice),
		Data:     req.Data,
	}
	return utils.CallWithRetry(ctx, func() (common.Hash, error) {
		var result common.Hash
		if err := c.rpc.CallContext(ctx, &result, "eth_sendTransaction", params); err != nil {
			return common.Hash{}, errors.Wrap(err, "eth_sendTransaction")
		}
		return result, nil
	})
}

// Sign issues eth_sign against a pre-unlocked account, the transport
// delegate for WithdrawConfirm's message signing. Not part of the
// Client interface: only WithdrawConfirm's RPC-backed Signer uses it.
func (c *RPCClient) Sign(ctx context.Context, account common.Address, data []byte) ([]byte, error) {
	return utils.CallWithRetry(ctx, func() ([]byte, error) {
		var result hexutil.Bytes
		if err := c.rpc.CallContext(ctx, &result, "eth_sign", account, hexutil.Encode(data)); err != nil {
			return nil, errors.Wrap(err, "eth_sign")
		}
		return result, nil
	})
}

// String implements fmt.Stringer for diagnostic logging, and also
// serves as RPCClient's eth_getLogs cache key: it includes every field
// the result depends on, so two distinct filters never collide.
func (q FilterQuery) String() string {
	return fmt.Sprintf("FilterQuery{address=%s topics=%v from=%d to=%d}", q.Address.Hex(), q.Topics, q.FromBlock, q.ToBlock)
}

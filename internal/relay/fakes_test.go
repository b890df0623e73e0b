// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbridge-relay/relay/internal/chainclient"
	"github.com/chainbridge-relay/relay/internal/checkpoint"
)

// fakeChainClient scripts eth_blockNumber responses, maps eth_getLogs
// calls by range, and records every SendTransaction/Call invocation,
// mirroring the wire exchanges in original_source/tests/tests.
type fakeChainClient struct {
	mu sync.Mutex

	blockNumbers []uint64
	bnIdx        int
	logsByRange  map[[2]uint64][]chainclient.Log
	callResults  map[string][]byte

	sentTransactions []chainclient.TransactionRequest
	calls            []struct {
		To   common.Address
		Data []byte
	}
}

func (f *fakeChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.blockNumbers[f.bnIdx]
	if f.bnIdx < len(f.blockNumbers)-1 {
		f.bnIdx++
	}
	return n, nil
}

func (f *fakeChainClient) GetLogs(ctx context.Context, q chainclient.FilterQuery) ([]chainclient.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logsByRange[[2]uint64{q.FromBlock, q.ToBlock}], nil
}

func (f *fakeChainClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct {
		To   common.Address
		Data []byte
	}{to, data})
	return f.callResults[string(data)], nil
}

func (f *fakeChainClient) SendTransaction(ctx context.Context, req chainclient.TransactionRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTransactions = append(f.sentTransactions, req)
	return common.BytesToHash([]byte{byte(len(f.sentTransactions))}), nil
}

// fakeCheckpointStore is an in-memory checkpoint.Store for tests that
// exercise a relay's Run loop without a pebble database.
type fakeCheckpointStore struct {
	mu       sync.Mutex
	advanced map[checkpoint.Field]uint64
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{advanced: make(map[checkpoint.Field]uint64)}
}

func (s *fakeCheckpointStore) Load(ctx context.Context) (checkpoint.Record, error) {
	return checkpoint.Record{}, nil
}

func (s *fakeCheckpointStore) Advance(ctx context.Context, field checkpoint.Field, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block < s.advanced[field] {
		return checkpoint.ErrRegression
	}
	s.advanced[field] = block
	return nil
}

func (s *fakeCheckpointStore) Checked(field checkpoint.Field) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanced[field]
}

func (s *fakeCheckpointStore) Close() error { return nil }

var _ checkpoint.Store = (*fakeCheckpointStore)(nil)

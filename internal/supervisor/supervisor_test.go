// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/chainbridge-relay/relay/config"
	"github.com/chainbridge-relay/relay/internal/chainclient"
	"github.com/chainbridge-relay/relay/internal/checkpoint"
	"github.com/chainbridge-relay/relay/internal/testlog"
)

// fakeClient answers eth_blockNumber with a fixed, never-advancing
// height so every relay's LogStream just blocks waiting for
// confirmations until ctx is cancelled -- enough to exercise
// construction and shutdown without driving a full batch.
type fakeClient struct{}

func (fakeClient) BlockNumber(context.Context) (uint64, error) { return 0, nil }
func (fakeClient) GetLogs(context.Context, chainclient.FilterQuery) ([]chainclient.Log, error) {
	return nil, nil
}
func (fakeClient) Call(context.Context, common.Address, []byte) ([]byte, error) { return nil, nil }
func (fakeClient) SendTransaction(context.Context, chainclient.TransactionRequest) (common.Hash, error) {
	return common.Hash{}, nil
}
func (fakeClient) Sign(context.Context, common.Address, []byte) ([]byte, error) {
	return make([]byte, 65), nil
}

type fakeStore struct {
	mu       sync.Mutex
	advanced map[checkpoint.Field]uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{advanced: make(map[checkpoint.Field]uint64)}
}

func (s *fakeStore) Load(context.Context) (checkpoint.Record, error) { return checkpoint.Record{}, nil }

func (s *fakeStore) Advance(_ context.Context, field checkpoint.Field, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanced[field] = block
	return nil
}

func (s *fakeStore) Checked(field checkpoint.Field) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanced[field]
}

func (s *fakeStore) Close() error { return nil }

var _ checkpoint.Store = (*fakeStore)(nil)

// fakeCheckpointMetrics records every SetCheckpointHeight call so tests
// can assert TrackingStore.Advance drives it.
type fakeCheckpointMetrics struct {
	mu      sync.Mutex
	heights map[string]uint64
}

func newFakeCheckpointMetrics() *fakeCheckpointMetrics {
	return &fakeCheckpointMetrics{heights: make(map[string]uint64)}
}

func (f *fakeCheckpointMetrics) SetCheckpointHeight(relay string, height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heights[relay] = height
}

func (f *fakeCheckpointMetrics) get(relay string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heights[relay]
}

var _ CheckpointMetricsSink = (*fakeCheckpointMetrics)(nil)

func TestNewBuildsAllThreeRelaysAndRunShutsDownOnCancel(t *testing.T) {
	cfg := config.Config{
		Mainnet:            config.ChainConfig{RequestTimeout: time.Second},
		Testnet:            config.ChainConfig{RequestTimeout: time.Second},
		PollInterval:       time.Millisecond,
		Confirmations:      1,
		RequiredSignatures: 2,
		RestartOnError:     true,
	}
	store := NewTrackingStore(newFakeStore(), nil)

	s, err := New(context.Background(), cfg, fakeClient{}, fakeClient{}, store, testlog.Logger(), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, s.factories, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTrackingStoreRecordsLastAdvanced(t *testing.T) {
	store := NewTrackingStore(newFakeStore(), nil)
	_, ok := store.LastAdvanced(string(checkpoint.FieldDepositRelay))
	require.False(t, ok)

	require.NoError(t, store.Advance(context.Background(), checkpoint.FieldDepositRelay, 10))
	last, ok := store.LastAdvanced(string(checkpoint.FieldDepositRelay))
	require.True(t, ok)
	require.WithinDuration(t, time.Now(), last, time.Second)
}

func TestTrackingStoreSetsCheckpointHeightMetric(t *testing.T) {
	metrics := newFakeCheckpointMetrics()
	store := NewTrackingStore(newFakeStore(), metrics)

	require.NoError(t, store.Advance(context.Background(), checkpoint.FieldWithdrawRelay, 42))
	require.Equal(t, uint64(42), metrics.get(string(checkpoint.FieldWithdrawRelay)))
}

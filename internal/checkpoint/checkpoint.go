// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package checkpoint persists the relay engine's Checkpoint entity:
// the last fully-processed block per relay, plus the two bridge
// contract addresses. The defining requirement is atomic per-field
// updates -- a crash between submitting a batch's transactions and
// persisting its block number must never leave the on-disk record
// partially updated.
package checkpoint

import (
	"context"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// schemaVersion guards against trusting checked_* values written by an
// incompatible on-disk layout.
const schemaVersion uint32 = 1

// Field names one of the three monotonic block counters a Store
// advances independently.
type Field string

const (
	FieldDepositRelay    Field = "checked_deposit_relay"
	FieldWithdrawRelay   Field = "checked_withdraw_relay"
	FieldWithdrawConfirm Field = "checked_withdraw_confirm"
)

var allFields = []Field{FieldDepositRelay, FieldWithdrawRelay, FieldWithdrawConfirm}

// Record is the full persisted snapshot, read once at startup.
type Record struct {
	SchemaVersion           uint32
	CheckedDepositRelay     uint64
	CheckedWithdrawRelay    uint64
	CheckedWithdrawConfirm  uint64
	MainnetContractAddress  common.Address
	TestnetContractAddress  common.Address
}

// ErrSchemaMismatch is returned by Store.Load when an existing record
// was written by an incompatible schema version.
var ErrSchemaMismatch = errors.New("checkpoint: on-disk schema_version does not match this binary")

// ErrRegression is returned by Store.Advance when the caller attempts
// to move a field's checkpoint backwards, violating the invariant
// that checkpoints are monotonically non-decreasing across restarts.
var ErrRegression = errors.New("checkpoint: refusing to move checkpoint backwards")

// Store is the persisted-Database collaborator every relay state
// machine and the supervisor depend on. Implementations: Pebble (the
// default, embedded) and redisbackend.Store (shared, multi-process).
type Store interface {
	// Load returns the current record, creating one seeded with
	// mainnet/testnet addresses and zero checkpoints if none exists yet.
	Load(ctx context.Context) (Record, error)

	// Advance atomically sets field to block. It is the sole write path
	// for checked_* values: nothing may ever observe a partially-applied
	// batch, so every call here updates exactly one field in a single
	// atomic commit.
	Advance(ctx context.Context, field Field, block uint64) error

	// Checked returns the in-memory cached value of field, suitable for
	// metrics collection without touching the backing store on every
	// scrape.
	Checked(field Field) uint64

	Close() error
}

// cachedCounters mirrors the three checked_* fields in memory so
// Store.Checked is cheap and safe to call concurrently with Advance,
// using go.uber.org/atomic for a counter read by one goroutine while
// written by another.
type cachedCounters struct {
	values map[Field]*atomic.Uint64
}

func newCachedCounters(rec Record) *cachedCounters {
	c := &cachedCounters{values: make(map[Field]*atomic.Uint64, len(allFields))}
	c.values[FieldDepositRelay] = atomic.NewUint64(rec.CheckedDepositRelay)
	c.values[FieldWithdrawRelay] = atomic.NewUint64(rec.CheckedWithdrawRelay)
	c.values[FieldWithdrawConfirm] = atomic.NewUint64(rec.CheckedWithdrawConfirm)
	return c
}

func (c *cachedCounters) set(field Field, block uint64) {
	c.values[field].Store(block)
}

func (c *cachedCounters) get(field Field) uint64 {
	ctr, ok := c.values[field]
	if !ok {
		return 0
	}
	return ctr.Load()
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package supervisor composes the three relay state machines into one
// running process: constructing them against their checkpoints and
// chain clients, running them concurrently, and implementing the
// restart-vs-exit policy when one fails.
package supervisor

import (
	"context"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainbridge-relay/relay/config"
	"github.com/chainbridge-relay/relay/internal/abi"
	"github.com/chainbridge-relay/relay/internal/chainclient"
	"github.com/chainbridge-relay/relay/internal/checkpoint"
	"github.com/chainbridge-relay/relay/internal/logstream"
	"github.com/chainbridge-relay/relay/internal/relay"
)

// MetricsSink is the subset of *metrics.Metrics the supervisor itself
// drives (relay.MetricsSink is passed straight through to each relay
// separately, since it's recorded from inside the relay's own Run).
type MetricsSink interface {
	TransportError(relay string)
}

// CheckpointMetricsSink is the subset of *metrics.Metrics TrackingStore
// drives directly, kept as a package-local interface the same way
// MetricsSink is so this package doesn't import internal/metrics.
type CheckpointMetricsSink interface {
	SetCheckpointHeight(relay string, height uint64)
}

// TrackingStore wraps a checkpoint.Store, recording the wall-clock
// time each field last advanced so internal/health can report
// staleness, and mirroring the advanced height into metrics. It
// implements checkpoint.Store itself so it can be substituted
// transparently wherever the underlying store would be passed to a
// relay constructor.
type TrackingStore struct {
	checkpoint.Store
	mu      sync.Mutex
	last    map[checkpoint.Field]time.Time
	metrics CheckpointMetricsSink
}

// NewTrackingStore wraps store for staleness tracking. metrics may be
// nil, in which case the checkpoint-height gauge is simply not
// updated.
func NewTrackingStore(store checkpoint.Store, metrics CheckpointMetricsSink) *TrackingStore {
	return &TrackingStore{Store: store, last: make(map[checkpoint.Field]time.Time), metrics: metrics}
}

func (t *TrackingStore) Advance(ctx context.Context, field checkpoint.Field, block uint64) error {
	if err := t.Store.Advance(ctx, field, block); err != nil {
		return err
	}
	t.mu.Lock()
	t.last[field] = time.Now()
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.SetCheckpointHeight(string(field), block)
	}
	return nil
}

// LastAdvanced implements internal/health's CheckpointReader, keyed by
// the same string names used throughout this package (checkpoint.Field
// values).
func (t *TrackingStore) LastAdvanced(name string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.last[checkpoint.Field(name)]
	return v, ok
}

// rpcSigner is the minimal surface RPCSigner needs; *chainclient.RPCClient
// satisfies it, matched structurally the same way relay.rpcSigningClient is.
type rpcSigner interface {
	Sign(ctx context.Context, account common.Address, data []byte) ([]byte, error)
}

// buildSigner picks, in order, LocalSigner (a signing key is
// configured), KMSSigner (a KMS key id is configured), or RPCSigner
// against the testnet endpoint's eth_sign.
func buildSigner(ctx context.Context, testnetClient chainclient.Client, cfg config.Config) (relay.Signer, error) {
	if cfg.SigningKey != nil {
		return &relay.LocalSigner{Key: cfg.SigningKey}, nil
	}
	if cfg.KMSKeyID != "" {
		awsCfgOpts := []func(*awsconfig.LoadOptions) error{}
		if cfg.KMSRegion != "" {
			awsCfgOpts = append(awsCfgOpts, awsconfig.WithRegion(cfg.KMSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsCfgOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "loading AWS config for KMS signer")
		}
		return relay.NewKMSSigner(ctx, kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	}
	signing, ok := testnetClient.(rpcSigner)
	if !ok {
		return nil, errors.New("testnet client does not support eth_sign; configure a local signing key or a KMS key instead")
	}
	return &relay.RPCSigner{Client: signing, Account: cfg.Testnet.Account}, nil
}

// factory builds one relay's runnable state machine fresh, reading the
// checkpoint's current value so a restart resumes exactly where the
// last successful batch left off rather than from whatever a
// crashed LogStream's in-memory lastChecked happened to be.
type factory func(ctx context.Context) (runner, error)

type runner interface {
	Run(ctx context.Context) error
}

// Supervisor owns the three relay factories, their shared checkpoint
// store, and the restart policy that governs them.
type Supervisor struct {
	cfg       config.Config
	store     checkpoint.Store
	logger    logging.Logger
	metrics   MetricsSink
	factories map[string]factory
}

// New wires the three relay factories over mainnetClient/testnetClient
// and store (typically a *TrackingStore, so internal/health can read
// staleness). relayMetrics/decider are passed through to every relay
// and may both be nil. ctx bounds only the one-time signer setup (a
// KMS-configured signer fetches its public key at construction).
func New(
	ctx context.Context,
	cfg config.Config,
	mainnetClient, testnetClient chainclient.Client,
	store checkpoint.Store,
	logger logging.Logger,
	metrics MetricsSink,
	relayMetrics relay.MetricsSink,
	decider relay.Decider,
) (*Supervisor, error) {
	signer, err := buildSigner(ctx, testnetClient, cfg)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		metrics:   metrics,
		factories: map[string]factory{},
	}

	s.factories[string(checkpoint.FieldDepositRelay)] = func(context.Context) (runner, error) {
		stream := logstream.New(mainnetClient, logstream.Init{
			After:          store.Checked(checkpoint.FieldDepositRelay),
			RequestTimeout: cfg.Mainnet.RequestTimeout,
			PollInterval:   cfg.PollInterval,
			Confirmations:  cfg.Confirmations,
			Filter: chainclient.FilterQuery{
				Address: cfg.Mainnet.ContractAddress,
				Topics:  [4][]common.Hash{{abi.DepositTopic}},
			},
		}, logger)
		return relay.NewDepositRelay(stream, testnetClient, store, relay.DepositRelayConfig{
			TestnetAccount:  cfg.Testnet.Account,
			TestnetContract: cfg.Testnet.ContractAddress,
			RequestTimeout:  cfg.Testnet.RequestTimeout,
			Tx:              relay.TxParams{Gas: cfg.DepositTx.Gas, GasPrice: cfg.DepositTx.GasPrice},
		}, logger, relayMetrics, decider), nil
	}

	s.factories[string(checkpoint.FieldWithdrawConfirm)] = func(context.Context) (runner, error) {
		stream := logstream.New(testnetClient, logstream.Init{
			After:          store.Checked(checkpoint.FieldWithdrawConfirm),
			RequestTimeout: cfg.Testnet.RequestTimeout,
			PollInterval:   cfg.PollInterval,
			Confirmations:  cfg.Confirmations,
			Filter: chainclient.FilterQuery{
				Address: cfg.Testnet.ContractAddress,
				Topics:  [4][]common.Hash{{abi.WithdrawTopic}},
			},
		}, logger)
		return relay.NewWithdrawConfirm(stream, testnetClient, signer, store, relay.WithdrawConfirmConfig{
			TestnetAccount:  cfg.Testnet.Account,
			TestnetContract: cfg.Testnet.ContractAddress,
			RequestTimeout:  cfg.Testnet.RequestTimeout,
			Tx:              relay.TxParams{Gas: cfg.WithdrawConfirmTx.Gas, GasPrice: cfg.WithdrawConfirmTx.GasPrice},
		}, logger, relayMetrics, decider), nil
	}

	s.factories[string(checkpoint.FieldWithdrawRelay)] = func(context.Context) (runner, error) {
		stream := logstream.New(testnetClient, logstream.Init{
			After:          store.Checked(checkpoint.FieldWithdrawRelay),
			RequestTimeout: cfg.Testnet.RequestTimeout,
			PollInterval:   cfg.PollInterval,
			Confirmations:  cfg.Confirmations,
			Filter: chainclient.FilterQuery{
				Address: cfg.Testnet.ContractAddress,
				Topics:  [4][]common.Hash{{abi.CollectedSignaturesTopic}},
			},
		}, logger)
		return relay.NewWithdrawRelay(stream, testnetClient, mainnetClient, store, relay.WithdrawRelayConfig{
			TestnetAccount:        cfg.Testnet.Account,
			TestnetContract:       cfg.Testnet.ContractAddress,
			TestnetRequestTimeout: cfg.Testnet.RequestTimeout,
			MainnetAccount:        cfg.Mainnet.Account,
			MainnetContract:       cfg.Mainnet.ContractAddress,
			MainnetRequestTimeout: cfg.Mainnet.RequestTimeout,
			RequiredSignatures:    cfg.RequiredSignatures,
			Tx:                    relay.TxParams{Gas: cfg.WithdrawTx.Gas, GasPrice: cfg.WithdrawTx.GasPrice},
		}, logger, relayMetrics, decider), nil
	}

	return s, nil
}

// Run starts every relay and blocks until ctx is cancelled or, when
// restart_on_error is false, until the first relay failure. An ABI
// invariant violation (abi.ErrInvalidMessageLength or
// abi.ErrInvalidSignatureLength) ends Run regardless of
// restart_on_error.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, f := range s.factories {
		name, f := name, f
		g.Go(func() error {
			return s.runWithPolicy(gctx, name, f)
		})
	}
	return g.Wait()
}

// runWithPolicy drives one relay, rebuilding it from the factory (and
// so from the last persisted checkpoint, per store.Checked) on every
// restart. true (default) restarts in place; false propagates the
// error, which cancels every other relay via the errgroup's shared
// context.
func (s *Supervisor) runWithPolicy(ctx context.Context, name string, f factory) error {
	for {
		r, err := f(ctx)
		if err != nil {
			return err
		}

		err = r.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}

		s.logger.Error("relay failed",
			zap.String("relay", name),
			zap.Uint64("checkpoint", s.store.Checked(checkpoint.Field(name))),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.TransportError(name)
		}

		if errors.Is(err, abi.ErrInvalidMessageLength) || errors.Is(err, abi.ErrInvalidSignatureLength) {
			s.logger.Error("relay hit an unrecoverable invariant violation, aborting process",
				zap.String("relay", name),
			)
			return err
		}

		if !s.cfg.RestartOnError {
			return err
		}
		s.logger.Info("restarting relay after error", zap.String("relay", name))
	}
}

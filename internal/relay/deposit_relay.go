// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainbridge-relay/relay/internal/abi"
	"github.com/chainbridge-relay/relay/internal/chainclient"
	"github.com/chainbridge-relay/relay/internal/checkpoint"
	"github.com/chainbridge-relay/relay/internal/logstream"
)

// DepositRelayConfig is the static configuration DepositRelay needs,
// carved out of config.Config so this package doesn't import it
// (avoiding a dependency cycle with the supervisor that wires both).
type DepositRelayConfig struct {
	TestnetAccount  common.Address
	TestnetContract common.Address
	RequestTimeout  time.Duration
	Tx              TxParams
}

// DepositRelay tails Deposit events on the mainnet contract (via its
// LogStream, backed by the mainnet RPC endpoint) and submits a
// matching deposit() transaction to the testnet contract over a
// separate testnet RPC endpoint.
type DepositRelay struct {
	stream        *logstream.LogStream
	testnetClient chainclient.Client
	store         checkpoint.Store
	cfg           DepositRelayConfig
	logger        logging.Logger
	metrics       MetricsSink
	decider       Decider
}

// NewDepositRelay takes stream (built over the mainnet client) and
// testnetClient (where deposit() transactions are submitted)
// separately: the two sides of the bridge are distinct chains with
// distinct JSON-RPC endpoints. metrics and decider may both be nil.
func NewDepositRelay(stream *logstream.LogStream, testnetClient chainclient.Client, store checkpoint.Store, cfg DepositRelayConfig, logger logging.Logger, metrics MetricsSink, decider Decider) *DepositRelay {
	return &DepositRelay{stream: stream, testnetClient: testnetClient, store: store, cfg: cfg, logger: logger, metrics: metrics, decider: decider}
}

// Run drives Wait -> Submit -> Yield indefinitely until ctx is
// cancelled or a batch fails. A non-nil return is always a relay
// failure for the supervisor to act on (restart or exit); the
// checkpoint was already left untouched for the in-flight batch.
func (r *DepositRelay) Run(ctx context.Context) error {
	for {
		r.logger.Debug("deposit relay phase", zap.Stringer("phase", PhaseWait))
		batch, err := r.stream.Next(ctx)
		if err != nil {
			return err
		}

		r.logger.Debug("deposit relay phase", zap.Stringer("phase", PhaseSubmit), zap.Uint64("from", batch.From), zap.Uint64("to", batch.To))
		if err := r.submitBatch(ctx, batch); err != nil {
			return err
		}

		if err := r.store.Advance(ctx, checkpoint.FieldDepositRelay, batch.To); err != nil {
			return err
		}
		recordBatch(r.metrics, metricsRelayDeposit, len(batch.Logs))
		r.logger.Info("deposit relay phase", zap.Stringer("phase", PhaseYield), zap.Uint64("block", batch.To))
	}
}

// submitBatch builds and submits one deposit() transaction per log in
// parallel, returning only once every submission has succeeded: the
// checkpoint never advances until every submission in the batch has.
func (r *DepositRelay) submitBatch(ctx context.Context, batch *logstream.Batch) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, log := range batch.Logs {
		log := log
		g.Go(func() error {
			return r.submitOne(gctx, log)
		})
	}
	return g.Wait()
}

func (r *DepositRelay) submitOne(ctx context.Context, log chainclient.Log) error {
	ok, err := allowed(ctx, r.decider, "deposit")
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Warn("deposit disallowed by decider, blocking this batch from checkpointing")
		return ErrSubmissionDisallowed
	}

	recipient, value, txHash, err := parseDepositLog(log)
	if err != nil {
		return err
	}
	data, err := abi.PackDeposit(recipient, value, txHash)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()
	_, err = r.testnetClient.SendTransaction(cctx, chainclient.TransactionRequest{
		From:     r.cfg.TestnetAccount,
		To:       r.cfg.TestnetContract,
		Gas:      r.cfg.Tx.Gas,
		GasPrice: r.cfg.Tx.GasPrice,
		Data:     data,
	})
	if err != nil {
		return err
	}
	recordTransaction(r.metrics, metricsRelayDeposit)
	return nil
}

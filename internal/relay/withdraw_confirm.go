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

// WithdrawConfirmConfig is WithdrawConfirm's static configuration,
// structurally identical to DepositRelayConfig.
type WithdrawConfirmConfig struct {
	TestnetAccount  common.Address
	TestnetContract common.Address
	RequestTimeout  time.Duration
	Tx              TxParams
}

// WithdrawConfirm tails Withdraw events on the testnet contract, signs
// each withdrawal's message with the authority's key, and submits
// submitSignature() to the testnet contract.
type WithdrawConfirm struct {
	stream  *logstream.LogStream
	client  chainclient.Client
	signer  Signer
	store   checkpoint.Store
	cfg     WithdrawConfirmConfig
	logger  logging.Logger
	metrics MetricsSink
	decider Decider
}

func NewWithdrawConfirm(stream *logstream.LogStream, client chainclient.Client, signer Signer, store checkpoint.Store, cfg WithdrawConfirmConfig, logger logging.Logger, metrics MetricsSink, decider Decider) *WithdrawConfirm {
	return &WithdrawConfirm{stream: stream, client: client, signer: signer, store: store, cfg: cfg, logger: logger, metrics: metrics, decider: decider}
}

func (r *WithdrawConfirm) Run(ctx context.Context) error {
	for {
		r.logger.Debug("withdraw confirm phase", zap.Stringer("phase", PhaseWait))
		batch, err := r.stream.Next(ctx)
		if err != nil {
			return err
		}

		r.logger.Debug("withdraw confirm phase", zap.Stringer("phase", PhaseSubmit), zap.Uint64("from", batch.From), zap.Uint64("to", batch.To))
		if err := r.submitBatch(ctx, batch); err != nil {
			return err
		}

		if err := r.store.Advance(ctx, checkpoint.FieldWithdrawConfirm, batch.To); err != nil {
			return err
		}
		recordBatch(r.metrics, metricsRelayWithdrawConfirm, len(batch.Logs))
		r.logger.Info("withdraw confirm phase", zap.Stringer("phase", PhaseYield), zap.Uint64("block", batch.To))
	}
}

func (r *WithdrawConfirm) submitBatch(ctx context.Context, batch *logstream.Batch) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, log := range batch.Logs {
		log := log
		g.Go(func() error {
			return r.submitOne(gctx, log)
		})
	}
	return g.Wait()
}

func (r *WithdrawConfirm) submitOne(ctx context.Context, log chainclient.Log) error {
	ok, err := allowed(ctx, r.decider, "withdraw_confirm")
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Warn("withdraw confirmation disallowed by decider, blocking this batch from checkpointing")
		return ErrSubmissionDisallowed
	}

	recipient, value, txHash, err := parseWithdrawLog(log)
	if err != nil {
		return err
	}
	message := buildWithdrawMessage(recipient, value, txHash)

	signature, err := r.signer.Sign(ctx, message)
	if err != nil {
		return err
	}

	data, err := abi.PackSubmitSignature(signature, message)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()
	_, err = r.client.SendTransaction(cctx, chainclient.TransactionRequest{
		From:     r.cfg.TestnetAccount,
		To:       r.cfg.TestnetContract,
		Gas:      r.cfg.Tx.Gas,
		GasPrice: r.cfg.Tx.GasPrice,
		Data:     data,
	})
	if err != nil {
		return err
	}
	recordTransaction(r.metrics, metricsRelayWithdrawConfirm)
	return nil
}

// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logstream implements the confirmed log follower: a
// gap-free, duplicate-free sequence of log batches covering every
// block from Init.After+1 forward, each emitted only once
// Confirmations further blocks have been observed.
package logstream

import (
	"context"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"

	"github.com/chainbridge-relay/relay/internal/chainclient"
)

// Init is the immutable construction input of a LogStream.
type Init struct {
	After          uint64
	RequestTimeout time.Duration
	PollInterval   time.Duration
	Confirmations  uint64
	Filter         chainclient.FilterQuery // FromBlock/ToBlock are overwritten per poll
}

// Batch is a gap-free, inclusive block range and the logs observed in
// it.
type Batch struct {
	From uint64
	To   uint64
	Logs []chainclient.Log
}

// LogStream produces a non-restartable sequence of Batch values. It is
// not safe for concurrent use: exactly one goroutine should call Next.
type LogStream struct {
	client      chainclient.Client
	init        Init
	lastChecked uint64
	logger      logging.Logger
}

// New constructs a LogStream resuming from init.After -- i.e. the
// first batch's From will be init.After+1, so resumption always
// queries fromBlock = checked_R + 1.
func New(client chainclient.Client, init Init, logger logging.Logger) *LogStream {
	return &LogStream{
		client:      client,
		init:        init,
		lastChecked: init.After,
		logger:      logger,
	}
}

// Next blocks until the next confirmed batch is ready, the context is
// cancelled, or a fatal RPC error occurs. Each call advances
// lastChecked exactly once, by repeatedly polling eth_blockNumber
// until the chain head has advanced far enough past Confirmations,
// then issuing one eth_getLogs covering the newly-confirmed range.
//
// A non-nil error is always fatal to the in-progress batch: LogStream
// performs no internal retry across polls beyond what
// chainclient.Client itself does within a single call's
// request_timeout. The caller (a relay state machine, ultimately the
// supervisor) decides whether to restart.
func (s *LogStream) Next(ctx context.Context) (*Batch, error) {
	for {
		cctx, cancel := context.WithTimeout(ctx, s.init.RequestTimeout)
		head, err := s.client.BlockNumber(cctx)
		cancel()
		if err != nil {
			return nil, err
		}

		if head < s.lastChecked+s.init.Confirmations+1 {
			s.logger.Debug(
				"No new confirmed blocks",
				zap.Uint64("head", head),
				zap.Uint64("lastChecked", s.lastChecked),
				zap.Uint64("confirmations", s.init.Confirmations),
			)
			timer := time.NewTimer(s.init.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			continue
		}

		to := head - s.init.Confirmations
		from := s.lastChecked + 1

		filter := s.init.Filter
		filter.FromBlock = from
		filter.ToBlock = to

		cctx, cancel = context.WithTimeout(ctx, s.init.RequestTimeout)
		logs, err := s.client.GetLogs(cctx, filter)
		cancel()
		if err != nil {
			return nil, err
		}

		s.lastChecked = to
		s.logger.Info(
			"Processed confirmed block range",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Int("logs", len(logs)),
		)
		return &Batch{From: from, To: to, Logs: logs}, nil
	}
}

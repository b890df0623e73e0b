// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"errors"
)

// Relay label values, matching internal/metrics's Relay constants by
// string value without importing that package (MetricsSink keeps the
// dependency one-directional: metrics depends on relay's label
// strings being stable, not the reverse).
const (
	metricsRelayDeposit          = "deposit_relay"
	metricsRelayWithdrawConfirm  = "withdraw_confirm"
	metricsRelayWithdraw         = "withdraw_relay"
)

// MetricsSink is the minimal metrics surface a relay state machine
// needs; satisfied by *metrics.Metrics (internal/metrics), kept as an
// interface here to avoid relay depending on the metrics package's
// prometheus wiring directly. Nil is a valid MetricsSink: every call
// site checks for it before recording.
type MetricsSink interface {
	BatchProcessed(relay string)
	LogsObserved(relay string, n int)
	TransactionSubmitted(relay string)
}

func recordBatch(m MetricsSink, relay string, logs int) {
	if m == nil {
		return
	}
	m.BatchProcessed(relay)
	m.LogsObserved(relay, logs)
}

func recordTransaction(m MetricsSink, relay string) {
	if m == nil {
		return
	}
	m.TransactionSubmitted(relay)
}

// Decider is the minimal policy-gate surface a relay consults before
// submitting a transaction, satisfied by *decider.RemoteDecider and
// decider.AlwaysAllow (internal/decider) without relay importing that
// package's gRPC dependency directly. Nil is a valid Decider: every
// call site treats it as always-allow.
//
//go:generate go run go.uber.org/mock/mockgen -source=metrics.go -destination=mock_decider_test.go -package=relay
type Decider interface {
	Allow(ctx context.Context, kind string) (bool, error)
}

// ErrSubmissionDisallowed is returned by a submit/relay call site when
// the decider declines a submission. Unlike relayer-election misses,
// this must not let the batch's checkpoint advance: the log was never
// submitted, so checked_R has to stay behind it until either the
// decider allows it or the process is asked to stop trying. Callers
// propagate it as an ordinary batch failure, which the supervisor
// retries against the same persisted checkpoint.
var ErrSubmissionDisallowed = errors.New("relay: submission disallowed by decider")

// allowed reports whether a submission of the given kind may proceed.
// A nil decider always allows.
func allowed(ctx context.Context, d Decider, kind string) (bool, error) {
	if d == nil {
		return true, nil
	}
	return d.Allow(ctx, kind)
}

// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics collects Prometheus metrics for the relay engine,
// taking a prometheus.Registerer into its constructor rather than
// relying on the global default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Relay names one of the three relays for metric labeling.
type Relay string

const (
	RelayDeposit          Relay = "deposit_relay"
	RelayWithdrawConfirm  Relay = "withdraw_confirm"
	RelayWithdraw         Relay = "withdraw_relay"
)

// Metrics is the full set of collectors the relay engine exposes.
type Metrics struct {
	BatchesProcessed      *prometheus.CounterVec
	LogsSeen              *prometheus.CounterVec
	TransactionsSubmitted *prometheus.CounterVec
	TransportErrors       *prometheus.CounterVec
	CheckpointHeight      *prometheus.GaugeVec
	AuthoritiesReachable  prometheus.Gauge
	AuthoritiesTotal      prometheus.Gauge
}

// New constructs and registers every collector against registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		BatchesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainbridge_relay",
			Name:      "batches_processed_total",
			Help:      "Number of log batches fully processed per relay.",
		}, []string{"relay"}),
		LogsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainbridge_relay",
			Name:      "logs_seen_total",
			Help:      "Number of logs observed per relay.",
		}, []string{"relay"}),
		TransactionsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainbridge_relay",
			Name:      "transactions_submitted_total",
			Help:      "Number of transactions submitted per relay.",
		}, []string{"relay"}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainbridge_relay",
			Name:      "transport_errors_total",
			Help:      "Number of fatal RPC transport errors per relay.",
		}, []string{"relay"}),
		CheckpointHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chainbridge_relay",
			Name:      "checkpoint_height",
			Help:      "Current persisted checkpoint block height per relay.",
		}, []string{"relay"}),
		AuthoritiesReachable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chainbridge_relay",
			Name:      "authorities_reachable",
			Help:      "Number of configured authorities whose RPC endpoint answered the last probe.",
		}),
		AuthoritiesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chainbridge_relay",
			Name:      "authorities_total",
			Help:      "Number of configured authorities.",
		}),
	}

	collectors := []prometheus.Collector{
		m.BatchesProcessed, m.LogsSeen, m.TransactionsSubmitted,
		m.TransportErrors, m.CheckpointHeight,
		m.AuthoritiesReachable, m.AuthoritiesTotal,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// BatchProcessed, LogsObserved and TransactionSubmitted implement
// relay.MetricsSink so the relay package can record observations
// without importing prometheus itself.
func (m *Metrics) BatchProcessed(relay string) {
	m.BatchesProcessed.WithLabelValues(relay).Inc()
}

func (m *Metrics) LogsObserved(relay string, n int) {
	m.LogsSeen.WithLabelValues(relay).Add(float64(n))
}

func (m *Metrics) TransactionSubmitted(relay string) {
	m.TransactionsSubmitted.WithLabelValues(relay).Inc()
}

// TransportError records a fatal RPC error for relay, called by the
// supervisor when a relay's Run returns non-nil.
func (m *Metrics) TransportError(relay string) {
	m.TransportErrors.WithLabelValues(relay).Inc()
}

// SetCheckpointHeight mirrors a checkpoint.Store's current value for
// relay into the gauge, called by the supervisor after every Advance.
func (m *Metrics) SetCheckpointHeight(relay string, height uint64) {
	m.CheckpointHeight.WithLabelValues(relay).Set(float64(height))
}

// SetAuthorities mirrors an authorities.Monitor's Ratio into gauges.
func (m *Metrics) SetAuthorities(reachable, total int) {
	m.AuthoritiesReachable.Set(float64(reachable))
	m.AuthoritiesTotal.Set(float64(total))
}

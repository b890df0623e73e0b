// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package authorities implements a peer-connectivity monitor: a
// locked, periodically-refreshed view of which peers are reachable,
// into a connectivity monitor over the other authorities in this
// engine's federation. It is observability only: relayer election
// stays purely functional, and no consensus step depends on what this
// package reports.
package authorities

import (
	"context"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainbridge-relay/relay/internal/chainclient"
)

// Endpoint names one authority's RPC endpoint for liveness probing.
type Endpoint struct {
	Account common.Address
	URL     string
}

// Monitor periodically probes every configured authority's RPC
// endpoint with eth_blockNumber and keeps a locked snapshot of which
// ones answered, mirroring app_request_network.go's
// `lock *sync.Mutex`-guarded AppRequestNetwork state.
type Monitor struct {
	lock      sync.Mutex
	reachable map[common.Address]bool

	endpoints    []Endpoint
	dial         func(ctx context.Context, url string) (chainclient.Client, error)
	pollInterval time.Duration
	probeTimeout time.Duration
	logger       logging.Logger

	clientsMu sync.Mutex
	clients   map[string]chainclient.Client
}

// New constructs a Monitor. dial is the same RPC dial path used by the
// relay clients (chainclient.Dial), injected so tests can substitute a
// fake.
func New(endpoints []Endpoint, dial func(ctx context.Context, url string) (chainclient.Client, error), pollInterval, probeTimeout time.Duration, logger logging.Logger) *Monitor {
	m := &Monitor{
		reachable:    make(map[common.Address]bool, len(endpoints)),
		endpoints:    endpoints,
		dial:         dial,
		pollInterval: pollInterval,
		probeTimeout: probeTimeout,
		logger:       logger,
		clients:      make(map[string]chainclient.Client),
	}
	for _, e := range endpoints {
		m.reachable[e.Account] = false
	}
	return m
}

// Run probes every endpoint once, then on every pollInterval tick,
// until ctx is cancelled. Unlike the relay state machines, a probe
// failure is not fatal -- it simply marks that authority unreachable
// until the next tick, since connectivity here has no bearing on
// relay correctness.
func (m *Monitor) Run(ctx context.Context) {
	m.probeAll(ctx)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range m.endpoints {
		e := e
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.probe(ctx, e)
		}()
	}
	wg.Wait()
}

func (m *Monitor) probe(ctx context.Context, e Endpoint) {
	cctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	client, err := m.clientFor(cctx, e.URL)
	reachable := err == nil
	if reachable {
		_, err = client.BlockNumber(cctx)
		reachable = err == nil
	}

	m.lock.Lock()
	m.reachable[e.Account] = reachable
	m.lock.Unlock()

	if !reachable {
		m.logger.Warn("authority unreachable", zap.String("account", e.Account.Hex()), zap.String("url", e.URL), zap.Error(err))
	}
}

// clientFor returns a cached client for url, dialing and caching it
// the first time it's probed rather than dialing fresh on every tick.
// A dial failure is never cached, so the next tick retries it.
func (m *Monitor) clientFor(ctx context.Context, url string) (chainclient.Client, error) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	if c, ok := m.clients[url]; ok {
		return c, nil
	}
	c, err := m.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	m.clients[url] = c
	return c, nil
}

// closer is implemented by chainclient.Client values that hold an
// underlying connection worth releasing; chainclient.Client itself
// declares no Close method since not every implementation needs one.
type closer interface {
	Close()
}

// Close releases every cached probe connection. Safe to call once Run
// has returned.
func (m *Monitor) Close() {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	for _, c := range m.clients {
		if cl, ok := c.(closer); ok {
			cl.Close()
		}
	}
}

// Ratio returns (reachable, total) authorities as of the last probe
// round, for internal/metrics and internal/health to surface.
func (m *Monitor) Ratio() (reachable, total int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	total = len(m.reachable)
	for _, ok := range m.reachable {
		if ok {
			reachable++
		}
	}
	return reachable, total
}

// Reachable reports whether a specific authority answered its last probe.
func (m *Monitor) Reachable(account common.Address) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.reachable[account]
}

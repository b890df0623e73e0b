// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package health exposes a /healthz HTTP endpoint over
// github.com/alexliesenfeld/health, reporting RPC reachability per
// chain side and checkpoint staleness, as SPEC_FULL.md section 1.1
// lists for the ambient stack.
package health

import (
	"context"
	"net/http"
	"time"

	healthlib "github.com/alexliesenfeld/health"

	"github.com/chainbridge-relay/relay/internal/chainclient"
)

// StalenessThreshold bounds how long a checkpoint can go without
// advancing before it is reported unhealthy; a relay that is merely
// waiting for confirmations should not flap the check, so this is set
// generously relative to typical poll_interval values.
const StalenessThreshold = 5 * time.Minute

// CheckpointReader exposes a single field's last-advanced time to the
// staleness checker, implemented by internal/supervisor's tracker
// rather than internal/checkpoint.Store directly (Store only tracks
// block height, not wall-clock recency).
type CheckpointReader interface {
	LastAdvanced(name string) (time.Time, bool)
}

// NewHandler builds the /healthz http.Handler. mainnet/testnet are
// probed with eth_blockNumber; checkpoints is consulted per relay name
// for staleness.
func NewHandler(mainnet, testnet chainclient.Client, checkpoints CheckpointReader, relayNames []string) http.Handler {
	checks := []healthlib.CheckerOption{
		healthlib.WithCheck(healthlib.Check{
			Name: "mainnet-rpc",
			Check: func(ctx context.Context) error {
				_, err := mainnet.BlockNumber(ctx)
				return err
			},
		}),
		healthlib.WithCheck(healthlib.Check{
			Name: "testnet-rpc",
			Check: func(ctx context.Context) error {
				_, err := testnet.BlockNumber(ctx)
				return err
			},
		}),
	}

	for _, name := range relayNames {
		name := name
		checks = append(checks, healthlib.WithCheck(healthlib.Check{
			Name: "checkpoint-" + name,
			Check: func(context.Context) error {
				return checkStaleness(checkpoints, name)
			},
		}))
	}

	checker := healthlib.NewChecker(checks...)
	return healthlib.NewHandler(checker)
}

func checkStaleness(checkpoints CheckpointReader, name string) error {
	last, ok := checkpoints.LastAdvanced(name)
	if !ok {
		return nil // hasn't produced a batch yet; not itself an error
	}
	if time.Since(last) > StalenessThreshold {
		return errStale{name: name, since: last}
	}
	return nil
}

type errStale struct {
	name  string
	since time.Time
}

func (e errStale) Error() string {
	return "checkpoint " + e.name + " has not advanced since " + e.since.Format(time.RFC3339)
}

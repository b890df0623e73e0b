// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package decider lets an operator gate relay submissions behind an
// external policy service, wired to the DeciderURL config field. A
// relay calls Allow before submitting a deposit/withdraw transaction;
// when DeciderURL is unset, AlwaysAllow is used and every call
// succeeds immediately. This is an additive, optional hook: nothing
// about relayer election or checkpoint correctness depends on it.
package decider

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Decider is consulted before a relay submits a transaction for a
// given kind ("deposit", "withdraw_confirm", "withdraw").
type Decider interface {
	Allow(ctx context.Context, kind string) (bool, error)
	Close() error
}

// AlwaysAllow is the default decider when no remote policy service is
// configured.
type AlwaysAllow struct{}

func (AlwaysAllow) Allow(context.Context, string) (bool, error) { return true, nil }
func (AlwaysAllow) Close() error                                { return nil }

// RemoteDecider asks an external policy service's standard gRPC
// health-check endpoint whether the given kind is currently serving;
// NOT_SERVING or unreachable means disallow, matching the
// conservative default for an optional policy hook (fail closed, not
// open, for anything resembling a sanctions screen).
type RemoteDecider struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// Dial connects to a decider service at addr (e.g. "localhost:50051").
func Dial(addr string) (*RemoteDecider, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &RemoteDecider{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

func (d *RemoteDecider) Allow(ctx context.Context, kind string) (bool, error) {
	resp, err := d.client.Check(ctx, &healthpb.HealthCheckRequest{Service: kind})
	if err != nil {
		return false, err
	}
	return resp.Status == healthpb.HealthCheckResponse_SERVING, nil
}

func (d *RemoteDecider) Close() error {
	return d.conn.Close()
}

// New picks AlwaysAllow when url is empty, else dials a RemoteDecider.
func New(url string) (Decider, error) {
	if url == "" {
		return AlwaysAllow{}, nil
	}
	return Dial(url)
}

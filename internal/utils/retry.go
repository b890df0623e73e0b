// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package utils collects small helpers shared across the relay engine:
// retrying flaky RPC calls.
package utils

import (
	"context"
	"time"
)

// DefaultRPCRetryTimeout is a retry bound a caller can put on the ctx it
// passes to CallWithRetry; CallWithRetry does not apply it itself.
const DefaultRPCRetryTimeout = 10 * time.Second

const initialBackoff = 100 * time.Millisecond

const maxBackoff = 2 * time.Second

// CallWithRetry invokes fn repeatedly with exponential backoff until it
// succeeds or ctx is done. It does not itself impose a timeout; callers
// wrap ctx in context.WithTimeout (DefaultRPCRetryTimeout, or a
// configured request_timeout) to bound the retry loop.
func CallWithRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	backoff := initialBackoff
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package testlog provides a discard-output logger for unit tests,
// constructed the same way production code builds one, just pointed
// at io.Discard.
package testlog

import (
	"io"

	"github.com/ava-labs/avalanchego/utils/logging"
)

// Logger returns a logging.Logger that discards all output.
func Logger() logging.Logger {
	return logging.NewLogger(
		"test",
		logging.NewWrappedCore(logging.Off, io.Discard, logging.JSON.ConsoleEncoder()),
	)
}

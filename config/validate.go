// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "github.com/pkg/errors"

// Validate rejects a Config that cannot produce a runnable relayer,
// failing fast at startup rather than surfacing as a confusing error
// deep inside a relay's first batch.
func (c *Config) Validate() error {
	if c.Mainnet.RPCEndpoint.BaseURL == "" {
		return errors.New("mainnet.rpc-endpoint.base-url is required")
	}
	if c.Testnet.RPCEndpoint.BaseURL == "" {
		return errors.New("testnet.rpc-endpoint.base-url is required")
	}
	if c.RequiredSignatures == 0 {
		return errors.New("required-signatures must be greater than zero")
	}
	switch c.StorageBackend {
	case "pebble":
		if c.StorageLocation == "" {
			return errors.New("storage-location is required for the pebble backend")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required for the redis backend")
		}
	default:
		return errors.Errorf("unknown storage-backend %q, want pebble or redis", c.StorageBackend)
	}
	return nil
}

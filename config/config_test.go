// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relayer-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mainnet": {"rpc-endpoint": {"base-url": "http://mainnet.example/rpc"}},
		"testnet": {"rpc-endpoint": {"base-url": "http://testnet.example/rpc"}}
	}`), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "pebble", cfg.StorageBackend)
	require.EqualValues(t, 2, cfg.RequiredSignatures)
	require.True(t, cfg.RestartOnError)
	require.Equal(t, 9090, cfg.MetricsPort)
}

func TestValidateRejectsMissingEndpoints(t *testing.T) {
	cfg := Config{StorageBackend: "pebble", StorageLocation: "x", RequiredSignatures: 2}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownStorageBackend(t *testing.T) {
	cfg := Config{
		Mainnet:            ChainConfig{RPCEndpoint: APIConfig{BaseURL: "http://a"}},
		Testnet:            ChainConfig{RPCEndpoint: APIConfig{BaseURL: "http://b"}},
		RequiredSignatures: 2,
		StorageBackend:     "memcached",
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingRedisAddr(t *testing.T) {
	cfg := Config{
		Mainnet:            ChainConfig{RPCEndpoint: APIConfig{BaseURL: "http://a"}},
		Testnet:            ChainConfig{RPCEndpoint: APIConfig{BaseURL: "http://b"}},
		RequiredSignatures: 2,
		StorageBackend:     "redis",
	}
	require.Error(t, cfg.Validate())
}

// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads and validates the relayer's top-level
// configuration via viper, the way this binary's other processes load
// theirs from a --config-file plus environment overrides.
package config

import (
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// APIConfig names a JSON-RPC endpoint; BaseURL is used for both chains
// here.
type APIConfig struct {
	BaseURL string `mapstructure:"base-url"`
}

// ChainConfig is the account, contract and endpoint triple for one
// side of the bridge, one instance per chain.
type ChainConfig struct {
	RPCEndpoint     APIConfig      `mapstructure:"rpc-endpoint"`
	Account         common.Address `mapstructure:"account"`
	ContractAddress common.Address `mapstructure:"contract-address"`
	RequestTimeout  time.Duration  `mapstructure:"request-timeout"`
}

// TxConfig is the static gas and gas price a relay submits with. Both
// are sent as given: a zero Gas or a nil/zero GasPrice goes out on the
// wire as 0x0, and nothing estimates gas.
type TxConfig struct {
	Gas      uint64   `mapstructure:"gas"`
	GasPrice *big.Int `mapstructure:"gas-price"`
}

// AuthorityConfig is one other authority this process's
// internal/authorities monitor probes for reachability; it never
// influences relayer election.
type AuthorityConfig struct {
	Account common.Address `mapstructure:"account"`
	URL     string         `mapstructure:"url"`
}

// Config is the fully resolved top-level configuration tree: the
// per-chain bridge parameters plus the ambient fields a production
// deployment needs (storage backend selection, restart policy,
// decider, ports).
type Config struct {
	LogLevel string `mapstructure:"log-level"`

	Mainnet ChainConfig `mapstructure:"mainnet"`
	Testnet ChainConfig `mapstructure:"testnet"`

	PollInterval  time.Duration `mapstructure:"poll-interval"`
	Confirmations uint64        `mapstructure:"confirmations"`
	StartBlock    uint64        `mapstructure:"start-block"`

	RequiredSignatures uint32   `mapstructure:"required-signatures"`
	DepositTx          TxConfig `mapstructure:"deposit-tx"`
	WithdrawConfirmTx  TxConfig `mapstructure:"withdraw-confirm-tx"`
	WithdrawTx         TxConfig `mapstructure:"withdraw-tx"`

	StorageBackend string `mapstructure:"storage-backend"` // "pebble" (default) | "redis"
	StorageLocation string `mapstructure:"storage-location"`
	RedisAddr      string `mapstructure:"redis-addr"`

	RestartOnError bool `mapstructure:"restart-on-error"`

	DeciderURL string `mapstructure:"decider-url"`

	MetricsPort int `mapstructure:"metrics-port"`
	HealthPort  int `mapstructure:"health-port"`

	Authorities []AuthorityConfig `mapstructure:"authorities"`

	// SigningKeyHex, when set, makes WithdrawConfirm sign locally
	// (relay.LocalSigner) instead of delegating to the testnet
	// endpoint's eth_sign. Parsed into SigningKey by Load.
	SigningKeyHex string `mapstructure:"signing-key-hex"`
	SigningKey    *ecdsa.PrivateKey `mapstructure:"-"`

	// KMSKeyID, when set and SigningKeyHex is not, makes WithdrawConfirm
	// sign via relay.KMSSigner against an AWS KMS-held
	// ECC_SECG_P256K1 key instead of a locally-held key or the testnet
	// endpoint's eth_sign.
	KMSKeyID string `mapstructure:"kms-key-id"`
	// KMSRegion overrides the AWS SDK's default region resolution for
	// the KMS client; left empty to fall back to the ambient AWS
	// config chain (environment, shared config file, EC2 metadata).
	KMSRegion string `mapstructure:"kms-region"`
}

// SetDefaults applies sane production defaults (MetricsPort 9090,
// info-level logging, a local pebble store) so a minimal config file
// is enough to start a relayer.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("confirmations", uint64(1))
	v.SetDefault("required-signatures", uint32(2))
	v.SetDefault("storage-backend", "pebble")
	v.SetDefault("storage-location", "./relayer-storage")
	v.SetDefault("restart-on-error", true)
	v.SetDefault("metrics-port", 9090)
	v.SetDefault("health-port", 8080)
}

// BindFlags registers the subset of Config overridable from the
// command line: a --config-file flag plus a --log-level override.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config-file", "", "path to the relayer config file")
	fs.String("log-level", "", "overrides log-level from the config file")
}

// Load reads a config file (if configFile is non-empty) plus
// RELAYER_-prefixed environment variables, applying defaults for
// anything unset, the way viper.AutomaticEnv is used across the pack.
func Load(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, errors.Wrap(err, "binding flags")
		}
	}

	v.SetEnvPrefix("RELAYER")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshalling config")
	}

	if cfg.SigningKeyHex != "" {
		key, err := crypto.HexToECDSA(cfg.SigningKeyHex)
		if err != nil {
			return nil, errors.Wrap(err, "parsing signing-key-hex")
		}
		cfg.SigningKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

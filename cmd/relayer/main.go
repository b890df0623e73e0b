// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command relayer runs one authority's bridge relay process: it tails
// confirmed deposit/withdrawal events on two chains, propagates them
// with threshold-signed attestations, and serves /healthz and
// /metrics for operators.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/chainbridge-relay/relay/config"
	"github.com/chainbridge-relay/relay/internal/authorities"
	"github.com/chainbridge-relay/relay/internal/chainclient"
	"github.com/chainbridge-relay/relay/internal/checkpoint"
	"github.com/chainbridge-relay/relay/internal/checkpoint/redisbackend"
	"github.com/chainbridge-relay/relay/internal/decider"
	"github.com/chainbridge-relay/relay/internal/health"
	"github.com/chainbridge-relay/relay/internal/metrics"
	"github.com/chainbridge-relay/relay/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relayer:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("relayer", pflag.ExitOnError)
	config.BindFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	configFile, err := fs.GetString("config-file")
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile, fs)
	if err != nil {
		return err
	}

	logLevel, err := logging.ToLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logging.Info
	}
	logger := logging.NewLogger("relayer", logging.NewWrappedCore(logLevel, os.Stdout, logging.JSON.ConsoleEncoder()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mainnetClient, err := chainclient.Dial(ctx, cfg.Mainnet.RPCEndpoint.BaseURL)
	if err != nil {
		return err
	}
	defer mainnetClient.Close()

	testnetClient, err := chainclient.Dial(ctx, cfg.Testnet.RPCEndpoint.BaseURL)
	if err != nil {
		return err
	}
	defer testnetClient.Close()

	store, err := openStore(*cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	registerer := prometheus.NewRegistry()
	m, err := metrics.New(registerer)
	if err != nil {
		return err
	}
	tracked := supervisor.NewTrackingStore(store, m)

	d, err := decider.New(cfg.DeciderURL)
	if err != nil {
		return err
	}
	defer d.Close()

	endpoints := make([]authorities.Endpoint, len(cfg.Authorities))
	for i, a := range cfg.Authorities {
		endpoints[i] = authorities.Endpoint{Account: a.Account, URL: a.URL}
	}
	dial := func(ctx context.Context, url string) (chainclient.Client, error) { return chainclient.Dial(ctx, url) }
	monitor := authorities.New(endpoints, dial, cfg.PollInterval, cfg.Mainnet.RequestTimeout, logger)
	go func() {
		monitor.Run(ctx)
		monitor.Close()
	}()
	go reportAuthorities(ctx, monitor, cfg.PollInterval, m)

	sup, err := supervisor.New(ctx, *cfg, mainnetClient, testnetClient, tracked, logger, m, m, d)
	if err != nil {
		return err
	}

	relayNames := []string{
		string(checkpoint.FieldDepositRelay),
		string(checkpoint.FieldWithdrawConfirm),
		string(checkpoint.FieldWithdrawRelay),
	}
	mux := http.NewServeMux()
	mux.Handle("/healthz", health.NewHandler(mainnetClient, testnetClient, tracked, relayNames))
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HealthPort), Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health/metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()

	return sup.Run(ctx)
}

func openStore(cfg config.Config) (checkpoint.Store, error) {
	switch cfg.StorageBackend {
	case "redis":
		return redisbackend.Open(context.Background(), cfg.RedisAddr, "chainbridge-relay", cfg.Mainnet.ContractAddress, cfg.Testnet.ContractAddress)
	default:
		return checkpoint.OpenPebble(cfg.StorageLocation, cfg.Mainnet.ContractAddress, cfg.Testnet.ContractAddress)
	}
}

// reportAuthorities mirrors the authorities monitor's Ratio into
// metrics on the same cadence it probes, rather than coupling the two
// packages directly.
func reportAuthorities(ctx context.Context, monitor *authorities.Monitor, interval time.Duration, m *metrics.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reachable, total := monitor.Ratio()
			m.SetAuthorities(reachable, total)
		}
	}
}

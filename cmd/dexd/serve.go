package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/defistate/defistate-dex/config"
	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/node"
	"github.com/defistate/defistate-dex/storage"
	"github.com/defistate/defistate-dex/streams/jsonrpc/server"
	"github.com/defistate/defistate-dex/streams/jsonrpc/stateops"
	"github.com/defistate/defistate-dex/streams/publisher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the exchange node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDaemonConfig(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func openStore(cfg *config.DaemonConfig, logger *slog.Logger) (storage.KV, error) {
	if cfg.DataDir == "" {
		logger.Warn("no data directory configured, ledger is kept in memory")
		return storage.NewMemory(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := storage.OpenPebble(filepath.Join(cfg.DataDir, "ledger"), &pebble.Options{
		Logger: storage.PebbleLogger{Logger: logger},
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func genesisFromConfig(g *config.Genesis) *node.Genesis {
	out := &node.Genesis{
		Deployer:     g.Deployer.Address,
		FactoryFunds: g.FactoryFunds.Uint256(),
	}
	for _, acc := range g.Accounts {
		out.Accounts = append(out.Accounts, node.GenesisAccount{
			Address: acc.Address.Address,
			Balance: acc.Balance.Uint256(),
		})
	}
	for _, tok := range g.Tokens {
		out.Tokens = append(out.Tokens, node.GenesisToken{
			Name:       tok.Name,
			Symbol:     tok.Symbol,
			Decimals:   tok.Decimals,
			Supply:     tok.Supply.Big(),
			Owner:      tok.Owner.Address,
			CreatePool: tok.CreatePool,
		})
	}
	return out
}

func serve(ctx context.Context, cfg *config.DaemonConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	kv, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Error("failed to close ledger", "error", err)
		}
	}()

	rt, err := host.NewRuntime(&host.Config{
		Store:     kv,
		CacheSize: cfg.CacheSize,
		Registry:  registry,
		Logger:    logger.With("component", "runtime"),
	})
	if err != nil {
		return err
	}

	n, err := node.Bootstrap(ctx, rt, genesisFromConfig(&cfg.Genesis), logger.With("component", "node"))
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	logger.Info("node ready", "factory", n.Factory(), "height", rt.Height(), "chain_id", cfg.ChainID)

	ops, err := stateops.NewStateOps(logger.With("component", "stateops"), registry)
	if err != nil {
		return err
	}
	pub, err := publisher.New(&publisher.Config{
		ChainID:  cfg.ChainID,
		Backend:  rt,
		Factory:  n.Factory(),
		Differ:   ops,
		Logger:   logger.With("component", "publisher"),
		Registry: registry,
	})
	if err != nil {
		return err
	}

	rpcSrv, err := server.NewServer(&server.Config{
		Node:   n,
		Stream: pub,
		Faucet: cfg.Faucet,
		Logger: logger.With("component", "rpc"),
	})
	if err != nil {
		return err
	}
	defer rpcSrv.Stop()

	mux := http.NewServeMux()
	mux.Handle("/", rpcSrv)
	mux.Handle("/ws", rpcSrv.WebsocketHandler([]string{"*"}))
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 3)
	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("publisher: %w", err)
		}
	}()
	go func() {
		logger.Info("serving json-rpc", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("node stopped", "error", runErr)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	// the publisher reads the ledger until it stops
	cancel()
	<-pubDone
	return runErr
}

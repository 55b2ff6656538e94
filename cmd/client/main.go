package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/defistate-dex/config"
	"github.com/defistate/defistate-dex/engine"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/defistate/defistate-dex/protocols/tokenregistry"
	"github.com/defistate/defistate-dex/streams/jsonrpc/client"
	"github.com/defistate/defistate-dex/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultClientStateBufferSize = 100
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	rootLogger := config.NewLogger(os.Stdout, cfg.LogLevel)
	close := func() {
		os.Exit(1)
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops, err := stateops.NewStateOps(rootLogger, prometheus.DefaultRegisterer)
	if err != nil {
		rootLogger.Error("Failed to initialize State Ops", "error", err)
		close()
	}

	c, err := client.NewClient(
		ctx,
		client.Config{
			URL:              cfg.StateStreamURL,
			ChainID:          cfg.ChainID,
			Registry:         prometheus.DefaultRegisterer,
			Logger:           rootLogger.With("component", "jsonrpc-client"),
			BufferSize:       DefaultClientStateBufferSize,
			StatePatcher:     ops.Patch,
			StateDecoder:     ops.DecodeStateJSON,
			StateDiffDecoder: ops.DecodeStateDiffJSON,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "chain_id", cfg.ChainID, "error", err)
		close()
	}

	for {
		select {
		case state := <-c.State():
			pools, tokens := summarize(state)
			rootLogger.Info("state",
				"block", state.Block.Number,
				"pools", pools,
				"tokens", tokens,
				"errors", state.HasErrors(),
			)
		case err := <-c.Err():
			rootLogger.Error("Fatal client error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}

// summarize counts the pools and registered tokens in state.
func summarize(state *engine.State) (pools, tokens int) {
	if p, ok := state.Protocols[exchange.ProtocolID]; ok {
		if views, ok := p.Data.([]exchange.PoolView); ok {
			pools = len(views)
		}
	}
	if p, ok := state.Protocols[tokenregistry.ProtocolID]; ok {
		if toks, ok := p.Data.([]tokenregistry.Token); ok {
			tokens = len(toks)
		}
	}
	return pools, tokens
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadClientConfig(*configPath)
}

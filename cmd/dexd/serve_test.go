package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/defistate/defistate-dex/config"
	"github.com/defistate/defistate-dex/node"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
listenAddr: 127.0.0.1:0
metricsAddr: 127.0.0.1:0
logLevel: error
genesis:
  deployer: "0x00000000000000000000000000000000000000de"
  factoryFunds: 1_000_000
  accounts:
    - address: "0x00000000000000000000000000000000000a11ce"
      balance: 10_000_000
  tokens:
    - name: Alpha
      symbol: ALP
      decimals: 18
      supply: 1_000_000
      owner: "0x00000000000000000000000000000000000a11ce"
      createPool: true
`

func loadTestConfig(t *testing.T, dataDir string) *config.DaemonConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := testConfig
	if dataDir != "" {
		body += "dataDir: " + dataDir + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.LoadDaemonConfig(path)
	require.NoError(t, err)
	return cfg
}

func TestGenesisFromConfig(t *testing.T) {
	cfg := loadTestConfig(t, "")
	g := genesisFromConfig(&cfg.Genesis)

	assert.Equal(t, common.HexToAddress("0xde"), g.Deployer)
	assert.Equal(t, uint64(1_000_000), g.FactoryFunds.Uint64())
	require.Len(t, g.Accounts, 1)
	assert.Equal(t, common.HexToAddress("0xa11ce"), g.Accounts[0].Address)
	assert.Equal(t, uint64(10_000_000), g.Accounts[0].Balance.Uint64())
	require.Len(t, g.Tokens, 1)
	assert.Equal(t, node.GenesisToken{
		Name:       "Alpha",
		Symbol:     "ALP",
		Decimals:   18,
		Supply:     g.Tokens[0].Supply,
		Owner:      common.HexToAddress("0xa11ce"),
		CreatePool: true,
	}, g.Tokens[0])
	assert.Equal(t, int64(1_000_000), g.Tokens[0].Supply.Int64())
}

func TestGenesisFromConfigWithoutFunds(t *testing.T) {
	g := genesisFromConfig(&config.Genesis{})
	assert.Nil(t, g.FactoryFunds)
	assert.Empty(t, g.Accounts)
	assert.Empty(t, g.Tokens)
}

func TestServeStopsOnCancel(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	cfg := loadTestConfig(t, dataDir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	_, err := os.Stat(filepath.Join(dataDir, "ledger"))
	assert.NoError(t, err)
}

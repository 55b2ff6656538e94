// Package config loads the YAML configuration of the daemon and the stream
// client.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr  = "127.0.0.1:8545"
	DefaultMetricsAddr = "127.0.0.1:9090"
	DefaultCacheSize   = 4096
	DefaultChainID     = 1337
)

// Amount is a non-negative 256-bit integer written in decimal, or in hex with
// a 0x prefix.
type Amount struct {
	uint256.Int
}

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return a.SetFromHex(s)
	}
	return a.SetFromDecimal(s)
}

// Uint256 returns a copy of the amount, or nil for a nil receiver.
func (a *Amount) Uint256() *uint256.Int {
	if a == nil {
		return nil
	}
	return new(uint256.Int).Set(&a.Int)
}

// Big returns the amount as a big.Int, or nil for a nil receiver.
func (a *Amount) Big() *big.Int {
	if a == nil {
		return nil
	}
	return a.ToBig()
}

// Address is a hex account address that must be well formed.
type Address struct {
	common.Address
}

func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("invalid address %q", s)
	}
	a.Address = common.HexToAddress(s)
	return nil
}

type GenesisAccount struct {
	Address Address `yaml:"address"`
	Balance *Amount `yaml:"balance"`
}

type GenesisToken struct {
	Name       string  `yaml:"name"`
	Symbol     string  `yaml:"symbol"`
	Decimals   uint8   `yaml:"decimals"`
	Supply     *Amount `yaml:"supply"`
	Owner      Address `yaml:"owner"`
	CreatePool bool    `yaml:"createPool"`
}

type Genesis struct {
	Deployer     Address          `yaml:"deployer"`
	FactoryFunds *Amount          `yaml:"factoryFunds"`
	Accounts     []GenesisAccount `yaml:"accounts"`
	Tokens       []GenesisToken   `yaml:"tokens"`
}

// DaemonConfig configures dexd.
type DaemonConfig struct {
	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`

	// DataDir holds the pebble database. Empty keeps the ledger in memory.
	DataDir   string `yaml:"dataDir"`
	CacheSize int    `yaml:"cacheSize"`

	ChainID  uint64  `yaml:"chainId"`
	Faucet   bool    `yaml:"faucet"`
	LogLevel string  `yaml:"logLevel"`
	Genesis  Genesis `yaml:"genesis"`
}

func (c *DaemonConfig) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.ChainID == 0 {
		c.ChainID = DefaultChainID
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *DaemonConfig) validate() error {
	if c.CacheSize < 0 {
		return errors.New("cacheSize cannot be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	g := c.Genesis
	if g.Deployer.Address == (common.Address{}) {
		return errors.New("genesis.deployer is required")
	}
	symbols := make(map[string]bool, len(g.Tokens))
	for i, t := range g.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("genesis.tokens[%d]: symbol is required", i)
		}
		if symbols[t.Symbol] {
			return fmt.Errorf("genesis.tokens[%d]: duplicate symbol %q", i, t.Symbol)
		}
		symbols[t.Symbol] = true
		if t.Owner.Address == (common.Address{}) {
			return fmt.Errorf("genesis.tokens[%d]: owner is required", i)
		}
	}
	return nil
}

// ClientConfig configures the stream client.
type ClientConfig struct {
	StateStreamURL string `yaml:"stateStreamUrl"`
	ChainID        uint64 `yaml:"chainId"`
	LogLevel       string `yaml:"logLevel"`
}

func (c *ClientConfig) applyDefaults() {
	if c.ChainID == 0 {
		c.ChainID = DefaultChainID
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *ClientConfig) validate() error {
	if c.StateStreamURL == "" {
		return errors.New("stateStreamUrl is required")
	}
	if !strings.HasPrefix(c.StateStreamURL, "ws://") && !strings.HasPrefix(c.StateStreamURL, "wss://") {
		return fmt.Errorf("stateStreamUrl %q must be a websocket url", c.StateStreamURL)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	var cfg DaemonConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func LoadClientConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

package node

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/protocols/factory"
	"github.com/defistate/defistate-dex/protocols/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

type GenesisAccount struct {
	Address common.Address
	Balance *uint256.Int
}

type GenesisToken struct {
	Name       string
	Symbol     string
	Decimals   uint8
	Supply     *big.Int
	Owner      common.Address
	CreatePool bool
}

// Genesis describes the initial ledger: the factory, its native funds,
// prefunded accounts and tokens.
type Genesis struct {
	Deployer     common.Address
	FactoryFunds *uint256.Int
	Accounts     []GenesisAccount
	Tokens       []GenesisToken
}

// FactoryAddress is where Bootstrap deploys the factory for deployer.
func FactoryAddress(deployer common.Address) common.Address {
	return crypto.CreateAddress2(deployer, [32]byte{}, host.TemplateHash(factory.Factory{}).Bytes())
}

// TokenSalt is the deployment salt of a genesis token.
func TokenSalt(symbol string) [32]byte {
	return crypto.Keccak256Hash([]byte("genesis/token/" + symbol))
}

// GenesisTokenAddress is where Bootstrap deploys the genesis token with
// symbol owned by owner.
func GenesisTokenAddress(owner common.Address, symbol string) common.Address {
	return crypto.CreateAddress2(owner, TokenSalt(symbol), host.TemplateHash(token.Token{}).Bytes())
}

// Bootstrap uploads the programs and attaches to the factory of g.Deployer.
// On an empty ledger it applies g first; on a ledger that already carries the
// factory, g is ignored.
func Bootstrap(ctx context.Context, rt *host.Runtime, g *Genesis, logger host.Logger) (*Node, error) {
	template := Upload(rt)
	factoryAddr := FactoryAddress(g.Deployer)

	if _, ok := rt.CodeAt(factoryAddr); ok {
		logger.Info("factory found, skipping genesis", "factory", factoryAddr, "height", rt.Height())
		return New(rt, factoryAddr, logger)
	}

	addr, _, err := rt.Deploy(ctx, g.Deployer, host.TemplateHash(factory.Factory{}), template.Bytes(), nil, [32]byte{})
	if err != nil {
		return nil, fmt.Errorf("deploy factory: %w", err)
	}
	if addr != factoryAddr {
		return nil, fmt.Errorf("factory deployed at %s, expected %s", addr, factoryAddr)
	}
	n, err := New(rt, factoryAddr, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("factory deployed", "factory", factoryAddr, "template", template)

	if g.FactoryFunds != nil && !g.FactoryFunds.IsZero() {
		if _, err := rt.Fund(ctx, factoryAddr, g.FactoryFunds); err != nil {
			return nil, fmt.Errorf("fund factory: %w", err)
		}
	}
	for _, acc := range g.Accounts {
		if acc.Balance == nil {
			continue
		}
		if _, err := rt.Fund(ctx, acc.Address, acc.Balance); err != nil {
			return nil, fmt.Errorf("fund account %s: %w", acc.Address, err)
		}
	}
	for _, t := range g.Tokens {
		tokenAddr, _, err := n.DeployToken(ctx, t.Owner, token.Params{
			Name:          t.Name,
			Symbol:        t.Symbol,
			Decimals:      t.Decimals,
			InitialSupply: t.Supply,
		}, TokenSalt(t.Symbol))
		if err != nil {
			return nil, fmt.Errorf("deploy token %s: %w", t.Symbol, err)
		}
		if !t.CreatePool {
			continue
		}
		if _, _, err := n.CreatePool(ctx, g.Deployer, tokenAddr); err != nil {
			return nil, fmt.Errorf("create pool for %s: %w", t.Symbol, err)
		}
	}
	return n, nil
}

// Package node runs the exchange programs on a host runtime and exposes their
// operations as plain Go calls.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/defistate/defistate-dex/protocols/factory"
	"github.com/defistate/defistate-dex/protocols/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrNotAPool  = errors.New("address is not an exchange pool")
	ErrNotAToken = errors.New("address is not a token")
)

// Node binds a runtime to one deployed factory.
type Node struct {
	rt       *host.Runtime
	factory  common.Address
	template common.Hash
	logger   host.Logger
}

// Upload registers the exchange, token and factory programs with rt and
// returns the exchange template hash.
func Upload(rt *host.Runtime) common.Hash {
	rt.Upload(token.Token{})
	rt.Upload(factory.Factory{})
	return rt.Upload(exchange.New())
}

// New attaches to the factory at factoryAddr. The programs must have been
// uploaded to rt.
func New(rt *host.Runtime, factoryAddr common.Address, logger host.Logger) (*Node, error) {
	code, ok := rt.CodeAt(factoryAddr)
	if !ok {
		return nil, fmt.Errorf("no program deployed at factory address %s", factoryAddr)
	}
	if _, ok := code.(factory.Factory); !ok {
		return nil, fmt.Errorf("program %s at %s is not a factory", code.Name(), factoryAddr)
	}
	return &Node{
		rt:       rt,
		factory:  factoryAddr,
		template: host.TemplateHash(exchange.New()),
		logger:   logger,
	}, nil
}

func (n *Node) Runtime() *host.Runtime  { return n.rt }
func (n *Node) Factory() common.Address { return n.factory }

// ExchangeTemplate is the template hash of the exchange program.
func (n *Node) ExchangeTemplate() common.Hash { return n.template }

func (n *Node) pool(addr common.Address) (exchange.Pool, error) {
	code, ok := n.rt.CodeAt(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAPool, addr)
	}
	pool, ok := code.(exchange.Pool)
	if !ok {
		return nil, fmt.Errorf("%w: %s runs %s", ErrNotAPool, addr, code.Name())
	}
	return pool, nil
}

func (n *Node) token(addr common.Address) (token.Token, error) {
	code, ok := n.rt.CodeAt(addr)
	if !ok {
		return token.Token{}, fmt.Errorf("%w: %s", ErrNotAToken, addr)
	}
	tok, ok := code.(token.Token)
	if !ok {
		return token.Token{}, fmt.Errorf("%w: %s runs %s", ErrNotAToken, addr, code.Name())
	}
	return tok, nil
}

func (n *Node) factoryCall(ctx context.Context, from common.Address, fn func(env host.Env) error) (*host.Receipt, error) {
	return n.rt.Execute(ctx, host.Message{From: from, To: n.factory}, fn)
}

func (n *Node) factoryView(ctx context.Context, fn func(env host.Env)) error {
	return n.rt.View(ctx, common.Address{}, n.factory, func(env host.Env) error {
		fn(env)
		return nil
	})
}

// SetTemplate stores the pool template of the factory.
func (n *Node) SetTemplate(ctx context.Context, from common.Address, template common.Hash) (*host.Receipt, error) {
	return n.factoryCall(ctx, from, func(env host.Env) error {
		return factory.Factory{}.SetDeploymentTemplate(env, template)
	})
}

func (n *Node) CreatePool(ctx context.Context, from, tokenAddr common.Address) (common.Address, *host.Receipt, error) {
	var pool common.Address
	receipt, err := n.factoryCall(ctx, from, func(env host.Env) error {
		var err error
		pool, err = factory.Factory{}.CreatePool(env, tokenAddr)
		return err
	})
	if err != nil {
		return common.Address{}, nil, err
	}
	n.logger.Info("pool created", "token", tokenAddr, "pool", pool)
	return pool, receipt, nil
}

// LookupPool returns the pool for tokenAddr or the zero address.
func (n *Node) LookupPool(ctx context.Context, tokenAddr common.Address) (common.Address, error) {
	var pool common.Address
	err := n.factoryView(ctx, func(env host.Env) { pool = factory.Factory{}.LookupPool(env, tokenAddr) })
	return pool, err
}

// LookupToken returns the token traded by pool or the zero address.
func (n *Node) LookupToken(ctx context.Context, pool common.Address) (common.Address, error) {
	var tok common.Address
	err := n.factoryView(ctx, func(env host.Env) { tok = factory.Factory{}.LookupToken(env, pool) })
	return tok, err
}

// LookupTokenByID returns the token registered under id or the zero address.
func (n *Node) LookupTokenByID(ctx context.Context, id uint64) (common.Address, error) {
	var tok common.Address
	err := n.factoryView(ctx, func(env host.Env) { tok = factory.Factory{}.LookupTokenByID(env, id) })
	return tok, err
}

func (n *Node) TokenCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := n.factoryView(ctx, func(env host.Env) { count = factory.Factory{}.TokenCount(env) })
	return count, err
}

func (n *Node) Template(ctx context.Context) (common.Hash, error) {
	var h common.Hash
	err := n.factoryView(ctx, func(env host.Env) { h = factory.Factory{}.Template(env) })
	return h, err
}

// Fund credits amount of newly issued native value to addr.
func (n *Node) Fund(ctx context.Context, addr common.Address, amount *uint256.Int) (*host.Receipt, error) {
	return n.rt.Fund(ctx, addr, amount)
}

func (n *Node) NativeBalance(addr common.Address) (*uint256.Int, error) {
	return n.rt.BalanceOf(addr)
}

// DeployToken deploys a token whose initial supply is minted to from.
func (n *Node) DeployToken(ctx context.Context, from common.Address, params token.Params, salt [32]byte) (common.Address, *host.Receipt, error) {
	arg, err := params.Encode()
	if err != nil {
		return common.Address{}, nil, err
	}
	addr, receipt, err := n.rt.Deploy(ctx, from, host.TemplateHash(token.Token{}), arg, nil, salt)
	if err != nil {
		return common.Address{}, nil, err
	}
	n.logger.Info("token deployed", "address", addr, "symbol", params.Symbol, "owner", from)
	return addr, receipt, nil
}

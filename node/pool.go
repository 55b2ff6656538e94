package node

import (
	"context"

	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func (n *Node) poolCall(ctx context.Context, from, addr common.Address, value *uint256.Int, fn func(p exchange.Pool, env host.Env) error) (*host.Receipt, error) {
	pool, err := n.pool(addr)
	if err != nil {
		return nil, err
	}
	return n.rt.Execute(ctx, host.Message{From: from, To: addr, Value: value}, func(env host.Env) error {
		return fn(pool, env)
	})
}

func (n *Node) poolView(ctx context.Context, from, addr common.Address, fn func(p exchange.Pool, env host.Env) error) error {
	pool, err := n.pool(addr)
	if err != nil {
		return err
	}
	return n.rt.View(ctx, from, addr, func(env host.Env) error {
		return fn(pool, env)
	})
}

// AddLiquidity deposits value native units plus the matching token amount,
// capped by maxTokens, and returns the minted shares.
func (n *Node) AddLiquidity(ctx context.Context, from, pool common.Address, value, maxTokens *uint256.Int) (*uint256.Int, *host.Receipt, error) {
	var minted *uint256.Int
	receipt, err := n.poolCall(ctx, from, pool, value, func(p exchange.Pool, env host.Env) error {
		var err error
		minted, err = p.AddLiquidity(env, maxTokens)
		return err
	})
	return minted, receipt, err
}

func (n *Node) RemoveLiquidity(ctx context.Context, from, pool common.Address, shares *uint256.Int) (native, tok *uint256.Int, receipt *host.Receipt, err error) {
	receipt, err = n.poolCall(ctx, from, pool, nil, func(p exchange.Pool, env host.Env) error {
		var err error
		native, tok, err = p.RemoveLiquidity(env, shares)
		return err
	})
	return native, tok, receipt, err
}

func (n *Node) TransferShares(ctx context.Context, from, pool, to common.Address, amount *uint256.Int) (*host.Receipt, error) {
	return n.poolCall(ctx, from, pool, nil, func(p exchange.Pool, env host.Env) error {
		return p.TransferShares(env, to, amount)
	})
}

// SwapNativeForTokenExactInput sells value native units and returns the
// tokens bought.
func (n *Node) SwapNativeForTokenExactInput(ctx context.Context, from, pool common.Address, value, minTokens *uint256.Int) (*uint256.Int, *host.Receipt, error) {
	var out *uint256.Int
	receipt, err := n.poolCall(ctx, from, pool, value, func(p exchange.Pool, env host.Env) error {
		var err error
		out, err = p.SwapNativeForTokenExactInput(env, minTokens)
		return err
	})
	return out, receipt, err
}

// SwapNativeForTokenExactOutput buys tokensBought, spending at most value, and
// returns the native amount sold. The rest of value is refunded.
func (n *Node) SwapNativeForTokenExactOutput(ctx context.Context, from, pool common.Address, value, tokensBought *uint256.Int) (*uint256.Int, *host.Receipt, error) {
	var sold *uint256.Int
	receipt, err := n.poolCall(ctx, from, pool, value, func(p exchange.Pool, env host.Env) error {
		var err error
		sold, err = p.SwapNativeForTokenExactOutput(env, tokensBought)
		return err
	})
	return sold, receipt, err
}

func (n *Node) SwapTokenForNativeExactInput(ctx context.Context, from, pool common.Address, tokensSold, minNative *uint256.Int) (*uint256.Int, *host.Receipt, error) {
	var out *uint256.Int
	receipt, err := n.poolCall(ctx, from, pool, nil, func(p exchange.Pool, env host.Env) error {
		var err error
		out, err = p.SwapTokenForNativeExactInput(env, tokensSold, minNative)
		return err
	})
	return out, receipt, err
}

func (n *Node) SwapTokenForNativeExactOutput(ctx context.Context, from, pool common.Address, nativeBought, maxTokens *uint256.Int) (*uint256.Int, *host.Receipt, error) {
	var sold *uint256.Int
	receipt, err := n.poolCall(ctx, from, pool, nil, func(p exchange.Pool, env host.Env) error {
		var err error
		sold, err = p.SwapTokenForNativeExactOutput(env, nativeBought, maxTokens)
		return err
	})
	return sold, receipt, err
}

func (n *Node) SwapTokenForTokenExactInput(ctx context.Context, from, pool common.Address, tokensSold, minTokensBought *uint256.Int, target common.Address) (*uint256.Int, *host.Receipt, error) {
	var out *uint256.Int
	receipt, err := n.poolCall(ctx, from, pool, nil, func(p exchange.Pool, env host.Env) error {
		var err error
		out, err = p.SwapTokenForTokenExactInput(env, tokensSold, minTokensBought, target)
		return err
	})
	return out, receipt, err
}

func (n *Node) SwapTokenForTokenExactOutput(ctx context.Context, from, pool common.Address, tokensBought, maxTokensSold *uint256.Int, target common.Address) (*uint256.Int, *host.Receipt, error) {
	var sold *uint256.Int
	receipt, err := n.poolCall(ctx, from, pool, nil, func(p exchange.Pool, env host.Env) error {
		var err error
		sold, err = p.SwapTokenForTokenExactOutput(env, tokensBought, maxTokensSold, target)
		return err
	})
	return sold, receipt, err
}

// PriceQuery selects one of the four read-only price functions of a pool.
type PriceQuery int

const (
	NativeToTokenInput PriceQuery = iota
	NativeToTokenOutput
	TokenToNativeInput
	TokenToNativeOutput
)

func (q PriceQuery) String() string {
	switch q {
	case NativeToTokenInput:
		return "nativeToTokenInput"
	case NativeToTokenOutput:
		return "nativeToTokenOutput"
	case TokenToNativeInput:
		return "tokenToNativeInput"
	case TokenToNativeOutput:
		return "tokenToNativeOutput"
	}
	return "unknown"
}

// Price evaluates q against the live reserves of pool.
func (n *Node) Price(ctx context.Context, pool common.Address, q PriceQuery, amount *uint256.Int) (*uint256.Int, error) {
	var price *uint256.Int
	err := n.poolView(ctx, common.Address{}, pool, func(p exchange.Pool, env host.Env) error {
		var err error
		switch q {
		case NativeToTokenInput:
			price, err = p.GetNativeToTokenInputPrice(env, amount)
		case NativeToTokenOutput:
			price, err = p.GetNativeToTokenOutputPrice(env, amount)
		case TokenToNativeInput:
			price, err = p.GetTokenToNativeInputPrice(env, amount)
		case TokenToNativeOutput:
			price, err = p.GetTokenToNativeOutputPrice(env, amount)
		default:
			err = exchange.ErrInvalidAmount
		}
		return err
	})
	return price, err
}

// Reserves returns the live native and token reserves of pool.
func (n *Node) Reserves(ctx context.Context, pool common.Address) (native, tok *uint256.Int, err error) {
	err = n.poolView(ctx, common.Address{}, pool, func(p exchange.Pool, env host.Env) error {
		var err error
		native, tok, err = p.Reserves(env)
		return err
	})
	return native, tok, err
}

func (n *Node) TotalShares(ctx context.Context, pool common.Address) (*uint256.Int, error) {
	var total *uint256.Int
	err := n.poolView(ctx, common.Address{}, pool, func(p exchange.Pool, env host.Env) error {
		total = p.TotalSupply(env)
		return nil
	})
	return total, err
}

func (n *Node) SharesOf(ctx context.Context, pool, holder common.Address) (*uint256.Int, error) {
	var bal *uint256.Int
	err := n.poolView(ctx, common.Address{}, pool, func(p exchange.Pool, env host.Env) error {
		bal = p.BalanceOf(env, holder)
		return nil
	})
	return bal, err
}

package node

import (
	"context"

	"github.com/defistate/defistate-dex/host"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func (n *Node) TokenBalance(ctx context.Context, tokenAddr, holder common.Address) (*uint256.Int, error) {
	tok, err := n.token(tokenAddr)
	if err != nil {
		return nil, err
	}
	var bal *uint256.Int
	err = n.rt.View(ctx, holder, tokenAddr, func(env host.Env) error {
		var err error
		bal, err = tok.BalanceOf(env, holder)
		return err
	})
	return bal, err
}

// ApproveToken lets spender move up to amount of from's tokens. Pools need an
// approval before they can pull tokens from a provider or trader.
func (n *Node) ApproveToken(ctx context.Context, from, tokenAddr, spender common.Address, amount *uint256.Int) (*host.Receipt, error) {
	tok, err := n.token(tokenAddr)
	if err != nil {
		return nil, err
	}
	return n.rt.Execute(ctx, host.Message{From: from, To: tokenAddr}, func(env host.Env) error {
		return tok.Approve(env, spender, amount)
	})
}

func (n *Node) TransferToken(ctx context.Context, from, tokenAddr, to common.Address, amount *uint256.Int) (*host.Receipt, error) {
	tok, err := n.token(tokenAddr)
	if err != nil {
		return nil, err
	}
	return n.rt.Execute(ctx, host.Message{From: from, To: tokenAddr}, func(env host.Env) error {
		return tok.Transfer(env, to, amount)
	})
}

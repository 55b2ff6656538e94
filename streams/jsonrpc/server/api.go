package server

import (
	"context"

	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/node"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Factory returns the address of the pool factory.
func (api *API) Factory() common.Address {
	return api.node.Factory()
}

func (api *API) SetTemplate(ctx context.Context, from common.Address, template common.Hash) (*host.Receipt, error) {
	return api.node.SetTemplate(ctx, from, template)
}

func (api *API) Template(ctx context.Context) (common.Hash, error) {
	return api.node.Template(ctx)
}

func (api *API) CreatePool(ctx context.Context, from, token common.Address) (*PoolResult, error) {
	pool, receipt, err := api.node.CreatePool(ctx, from, token)
	if err != nil {
		return nil, err
	}
	return &PoolResult{Pool: pool, Receipt: receipt}, nil
}

// GetPool returns the pool of token, or the zero address if there is none.
func (api *API) GetPool(ctx context.Context, token common.Address) (common.Address, error) {
	return api.node.LookupPool(ctx, token)
}

// GetToken returns the token of pool, or the zero address.
func (api *API) GetToken(ctx context.Context, pool common.Address) (common.Address, error) {
	return api.node.LookupToken(ctx, pool)
}

// GetTokenWithId returns the token registered under id, or the zero address.
func (api *API) GetTokenWithId(ctx context.Context, id hexutil.Uint64) (common.Address, error) {
	return api.node.LookupTokenByID(ctx, uint64(id))
}

func (api *API) TokenCount(ctx context.Context) (hexutil.Uint64, error) {
	n, err := api.node.TokenCount(ctx)
	return hexutil.Uint64(n), err
}

func (api *API) AddLiquidity(ctx context.Context, args CallArgs, maxTokens *hexutil.Big) (*AmountResult, error) {
	amounts, err := toU256s(args.Value, maxTokens)
	if err != nil {
		return nil, err
	}
	return amountResult(api.node.AddLiquidity(ctx, args.From, args.Pool, amounts[0], amounts[1]))
}

func (api *API) RemoveLiquidity(ctx context.Context, args CallArgs, shares *hexutil.Big) (*WithdrawResult, error) {
	amount, err := toU256(shares)
	if err != nil {
		return nil, err
	}
	native, tok, receipt, err := api.node.RemoveLiquidity(ctx, args.From, args.Pool, amount)
	if err != nil {
		return nil, err
	}
	return &WithdrawResult{Native: fromU256(native), Token: fromU256(tok), Receipt: receipt}, nil
}

func (api *API) TransferShares(ctx context.Context, args CallArgs, to common.Address, amount *hexutil.Big) (*host.Receipt, error) {
	v, err := toU256(amount)
	if err != nil {
		return nil, err
	}
	return api.node.TransferShares(ctx, args.From, args.Pool, to, v)
}

func (api *API) SwapNativeForTokenExactInput(ctx context.Context, args CallArgs, minTokens *hexutil.Big) (*AmountResult, error) {
	amounts, err := toU256s(args.Value, minTokens)
	if err != nil {
		return nil, err
	}
	return amountResult(api.node.SwapNativeForTokenExactInput(ctx, args.From, args.Pool, amounts[0], amounts[1]))
}

func (api *API) SwapNativeForTokenExactOutput(ctx context.Context, args CallArgs, tokensBought *hexutil.Big) (*AmountResult, error) {
	amounts, err := toU256s(args.Value, tokensBought)
	if err != nil {
		return nil, err
	}
	return amountResult(api.node.SwapNativeForTokenExactOutput(ctx, args.From, args.Pool, amounts[0], amounts[1]))
}

func (api *API) SwapTokenForNativeExactInput(ctx context.Context, args CallArgs, tokensSold, minNative *hexutil.Big) (*AmountResult, error) {
	amounts, err := toU256s(tokensSold, minNative)
	if err != nil {
		return nil, err
	}
	return amountResult(api.node.SwapTokenForNativeExactInput(ctx, args.From, args.Pool, amounts[0], amounts[1]))
}

func (api *API) SwapTokenForNativeExactOutput(ctx context.Context, args CallArgs, nativeBought, maxTokens *hexutil.Big) (*AmountResult, error) {
	amounts, err := toU256s(nativeBought, maxTokens)
	if err != nil {
		return nil, err
	}
	return amountResult(api.node.SwapTokenForNativeExactOutput(ctx, args.From, args.Pool, amounts[0], amounts[1]))
}

func (api *API) SwapTokenForTokenExactInput(ctx context.Context, args CallArgs, tokensSold, minTokensBought *hexutil.Big, target common.Address) (*AmountResult, error) {
	amounts, err := toU256s(tokensSold, minTokensBought)
	if err != nil {
		return nil, err
	}
	return amountResult(api.node.SwapTokenForTokenExactInput(ctx, args.From, args.Pool, amounts[0], amounts[1], target))
}

func (api *API) SwapTokenForTokenExactOutput(ctx context.Context, args CallArgs, tokensBought, maxTokensSold *hexutil.Big, target common.Address) (*AmountResult, error) {
	amounts, err := toU256s(tokensBought, maxTokensSold)
	if err != nil {
		return nil, err
	}
	return amountResult(api.node.SwapTokenForTokenExactOutput(ctx, args.From, args.Pool, amounts[0], amounts[1], target))
}

func (api *API) price(ctx context.Context, pool common.Address, q node.PriceQuery, amount *hexutil.Big) (*hexutil.Big, error) {
	v, err := toU256(amount)
	if err != nil {
		return nil, err
	}
	price, err := api.node.Price(ctx, pool, q, v)
	if err != nil {
		return nil, err
	}
	return fromU256(price), nil
}

func (api *API) GetNativeToTokenInputPrice(ctx context.Context, pool common.Address, nativeSold *hexutil.Big) (*hexutil.Big, error) {
	return api.price(ctx, pool, node.NativeToTokenInput, nativeSold)
}

func (api *API) GetNativeToTokenOutputPrice(ctx context.Context, pool common.Address, tokensBought *hexutil.Big) (*hexutil.Big, error) {
	return api.price(ctx, pool, node.NativeToTokenOutput, tokensBought)
}

func (api *API) GetTokenToNativeInputPrice(ctx context.Context, pool common.Address, tokensSold *hexutil.Big) (*hexutil.Big, error) {
	return api.price(ctx, pool, node.TokenToNativeInput, tokensSold)
}

func (api *API) GetTokenToNativeOutputPrice(ctx context.Context, pool common.Address, nativeBought *hexutil.Big) (*hexutil.Big, error) {
	return api.price(ctx, pool, node.TokenToNativeOutput, nativeBought)
}

func (api *API) Reserves(ctx context.Context, pool common.Address) (*ReservesResult, error) {
	native, tok, err := api.node.Reserves(ctx, pool)
	if err != nil {
		return nil, err
	}
	return &ReservesResult{Native: fromU256(native), Token: fromU256(tok)}, nil
}

// TotalSupply returns the share supply of pool.
func (api *API) TotalSupply(ctx context.Context, pool common.Address) (*hexutil.Big, error) {
	v, err := api.node.TotalShares(ctx, pool)
	return fromU256(v), err
}

// BalanceOf returns the shares of pool held by holder.
func (api *API) BalanceOf(ctx context.Context, pool, holder common.Address) (*hexutil.Big, error) {
	v, err := api.node.SharesOf(ctx, pool, holder)
	return fromU256(v), err
}

func (api *API) NativeBalance(ctx context.Context, addr common.Address) (*hexutil.Big, error) {
	v, err := api.node.NativeBalance(addr)
	return fromU256(v), err
}

func (api *API) TokenBalance(ctx context.Context, token, holder common.Address) (*hexutil.Big, error) {
	v, err := api.node.TokenBalance(ctx, token, holder)
	return fromU256(v), err
}

func (api *API) ApproveToken(ctx context.Context, from, token, spender common.Address, amount *hexutil.Big) (*host.Receipt, error) {
	v, err := toU256(amount)
	if err != nil {
		return nil, err
	}
	return api.node.ApproveToken(ctx, from, token, spender, v)
}

func (api *API) TransferToken(ctx context.Context, from, token, to common.Address, amount *hexutil.Big) (*host.Receipt, error) {
	v, err := toU256(amount)
	if err != nil {
		return nil, err
	}
	return api.node.TransferToken(ctx, from, token, to, v)
}

// Fund mints native value to addr. Only available when the faucet is enabled.
func (api *API) Fund(ctx context.Context, addr common.Address, amount *hexutil.Big) (*host.Receipt, error) {
	if !api.faucet {
		return nil, ErrFaucetDisabled
	}
	v, err := toU256(amount)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrMissingAmount
	}
	api.logger.Info("faucet", "address", addr, "amount", v)
	return api.node.Fund(ctx, addr, v)
}

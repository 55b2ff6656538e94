package exchange

import (
	"fmt"

	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/protocols/exchange/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SwapNativeForTokenExactInput sells all attached native value and sends the
// tokens it buys to the caller. A nil or zero minTokens means no bound.
func (e *Exchange) SwapNativeForTokenExactInput(env host.Env, minTokens *uint256.Int) (*uint256.Int, error) {
	nativeSold := env.Value()
	if err := requirePositive("native sold", nativeSold); err != nil {
		return nil, err
	}
	nativeReserve, err := preTradeNativeReserve(env)
	if err != nil {
		return nil, err
	}
	tokenReserve, err := e.tokenReserve(env)
	if err != nil {
		return nil, err
	}

	tokensBought, err := calculator.GetInputPrice(nativeSold, nativeReserve, tokenReserve)
	if err != nil {
		return nil, err
	}
	if tokensBought.Lt(orZero(minTokens)) {
		return nil, fmt.Errorf("%w: bought %s tokens, min %s", ErrSlippageExceeded, tokensBought, minTokens)
	}

	buyer := env.Caller()
	if err := e.pushTokens(env, buyer, tokensBought); err != nil {
		return nil, err
	}
	env.Emit(Trade{Buyer: buyer, AmountIn: nativeSold, AmountOut: tokensBought, Direction: NativeToToken})
	return tokensBought, nil
}

// SwapNativeForTokenExactOutput buys exactly tokensBought. The attached value
// is the most the caller is willing to pay; whatever is left over is refunded.
func (e *Exchange) SwapNativeForTokenExactOutput(env host.Env, tokensBought *uint256.Int) (*uint256.Int, error) {
	maxNative := env.Value()
	if err := requirePositive("native attached", maxNative); err != nil {
		return nil, err
	}
	if err := requirePositive("tokens bought", tokensBought); err != nil {
		return nil, err
	}
	nativeReserve, err := preTradeNativeReserve(env)
	if err != nil {
		return nil, err
	}
	tokenReserve, err := e.tokenReserve(env)
	if err != nil {
		return nil, err
	}

	nativeSold, err := calculator.GetOutputPrice(tokensBought, nativeReserve, tokenReserve)
	if err != nil {
		return nil, err
	}
	if nativeSold.Gt(maxNative) {
		return nil, fmt.Errorf("%w: costs %s native, attached %s", ErrSlippageExceeded, nativeSold, maxNative)
	}

	buyer := env.Caller()
	if err := e.pushTokens(env, buyer, tokensBought); err != nil {
		return nil, err
	}
	if refund := new(uint256.Int).Sub(maxNative, nativeSold); !refund.IsZero() {
		if err := sendNative(env, buyer, refund); err != nil {
			return nil, err
		}
	}
	env.Emit(Trade{Buyer: buyer, AmountIn: nativeSold, AmountOut: new(uint256.Int).Set(tokensBought), Direction: NativeToToken})
	return nativeSold, nil
}

// SwapTokenForNativeExactInput sells tokensSold tokens from the caller for
// native value. A nil or zero minNative means no bound.
func (e *Exchange) SwapTokenForNativeExactInput(env host.Env, tokensSold, minNative *uint256.Int) (*uint256.Int, error) {
	if err := requireNonPayable(env); err != nil {
		return nil, err
	}
	if err := requirePositive("tokens sold", tokensSold); err != nil {
		return nil, err
	}
	nativeReserve, tokenReserve, err := e.Reserves(env)
	if err != nil {
		return nil, err
	}

	nativeBought, err := calculator.GetInputPrice(tokensSold, tokenReserve, nativeReserve)
	if err != nil {
		return nil, err
	}
	if nativeBought.Lt(orZero(minNative)) {
		return nil, fmt.Errorf("%w: bought %s native, min %s", ErrSlippageExceeded, nativeBought, minNative)
	}

	seller := env.Caller()
	if err := e.pullTokens(env, seller, tokensSold); err != nil {
		return nil, err
	}
	if err := sendNative(env, seller, nativeBought); err != nil {
		return nil, err
	}
	env.Emit(Trade{Buyer: seller, AmountIn: new(uint256.Int).Set(tokensSold), AmountOut: nativeBought, Direction: TokenToNative})
	return nativeBought, nil
}

// SwapTokenForNativeExactOutput buys exactly nativeBought, pulling at most
// maxTokens from the caller.
func (e *Exchange) SwapTokenForNativeExactOutput(env host.Env, nativeBought, maxTokens *uint256.Int) (*uint256.Int, error) {
	if err := requireNonPayable(env); err != nil {
		return nil, err
	}
	if err := requirePositive("native bought", nativeBought); err != nil {
		return nil, err
	}
	if err := requirePositive("max tokens", maxTokens); err != nil {
		return nil, err
	}
	nativeReserve, tokenReserve, err := e.Reserves(env)
	if err != nil {
		return nil, err
	}

	tokensSold, err := calculator.GetOutputPrice(nativeBought, tokenReserve, nativeReserve)
	if err != nil {
		return nil, err
	}
	if tokensSold.Gt(maxTokens) {
		return nil, fmt.Errorf("%w: costs %s tokens, max %s", ErrSlippageExceeded, tokensSold, maxTokens)
	}

	seller := env.Caller()
	if err := e.pullTokens(env, seller, tokensSold); err != nil {
		return nil, err
	}
	if err := sendNative(env, seller, nativeBought); err != nil {
		return nil, err
	}
	env.Emit(Trade{Buyer: seller, AmountIn: tokensSold, AmountOut: new(uint256.Int).Set(nativeBought), Direction: TokenToNative})
	return tokensSold, nil
}

// SwapTokenForTokenExactInput would route through a second pool. Routing is
// not supported, so it always fails.
func (*Exchange) SwapTokenForTokenExactInput(host.Env, *uint256.Int, *uint256.Int, common.Address) (*uint256.Int, error) {
	return nil, fmt.Errorf("%w: token to token swap", ErrNotImplemented)
}

// SwapTokenForTokenExactOutput always fails, see SwapTokenForTokenExactInput.
func (*Exchange) SwapTokenForTokenExactOutput(host.Env, *uint256.Int, *uint256.Int, common.Address) (*uint256.Int, error) {
	return nil, fmt.Errorf("%w: token to token swap", ErrNotImplemented)
}

// GetNativeToTokenInputPrice quotes the tokens nativeSold would buy.
func (e *Exchange) GetNativeToTokenInputPrice(env host.Env, nativeSold *uint256.Int) (*uint256.Int, error) {
	if err := requirePositive("native sold", nativeSold); err != nil {
		return nil, err
	}
	nativeReserve, tokenReserve, err := e.Reserves(env)
	if err != nil {
		return nil, err
	}
	return calculator.GetInputPrice(nativeSold, nativeReserve, tokenReserve)
}

// GetNativeToTokenOutputPrice quotes the native cost of tokensBought.
func (e *Exchange) GetNativeToTokenOutputPrice(env host.Env, tokensBought *uint256.Int) (*uint256.Int, error) {
	if err := requirePositive("tokens bought", tokensBought); err != nil {
		return nil, err
	}
	nativeReserve, tokenReserve, err := e.Reserves(env)
	if err != nil {
		return nil, err
	}
	return calculator.GetOutputPrice(tokensBought, nativeReserve, tokenReserve)
}

// GetTokenToNativeInputPrice quotes the native value tokensSold would buy.
func (e *Exchange) GetTokenToNativeInputPrice(env host.Env, tokensSold *uint256.Int) (*uint256.Int, error) {
	if err := requirePositive("tokens sold", tokensSold); err != nil {
		return nil, err
	}
	nativeReserve, tokenReserve, err := e.Reserves(env)
	if err != nil {
		return nil, err
	}
	return calculator.GetInputPrice(tokensSold, tokenReserve, nativeReserve)
}

// GetTokenToNativeOutputPrice quotes the token cost of nativeBought.
func (e *Exchange) GetTokenToNativeOutputPrice(env host.Env, nativeBought *uint256.Int) (*uint256.Int, error) {
	if err := requirePositive("native bought", nativeBought); err != nil {
		return nil, err
	}
	nativeReserve, tokenReserve, err := e.Reserves(env)
	if err != nil {
		return nil, err
	}
	return calculator.GetOutputPrice(nativeBought, tokenReserve, nativeReserve)
}

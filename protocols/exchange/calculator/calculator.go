// Package calculator implements zero-fee constant-product pricing and the
// proportional liquidity math used by exchange pools.
//
// Every rounding decision favours the pool: outputs round down, required
// inputs round up.
package calculator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/defistate-dex/safemath"
	"github.com/holiman/uint256"
)

var (
	one = uint256.NewInt(1)

	// ErrNilAmount is returned when a nil pointer is passed for an amount or reserve.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInvalidReserve is returned when a reserve the formula divides by is zero.
	ErrInvalidReserve = errors.New("invalid reserve")
	// ErrInsufficientReserve is returned when an output is requested that is greater than or equal to the available reserve.
	ErrInsufficientReserve = errors.New("insufficient reserve")
	// ErrReserveTooSmall is returned when a reserve is too small to sample a rate from.
	ErrReserveTooSmall = errors.New("reserve too small to sample a rate")
)

// Calculator holds reusable uint256 objects to avoid allocations during
// calculations. Instances are NOT safe for concurrent use by themselves; they
// are managed by calculatorPool.
type Calculator struct {
	denominator *uint256.Int
	quotient    *uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			denominator: new(uint256.Int),
			quotient:    new(uint256.Int),
		}
	},
}

// GetInputPrice returns how much of the output asset inputAmount buys:
//
//	floor(inputAmount * outputReserve / (inputReserve + inputAmount))
func GetInputPrice(inputAmount, inputReserve, outputReserve *uint256.Int) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getInputPrice(inputAmount, inputReserve, outputReserve)
}

// GetOutputPrice returns how much of the input asset is needed to buy exactly
// outputAmount:
//
//	floor(inputReserve * outputAmount / (outputReserve - outputAmount)) + 1
func GetOutputPrice(outputAmount, inputReserve, outputReserve *uint256.Int) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getOutputPrice(outputAmount, inputReserve, outputReserve)
}

// SimulateSwap returns the output of an exact-input trade and the reserves the
// pool would hold afterwards. The arguments are never modified.
func SimulateSwap(amountIn, reserveIn, reserveOut *uint256.Int) (amountOut, newReserveIn, newReserveOut *uint256.Int, err error) {
	amountOut, err = GetInputPrice(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, nil, nil, err
	}
	newReserveIn, err = safemath.Add(reserveIn, amountIn)
	if err != nil {
		return nil, nil, nil, err
	}
	// amountOut < reserveOut always holds for non-zero reserves
	newReserveOut = new(uint256.Int).Sub(reserveOut, amountOut)
	return amountOut, newReserveIn, newReserveOut, nil
}

func checkNil(vs ...*uint256.Int) error {
	for _, v := range vs {
		if v == nil {
			return ErrNilAmount
		}
	}
	return nil
}

func (c *Calculator) getInputPrice(inputAmount, inputReserve, outputReserve *uint256.Int) (*uint256.Int, error) {
	if err := checkNil(inputAmount, inputReserve, outputReserve); err != nil {
		return nil, err
	}
	if inputReserve.IsZero() || outputReserve.IsZero() {
		return nil, fmt.Errorf("%w: input reserve %s, output reserve %s", ErrInvalidReserve, inputReserve, outputReserve)
	}

	if _, overflow := c.denominator.AddOverflow(inputReserve, inputAmount); overflow {
		return nil, fmt.Errorf("%w: input reserve + input amount", safemath.ErrArithmeticOverflow)
	}
	if _, overflow := c.quotient.MulDivOverflow(inputAmount, outputReserve, c.denominator); overflow {
		return nil, safemath.ErrArithmeticOverflow
	}
	return new(uint256.Int).Set(c.quotient), nil
}

func (c *Calculator) getOutputPrice(outputAmount, inputReserve, outputReserve *uint256.Int) (*uint256.Int, error) {
	if err := checkNil(outputAmount, inputReserve, outputReserve); err != nil {
		return nil, err
	}
	if inputReserve.IsZero() || outputReserve.IsZero() {
		return nil, fmt.Errorf("%w: input reserve %s, output reserve %s", ErrInvalidReserve, inputReserve, outputReserve)
	}
	if outputAmount.Cmp(outputReserve) >= 0 {
		return nil, fmt.Errorf("%w: requested output (%s) is >= output reserve (%s)", ErrInsufficientReserve, outputAmount, outputReserve)
	}

	c.denominator.Sub(outputReserve, outputAmount)
	if _, overflow := c.quotient.MulDivOverflow(inputReserve, outputAmount, c.denominator); overflow {
		return nil, safemath.ErrArithmeticOverflow
	}
	return safemath.Add(c.quotient, one)
}

// DepositTokenAmount returns the tokens a liquidity provider must add next to
// nativeIn to keep the reserve ratio:
//
//	floor(nativeIn * tokenReserve / nativeReserve) + 1
func DepositTokenAmount(nativeIn, nativeReserve, tokenReserve *uint256.Int) (*uint256.Int, error) {
	if err := checkNil(nativeIn, nativeReserve, tokenReserve); err != nil {
		return nil, err
	}
	if nativeReserve.IsZero() {
		return nil, fmt.Errorf("%w: native reserve is zero", ErrInvalidReserve)
	}
	amount, err := safemath.MulDiv(nativeIn, tokenReserve, nativeReserve)
	if err != nil {
		return nil, err
	}
	return safemath.Inc(amount)
}

// MintedShares returns the shares issued for nativeIn:
//
//	floor(nativeIn * totalSupply / nativeReserve)
func MintedShares(nativeIn, nativeReserve, totalSupply *uint256.Int) (*uint256.Int, error) {
	if err := checkNil(nativeIn, nativeReserve, totalSupply); err != nil {
		return nil, err
	}
	if nativeReserve.IsZero() {
		return nil, fmt.Errorf("%w: native reserve is zero", ErrInvalidReserve)
	}
	return safemath.MulDiv(nativeIn, totalSupply, nativeReserve)
}

// WithdrawalAmounts returns the proportional share of both reserves that
// burning shares pays out. Both amounts round down.
func WithdrawalAmounts(shares, nativeReserve, tokenReserve, totalSupply *uint256.Int) (native, token *uint256.Int, err error) {
	if err := checkNil(shares, nativeReserve, tokenReserve, totalSupply); err != nil {
		return nil, nil, err
	}
	if totalSupply.IsZero() {
		return nil, nil, fmt.Errorf("%w: total supply is zero", ErrInvalidReserve)
	}
	native, err = safemath.MulDiv(shares, nativeReserve, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	token, err = safemath.MulDiv(shares, tokenReserve, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	return native, token, nil
}

// GetExchangeRate returns the marginal price of one whole unit of the input
// asset, sampled by trading 1% of the input reserve.
func GetExchangeRate(inputReserve, outputReserve *uint256.Int, decimalsIn uint8) (*uint256.Int, error) {
	if err := checkNil(inputReserve, outputReserve); err != nil {
		return nil, err
	}
	amountIn := new(uint256.Int).Div(inputReserve, uint256.NewInt(100))
	if amountIn.IsZero() {
		return nil, fmt.Errorf("%w: input reserve %s", ErrReserveTooSmall, inputReserve)
	}
	amountOut, err := GetInputPrice(amountIn, inputReserve, outputReserve)
	if err != nil {
		return nil, err
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimalsIn)))
	return safemath.MulDiv(scale, amountOut, amountIn)
}

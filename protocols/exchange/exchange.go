package exchange

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/protocols/exchange/calculator"
	"github.com/defistate/defistate-dex/protocols/exchange/liquidity"
	"github.com/defistate/defistate-dex/safemath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

//go:generate mockgen -destination=exchangemock/token_ledger.go -package=exchangemock . TokenLedger

const (
	ShareName     = "Defistate Exchange Share"
	ShareSymbol   = "DXS"
	ShareDecimals = 18
)

// MinimumLiquidity is the smallest native deposit that may seed an empty pool.
var MinimumLiquidity = uint256.NewInt(10_000)

var (
	ErrSlippageExceeded      = errors.New("slippage bound exceeded")
	ErrBelowMinimumLiquidity = errors.New("deposit below minimum liquidity")
	ErrNoLiquidity           = errors.New("pool has no liquidity")
	ErrNotImplemented        = errors.New("not implemented")
	ErrExternalCallFailed    = errors.New("external call failed")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidToken          = errors.New("invalid token")
)

var keyToken = host.StorageKey([]byte("exchange/token"))

// TokenLedger is the fungible token the pool trades against. Every method is
// invoked in a frame executing as the token instance, with the pool as the
// caller.
type TokenLedger interface {
	BalanceOf(env host.Env, owner common.Address) (*uint256.Int, error)
	Transfer(env host.Env, to common.Address, amount *uint256.Int) error
	TransferFrom(env host.Env, from, to common.Address, amount *uint256.Int) error
}

// Pool is the operation set of a native/token constant-product pool. Every
// method runs as the pool instance: env.Self() is the pool and env.Caller()
// the trader or liquidity provider.
type Pool interface {
	AddLiquidity(env host.Env, maxTokens *uint256.Int) (*uint256.Int, error)
	RemoveLiquidity(env host.Env, shares *uint256.Int) (native, token *uint256.Int, err error)

	SwapNativeForTokenExactInput(env host.Env, minTokens *uint256.Int) (*uint256.Int, error)
	SwapNativeForTokenExactOutput(env host.Env, tokensBought *uint256.Int) (*uint256.Int, error)
	SwapTokenForNativeExactInput(env host.Env, tokensSold, minNative *uint256.Int) (*uint256.Int, error)
	SwapTokenForNativeExactOutput(env host.Env, nativeBought, maxTokens *uint256.Int) (*uint256.Int, error)
	SwapTokenForTokenExactInput(env host.Env, tokensSold, minTokensBought *uint256.Int, target common.Address) (*uint256.Int, error)
	SwapTokenForTokenExactOutput(env host.Env, tokensBought, maxTokensSold *uint256.Int, target common.Address) (*uint256.Int, error)

	GetNativeToTokenInputPrice(env host.Env, nativeSold *uint256.Int) (*uint256.Int, error)
	GetNativeToTokenOutputPrice(env host.Env, tokensBought *uint256.Int) (*uint256.Int, error)
	GetTokenToNativeInputPrice(env host.Env, tokensSold *uint256.Int) (*uint256.Int, error)
	GetTokenToNativeOutputPrice(env host.Env, nativeBought *uint256.Int) (*uint256.Int, error)

	TransferShares(env host.Env, to common.Address, amount *uint256.Int) error
	Reserves(env host.Env) (native, token *uint256.Int, err error)
	TotalSupply(env host.Env) *uint256.Int
	BalanceOf(env host.Env, holder common.Address) *uint256.Int
	Token(env host.Env) common.Address
}

// Exchange is the production Pool.
type Exchange struct {
	ledger TokenLedger
}

var (
	_ Pool      = (*Exchange)(nil)
	_ host.Code = (*Exchange)(nil)
)

type Option func(*Exchange)

// WithTokenLedger pins the ledger implementation instead of resolving the
// program deployed at the token address.
func WithTokenLedger(l TokenLedger) Option {
	return func(e *Exchange) { e.ledger = l }
}

func New(opts ...Option) *Exchange {
	e := &Exchange{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (*Exchange) Name() string { return "defistate/exchange@v1" }

// Construct binds the pool to the token whose 20-byte address is arg.
func (*Exchange) Construct(env host.Env, arg []byte) error {
	if len(arg) != common.AddressLength {
		return fmt.Errorf("%w: expected %d address bytes, got %d", ErrInvalidToken, common.AddressLength, len(arg))
	}
	token := common.BytesToAddress(arg)
	if token == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidToken)
	}
	if err := host.StoreAddress(env, keyToken, token); err != nil {
		return err
	}
	env.Emit(PoolInitialized{Token: token, Pool: env.Self()})
	return nil
}

func (*Exchange) ShareName() string   { return ShareName }
func (*Exchange) ShareSymbol() string { return ShareSymbol }
func (*Exchange) Decimals() uint8     { return ShareDecimals }

func (*Exchange) Token(env host.Env) common.Address {
	return host.LoadAddress(env, keyToken)
}

func (*Exchange) TotalSupply(env host.Env) *uint256.Int {
	return liquidity.New(env).TotalSupply()
}

func (*Exchange) BalanceOf(env host.Env, holder common.Address) *uint256.Int {
	return liquidity.New(env).BalanceOf(holder)
}

func externalErr(err error) error {
	if err == nil || errors.Is(err, ErrExternalCallFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrExternalCallFailed, err)
}

func (e *Exchange) tokenLedger(env host.Env) (TokenLedger, common.Address, error) {
	token := e.Token(env)
	if e.ledger != nil {
		return e.ledger, token, nil
	}
	code, ok := env.CodeAt(token)
	if !ok {
		return nil, token, fmt.Errorf("%w: no program at token %s", ErrExternalCallFailed, token)
	}
	ledger, ok := code.(TokenLedger)
	if !ok {
		return nil, token, fmt.Errorf("%w: %s at %s is not a token ledger", ErrExternalCallFailed, code.Name(), token)
	}
	return ledger, token, nil
}

// tokenReserve asks the token ledger how much of it the pool holds.
func (e *Exchange) tokenReserve(env host.Env) (*uint256.Int, error) {
	ledger, token, err := e.tokenLedger(env)
	if err != nil {
		return nil, err
	}
	var reserve *uint256.Int
	err = env.Call(token, nil, func(tenv host.Env) error {
		var err error
		reserve, err = ledger.BalanceOf(tenv, env.Self())
		return err
	})
	if err != nil {
		return nil, externalErr(err)
	}
	if reserve == nil {
		return nil, fmt.Errorf("%w: token %s returned no balance", ErrExternalCallFailed, token)
	}
	return reserve, nil
}

func (e *Exchange) pullTokens(env host.Env, from common.Address, amount *uint256.Int) error {
	ledger, token, err := e.tokenLedger(env)
	if err != nil {
		return err
	}
	return externalErr(env.Call(token, nil, func(tenv host.Env) error {
		return ledger.TransferFrom(tenv, from, env.Self(), amount)
	}))
}

func (e *Exchange) pushTokens(env host.Env, to common.Address, amount *uint256.Int) error {
	ledger, token, err := e.tokenLedger(env)
	if err != nil {
		return err
	}
	return externalErr(env.Call(token, nil, func(tenv host.Env) error {
		return ledger.Transfer(tenv, to, amount)
	}))
}

func sendNative(env host.Env, to common.Address, amount *uint256.Int) error {
	return externalErr(env.Transfer(to, amount))
}

// Reserves returns the live native and token reserves. Inside a payable call
// the native reserve still includes the attached value.
func (e *Exchange) Reserves(env host.Env) (native, token *uint256.Int, err error) {
	token, err = e.tokenReserve(env)
	if err != nil {
		return nil, nil, err
	}
	return env.Balance(), token, nil
}

// preTradeNativeReserve is the pool's native balance before the value
// attached to the current call arrived.
func preTradeNativeReserve(env host.Env) (*uint256.Int, error) {
	return safemath.Sub(env.Balance(), env.Value())
}

func requirePositive(name string, v *uint256.Int) error {
	if v == nil || v.IsZero() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, name)
	}
	return nil
}

func requireNonPayable(env host.Env) error {
	if !env.Value().IsZero() {
		return fmt.Errorf("%w: operation does not accept native value", ErrInvalidAmount)
	}
	return nil
}

// orZero treats a missing lower bound as no bound.
func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// AddLiquidity deposits the attached native value together with tokens pulled
// from the caller and mints shares to the caller. The first deposit into an
// empty pool sets the price; later deposits must match the reserve ratio and
// pull at most maxTokens.
func (e *Exchange) AddLiquidity(env host.Env, maxTokens *uint256.Int) (*uint256.Int, error) {
	value := env.Value()
	if err := requirePositive("native deposit", value); err != nil {
		return nil, err
	}
	if err := requirePositive("max tokens", maxTokens); err != nil {
		return nil, err
	}

	shares := liquidity.New(env)
	total := shares.TotalSupply()
	provider := env.Caller()

	var minted, tokenAmount *uint256.Int
	if total.IsZero() {
		if value.Lt(MinimumLiquidity) {
			return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimumLiquidity, value, MinimumLiquidity)
		}
		minted = value
		tokenAmount = maxTokens
	} else {
		nativeReserve, err := preTradeNativeReserve(env)
		if err != nil {
			return nil, err
		}
		tokenReserve, err := e.tokenReserve(env)
		if err != nil {
			return nil, err
		}
		tokenAmount, err = calculator.DepositTokenAmount(value, nativeReserve, tokenReserve)
		if err != nil {
			return nil, err
		}
		minted, err = calculator.MintedShares(value, nativeReserve, total)
		if err != nil {
			return nil, err
		}
		if tokenAmount.Gt(maxTokens) {
			return nil, fmt.Errorf("%w: deposit requires %s tokens, max %s", ErrSlippageExceeded, tokenAmount, maxTokens)
		}
	}

	if err := shares.Mint(provider, minted); err != nil {
		return nil, err
	}
	if err := e.pullTokens(env, provider, tokenAmount); err != nil {
		return nil, err
	}

	env.Emit(LiquidityAdded{Provider: provider, NativeAmount: value, TokenAmount: tokenAmount, Shares: minted})
	env.Emit(ShareTransfer{To: provider, Amount: minted})
	return minted, nil
}

// RemoveLiquidity burns shares from the caller and pays out the matching
// fraction of both reserves.
func (e *Exchange) RemoveLiquidity(env host.Env, amount *uint256.Int) (native, token *uint256.Int, err error) {
	if err := requireNonPayable(env); err != nil {
		return nil, nil, err
	}
	if err := requirePositive("shares", amount); err != nil {
		return nil, nil, err
	}
	shares := liquidity.New(env)
	total := shares.TotalSupply()
	if total.IsZero() {
		return nil, nil, ErrNoLiquidity
	}

	nativeReserve, tokenReserve, err := e.Reserves(env)
	if err != nil {
		return nil, nil, err
	}
	native, token, err = calculator.WithdrawalAmounts(amount, nativeReserve, tokenReserve, total)
	if err != nil {
		return nil, nil, err
	}

	provider := env.Caller()
	if err := shares.Burn(provider, amount); err != nil {
		return nil, nil, err
	}
	if err := sendNative(env, provider, native); err != nil {
		return nil, nil, err
	}
	if err := e.pushTokens(env, provider, token); err != nil {
		return nil, nil, err
	}

	env.Emit(LiquidityRemoved{Provider: provider, NativeAmount: native, TokenAmount: token, Shares: amount})
	env.Emit(ShareTransfer{From: provider, Amount: amount})
	return native, token, nil
}

// TransferShares moves shares from the caller to `to`.
func (*Exchange) TransferShares(env host.Env, to common.Address, amount *uint256.Int) error {
	if err := requireNonPayable(env); err != nil {
		return err
	}
	if amount == nil {
		return fmt.Errorf("%w: nil amount", ErrInvalidAmount)
	}
	from := env.Caller()
	if err := liquidity.New(env).Transfer(from, to, amount); err != nil {
		return err
	}
	env.Emit(ShareTransfer{From: from, To: to, Amount: new(uint256.Int).Set(amount)})
	return nil
}

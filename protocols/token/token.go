// Package token implements a fungible token ledger that runs on the host.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/safemath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidParams         = errors.New("invalid token params")
	ErrInvalidAmount         = errors.New("amount is required")
)

var (
	prefixBalance   = []byte("token/balance")
	prefixAllowance = []byte("token/allowance")

	keyName        = host.StorageKey([]byte("token/name"))
	keySymbol      = host.StorageKey([]byte("token/symbol"))
	keyDecimals    = host.StorageKey([]byte("token/decimals"))
	keyTotalSupply = host.StorageKey([]byte("token/totalSupply"))
)

// Params is the rlp-encoded constructor argument.
type Params struct {
	Name          string
	Symbol        string
	Decimals      uint8
	InitialSupply *big.Int
}

func (p Params) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(p)
}

type Transfer struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (Transfer) EventName() string { return "Transfer" }

type Approval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"amount"`
}

func (Approval) EventName() string { return "Approval" }

// Token is the ledger program. Every method operates on the instance the env
// is executing as, and treats env.Caller() as the acting account.
type Token struct{}

var _ host.Code = Token{}

func (Token) Name() string { return "defistate/token@v1" }

func (t Token) Construct(env host.Env, arg []byte) error {
	var p Params
	if err := rlp.DecodeBytes(arg, &p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	supply := new(uint256.Int)
	if p.InitialSupply != nil {
		if overflow := supply.SetFromBig(p.InitialSupply); overflow || p.InitialSupply.Sign() < 0 {
			return fmt.Errorf("%w: initial supply out of range", ErrInvalidParams)
		}
	}
	if err := host.StoreString(env, keyName, p.Name); err != nil {
		return fmt.Errorf("%w: name: %w", ErrInvalidParams, err)
	}
	if err := host.StoreString(env, keySymbol, p.Symbol); err != nil {
		return fmt.Errorf("%w: symbol: %w", ErrInvalidParams, err)
	}
	if err := host.StoreUint(env, keyDecimals, uint256.NewInt(uint64(p.Decimals))); err != nil {
		return err
	}
	if err := host.StoreUint(env, keyTotalSupply, supply); err != nil {
		return err
	}
	if err := t.setBalance(env, env.Caller(), supply); err != nil {
		return err
	}
	env.Emit(Transfer{To: env.Caller(), Amount: supply})
	return nil
}

func balanceKey(owner common.Address) common.Hash {
	return host.StorageKey(prefixBalance, owner.Bytes())
}

func allowanceKey(owner, spender common.Address) common.Hash {
	return host.StorageKey(prefixAllowance, owner.Bytes(), spender.Bytes())
}

func (Token) setBalance(env host.Env, owner common.Address, v *uint256.Int) error {
	return host.StoreUint(env, balanceKey(owner), v)
}

func (Token) TokenName(env host.Env) string   { return host.LoadString(env, keyName) }
func (Token) TokenSymbol(env host.Env) string { return host.LoadString(env, keySymbol) }

func (Token) Decimals(env host.Env) uint8 {
	return uint8(host.LoadUint(env, keyDecimals).Uint64())
}

func (Token) TotalSupply(env host.Env) *uint256.Int {
	return host.LoadUint(env, keyTotalSupply)
}

func (Token) BalanceOf(env host.Env, owner common.Address) (*uint256.Int, error) {
	return host.LoadUint(env, balanceKey(owner)), nil
}

func (Token) Allowance(env host.Env, owner, spender common.Address) *uint256.Int {
	return host.LoadUint(env, allowanceKey(owner, spender))
}

// Transfer moves amount from the caller to `to`.
func (t Token) Transfer(env host.Env, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	return t.move(env, env.Caller(), to, amount)
}

// Approve lets spender move up to amount of the caller's balance.
func (t Token) Approve(env host.Env, spender common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	owner := env.Caller()
	if err := host.StoreUint(env, allowanceKey(owner, spender), amount); err != nil {
		return err
	}
	env.Emit(Approval{Owner: owner, Spender: spender, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// TransferFrom moves amount from `from` to `to` on behalf of the caller,
// consuming the caller's allowance.
func (t Token) TransferFrom(env host.Env, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	spender := env.Caller()
	allowance := t.Allowance(env, from, spender)
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s may spend %s of %s, needs %s", ErrInsufficientAllowance, spender, allowance, from, amount)
	}
	if err := host.StoreUint(env, allowanceKey(from, spender), new(uint256.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return t.move(env, from, to, amount)
}

func (t Token) move(env host.Env, from, to common.Address, amount *uint256.Int) error {
	fromBal, _ := t.BalanceOf(env, from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, fromBal, amount)
	}
	if err := t.setBalance(env, from, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal, _ := t.BalanceOf(env, to)
	toBal, err := safemath.Add(toBal, amount)
	if err != nil {
		return err
	}
	if err := t.setBalance(env, to, toBal); err != nil {
		return err
	}
	env.Emit(Transfer{From: from, To: to, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// Package liquidity tracks pool shares: per-holder balances and the total
// supply, kept in the storage of the pool instance.
package liquidity

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/safemath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrInsufficientBalance = errors.New("insufficient share balance")

var (
	prefixBalance  = []byte("liquidity/balance")
	keyTotalSupply = host.StorageKey([]byte("liquidity/totalSupply"))
)

// Store is the slot storage the ledger reads and writes. host.Env satisfies it.
type Store interface {
	GetState(key common.Hash) common.Hash
	SetState(key, value common.Hash) error
}

// Ledger is a view over a Store. It is cheap to construct and holds no state
// of its own.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

func balanceKey(holder common.Address) common.Hash {
	return host.StorageKey(prefixBalance, holder.Bytes())
}

func (l *Ledger) load(key common.Hash) *uint256.Int {
	v := l.store.GetState(key)
	return new(uint256.Int).SetBytes32(v[:])
}

func (l *Ledger) save(key common.Hash, v *uint256.Int) error {
	return l.store.SetState(key, common.Hash(v.Bytes32()))
}

func (l *Ledger) TotalSupply() *uint256.Int {
	return l.load(keyTotalSupply)
}

// BalanceOf returns the shares held by holder; unknown holders hold zero.
func (l *Ledger) BalanceOf(holder common.Address) *uint256.Int {
	return l.load(balanceKey(holder))
}

// Mint credits amount new shares to holder.
func (l *Ledger) Mint(holder common.Address, amount *uint256.Int) error {
	supply, err := safemath.Add(l.TotalSupply(), amount)
	if err != nil {
		return err
	}
	// the balance can never exceed the supply, so it cannot overflow either
	bal := new(uint256.Int).Add(l.BalanceOf(holder), amount)
	if err := l.save(balanceKey(holder), bal); err != nil {
		return err
	}
	return l.save(keyTotalSupply, supply)
}

// Burn destroys amount of holder's shares. On failure nothing is written.
func (l *Ledger) Burn(holder common.Address, amount *uint256.Int) error {
	bal := l.BalanceOf(holder)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientBalance, holder, bal, amount)
	}
	supply, err := safemath.Sub(l.TotalSupply(), amount)
	if err != nil {
		return err
	}
	if err := l.save(balanceKey(holder), new(uint256.Int).Sub(bal, amount)); err != nil {
		return err
	}
	return l.save(keyTotalSupply, supply)
}

// Transfer moves amount of shares between holders. The supply is unchanged.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	bal := l.BalanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, sending %s", ErrInsufficientBalance, from, bal, amount)
	}
	if err := l.save(balanceKey(from), new(uint256.Int).Sub(bal, amount)); err != nil {
		return err
	}
	return l.save(balanceKey(to), new(uint256.Int).Add(l.BalanceOf(to), amount))
}

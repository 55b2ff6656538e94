package exchange

import (
	"math/big"
	"slices"
)

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// deepCopyPoolView gives the copy its own *big.Int values so the new state
// never shares memory with the old one.
func deepCopyPoolView(p PoolView) PoolView {
	out := p
	out.NativeReserve = copyBig(p.NativeReserve)
	out.TokenReserve = copyBig(p.TokenReserve)
	out.TotalSupply = copyBig(p.TotalSupply)
	return out
}

// Patcher applies diff to prevState and returns the new state ordered by ID.
// prevState is not modified.
func Patcher(prevState []PoolView, diff ExchangeSystemDiff) ([]PoolView, error) {
	byID := make(map[uint64]PoolView, len(prevState))
	for _, p := range prevState {
		byID[p.ID] = deepCopyPoolView(p)
	}
	for _, id := range diff.Deletions {
		delete(byID, id)
	}
	for _, p := range diff.Updates {
		byID[p.ID] = deepCopyPoolView(p)
	}
	for _, p := range diff.Additions {
		byID[p.ID] = deepCopyPoolView(p)
	}

	out := make([]PoolView, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b PoolView) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

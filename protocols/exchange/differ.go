package exchange

import "math/big"

type ExchangeSystemDiff struct {
	Additions []PoolView `json:"additions,omitempty"`
	Updates   []PoolView `json:"updates,omitempty"`
	Deletions []uint64   `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d ExchangeSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}

// Differ calculates the difference between two snapshots of the pool set.
// Pools are matched by ID; a pool is updated when any of its reserves or its
// share supply changed.
func Differ(old, new []PoolView) ExchangeSystemDiff {
	oldByID := make(map[uint64]PoolView, len(old))
	for _, p := range old {
		oldByID[p.ID] = p
	}
	newByID := make(map[uint64]PoolView, len(new))
	for _, p := range new {
		newByID[p.ID] = p
	}

	var diff ExchangeSystemDiff
	for _, p := range new {
		prev, exists := oldByID[p.ID]
		if !exists {
			diff.Additions = append(diff.Additions, p)
			continue
		}
		if !bigEqual(prev.NativeReserve, p.NativeReserve) ||
			!bigEqual(prev.TokenReserve, p.TokenReserve) ||
			!bigEqual(prev.TotalSupply, p.TotalSupply) {
			diff.Updates = append(diff.Updates, p)
		}
	}
	for _, p := range old {
		if _, exists := newByID[p.ID]; !exists {
			diff.Deletions = append(diff.Deletions, p.ID)
		}
	}
	return diff
}

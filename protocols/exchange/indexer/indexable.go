package indexer

import (
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedExchange values from raw pool snapshots.
type Indexer struct{}

func New() *Indexer {
	return &Indexer{}
}

func (i *Indexer) Index(pools []exchange.PoolView) IndexedExchange {
	return NewIndexableExchangeSystem(pools)
}

// IndexableExchangeSystem provides constant-time lookups over a pool snapshot.
type IndexableExchangeSystem struct {
	byID      map[uint64]exchange.PoolView
	byAddress map[common.Address]exchange.PoolView
	byToken   map[common.Address]exchange.PoolView
	all       []exchange.PoolView
}

func NewIndexableExchangeSystem(pools []exchange.PoolView) *IndexableExchangeSystem {
	byID := make(map[uint64]exchange.PoolView, len(pools))
	byAddress := make(map[common.Address]exchange.PoolView, len(pools))
	byToken := make(map[common.Address]exchange.PoolView, len(pools))
	for _, p := range pools {
		byID[p.ID] = p
		byAddress[p.Address] = p
		byToken[p.Token] = p
	}
	return &IndexableExchangeSystem{
		byID:      byID,
		byAddress: byAddress,
		byToken:   byToken,
		all:       pools,
	}
}

func (s *IndexableExchangeSystem) GetByID(id uint64) (exchange.PoolView, bool) {
	p, ok := s.byID[id]
	return p, ok
}

func (s *IndexableExchangeSystem) GetByAddress(addr common.Address) (exchange.PoolView, bool) {
	p, ok := s.byAddress[addr]
	return p, ok
}

func (s *IndexableExchangeSystem) GetByToken(token common.Address) (exchange.PoolView, bool) {
	p, ok := s.byToken[token]
	return p, ok
}

// All returns a defensive copy of the slice of all pools.
func (s *IndexableExchangeSystem) All() []exchange.PoolView {
	out := make([]exchange.PoolView, len(s.all))
	copy(out, s.all)
	return out
}

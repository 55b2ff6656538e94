package indexer

import (
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedExchange defines the methods for accessing indexed pool data.
type IndexedExchange interface {
	GetByID(id uint64) (exchange.PoolView, bool)
	GetByAddress(addr common.Address) (exchange.PoolView, bool)
	GetByToken(token common.Address) (exchange.PoolView, bool)
	All() []exchange.PoolView
}

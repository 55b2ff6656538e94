package indexer

import (
	"github.com/defistate/defistate-dex/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedTokenSystem defines the methods for accessing indexed registry data.
type IndexedTokenSystem interface {
	GetByID(id uint64) (tokenregistry.Token, bool)
	GetByAddress(address common.Address) (tokenregistry.Token, bool)
	GetByExchange(exchange common.Address) (tokenregistry.Token, bool)
	All() []tokenregistry.Token
}

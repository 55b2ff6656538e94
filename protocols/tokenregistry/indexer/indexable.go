package indexer

import (
	"github.com/defistate/defistate-dex/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

type Indexer struct{}

func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed registry from a raw slice of tokens.
func (i *Indexer) Index(tokens []tokenregistry.Token) IndexedTokenSystem {
	return NewIndexableTokenSystem(tokens)
}

// IndexableTokenSystem provides lookups of registry entries by id, token
// address and exchange address.
type IndexableTokenSystem struct {
	byID       map[uint64]tokenregistry.Token
	byAddress  map[common.Address]tokenregistry.Token
	byExchange map[common.Address]tokenregistry.Token
	all        []tokenregistry.Token
}

func NewIndexableTokenSystem(tokens []tokenregistry.Token) *IndexableTokenSystem {
	its := &IndexableTokenSystem{
		byID:       make(map[uint64]tokenregistry.Token, len(tokens)),
		byAddress:  make(map[common.Address]tokenregistry.Token, len(tokens)),
		byExchange: make(map[common.Address]tokenregistry.Token, len(tokens)),
		all:        tokens,
	}
	for _, t := range tokens {
		its.byID[t.ID] = t
		its.byAddress[t.Address] = t
		its.byExchange[t.Exchange] = t
	}
	return its
}

func (its *IndexableTokenSystem) GetByID(id uint64) (tokenregistry.Token, bool) {
	t, ok := its.byID[id]
	return t, ok
}

func (its *IndexableTokenSystem) GetByAddress(address common.Address) (tokenregistry.Token, bool) {
	t, ok := its.byAddress[address]
	return t, ok
}

// GetByExchange finds the token traded by the given pool.
func (its *IndexableTokenSystem) GetByExchange(exchange common.Address) (tokenregistry.Token, bool) {
	t, ok := its.byExchange[exchange]
	return t, ok
}

// All returns a copy of the slice of all tokens.
func (its *IndexableTokenSystem) All() []tokenregistry.Token {
	allCopy := make([]tokenregistry.Token, len(its.all))
	copy(allCopy, its.all)
	return allCopy
}

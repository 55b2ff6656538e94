package tokenregistry

import (
	"github.com/defistate/defistate-dex/engine"
	"github.com/ethereum/go-ethereum/common"
)

const (
	ProtocolID engine.ProtocolID     = "tokenregistry"
	Schema     engine.ProtocolSchema = "defistate/tokenregistry/token@v1"
)

// Token is one entry of the factory registry together with the token's own
// metadata. ID is the factory-assigned id and Exchange the pool trading it.
type Token struct {
	ID       uint64         `json:"id"`
	Address  common.Address `json:"address"`
	Exchange common.Address `json:"exchange"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

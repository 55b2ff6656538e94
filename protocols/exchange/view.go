package exchange

import (
	"math/big"

	"github.com/defistate/defistate-dex/engine"
	"github.com/ethereum/go-ethereum/common"
)

const (
	ProtocolID engine.ProtocolID     = "exchange"
	Schema     engine.ProtocolSchema = "defistate/exchange/poolView@v1"
)

// PoolView is a point-in-time snapshot of one pool. ID is the numeric id the
// factory assigned to the pool's token.
type PoolView struct {
	ID            uint64         `json:"id"`
	Address       common.Address `json:"address"`
	Token         common.Address `json:"token"`
	NativeReserve *big.Int       `json:"nativeReserve"`
	TokenReserve  *big.Int       `json:"tokenReserve"`
	TotalSupply   *big.Int       `json:"totalSupply"`
}

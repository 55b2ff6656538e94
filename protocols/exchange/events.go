package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Direction string

const (
	NativeToToken Direction = "nativeToToken"
	TokenToNative Direction = "tokenToNative"
)

// PoolInitialized is emitted once, when a pool is bound to its token.
type PoolInitialized struct {
	Token common.Address `json:"token"`
	Pool  common.Address `json:"pool"`
}

func (PoolInitialized) EventName() string { return "PoolInitialized" }

type LiquidityAdded struct {
	Provider     common.Address `json:"provider"`
	NativeAmount *uint256.Int   `json:"nativeAmount"`
	TokenAmount  *uint256.Int   `json:"tokenAmount"`
	Shares       *uint256.Int   `json:"shares"`
}

func (LiquidityAdded) EventName() string { return "LiquidityAdded" }

type LiquidityRemoved struct {
	Provider     common.Address `json:"provider"`
	NativeAmount *uint256.Int   `json:"nativeAmount"`
	TokenAmount  *uint256.Int   `json:"tokenAmount"`
	Shares       *uint256.Int   `json:"shares"`
}

func (LiquidityRemoved) EventName() string { return "LiquidityRemoved" }

// ShareTransfer uses the zero address as From for mints and as To for burns.
type ShareTransfer struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (ShareTransfer) EventName() string { return "ShareTransfer" }

type Trade struct {
	Buyer     common.Address `json:"buyer"`
	AmountIn  *uint256.Int   `json:"amountIn"`
	AmountOut *uint256.Int   `json:"amountOut"`
	Direction Direction      `json:"direction"`
}

func (Trade) EventName() string { return "Trade" }

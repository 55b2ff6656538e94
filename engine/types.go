package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type ProtocolName string
type ProtocolID string

// ProtocolSchema defines the decode contract for a protocol's data
type ProtocolSchema string

type ProtocolMeta struct {
	Name ProtocolName `json:"name"`           // human label
	Tags []string     `json:"tags,omitempty"` // "dex", "registry", etc.
}

type ProtocolState struct {
	Meta ProtocolMeta `json:"meta"`

	// height the protocol's data was read at
	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`

	// Schema is the decode contract for Data.
	// Example:
	// "defistate/exchange/poolView@v1"
	Schema ProtocolSchema `json:"schema"`

	// Data is the protocol view, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol failed to load at this height.
	Error string `json:"error,omitempty"`
}

// BlockSummary describes the committed call that produced a state. Every
// committed call advances the height by one.
type BlockSummary struct {
	Number     *big.Int       `json:"number"`
	Hash       common.Hash    `json:"hash"`
	Timestamp  uint64         `json:"timestamp"`
	ReceivedAt int64          `json:"receivedAt"` // Unix nanoseconds when the publisher started building the state.
	From       common.Address `json:"from"`
	To         common.Address `json:"to"`
	LogCount   int            `json:"logCount"`
}

// State is the main data structure broadcast to subscribers.
type State struct {
	ChainID   uint64                       `json:"chainId"`
	Timestamp uint64                       `json:"timestamp"`
	Block     BlockSummary                 `json:"block"`
	Protocols map[ProtocolID]ProtocolState `json:"protocols"`
}

func (state *State) HasErrors() bool {
	for _, pr := range state.Protocols {
		if pr.Error != "" {
			return true
		}
	}
	return false
}

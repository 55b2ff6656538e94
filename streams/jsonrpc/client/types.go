package client

import (
	"encoding/json"

	"github.com/defistate/defistate-dex/engine"
)

// rawState mirrors engine.State with every protocol's Data left undecoded, so
// it can be decoded later by schema instead of into map[string]any.
type rawState struct {
	ChainID   uint64                                 `json:"chainId"`
	Timestamp uint64                                 `json:"timestamp"`
	Block     engine.BlockSummary                    `json:"block"`
	Protocols map[engine.ProtocolID]rawProtocolState `json:"protocols"`
}

// rawStateDiff mirrors differ.StateDiff the same way.
type rawStateDiff struct {
	FromBlock uint64                                 `json:"fromBlock"`
	ToBlock   engine.BlockSummary                    `json:"toBlock"`
	Timestamp uint64                                 `json:"timestamp"`
	Protocols map[engine.ProtocolID]rawProtocolState `json:"protocols"`
}

// rawProtocolState carries a protocol's state or diff. Both share one shape on
// the wire.
type rawProtocolState struct {
	Meta              engine.ProtocolMeta   `json:"meta"`
	SyncedBlockNumber *uint64               `json:"syncedBlockNumber,omitempty"`
	Schema            engine.ProtocolSchema `json:"schema"`
	Error             string                `json:"error,omitempty"`
	Data              json.RawMessage       `json:"data,omitempty"`
}

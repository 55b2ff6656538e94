package differ

import "github.com/defistate/defistate-dex/engine"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// emptier is implemented by protocol diffs that can report having no changes.
type emptier interface {
	IsEmpty() bool
}

type ProtocolDiff struct {
	Meta engine.ProtocolMeta `json:"meta"`

	// height the protocol's data was read at
	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`

	// Schema is the decode contract for Data, e.g.
	// "defistate/exchange/poolView@v1".
	Schema engine.ProtocolSchema `json:"schema"`

	// Data is the protocol diff, shaped by Schema.
	Data any `json:"data,omitempty"`

	Error string `json:"error,omitempty"`
}

// StateDiff summarizes the changes between the state at FromBlock and the
// state at ToBlock. Protocols whose data did not change are omitted.
type StateDiff struct {
	Timestamp uint64                             `json:"timestamp"`
	FromBlock uint64                             `json:"fromBlock"`
	ToBlock   engine.BlockSummary                `json:"toBlock"`
	Protocols map[engine.ProtocolID]ProtocolDiff `json:"protocols"`
}

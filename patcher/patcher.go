package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-dex/differ"
	"github.com/defistate/defistate-dex/engine"
)

// PatcherFunc applies a diff to a previous state to produce a new state.
//
// Implementations MUST NOT mutate prevState. prevState is nil when the
// protocol is new.
type PatcherFunc func(prevState any, diffData any) (newState any, err error)

type StatePatcherConfig struct {
	// Schema -> patcher, e.g. "defistate/exchange/poolView@v1" -> exchange.Patcher
	Patchers map[engine.ProtocolSchema]PatcherFunc
}

func (c *StatePatcherConfig) validate() error {
	for _, p := range c.Patchers {
		if p == nil {
			return errors.New("patcher cannot be nil")
		}
	}
	return nil
}

// StatePatcher rebuilds full states from a base state and a stream of diffs.
type StatePatcher struct {
	patchers map[engine.ProtocolSchema]PatcherFunc
}

func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	patchers := make(map[engine.ProtocolSchema]PatcherFunc, len(cfg.Patchers))
	for k, v := range cfg.Patchers {
		patchers[k] = v
	}
	return &StatePatcher{patchers: patchers}, nil
}

// Patch returns the state diff describes when applied to oldState. Protocols
// absent from the diff are shared with oldState by reference.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState.Block.Number == nil {
		return nil, errors.New("patcher: old state has no block number")
	}
	if oldState.Block.Number.Uint64() != diff.FromBlock {
		return nil, fmt.Errorf("patcher: mismatch fromBlock (state=%d, diff=%d)", oldState.Block.Number.Uint64(), diff.FromBlock)
	}

	protocols := make(map[engine.ProtocolID]engine.ProtocolState, len(oldState.Protocols))
	for k, v := range oldState.Protocols {
		protocols[k] = v
	}

	for protocolID, protocolDiff := range diff.Protocols {
		patch, ok := p.patchers[protocolDiff.Schema]
		if !ok {
			return nil, fmt.Errorf("patcher: no patcher registered for schema %q (protocol=%s)", protocolDiff.Schema, protocolID)
		}

		var oldData any
		if prev, exists := oldState.Protocols[protocolID]; exists {
			if prev.Schema != protocolDiff.Schema {
				return nil, fmt.Errorf("patcher: schema mismatch for protocol %s (old=%s, diff=%s)", protocolID, prev.Schema, protocolDiff.Schema)
			}
			oldData = prev.Data
		}

		newData, err := patch(oldData, protocolDiff.Data)
		if err != nil {
			return nil, fmt.Errorf("patcher: failed to patch protocol %s: %w", protocolID, err)
		}

		protocols[protocolID] = engine.ProtocolState{
			Meta:              protocolDiff.Meta,
			SyncedBlockNumber: protocolDiff.SyncedBlockNumber,
			Schema:            protocolDiff.Schema,
			Data:              newData,
			Error:             protocolDiff.Error,
		}
	}

	return &engine.State{
		ChainID:   oldState.ChainID,
		Timestamp: diff.Timestamp,
		Block:     diff.ToBlock,
		Protocols: protocols,
	}, nil
}

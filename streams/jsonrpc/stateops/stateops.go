// Package stateops binds the per-schema differs, patchers and JSON decoders of
// the exchange state stream.
package stateops

import (
	"encoding/json"
	"fmt"

	"github.com/defistate/defistate-dex/differ"
	"github.com/defistate/defistate-dex/engine"
	"github.com/defistate/defistate-dex/patcher"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/defistate/defistate-dex/protocols/tokenregistry"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateOps encapsulates the processing of exchange state.
//
// It acts as a unified facade for two operations:
// 1. Differ: calculating the delta between two states (used by the publisher).
// 2. Patcher: applying a delta to a previous state (used by a client).
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	protocolDiffers := map[engine.ProtocolSchema]differ.ProtocolDiffer{
		tokenregistry.Schema: func(old, new any) (diff any, err error) {
			return tokenregistry.Differ(old.([]tokenregistry.Token), new.([]tokenregistry.Token)), nil
		},
		exchange.Schema: func(old, new any) (diff any, err error) {
			return exchange.Differ(old.([]exchange.PoolView), new.([]exchange.PoolView)), nil
		},
	}

	protocolPatchers := map[engine.ProtocolSchema]patcher.PatcherFunc{
		tokenregistry.Schema: func(prevState, diff any) (newState any, err error) {
			// prevState is nil for a protocol the old state did not carry.
			prev, _ := prevState.([]tokenregistry.Token)
			return tokenregistry.Patcher(prev, diff.(tokenregistry.TokenSystemDiff))
		},
		exchange.Schema: func(prevState, diff any) (newState any, err error) {
			prev, _ := prevState.([]exchange.PoolView)
			return exchange.Patcher(prev, diff.(exchange.ExchangeSystemDiff))
		},
	}

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		ProtocolDiffers: protocolDiffers,
		Logger:          logger,
		Registry:        prometheusRegistry,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patchers: protocolPatchers,
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
	}, nil
}

func decode[T any](data json.RawMessage) (any, error) {
	var typed T
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	return typed, nil
}

// DecodeStateJSON decodes the data of a full protocol state.
func (ops *StateOps) DecodeStateJSON(schema engine.ProtocolSchema, data json.RawMessage) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		return decode[[]tokenregistry.Token](data)
	case exchange.Schema:
		return decode[[]exchange.PoolView](data)
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}

// DecodeStateDiffJSON decodes the data of a protocol diff.
func (ops *StateOps) DecodeStateDiffJSON(schema engine.ProtocolSchema, data json.RawMessage) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		return decode[tokenregistry.TokenSystemDiff](data)
	case exchange.Schema:
		return decode[exchange.ExchangeSystemDiff](data)
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}

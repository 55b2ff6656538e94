package differ

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-dex/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolDiffer computes the diff between two views of one protocol's data.
// It returns a nil diff when nothing changed.
type ProtocolDiffer func(old, new any) (diff any, err error)

// StateDifferConfig holds the per-schema differs and the differ's dependencies.
type StateDifferConfig struct {
	// One differ per schema (data contract), not per protocol identity.
	ProtocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
	Registry        prometheus.Registerer
	Logger          Logger
}

// validate checks that the required dependencies are present and that no
// schema is registered with a nil differ.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, d := range c.ProtocolDiffers {
		if d == nil {
			return fmt.Errorf("config: differ for schema %q cannot be nil", schema)
		}
	}
	return nil
}

// StateDiffer turns two consecutive exchange states into a StateDiff,
// delegating each protocol to the differ registered for its schema.
type StateDiffer struct {
	metrics         *Metrics
	logger          Logger
	protocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
}

// NewStateDiffer builds a differ from cfg, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	protocolDiffers := make(map[engine.ProtocolSchema]ProtocolDiffer, len(cfg.ProtocolDiffers))
	for schema, d := range cfg.ProtocolDiffers {
		protocolDiffers[schema] = d
	}

	return &StateDiffer{
		metrics:         NewMetrics(cfg.Registry),
		logger:          cfg.Logger,
		protocolDiffers: protocolDiffers,
	}, nil
}

// Diff compares two error-free states. Every protocol in new must exist in
// old under the same schema.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues(allSchemas))
	defer totalTimer.ObserveDuration()

	if old.HasErrors() || new.HasErrors() {
		return nil, errors.New("differ: received state with errors")
	}

	protocolDiffs := make(map[engine.ProtocolID]ProtocolDiff)
	for protocolID, newProtocolState := range new.Protocols {
		oldProtocolState, ok := old.Protocols[protocolID]
		if !ok {
			return nil, fmt.Errorf("differ: protocol %s does not exist in old state", protocolID)
		}
		if oldProtocolState.Schema != newProtocolState.Schema {
			return nil, fmt.Errorf("differ: schema changed for protocol %s (old=%s, new=%s)", protocolID, oldProtocolState.Schema, newProtocolState.Schema)
		}

		differFunc, exists := d.protocolDiffers[newProtocolState.Schema]
		if !exists {
			return nil, fmt.Errorf("differ: no differ registered for schema %q", newProtocolState.Schema)
		}

		timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues(string(newProtocolState.Schema)))
		diffData, err := differFunc(oldProtocolState.Data, newProtocolState.Data)
		timer.ObserveDuration()
		if err != nil {
			return nil, fmt.Errorf("differ: protocol %s: %w", protocolID, err)
		}

		if e, ok := diffData.(emptier); ok && e.IsEmpty() {
			d.metrics.unchanged.Inc()
			continue
		}

		protocolDiffs[protocolID] = ProtocolDiff{
			Meta:              newProtocolState.Meta,
			SyncedBlockNumber: newProtocolState.SyncedBlockNumber,
			Schema:            newProtocolState.Schema,
			Data:              diffData,
		}
	}

	d.logger.Debug("state diffed",
		"fromBlock", old.Block.Number,
		"toBlock", new.Block.Number,
		"changedProtocols", len(protocolDiffs),
	)

	return &StateDiff{
		Timestamp: new.Timestamp,
		FromBlock: old.Block.Number.Uint64(),
		ToBlock:   new.Block,
		Protocols: protocolDiffs,
	}, nil
}

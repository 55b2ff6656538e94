// Package client follows the exchange state stream of a dex node. It applies
// full states and diffs in order and reconnects, resubscribing for a fresh
// full state, whenever the connection drops or the diff sequence has a gap.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-dex/differ"
	"github.com/defistate/defistate-dex/engine"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the exchange API is registered.
	RpcNamespace                  = "dex"
	StateStreamSubscriptionMethod = "subscribeStateStream"

	eventTypeFull = "full"
	eventTypeDiff = "diff"
)

var (
	// ErrStreamGap is returned for a diff that does not start at the last
	// applied height. The client resubscribes to get a new full state.
	ErrStreamGap = errors.New("diff does not continue the last state")
	// ErrChainMismatch is returned for a state from another chain. It stops
	// the client.
	ErrChainMismatch = errors.New("state from unexpected chain")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc applies a diff to the previous state without mutating it.
type StatePatcherFunc func(prevState *engine.State, diff *differ.StateDiff) (newState *engine.State, err error)

// DecoderFunc decodes one protocol's raw data according to its schema.
type DecoderFunc func(schema engine.ProtocolSchema, data json.RawMessage) (any, error)

// Config holds the configuration for the client.
type Config struct {
	URL string
	// ChainID, when set, is the only chain whose states are accepted.
	ChainID          uint64
	Logger           Logger
	Registry         prometheus.Registerer
	BufferSize       uint
	StatePatcher     StatePatcherFunc
	StateDecoder     DecoderFunc
	StateDiffDecoder DecoderFunc
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.StatePatcher == nil {
		return errors.New("config: StatePatcher is required")
	}
	if c.StateDecoder == nil {
		return errors.New("config: StateDecoder is required")
	}
	if c.StateDiffDecoder == nil {
		return errors.New("config: StateDiffDecoder is required")
	}
	return nil
}

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor parses stream events, keeps the latest state, applies diffs
// and emits every reconstructed state. It does no networking and is not safe
// for concurrent use.
type StreamProcessor struct {
	chainID          uint64
	lastState        *engine.State
	statePatcher     StatePatcherFunc
	stateDecoder     DecoderFunc
	stateDiffDecoder DecoderFunc
	stateCh          chan *engine.State
	logger           Logger
	metrics          *Metrics
}

// NewStreamProcessor builds a processor from cfg; cfg.URL is not used.
// metrics may be nil.
func NewStreamProcessor(cfg *Config, metrics *Metrics) *StreamProcessor {
	return &StreamProcessor{
		chainID:          cfg.ChainID,
		logger:           cfg.Logger,
		stateCh:          make(chan *engine.State, cfg.BufferSize),
		statePatcher:     cfg.StatePatcher,
		stateDecoder:     cfg.StateDecoder,
		stateDiffDecoder: cfg.StateDiffDecoder,
		metrics:          metrics,
	}
}

// State returns a read-only channel for receiving new states.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.stateCh
}

// Latest returns the most recently reconstructed state.
func (sp *StreamProcessor) Latest() *engine.State {
	return sp.lastState
}

// ProcessMessage decodes one raw subscription event and applies it.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	var event SubscriptionEvent
	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	var (
		state *engine.State
		err   error
	)
	switch event.Type {
	case eventTypeFull:
		state, err = sp.fullState(event.Payload)
	case eventTypeDiff:
		state, err = sp.applyDiff(event.Payload)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
	if err != nil || state == nil {
		return err
	}

	sp.lastState = state
	sp.observe(state, event)
	sp.stateCh <- state
	return nil
}

func (sp *StreamProcessor) fullState(payload json.RawMessage) (*engine.State, error) {
	var raw rawState
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal full state payload: %w", err)
	}
	if sp.chainID != 0 && raw.ChainID != sp.chainID {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrChainMismatch, sp.chainID, raw.ChainID)
	}

	state := &engine.State{
		ChainID:   raw.ChainID,
		Timestamp: raw.Timestamp,
		Block:     raw.Block,
		Protocols: make(map[engine.ProtocolID]engine.ProtocolState, len(raw.Protocols)),
	}
	for pID, ps := range raw.Protocols {
		ps := ps
		data, err := sp.decode(sp.stateDecoder, &ps)
		if err != nil {
			return nil, fmt.Errorf("failed to decode state for protocol %s: %w", pID, err)
		}
		state.Protocols[pID] = engine.ProtocolState{
			Meta:              ps.Meta,
			SyncedBlockNumber: ps.SyncedBlockNumber,
			Schema:            ps.Schema,
			Data:              data,
			Error:             ps.Error,
		}
	}
	return state, nil
}

// applyDiff returns the patched state, or nil for a diff that is already
// covered by the last state.
func (sp *StreamProcessor) applyDiff(payload json.RawMessage) (*engine.State, error) {
	var raw rawStateDiff
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}
	if sp.lastState == nil {
		return nil, fmt.Errorf("received diff before full state; from_block: %d, to_block: %d", raw.FromBlock, raw.ToBlock.Number)
	}
	if sp.lastState.Block.Number == nil || raw.ToBlock.Number == nil {
		return nil, errors.New("missing block number")
	}

	last := sp.lastState.Block.Number.Uint64()
	if raw.ToBlock.Number.Uint64() <= last {
		sp.logger.Debug("Ignoring stale diff", "last_known_block", last, "diff_to_block", raw.ToBlock.Number)
		return nil, nil
	}
	if raw.FromBlock != last {
		return nil, fmt.Errorf("%w: last block %d, diff from %d to %s", ErrStreamGap, last, raw.FromBlock, raw.ToBlock.Number)
	}

	diff := &differ.StateDiff{
		FromBlock: raw.FromBlock,
		ToBlock:   raw.ToBlock,
		Timestamp: raw.Timestamp,
		Protocols: make(map[engine.ProtocolID]differ.ProtocolDiff, len(raw.Protocols)),
	}
	for pID, pd := range raw.Protocols {
		pd := pd
		data, err := sp.decode(sp.stateDiffDecoder, &pd)
		if err != nil {
			return nil, fmt.Errorf("failed to decode diff data for protocol %s: %w", pID, err)
		}
		diff.Protocols[pID] = differ.ProtocolDiff{
			Meta:              pd.Meta,
			SyncedBlockNumber: pd.SyncedBlockNumber,
			Schema:            pd.Schema,
			Data:              data,
			Error:             pd.Error,
		}
	}

	newState, err := sp.statePatcher(sp.lastState, diff)
	if err != nil {
		return nil, fmt.Errorf("failed to patch state: %w", err)
	}
	newState.Timestamp = diff.Timestamp
	return newState, nil
}

// decode skips protocols that failed on the server; they carry no data.
func (sp *StreamProcessor) decode(fn DecoderFunc, ps *rawProtocolState) (any, error) {
	if ps.Error != "" && len(ps.Data) == 0 {
		return nil, nil
	}
	return fn(ps.Schema, ps.Data)
}

func (sp *StreamProcessor) observe(state *engine.State, event SubscriptionEvent) {
	latency := time.Since(time.Unix(0, event.SentAt))
	if sp.metrics != nil {
		sp.metrics.states.WithLabelValues(event.Type).Inc()
		if event.SentAt > 0 {
			sp.metrics.latency.Observe(latency.Seconds())
		}
	}
	sp.logger.Debug("State Processed",
		"block", state.Block.Number,
		"type", event.Type,
		"protocols", len(state.Protocols),
		"errors", state.HasErrors(),
		"latency_ms", latency.Milliseconds(),
	)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
	metrics   *Metrics
}

// NewClient validates cfg and starts following the stream until ctx is done.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	metrics := NewMetrics(cfg.Registry)
	client := &Client{
		processor: NewStreamProcessor(&cfg, metrics),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
		metrics:   metrics,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// State delegates to the processor's state channel.
func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	// stateCh belongs to the processor and stays open.
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	retry := func(msg string, err error) bool {
		c.metrics.reconnects.Inc()
		c.logger.Error(msg, "error", err, "delay", reconnectDelay)
		if !sleep(ctx, reconnectDelay) {
			return false
		}
		reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		return true
	}

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			if !retry("Failed to connect to RPC server, will retry...", err) {
				return
			}
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			c.logger.Info("Context canceled, shutting down.")
			return
		case errors.Is(err, ErrChainMismatch):
			c.errCh <- err
			return
		case errors.Is(err, ErrStreamGap):
			c.metrics.resyncs.Inc()
			c.logger.Warn("Gap in state stream, resubscribing", "error", err)
		default:
			if !retry("Subscription failed, will reconnect...", err) {
				return
			}
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, StateStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for data...")
	for {
		select {
		case rawData := <-rawCh:
			err := c.processor.ProcessMessage(rawData)
			if errors.Is(err, ErrStreamGap) || errors.Is(err, ErrChainMismatch) {
				return err
			}
			if err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Package publisher turns committed ledger calls into a stream of exchange
// states. After every commit it reads the factory registry and the live pool
// reserves, diffs the result against the previous state and broadcasts either
// the diff or the full state to every subscriber.
package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/defistate/defistate-dex/differ"
	"github.com/defistate/defistate-dex/engine"
	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/defistate/defistate-dex/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventTypeFull = "full"
	EventTypeDiff = "diff"

	DefaultSubscriberBuffer = 64
	receiptBuffer           = 256
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Backend is the ledger the publisher follows.
type Backend interface {
	SubscribeReceipts(ch chan<- *host.Receipt) event.Subscription
	View(ctx context.Context, from, to common.Address, fn func(host.Env) error) error
}

type StateDiffer interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// SubscriptionEvent is the message delivered to stream subscribers. Payload
// is an *engine.State for "full" events and a *differ.StateDiff for "diff".
type SubscriptionEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sentAt"`
}

type Config struct {
	ChainID          uint64
	Backend          Backend
	Factory          common.Address
	Differ           StateDiffer
	SubscriberBuffer int
	Logger           Logger
	Registry         prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Backend == nil {
		return errors.New("config: Backend cannot be nil")
	}
	if c.Factory == (common.Address{}) {
		return errors.New("config: Factory cannot be the zero address")
	}
	if c.Differ == nil {
		return errors.New("config: Differ cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.SubscriberBuffer < 0 {
		return errors.New("config: SubscriberBuffer cannot be negative")
	}
	return nil
}

type Publisher struct {
	chainID    uint64
	backend    Backend
	factory    common.Address
	differ     StateDiffer
	bufferSize int
	logger     Logger
	metrics    *Metrics

	// mu guards latest and subs. Broadcasts happen under mu so that a new
	// subscriber sees the latest full state and then every later event.
	mu     sync.Mutex
	latest *engine.State
	subs   map[uint64]*Subscription
	nextID uint64
}

func New(cfg *Config) (*Publisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bufferSize := cfg.SubscriberBuffer
	if bufferSize == 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Publisher{
		chainID:    cfg.ChainID,
		backend:    cfg.Backend,
		factory:    cfg.Factory,
		differ:     cfg.Differ,
		bufferSize: bufferSize,
		logger:     cfg.Logger,
		metrics:    NewMetrics(cfg.Registry),
		subs:       make(map[uint64]*Subscription),
	}, nil
}

// Subscription is one attached consumer of the stream. Events is closed when
// the subscriber unsubscribes or falls too far behind.
type Subscription struct {
	id     uint64
	ch     chan *SubscriptionEvent
	p      *Publisher
	closed bool
}

func (s *Subscription) Events() <-chan *SubscriptionEvent { return s.ch }

func (s *Subscription) Unsubscribe() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.removeLocked(s)
}

func (p *Publisher) removeLocked(s *Subscription) {
	if s.closed {
		return
	}
	s.closed = true
	delete(p.subs, s.id)
	close(s.ch)
	p.metrics.subscribers.Set(float64(len(p.subs)))
}

// Subscribe attaches a new consumer. If a state has been published already,
// the first event is that state in full.
func (p *Publisher) Subscribe() *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	s := &Subscription{
		id: p.nextID,
		ch: make(chan *SubscriptionEvent, p.bufferSize),
		p:  p,
	}
	if p.latest != nil {
		s.ch <- &SubscriptionEvent{Type: EventTypeFull, Payload: p.latest, SentAt: time.Now().UnixNano()}
	}
	p.subs[s.id] = s
	p.metrics.subscribers.Set(float64(len(p.subs)))
	return s
}

// Latest returns the last published state, or nil before the first one.
func (p *Publisher) Latest() *engine.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Snapshot reads the exchange state at the current height.
func (p *Publisher) Snapshot(ctx context.Context) (*engine.State, error) {
	return p.snapshot(ctx, nil)
}

func (p *Publisher) snapshot(ctx context.Context, receipt *host.Receipt) (*engine.State, error) {
	timer := prometheus.NewTimer(p.metrics.buildDuration)
	defer timer.ObserveDuration()

	now := time.Now()
	var snap *registrySnapshot
	err := p.backend.View(ctx, common.Address{}, p.factory, func(env host.Env) error {
		snap = readRegistry(env)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &engine.State{
		ChainID:   p.chainID,
		Timestamp: uint64(now.Unix()),
		Block:     blockSummary(snap.height, receipt, now.UnixNano()),
		Protocols: map[engine.ProtocolID]engine.ProtocolState{
			exchange.ProtocolID:      protocolState(exchangeMeta, exchange.Schema, snap.height, snap.pools, snap.poolsErr),
			tokenregistry.ProtocolID: protocolState(registryMeta, tokenregistry.Schema, snap.height, snap.tokens, snap.tokensErr),
		},
	}, nil
}

// Run follows the backend until ctx is done or the receipt subscription
// fails. It publishes the current state first.
func (p *Publisher) Run(ctx context.Context) error {
	receipts := make(chan *host.Receipt, receiptBuffer)
	sub := p.backend.SubscribeReceipts(receipts)
	defer sub.Unsubscribe()

	if err := p.publish(ctx, nil); err != nil {
		return err
	}
	p.logger.Info("publisher started", "factory", p.factory)

	for {
		select {
		case receipt := <-receipts:
			// Several commits may have landed since; one snapshot covers them all.
		drain:
			for {
				select {
				case next := <-receipts:
					receipt = next
				default:
					break drain
				}
			}
			if err := p.publish(ctx, receipt); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Error("failed to publish state", "height", receipt.Height, "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Publisher) publish(ctx context.Context, receipt *host.Receipt) error {
	state, err := p.snapshot(ctx, receipt)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.latest
	if prev != nil && prev.Block.Number.Cmp(state.Block.Number) >= 0 {
		// nothing committed since the last publish
		return nil
	}

	ev := &SubscriptionEvent{Type: EventTypeFull, Payload: state}
	if prev != nil && !prev.HasErrors() && !state.HasErrors() {
		diff, err := p.differ.Diff(prev, state)
		if err != nil {
			p.logger.Warn("diff failed, sending full state", "height", state.Block.Number, "error", err)
		} else {
			ev = &SubscriptionEvent{Type: EventTypeDiff, Payload: diff}
		}
	}
	if state.HasErrors() {
		p.logger.Warn("published state carries protocol errors", "height", state.Block.Number)
	}

	p.latest = state
	ev.SentAt = time.Now().UnixNano()
	p.broadcastLocked(ev)
	p.metrics.published.WithLabelValues(ev.Type).Inc()
	p.logger.Debug("state published", "height", state.Block.Number, "type", ev.Type, "subscribers", len(p.subs))
	return nil
}

func (p *Publisher) broadcastLocked(ev *SubscriptionEvent) {
	for _, s := range p.subs {
		select {
		case s.ch <- ev:
		default:
			p.logger.Warn("dropping slow subscriber", "subscriber", s.id)
			p.metrics.dropped.Inc()
			p.removeLocked(s)
		}
	}
}

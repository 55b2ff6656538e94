package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/defistate-dex/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultCacheSize    = 4096
	DefaultMaxCallDepth = 64
)

const (
	kindExecute = "execute"
	kindView    = "view"
	kindFund    = "fund"
)

type Config struct {
	Store        storage.KV
	CacheSize    int
	MaxCallDepth int
	Registry     prometheus.Registerer
	Logger       Logger
}

func (c *Config) validate() error {
	if c.Store == nil {
		return errors.New("config: Store cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.CacheSize < 0 || c.MaxCallDepth < 0 {
		return errors.New("config: CacheSize and MaxCallDepth cannot be negative")
	}
	return nil
}

// Runtime owns the ledger state and executes calls against it one at a time.
// A call either commits all of its effects (state writes, native transfers
// and events) or none of them.
type Runtime struct {
	mu       sync.Mutex
	state    *StateDB
	height   uint64
	maxDepth int

	codesMu sync.RWMutex
	codes   map[common.Hash]Code

	// sendMu keeps receipts flowing to subscribers in height order while
	// letting the next call start.
	sendMu   sync.Mutex
	receipts event.Feed

	metrics *Metrics
	logger  Logger
}

func NewRuntime(cfg *Config) (*Runtime, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cacheSize := cfg.CacheSize
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	maxDepth := cfg.MaxCallDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxCallDepth
	}

	state, err := NewStateDB(cfg.Store, cacheSize)
	if err != nil {
		return nil, err
	}
	height := state.getHeight()
	if err := state.Error(); err != nil {
		return nil, fmt.Errorf("runtime: loading height: %w", err)
	}

	rt := &Runtime{
		state:    state,
		height:   height,
		maxDepth: maxDepth,
		codes:    make(map[common.Hash]Code),
		metrics:  NewMetrics(cfg.Registry),
		logger:   cfg.Logger,
	}
	rt.metrics.height.Set(float64(height))
	return rt, nil
}

// TemplateHash is the code identity of c.
func TemplateHash(c Code) common.Hash {
	return crypto.Keccak256Hash([]byte(c.Name()))
}

// Upload registers c so that it can be instantiated by its template hash.
// Uploading the same program twice is a no-op.
func (r *Runtime) Upload(c Code) common.Hash {
	h := TemplateHash(c)
	r.codesMu.Lock()
	defer r.codesMu.Unlock()
	r.codes[h] = c
	return h
}

func (r *Runtime) code(h common.Hash) (Code, bool) {
	r.codesMu.RLock()
	defer r.codesMu.RUnlock()
	c, ok := r.codes[h]
	return c, ok
}

// SubscribeReceipts delivers the receipt of every committed call, in order.
func (r *Runtime) SubscribeReceipts(ch chan<- *Receipt) event.Subscription {
	return r.receipts.Subscribe(ch)
}

// Height returns the number of committed calls.
func (r *Runtime) Height() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.height
}

func (r *Runtime) BalanceOf(addr common.Address) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.state.Discard()
	bal := r.state.GetBalance(addr)
	return bal, r.state.Error()
}

func (r *Runtime) CodeAt(addr common.Address) (Code, bool) {
	r.mu.Lock()
	h := r.state.GetCodeHash(addr)
	r.state.Discard()
	r.mu.Unlock()
	if h == (common.Hash{}) {
		return nil, false
	}
	return r.code(h)
}

// Execute runs fn as a top-level call from msg.From to msg.To. msg.Value is
// moved from the sender to the callee before fn runs.
func (r *Runtime) Execute(ctx context.Context, msg Message, fn func(Env) error) (*Receipt, error) {
	return r.run(ctx, kindExecute, msg, false, func(f *frame) error {
		if err := r.state.Transfer(msg.From, msg.To, f.value); err != nil {
			return err
		}
		return fn(f)
	})
}

// View runs fn against the current state as a read-only call. Nothing it
// does is ever committed.
func (r *Runtime) View(ctx context.Context, from, to common.Address, fn func(Env) error) error {
	_, err := r.run(ctx, kindView, Message{From: from, To: to}, true, func(f *frame) error {
		return fn(f)
	})
	return err
}

// Deploy instantiates template from the deployer account with the given
// endowment and returns the new instance address.
func (r *Runtime) Deploy(ctx context.Context, from common.Address, template common.Hash, arg []byte, endowment *uint256.Int, salt [32]byte) (common.Address, *Receipt, error) {
	var addr common.Address
	receipt, err := r.Execute(ctx, Message{From: from, To: from}, func(env Env) error {
		var err error
		addr, err = env.Instantiate(template, arg, endowment, salt)
		return err
	})
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, receipt, nil
}

// Fund credits newly issued native balance to addr.
func (r *Runtime) Fund(ctx context.Context, addr common.Address, amount *uint256.Int) (*Receipt, error) {
	return r.run(ctx, kindFund, Message{To: addr}, false, func(f *frame) error {
		if amount == nil {
			return ErrNilAmount
		}
		return r.state.AddBalance(addr, amount)
	})
}

// invoke runs fn, turning a panic into ErrCallPanicked so the call reverts
// and the runtime stays usable.
func invoke(fn func(*frame) error, f *frame) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrCallPanicked, p)
		}
	}()
	return fn(f)
}

func (r *Runtime) run(ctx context.Context, kind string, msg Message, readOnly bool, fn func(*frame) error) (*Receipt, error) {
	start := time.Now()
	defer func() {
		r.metrics.callDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	value := new(uint256.Int)
	if msg.Value != nil {
		value.Set(msg.Value)
	}

	r.mu.Lock()
	if err := ctx.Err(); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	f := &frame{
		rt:       r,
		ctx:      ctx,
		caller:   msg.From,
		self:     msg.To,
		value:    value,
		height:   r.height + 1,
		readOnly: readOnly,
	}
	err := invoke(fn, f)
	if err == nil {
		err = r.state.Error()
	}
	if readOnly || err != nil {
		r.state.Discard()
		r.mu.Unlock()
		if err != nil {
			r.metrics.calls.WithLabelValues(kind, "reverted").Inc()
			r.logger.Debug("call reverted", "kind", kind, "from", msg.From, "to", msg.To, "error", err)
			return nil, err
		}
		r.metrics.calls.WithLabelValues(kind, "ok").Inc()
		return nil, nil
	}

	height := r.height + 1
	logs := r.state.Logs()
	for _, l := range logs {
		l.Height = height
	}
	r.state.setHeight(height)
	if err := r.state.Commit(); err != nil {
		r.state.Discard()
		r.mu.Unlock()
		r.metrics.calls.WithLabelValues(kind, "failed").Inc()
		r.logger.Error("failed to commit call", "kind", kind, "height", height, "error", err)
		return nil, err
	}
	r.height = height

	receipt := &Receipt{
		Height:    height,
		Timestamp: uint64(time.Now().Unix()),
		From:      msg.From,
		To:        msg.To,
		Logs:      logs,
	}
	r.metrics.calls.WithLabelValues(kind, "committed").Inc()
	r.metrics.logsEmitted.Add(float64(len(logs)))
	r.metrics.height.Set(float64(height))
	r.logger.Debug("call committed", "kind", kind, "height", height, "from", msg.From, "to", msg.To, "logs", len(logs))

	r.sendMu.Lock()
	r.mu.Unlock()
	r.receipts.Send(receipt)
	r.sendMu.Unlock()

	return receipt, nil
}

// Package server exposes the exchange over JSON-RPC in the "dex" namespace,
// including the state stream subscription.
//
// Calls are not signed: the caller names the sending account in every write.
// The server is meant for development networks and trusted frontends.
package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/node"
	"github.com/defistate/defistate-dex/streams/publisher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

const (
	// Namespace is the namespace under which the API is registered.
	Namespace                     = "dex"
	StateStreamSubscriptionMethod = "subscribeStateStream"
)

var (
	ErrFaucetDisabled = errors.New("faucet is disabled")
	ErrAmountOverflow = errors.New("amount does not fit in 256 bits")
	ErrMissingAmount  = errors.New("missing amount")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type StateStream interface {
	Subscribe() *publisher.Subscription
}

type Config struct {
	Node   *node.Node
	Stream StateStream
	Faucet bool
	Logger Logger
}

func (c *Config) validate() error {
	if c.Node == nil {
		return errors.New("config: Node cannot be nil")
	}
	if c.Stream == nil {
		return errors.New("config: Stream cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// API is the receiver registered with the rpc server.
type API struct {
	node   *node.Node
	stream StateStream
	faucet bool
	logger Logger
}

func NewAPI(cfg *Config) (*API, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &API{
		node:   cfg.Node,
		stream: cfg.Stream,
		faucet: cfg.Faucet,
		logger: cfg.Logger,
	}, nil
}

// NewServer returns an rpc server with the API registered under Namespace.
func NewServer(cfg *Config) (*rpc.Server, error) {
	api, err := NewAPI(cfg)
	if err != nil {
		return nil, err
	}
	srv := rpc.NewServer()
	if err := srv.RegisterName(Namespace, api); err != nil {
		return nil, fmt.Errorf("failed to register API: %w", err)
	}
	return srv, nil
}

// CallArgs identifies the sender and target of a write.
type CallArgs struct {
	From  common.Address `json:"from"`
	Pool  common.Address `json:"pool"`
	Value *hexutil.Big   `json:"value,omitempty"`
}

type AmountResult struct {
	Amount  *hexutil.Big  `json:"amount"`
	Receipt *host.Receipt `json:"receipt"`
}

type WithdrawResult struct {
	Native  *hexutil.Big  `json:"native"`
	Token   *hexutil.Big  `json:"token"`
	Receipt *host.Receipt `json:"receipt"`
}

type PoolResult struct {
	Pool    common.Address `json:"pool"`
	Receipt *host.Receipt  `json:"receipt"`
}

type ReservesResult struct {
	Native *hexutil.Big `json:"native"`
	Token  *hexutil.Big `json:"token"`
}

func toU256(v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return nil, nil
	}
	b := (*big.Int)(v)
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrAmountOverflow)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return u, nil
}

func toU256s(vs ...*hexutil.Big) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		u, err := toU256(v)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

func fromU256(v *uint256.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(v.ToBig())
}

func amountResult(v *uint256.Int, receipt *host.Receipt, err error) (*AmountResult, error) {
	if err != nil {
		return nil, err
	}
	return &AmountResult{Amount: fromU256(v), Receipt: receipt}, nil
}

// SubscribeStateStream streams full states and diffs to the caller. The first
// notification is the latest full state.
func (api *API) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	sub := api.stream.Subscribe()
	api.logger.Debug("state stream subscribed", "id", rpcSub.ID)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					api.logger.Warn("state stream subscriber dropped", "id", rpcSub.ID)
					return
				}
				if err := notifier.Notify(rpcSub.ID, ev); err != nil {
					api.logger.Debug("failed to notify subscriber", "id", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				return
			}
		}
	}()
	return rpcSub, nil
}

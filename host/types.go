package host

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds = errors.New("insufficient native balance")
	ErrDeploymentFailed  = errors.New("deployment failed")
	ErrCallDepth         = errors.New("max call depth exceeded")
	ErrWriteProtection   = errors.New("write protection")
	ErrNilAmount         = errors.New("amount is required")
	ErrCallPanicked      = errors.New("call panicked")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Code is a deployable program. Implementations hold no per-instance state of
// their own: everything an instance owns lives in the storage reached through
// the Env it is invoked with.
type Code interface {
	Name() string
	Construct(env Env, arg []byte) error
}

// Event is a typed notification emitted by a running instance.
type Event interface {
	EventName() string
}

// Env is the execution environment of a single call frame.
type Env interface {
	Context() context.Context

	// Caller is the immediate caller of this frame; Self is the instance
	// being executed.
	Caller() common.Address
	Self() common.Address

	// Value is the native amount attached to this frame. It has already been
	// credited to Self when the frame starts running.
	Value() *uint256.Int

	Height() uint64
	ReadOnly() bool

	Balance() *uint256.Int
	BalanceOf(addr common.Address) *uint256.Int
	Transfer(to common.Address, amount *uint256.Int) error

	GetState(key common.Hash) common.Hash
	SetState(key, value common.Hash) error

	Emit(ev Event)

	// CodeAt returns the program deployed at addr.
	CodeAt(addr common.Address) (Code, bool)

	// Call runs fn in a nested frame executing as `to` with Self as the
	// caller. A failed nested call reverts only its own effects; the error is
	// returned to the enclosing frame.
	Call(to common.Address, value *uint256.Int, fn func(Env) error) error

	// Instantiate deploys a new instance of template at a deterministic
	// address derived from Self and salt, transfers the endowment to it and
	// runs its constructor.
	Instantiate(template common.Hash, arg []byte, endowment *uint256.Int, salt [32]byte) (common.Address, error)
}

// Log is a committed event together with where it came from.
type Log struct {
	Address common.Address `json:"address"`
	Height  uint64         `json:"height"`
	Index   uint           `json:"index"`
	Name    string         `json:"name"`
	Event   Event          `json:"event"`
}

// Message describes a top-level call.
type Message struct {
	From  common.Address
	To    common.Address
	Value *uint256.Int
}

// Receipt describes a committed call.
type Receipt struct {
	Height    uint64         `json:"height"`
	Timestamp uint64         `json:"timestamp"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Logs      []*Log         `json:"logs"`
}

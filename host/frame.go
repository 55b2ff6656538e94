package host

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// frame implements Env for one level of the call stack.
type frame struct {
	rt       *Runtime
	ctx      context.Context
	caller   common.Address
	self     common.Address
	value    *uint256.Int
	height   uint64
	depth    int
	readOnly bool
}

var _ Env = (*frame)(nil)

func (f *frame) Context() context.Context { return f.ctx }
func (f *frame) Caller() common.Address   { return f.caller }
func (f *frame) Self() common.Address     { return f.self }
func (f *frame) Value() *uint256.Int      { return new(uint256.Int).Set(f.value) }
func (f *frame) Height() uint64           { return f.height }
func (f *frame) ReadOnly() bool           { return f.readOnly }

func (f *frame) Balance() *uint256.Int {
	return f.rt.state.GetBalance(f.self)
}

func (f *frame) BalanceOf(addr common.Address) *uint256.Int {
	return f.rt.state.GetBalance(addr)
}

func (f *frame) Transfer(to common.Address, amount *uint256.Int) error {
	if f.readOnly {
		return ErrWriteProtection
	}
	return f.rt.state.Transfer(f.self, to, amount)
}

func (f *frame) GetState(key common.Hash) common.Hash {
	return f.rt.state.GetState(f.self, key)
}

func (f *frame) SetState(key, value common.Hash) error {
	if f.readOnly {
		return ErrWriteProtection
	}
	f.rt.state.SetState(f.self, key, value)
	return nil
}

func (f *frame) Emit(ev Event) {
	f.rt.state.AddLog(&Log{
		Address: f.self,
		Name:    ev.EventName(),
		Event:   ev,
	})
}

func (f *frame) CodeAt(addr common.Address) (Code, bool) {
	h := f.rt.state.GetCodeHash(addr)
	if h == (common.Hash{}) {
		return nil, false
	}
	return f.rt.code(h)
}

func (f *frame) child(to common.Address, value *uint256.Int) *frame {
	v := new(uint256.Int)
	if value != nil {
		v.Set(value)
	}
	return &frame{
		rt:       f.rt,
		ctx:      f.ctx,
		caller:   f.self,
		self:     to,
		value:    v,
		height:   f.height,
		depth:    f.depth + 1,
		readOnly: f.readOnly,
	}
}

func (f *frame) Call(to common.Address, value *uint256.Int, fn func(Env) error) error {
	if f.depth+1 >= f.rt.maxDepth {
		return ErrCallDepth
	}
	if err := f.ctx.Err(); err != nil {
		return err
	}
	c := f.child(to, value)
	if f.readOnly && !c.value.IsZero() {
		return ErrWriteProtection
	}

	state := f.rt.state
	snap := state.Snapshot()
	err := state.Transfer(f.self, to, c.value)
	if err == nil {
		err = fn(c)
	}
	if err != nil {
		state.RevertToSnapshot(snap)
	}
	return err
}

func (f *frame) Instantiate(template common.Hash, arg []byte, endowment *uint256.Int, salt [32]byte) (common.Address, error) {
	if f.readOnly {
		return common.Address{}, ErrWriteProtection
	}
	if f.depth+1 >= f.rt.maxDepth {
		return common.Address{}, ErrCallDepth
	}
	code, ok := f.rt.code(template)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: unknown template %s", ErrDeploymentFailed, template)
	}

	state := f.rt.state
	addr := crypto.CreateAddress2(f.self, salt, template.Bytes())
	if state.GetCodeHash(addr) != (common.Hash{}) {
		return common.Address{}, fmt.Errorf("%w: address %s already in use", ErrDeploymentFailed, addr)
	}

	c := f.child(addr, endowment)
	snap := state.Snapshot()
	state.SetCodeHash(addr, template)
	err := state.Transfer(f.self, addr, c.value)
	if err == nil {
		err = code.Construct(c, arg)
	}
	if err != nil {
		state.RevertToSnapshot(snap)
		return common.Address{}, fmt.Errorf("%w: %s at %s: %w", ErrDeploymentFailed, code.Name(), addr, err)
	}
	return addr, nil
}

package patcher

import (
	"errors"
	"math/big"
	"testing"

	"github.com/defistate/defistate-dex/differ"
	"github.com/defistate/defistate-dex/engine"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// intPatcher treats the state as an int and the diff as an increment.
func intPatcher(old any, diff any) (any, error) {
	val := 0
	if old != nil {
		val = old.(int)
	}
	delta, ok := diff.(int)
	if !ok {
		return nil, errors.New("diff is not int")
	}
	return val + delta, nil
}

func makeState(height uint64, protocols map[engine.ProtocolID]engine.ProtocolState) *engine.State {
	n := new(big.Int).SetUint64(height)
	return &engine.State{
		ChainID:   1337,
		Block:     engine.BlockSummary{Number: n, Hash: common.BigToHash(n)},
		Protocols: protocols,
	}
}

func TestStatePatcher(t *testing.T) {
	schema := engine.ProtocolSchema("test/int@v1")
	p, err := NewStatePatcher(&StatePatcherConfig{
		Patchers: map[engine.ProtocolSchema]PatcherFunc{schema: intPatcher},
	})
	require.NoError(t, err)

	oldState := makeState(10, map[engine.ProtocolID]engine.ProtocolState{
		"updated":   {Schema: schema, Data: 10},
		"unchanged": {Schema: schema, Data: 50},
	})

	t.Run("applies updates and additions, shares the rest", func(t *testing.T) {
		diff := &differ.StateDiff{
			Timestamp: 99,
			FromBlock: 10,
			ToBlock:   engine.BlockSummary{Number: big.NewInt(11)},
			Protocols: map[engine.ProtocolID]differ.ProtocolDiff{
				"updated": {Schema: schema, Data: 5},
				"added":   {Schema: schema, Data: 100},
			},
		}
		newState, err := p.Patch(oldState, diff)
		require.NoError(t, err)

		assert.Equal(t, uint64(11), newState.Block.Number.Uint64())
		assert.Equal(t, uint64(99), newState.Timestamp)
		assert.Equal(t, uint64(1337), newState.ChainID)
		assert.Equal(t, 15, newState.Protocols["updated"].Data)
		assert.Equal(t, 50, newState.Protocols["unchanged"].Data)
		assert.Equal(t, 100, newState.Protocols["added"].Data)

		// old state untouched
		assert.Equal(t, 10, oldState.Protocols["updated"].Data)
		assert.Len(t, oldState.Protocols, 2)
	})

	t.Run("height mismatch", func(t *testing.T) {
		_, err := p.Patch(oldState, &differ.StateDiff{FromBlock: 9})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch fromBlock")
	})

	t.Run("unknown schema", func(t *testing.T) {
		_, err := p.Patch(oldState, &differ.StateDiff{
			FromBlock: 10,
			Protocols: map[engine.ProtocolID]differ.ProtocolDiff{"x": {Schema: "unknown", Data: 1}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no patcher registered")
	})

	t.Run("schema mismatch", func(t *testing.T) {
		other := engine.ProtocolSchema("test/other@v1")
		p, err := NewStatePatcher(&StatePatcherConfig{
			Patchers: map[engine.ProtocolSchema]PatcherFunc{other: intPatcher},
		})
		require.NoError(t, err)
		_, err = p.Patch(oldState, &differ.StateDiff{
			FromBlock: 10,
			Protocols: map[engine.ProtocolID]differ.ProtocolDiff{"updated": {Schema: other, Data: 1}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema mismatch")
	})

	t.Run("nil patcher rejected", func(t *testing.T) {
		_, err := NewStatePatcher(&StatePatcherConfig{
			Patchers: map[engine.ProtocolSchema]PatcherFunc{schema: nil},
		})
		assert.Error(t, err)
	})
}

func TestStatePatcherWithExchangePools(t *testing.T) {
	p, err := NewStatePatcher(&StatePatcherConfig{
		Patchers: map[engine.ProtocolSchema]PatcherFunc{
			exchange.Schema: func(prev, diff any) (any, error) {
				var pools []exchange.PoolView
				if prev != nil {
					pools = prev.([]exchange.PoolView)
				}
				return exchange.Patcher(pools, diff.(exchange.ExchangeSystemDiff))
			},
		},
	})
	require.NoError(t, err)

	pool := exchange.PoolView{ID: 1, NativeReserve: big.NewInt(1), TokenReserve: big.NewInt(2), TotalSupply: big.NewInt(1)}
	oldState := makeState(1, map[engine.ProtocolID]engine.ProtocolState{
		exchange.ProtocolID: {Schema: exchange.Schema, Data: []exchange.PoolView{pool}},
	})

	updated := pool
	updated.NativeReserve = big.NewInt(5)
	newState, err := p.Patch(oldState, &differ.StateDiff{
		FromBlock: 1,
		ToBlock:   engine.BlockSummary{Number: big.NewInt(2)},
		Protocols: map[engine.ProtocolID]differ.ProtocolDiff{
			exchange.ProtocolID: {Schema: exchange.Schema, Data: exchange.ExchangeSystemDiff{Updates: []exchange.PoolView{updated}}},
		},
	})
	require.NoError(t, err)

	pools := newState.Protocols[exchange.ProtocolID].Data.([]exchange.PoolView)
	require.Len(t, pools, 1)
	assert.Equal(t, int64(5), pools[0].NativeReserve.Int64())
	assert.Equal(t, int64(1), oldState.Protocols[exchange.ProtocolID].Data.([]exchange.PoolView)[0].NativeReserve.Int64())
}

package differ

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-dex/engine"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiffer(t *testing.T) *StateDiffer {
	t.Helper()
	d, err := NewStateDiffer(&StateDifferConfig{
		ProtocolDiffers: map[engine.ProtocolSchema]ProtocolDiffer{
			exchange.Schema: func(old, new any) (any, error) {
				return exchange.Differ(old.([]exchange.PoolView), new.([]exchange.PoolView)), nil
			},
		},
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d
}

func poolState(height int64, pools ...exchange.PoolView) *engine.State {
	return &engine.State{
		Timestamp: uint64(height * 10),
		Block:     engine.BlockSummary{Number: big.NewInt(height)},
		Protocols: map[engine.ProtocolID]engine.ProtocolState{
			exchange.ProtocolID: {Schema: exchange.Schema, Data: pools},
		},
	}
}

func TestNewStateDifferValidation(t *testing.T) {
	_, err := NewStateDiffer(&StateDifferConfig{Logger: slog.Default()})
	assert.Error(t, err)
	_, err = NewStateDiffer(&StateDifferConfig{Registry: prometheus.NewRegistry()})
	assert.Error(t, err)
	_, err = NewStateDiffer(&StateDifferConfig{
		ProtocolDiffers: map[engine.ProtocolSchema]ProtocolDiffer{exchange.Schema: nil},
		Registry:        prometheus.NewRegistry(),
		Logger:          slog.Default(),
	})
	assert.Error(t, err)
}

func TestStateDiffer(t *testing.T) {
	d := newTestDiffer(t)
	p1 := exchange.PoolView{ID: 1, NativeReserve: big.NewInt(10), TokenReserve: big.NewInt(20), TotalSupply: big.NewInt(10)}

	t.Run("changed protocol is reported", func(t *testing.T) {
		p1b := p1
		p1b.TokenReserve = big.NewInt(19)
		diff, err := d.Diff(poolState(1, p1), poolState(2, p1b))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), diff.FromBlock)
		assert.Equal(t, int64(2), diff.ToBlock.Number.Int64())
		assert.Equal(t, uint64(20), diff.Timestamp)

		pd, ok := diff.Protocols[exchange.ProtocolID]
		require.True(t, ok)
		data := pd.Data.(exchange.ExchangeSystemDiff)
		require.Len(t, data.Updates, 1)
		assert.Equal(t, int64(19), data.Updates[0].TokenReserve.Int64())
	})

	t.Run("unchanged protocol is omitted", func(t *testing.T) {
		diff, err := d.Diff(poolState(1, p1), poolState(2, p1))
		require.NoError(t, err)
		assert.Empty(t, diff.Protocols)
	})

	t.Run("states with errors are rejected", func(t *testing.T) {
		bad := poolState(2, p1)
		bad.Protocols[exchange.ProtocolID] = engine.ProtocolState{Schema: exchange.Schema, Error: "boom"}
		_, err := d.Diff(poolState(1, p1), bad)
		assert.Error(t, err)
	})

	t.Run("protocol missing from old state", func(t *testing.T) {
		old := &engine.State{Block: engine.BlockSummary{Number: big.NewInt(1)}}
		_, err := d.Diff(old, poolState(2, p1))
		assert.Error(t, err)
	})

	t.Run("unregistered schema", func(t *testing.T) {
		mk := func(h int64) *engine.State {
			return &engine.State{
				Block:     engine.BlockSummary{Number: big.NewInt(h)},
				Protocols: map[engine.ProtocolID]engine.ProtocolState{"x": {Schema: "unknown"}},
			}
		}
		_, err := d.Diff(mk(1), mk(2))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no differ registered")
	})
}

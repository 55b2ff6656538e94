package storage

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	pdb, err := OpenPebble("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { pdb.Close() })

	return map[string]KV{
		"memory": NewMemory(),
		"pebble": pdb,
	}
}

func TestKV(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get([]byte("missing"))
			assert.ErrorIs(t, err, ErrNotFound)

			b := kv.NewBatch()
			require.NoError(t, b.Set([]byte("a"), []byte{1}))
			require.NoError(t, b.Set([]byte("b"), []byte{2}))

			// nothing is visible before commit
			_, err = kv.Get([]byte("a"))
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.Commit())

			v, err := kv.Get([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte{1}, v)

			// returned values are copies
			v[0] = 9
			v, err = kv.Get([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte{1}, v)

			b = kv.NewBatch()
			require.NoError(t, b.Delete([]byte("a")))
			require.NoError(t, b.Set([]byte("b"), []byte{3}))
			require.NoError(t, b.Commit())

			_, err = kv.Get([]byte("a"))
			assert.ErrorIs(t, err, ErrNotFound)
			v, err = kv.Get([]byte("b"))
			require.NoError(t, err)
			assert.Equal(t, []byte{3}, v)
		})
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	_, err := m.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.NewBatch().Commit(), ErrClosed)
}

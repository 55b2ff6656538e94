package host

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageKey(t *testing.T) {
	a := StorageKey([]byte("balance"), alice.Bytes())
	assert.Equal(t, a, StorageKey([]byte("balance"), alice.Bytes()))
	assert.NotEqual(t, a, StorageKey([]byte("balance"), bob.Bytes()))
	assert.NotEqual(t, a, StorageKey([]byte("allowance"), alice.Bytes()))
}

func TestSlotHelpers(t *testing.T) {
	rt := newTestRuntime(t, nil)
	ctx := context.Background()
	uintKey := StorageKey([]byte("u"))
	addrKey := StorageKey([]byte("a"))
	strKey := StorageKey([]byte("s"))

	_, err := rt.Execute(ctx, Message{From: alice, To: bob}, func(env Env) error {
		assert.True(t, LoadUint(env, uintKey).IsZero())
		assert.Equal(t, "", LoadString(env, strKey))

		require.NoError(t, StoreUint(env, uintKey, uint256.NewInt(123456)))
		require.NoError(t, StoreAddress(env, addrKey, alice))
		require.NoError(t, StoreString(env, strKey, "Token"))
		assert.Error(t, StoreString(env, strKey, strings.Repeat("x", MaxShortString+1)))
		return nil
	})
	require.NoError(t, err)

	err = rt.View(ctx, alice, bob, func(env Env) error {
		assert.Equal(t, uint256.NewInt(123456), LoadUint(env, uintKey))
		assert.Equal(t, alice, LoadAddress(env, addrKey))
		assert.Equal(t, "Token", LoadString(env, strKey))
		assert.Equal(t, common.Address{}, LoadAddress(env, StorageKey([]byte("missing"))))
		return nil
	})
	require.NoError(t, err)
}

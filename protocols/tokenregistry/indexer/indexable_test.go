package indexer

import (
	"testing"

	"github.com/defistate/defistate-dex/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexableTokenSystem(t *testing.T) {
	alphaAddress := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	betaAddress := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	alphaPool := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	betaPool := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	unknown := common.HexToAddress("0x1111111111111111111111111111111111111111")

	testTokens := []tokenregistry.Token{
		{ID: 1, Address: alphaAddress, Exchange: alphaPool, Name: "Alpha", Symbol: "ALP", Decimals: 18},
		{ID: 2, Address: betaAddress, Exchange: betaPool, Name: "Beta", Symbol: "BET", Decimals: 6},
	}

	indexer := New().Index(testTokens)
	require.NotNil(t, indexer)

	t.Run("Successful Lookups", func(t *testing.T) {
		alpha, found := indexer.GetByID(1)
		assert.True(t, found)
		assert.Equal(t, "ALP", alpha.Symbol)

		beta, found := indexer.GetByAddress(betaAddress)
		assert.True(t, found)
		assert.Equal(t, uint8(6), beta.Decimals)

		beta, found = indexer.GetByExchange(betaPool)
		assert.True(t, found)
		assert.Equal(t, betaAddress, beta.Address)
	})

	t.Run("Not Found Lookups", func(t *testing.T) {
		_, found := indexer.GetByID(999)
		assert.False(t, found)

		_, found = indexer.GetByAddress(unknown)
		assert.False(t, found)

		// a token address is not an exchange address
		_, found = indexer.GetByExchange(alphaAddress)
		assert.False(t, found)
	})

	t.Run("All Method", func(t *testing.T) {
		allTokens := indexer.All()
		require.Len(t, allTokens, 2)

		allTokens[0].Symbol = "MODIFIED"
		original, _ := indexer.GetByID(1)
		assert.Equal(t, "ALP", original.Symbol, "Modifying the returned slice should not affect the index")
	})

	t.Run("Edge Case - Nil Slice", func(t *testing.T) {
		nilIndexer := NewIndexableTokenSystem(nil)
		require.NotNil(t, nilIndexer)

		_, found := nilIndexer.GetByID(1)
		assert.False(t, found)

		allTokens := nilIndexer.All()
		assert.Len(t, allTokens, 0)
		assert.NotNil(t, allTokens, "All() should return an empty slice, not nil")
	})
}

package tokenregistry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a new Token for testing.
func newTestToken(id uint64, symbol string, exchange byte) Token {
	return Token{
		ID:       id,
		Address:  common.BytesToAddress([]byte{0x70, byte(id)}),
		Exchange: common.BytesToAddress([]byte{0xe0, exchange}),
		Name:     symbol + " Token",
		Symbol:   symbol,
		Decimals: 18,
	}
}

// Helper to find a token by ID in a slice, for testing assertions.
func findTokenByID(tokens []Token, id uint64) *Token {
	for i := range tokens {
		if tokens[i].ID == id {
			return &tokens[i]
		}
	}
	return nil
}

func TestPatcher(t *testing.T) {
	token1Old := newTestToken(1, "AAA", 1)
	token2Old := newTestToken(2, "BBB", 2)
	token3Old := newTestToken(3, "CCC", 3)

	initialState := []Token{token3Old, token1Old, token2Old}

	t.Run("should handle only additions", func(t *testing.T) {
		token4New := newTestToken(4, "DDD", 4)
		diff := TokenSystemDiff{
			Additions: []Token{token4New},
		}

		newState, err := Patcher(initialState, diff)
		require.NoError(t, err)

		assert.Len(t, newState, 4, "Should have 4 tokens after addition")
		newToken := findTokenByID(newState, 4)
		require.NotNil(t, newToken)
		assert.Equal(t, "DDD", newToken.Symbol)
	})

	t.Run("should handle only deletions", func(t *testing.T) {
		diff := TokenSystemDiff{
			Deletions: []uint64{2},
		}

		newState, err := Patcher(initialState, diff)
		require.NoError(t, err)

		assert.Len(t, newState, 2, "Should have 2 tokens after deletion")
		assert.Nil(t, findTokenByID(newState, 2), "Token 2 should be deleted")
	})

	t.Run("should handle only updates", func(t *testing.T) {
		token1Updated := newTestToken(1, "AAA2", 1)
		diff := TokenSystemDiff{
			Updates: []Token{token1Updated},
		}

		newState, err := Patcher(initialState, diff)
		require.NoError(t, err)

		assert.Len(t, newState, 3, "Should still have 3 tokens after update")
		updatedToken := findTokenByID(newState, 1)
		require.NotNil(t, updatedToken)
		assert.Equal(t, "AAA2", updatedToken.Symbol)
	})

	t.Run("should handle a mix of operations", func(t *testing.T) {
		// Add token 4, update token 2, delete token 3
		token4New := newTestToken(4, "DDD", 4)
		token2Updated := newTestToken(2, "BBB", 9)
		diff := TokenSystemDiff{
			Additions: []Token{token4New},
			Updates:   []Token{token2Updated},
			Deletions: []uint64{3},
		}

		newState, err := Patcher(initialState, diff)
		require.NoError(t, err)

		assert.Len(t, newState, 3, "Final state should have 3 tokens")
		assert.NotNil(t, findTokenByID(newState, 4))
		updatedToken := findTokenByID(newState, 2)
		require.NotNil(t, updatedToken)
		assert.Equal(t, token2Updated.Exchange, updatedToken.Exchange)
		assert.Nil(t, findTokenByID(newState, 3))
		assert.NotNil(t, findTokenByID(newState, 1))
	})

	t.Run("should handle an empty diff", func(t *testing.T) {
		newState, err := Patcher(initialState, TokenSystemDiff{})
		require.NoError(t, err)

		assert.ElementsMatch(t, initialState, newState, "State should be unchanged for an empty diff")
	})

	t.Run("result is ordered by id", func(t *testing.T) {
		newState, err := Patcher(initialState, TokenSystemDiff{})
		require.NoError(t, err)
		assert.Equal(t, []Token{token1Old, token2Old, token3Old}, newState)
		assert.Equal(t, token3Old, initialState[0], "prevState must not be reordered")
	})
}

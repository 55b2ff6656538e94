package calculator

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/defistate/defistate-dex/safemath"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maxUint = new(uint256.Int).SetAllOne()

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestGetInputPrice(t *testing.T) {
	testCases := []struct {
		name           string
		amountIn       *uint256.Int
		reserveIn      *uint256.Int
		reserveOut     *uint256.Int
		expectedAmount *uint256.Int
		expectedErr    error
	}{
		{
			name:           "seeded pool, native in",
			amountIn:       u(100_000),
			reserveIn:      u(1_000_000),
			reserveOut:     u(500_000),
			expectedAmount: u(45_454),
		},
		{
			name:           "18 decimal reserves",
			amountIn:       uint256.MustFromDecimal("1000000000000000000"),
			reserveIn:      uint256.MustFromDecimal("100000000000000000000"),
			reserveOut:     uint256.MustFromDecimal("50000000000000000000000"),
			expectedAmount: uint256.MustFromDecimal("495049504950495049504"),
		},
		{
			name:           "dust rounds to zero",
			amountIn:       u(1),
			reserveIn:      u(1),
			reserveOut:     u(1),
			expectedAmount: u(0),
		},
		{
			name:           "zero input",
			amountIn:       u(0),
			reserveIn:      u(10),
			reserveOut:     u(10),
			expectedAmount: u(0),
		},
		{
			name:        "zero input reserve",
			amountIn:    u(10),
			reserveIn:   u(0),
			reserveOut:  u(10),
			expectedErr: ErrInvalidReserve,
		},
		{
			name:        "zero output reserve",
			amountIn:    u(10),
			reserveIn:   u(10),
			reserveOut:  u(0),
			expectedErr: ErrInvalidReserve,
		},
		{
			name:        "reserve plus input overflows",
			amountIn:    u(1),
			reserveIn:   maxUint,
			reserveOut:  u(10),
			expectedErr: safemath.ErrArithmeticOverflow,
		},
		{
			name:           "product wider than 256 bits",
			amountIn:       new(uint256.Int).Rsh(maxUint, 1),
			reserveIn:      new(uint256.Int).Rsh(maxUint, 1),
			reserveOut:     maxUint,
			expectedAmount: new(uint256.Int).Rsh(maxUint, 1),
		},
		{
			name:        "nil amount",
			reserveIn:   u(10),
			reserveOut:  u(10),
			expectedErr: ErrNilAmount,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GetInputPrice(tc.amountIn, tc.reserveIn, tc.reserveOut)
			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedAmount.Dec(), got.Dec())
		})
	}
}

func TestGetOutputPrice(t *testing.T) {
	testCases := []struct {
		name           string
		amountOut      *uint256.Int
		reserveIn      *uint256.Int
		reserveOut     *uint256.Int
		expectedAmount *uint256.Int
		expectedErr    error
	}{
		{
			name:           "rounds up on exact division",
			amountOut:      u(1000),
			reserveIn:      u(10_000),
			reserveOut:     u(2000),
			expectedAmount: u(10_001),
		},
		{
			name:           "rounds up on inexact division",
			amountOut:      u(45_454),
			reserveIn:      u(1_000_000),
			reserveOut:     u(500_000),
			expectedAmount: u(99_999),
		},
		{
			name:           "zero output still costs one unit",
			amountOut:      u(0),
			reserveIn:      u(10),
			reserveOut:     u(10),
			expectedAmount: u(1),
		},
		{
			name:        "output equals reserve",
			amountOut:   u(2000),
			reserveIn:   u(10_000),
			reserveOut:  u(2000),
			expectedErr: ErrInsufficientReserve,
		},
		{
			name:        "output exceeds reserve",
			amountOut:   u(2001),
			reserveIn:   u(10_000),
			reserveOut:  u(2000),
			expectedErr: ErrInsufficientReserve,
		},
		{
			name:        "zero input reserve",
			amountOut:   u(1),
			reserveIn:   u(0),
			reserveOut:  u(2000),
			expectedErr: ErrInvalidReserve,
		},
		{
			name:        "round up overflows",
			amountOut:   u(1),
			reserveIn:   maxUint,
			reserveOut:  u(2),
			expectedErr: safemath.ErrArithmeticOverflow,
		},
		{
			name:        "quotient overflows",
			amountOut:   u(2),
			reserveIn:   maxUint,
			reserveOut:  u(3),
			expectedErr: safemath.ErrArithmeticOverflow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GetOutputPrice(tc.amountOut, tc.reserveIn, tc.reserveOut)
			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedAmount.Dec(), got.Dec())
		})
	}
}

func TestLiquidityMath(t *testing.T) {
	t.Run("deposit rounds token requirement up", func(t *testing.T) {
		got, err := DepositTokenAmount(u(100), u(1000), u(500))
		require.NoError(t, err)
		assert.Equal(t, u(51), got)
	})

	t.Run("minted shares round down", func(t *testing.T) {
		got, err := MintedShares(u(333), u(1000), u(999))
		require.NoError(t, err)
		assert.Equal(t, u(332), got)
	})

	t.Run("withdrawal rounds both sides down", func(t *testing.T) {
		native, token, err := WithdrawalAmounts(u(100), u(1100), u(551), u(1100))
		require.NoError(t, err)
		assert.Equal(t, u(100), native)
		assert.Equal(t, u(50), token)
	})

	t.Run("zero reserves", func(t *testing.T) {
		_, err := DepositTokenAmount(u(1), u(0), u(1))
		assert.ErrorIs(t, err, ErrInvalidReserve)
		_, err = MintedShares(u(1), u(0), u(1))
		assert.ErrorIs(t, err, ErrInvalidReserve)
		_, _, err = WithdrawalAmounts(u(1), u(1), u(1), u(0))
		assert.ErrorIs(t, err, ErrInvalidReserve)
	})
}

func TestSimulateSwap(t *testing.T) {
	reserveIn, reserveOut := u(1_000_000), u(500_000)
	out, newIn, newOut, err := SimulateSwap(u(100_000), reserveIn, reserveOut)
	require.NoError(t, err)
	assert.Equal(t, u(45_454), out)
	assert.Equal(t, u(1_100_000), newIn)
	assert.Equal(t, u(454_546), newOut)

	// inputs untouched
	assert.Equal(t, u(1_000_000), reserveIn)
	assert.Equal(t, u(500_000), reserveOut)
}

func TestGetExchangeRate(t *testing.T) {
	rate, err := GetExchangeRate(u(1_000_000), u(500_000), 0)
	require.NoError(t, err)
	// 10_000 in buys floor(10_000*500_000/1_010_000) = 4950
	assert.Equal(t, u(0), rate)

	rate, err = GetExchangeRate(u(1_000_000), u(500_000), 6)
	require.NoError(t, err)
	assert.Equal(t, u(495_000), rate)

	_, err = GetExchangeRate(u(99), u(500_000), 0)
	assert.ErrorIs(t, err, ErrReserveTooSmall)
	_, err = GetExchangeRate(nil, u(500_000), 0)
	assert.ErrorIs(t, err, ErrNilAmount)
}

func toBig(v *uint256.Int) *big.Int { return v.ToBig() }

// The properties below are checked against randomly drawn pools. Values stay
// under 2^64 so the reference products fit comfortably in big.Int math.
func TestPricingProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		reserveIn := u(rng.Uint64()>>1 + 1)
		reserveOut := u(rng.Uint64()>>1 + 1)
		amountIn := u(rng.Uint64() >> 1)

		out, err := GetInputPrice(amountIn, reserveIn, reserveOut)
		require.NoError(t, err)
		require.True(t, out.Lt(reserveOut), "output must stay below the reserve")

		before := new(big.Int).Mul(toBig(reserveIn), toBig(reserveOut))
		after := new(big.Int).Mul(
			new(big.Int).Add(toBig(reserveIn), toBig(amountIn)),
			new(big.Int).Sub(toBig(reserveOut), toBig(out)),
		)
		require.True(t, after.Cmp(before) >= 0, "pool product must not shrink")

		if out.IsZero() {
			continue
		}
		in, err := GetOutputPrice(out, reserveIn, reserveOut)
		require.NoError(t, err)

		// Buying back the same output never costs less than one unit above
		// the ideal curve price, and is bounded by the original input unless
		// the curve divides exactly.
		exact := new(big.Int).Mod(
			new(big.Int).Mul(toBig(amountIn), toBig(reserveOut)),
			new(big.Int).Add(toBig(reserveIn), toBig(amountIn)),
		).Sign() == 0
		if exact {
			require.Equal(t, new(uint256.Int).AddUint64(amountIn, 1), in)
		} else {
			require.False(t, in.Gt(amountIn), "round trip favoured the trader: in=%s out=%s", amountIn, in)
		}

		// paying the quoted input always buys at least the requested output
		bought, err := GetInputPrice(in, reserveIn, reserveOut)
		require.NoError(t, err)
		require.False(t, bought.Lt(out))
	}
}

func BenchmarkGetInputPrice(b *testing.B) {
	amountIn := uint256.MustFromDecimal("1000000000000000000")
	reserveIn := uint256.MustFromDecimal("100000000000000000000")
	reserveOut := uint256.MustFromDecimal("50000000000000000000000")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = GetInputPrice(amountIn, reserveIn, reserveOut)
	}
}

func BenchmarkGetOutputPrice(b *testing.B) {
	amountOut := uint256.MustFromDecimal("1000000000000000000")
	reserveIn := uint256.MustFromDecimal("100000000000000000000")
	reserveOut := uint256.MustFromDecimal("50000000000000000000000")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = GetOutputPrice(amountOut, reserveIn, reserveOut)
	}
}

func BenchmarkSimulateSwap(b *testing.B) {
	amountIn := uint256.MustFromDecimal("1000000000000000000")
	reserveIn := uint256.MustFromDecimal("100000000000000000000")
	reserveOut := uint256.MustFromDecimal("50000000000000000000000")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, _, _ = SimulateSwap(amountIn, reserveIn, reserveOut)
	}
}

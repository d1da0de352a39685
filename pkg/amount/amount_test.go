package amount_test

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankfair_client/pkg/amount"
	"bankfair_client/pkg/txerr"
)

func bigFrom(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad test literal %q", s)
	return v
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func TestToDisplay(t *testing.T) {
	cases := []struct {
		name      string
		scaled    string
		decimals  int32
		precision int32
		want      string
	}{
		{"zero", "0", 18, 2, "0.00"},
		{"one wei above one token", "1000000000000000001", 18, 2, "1.00"},
		{"grouping", "1000000000000000000000", 18, 2, "1,000.00"},
		{"round half up", "1005000000000000000", 18, 2, "1.01"},
		{"round down below half", "1004999999999999999", 18, 2, "1.00"},
		{"six decimals", "123456789", 6, 2, "123.46"},
		{"no decimals", "1234567", 0, 2, "1,234,567.00"},
		{"zero precision", "2500000", 6, 0, "3"},
		{"huge value", "115792089237316195423570985008687907853269984665640564039457584007913129639935", 0, 0,
			"115,792,089,237,316,195,423,570,985,008,687,907,853,269,984,665,640,564,039,457,584,007,913,129,639,935"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := amount.ToDisplay(bigFrom(t, tc.scaled), tc.decimals, tc.precision)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToDisplay_NilIsZero(t *testing.T) {
	assert.Equal(t, "0.00", amount.ToDisplay(nil, 18, 2))
}

func TestToScaled(t *testing.T) {
	got, err := amount.ToScaled("1,000.50", 18)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(new(big.Int).Mul(big.NewInt(100050), pow10(16))))

	got, err = amount.ToScaled("0.1234567", 6)
	require.NoError(t, err)
	assert.Equal(t, "123456", got.String(), "residual fraction is truncated")

	got, err = amount.ToScaled(".5", 2)
	require.NoError(t, err)
	assert.Equal(t, "50", got.String())

	got, err = amount.ToScaled("7.", 2)
	require.NoError(t, err)
	assert.Equal(t, "700", got.String())
}

func TestToScaled_Rejects(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "-1", "1e5", "1.2.3", "0x10"} {
		_, err := amount.ToScaled(in, 18)
		require.Error(t, err, "input %q", in)
		assert.ErrorIs(t, err, txerr.ErrInvalidAmount, "input %q", in)
	}
}

func TestRoundTrip_BoundedByPrecision(t *testing.T) {
	values := []string{"0", "1", "999", "1000000000000000001", "123456789012345678901234567890", "4999999999999999"}
	for d := int32(0); d <= 18; d++ {
		for _, raw := range values {
			v := bigFrom(t, raw)
			shown := amount.ToDisplay(v, d, amount.DisplayPrecision)
			back, err := amount.ToScaled(shown, d)
			require.NoError(t, err)

			diff := new(big.Int).Abs(new(big.Int).Sub(back, v))
			bound := big.NewInt(1)
			if d > amount.DisplayPrecision {
				bound = pow10(int(d - amount.DisplayPrecision))
			}
			assert.True(t, diff.Cmp(bound) <= 0, "d=%d v=%s shown=%s back=%s", d, raw, shown, back)
		}
	}
}

func TestCompare_AgreesWithScaled(t *testing.T) {
	pairs := [][2]string{
		{"1,000.00", "1000"},
		{"500.00", "1,000.00"},
		{"1000.01", "1,000.00"},
		{"0", ""},
		{"0.10", "0.1"},
	}
	for _, p := range pairs {
		got, err := amount.Compare(p[0], p[1])
		require.NoError(t, err)

		a, err := amount.Parse(p[0])
		require.NoError(t, err)
		b, err := amount.Parse(p[1])
		require.NoError(t, err)
		want := amount.DecimalToScaled(a, 18).Cmp(amount.DecimalToScaled(b, 18))
		assert.Equal(t, want, got, "%q vs %q", p[0], p[1])

		self, err := amount.Compare(p[0], p[0])
		require.NoError(t, err)
		assert.Zero(t, self)
	}
}

func TestScaled_CmpNormalisesDecimals(t *testing.T) {
	a := amount.NewScaled(big.NewInt(1_000_000), 6)
	b := amount.NewScaled(pow10(18), 18)
	assert.Zero(t, a.Cmp(b))
	assert.Equal(t, "1.00", a.Display(2))
}

func TestTruncate(t *testing.T) {
	d, err := amount.Truncate("12.349", 2)
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.34")))
}

func TestDurations(t *testing.T) {
	assert.Equal(t, "30", amount.DurationToDays(big.NewInt(30*amount.DaySeconds), 0))
	assert.Equal(t, "1.50", amount.DurationToDays(big.NewInt(amount.DaySeconds*3/2), 2))
	// 172713s is 1.999 days
	assert.Equal(t, "1", amount.DurationToDays(big.NewInt(172713), 0))
	assert.Equal(t, "1.99", amount.DurationToDays(big.NewInt(172713), 2))
	assert.Equal(t, "2592000", amount.DaysToSeconds(30).String())
	assert.True(t, amount.SecondsToDays(big.NewInt(amount.DaySeconds)).Equal(decimal.NewFromInt(1)))
}

func TestPercentToDisplay(t *testing.T) {
	assert.Equal(t, "12.50", amount.PercentToDisplay(big.NewInt(1250), 2, 2))
}

func TestFromEventData(t *testing.T) {
	word := make([]byte, 64)
	word[31] = 0x2a
	word[63] = 0xff
	assert.Equal(t, int64(42), amount.FromEventData(word).Int64())
	assert.Equal(t, int64(0), amount.FromEventData(nil).Int64())
}

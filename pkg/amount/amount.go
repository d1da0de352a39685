// Package amount converts between scaled ledger integers and decimal display
// strings. Nothing in here touches float64: ledger values are money and are
// carried as *big.Int or decimal.Decimal end to end.
package amount

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"bankfair_client/pkg/txerr"
)

const (
	// DisplayPrecision is the number of fractional digits shown to the user.
	DisplayPrecision int32 = 2
	// DaySeconds converts ledger durations to days.
	DaySeconds = 86400

	groupSeparator = ","
)

var (
	numericPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)
	daySeconds     = decimal.NewFromInt(DaySeconds)
)

// Scaled is an integer in the ledger's native unit paired with its scale.
type Scaled struct {
	Value    *big.Int
	Decimals int32
}

func NewScaled(v *big.Int, decimals int32) Scaled {
	if v == nil {
		v = new(big.Int)
	}
	return Scaled{Value: v, Decimals: decimals}
}

// Decimal returns the human quantity, exactly.
func (s Scaled) Decimal() decimal.Decimal {
	if s.Value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(s.Value, -s.Decimals)
}

// Cmp compares two scaled amounts after normalising them to the same scale.
func (s Scaled) Cmp(o Scaled) int {
	return s.Decimal().Cmp(o.Decimal())
}

func (s Scaled) Display(precision int32) string {
	return ToDisplay(s.Value, s.Decimals, precision)
}

// ToDisplay divides scaled by 10^decimals, rounds half-up to precision
// fractional digits and groups the integer part.
func ToDisplay(scaled *big.Int, decimals, precision int32) string {
	if scaled == nil {
		scaled = new(big.Int)
	}
	return Format(decimal.NewFromBigInt(scaled, -decimals), precision)
}

// Format renders d rounded half-up to precision with grouping separators.
func Format(d decimal.Decimal, precision int32) string {
	if precision < 0 {
		precision = 0
	}
	// Round is half away from zero, which is half-up for every value the
	// ledger can produce.
	fixed := d.Round(precision).StringFixed(precision)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return sign + fixed
	}
	out := sign + humanize.BigComma(whole)
	if fracPart != "" {
		out += "." + fracPart
	}
	return out
}

// Parse strips grouping separators and returns the exact decimal value.
// Empty input is zero. Negative or non-numeric input fails with
// txerr.ErrInvalidAmount.
func Parse(display string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ReplaceAll(display, groupSeparator, ""))
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.HasPrefix(s, "-") {
		return decimal.Zero, txerr.InvalidAmount("negative amount %q", display)
	}
	if !numericPattern.MatchString(s) {
		return decimal.Zero, txerr.InvalidAmount("not a number %q", display)
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, txerr.InvalidAmount("not a number %q", display)
	}
	return d, nil
}

// ToScaled converts a display amount to ledger units, truncating anything
// below integer resolution.
func ToScaled(display string, decimals int32) (*big.Int, error) {
	if strings.TrimSpace(strings.ReplaceAll(display, groupSeparator, "")) == "" {
		return nil, txerr.InvalidAmount("empty amount")
	}
	d, err := Parse(display)
	if err != nil {
		return nil, err
	}
	return DecimalToScaled(d, decimals), nil
}

// DecimalToScaled shifts d by decimals and drops the residual fraction.
func DecimalToScaled(d decimal.Decimal, decimals int32) *big.Int {
	return d.Shift(decimals).BigInt()
}

// Truncate cuts display down to precision fractional digits. This is the
// value submitted to the ledger, so what the user saw is what gets sent.
func Truncate(display string, precision int32) (decimal.Decimal, error) {
	d, err := Parse(display)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Truncate(precision), nil
}

// PercentToDisplay renders a scaled percentage (e.g. APR) with the
// contract's percent decimals.
func PercentToDisplay(scaled *big.Int, percentDecimals, precision int32) string {
	return ToDisplay(scaled, percentDecimals, precision)
}

// SecondsToDays returns the exact number of days in seconds.
func SecondsToDays(seconds *big.Int) decimal.Decimal {
	if seconds == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(seconds, 0).Div(daySeconds)
}

// DurationToDays renders seconds as days, truncated to precision.
func DurationToDays(seconds *big.Int, precision int32) string {
	return Format(SecondsToDays(seconds).Truncate(precision), precision)
}

// DaysToSeconds is the inverse used when submitting a loan duration.
func DaysToSeconds(days int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(days), big.NewInt(DaySeconds))
}

// Compare orders two display amounts. Empty input compares as zero.
func Compare(a, b string) (int, error) {
	da, err := Parse(a)
	if err != nil {
		return 0, err
	}
	db, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return da.Cmp(db), nil
}

// FromEventData decodes the first 32-byte word of an event payload.
func FromEventData(data []byte) *big.Int {
	if len(data) > 32 {
		data = data[:32]
	}
	return new(big.Int).SetBytes(data)
}

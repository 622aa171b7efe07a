package calc

import (
	"math"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

const (
	// DefaultDecimals is used when a caller passes no decimals at all.
	DefaultDecimals = 18
	// MaxDecimals bounds the shift exponent so hostile input cannot allocate huge numbers.
	MaxDecimals = 255
	// literalMultiplierLen is the length above which a decimals string is a multiplier.
	literalMultiplierLen = 10
	// maxAmountExponent and maxAmountDigits bound parsed amounts. Shift, Div and
	// String cost grows with the exponent, so "1e40000000" must not get through.
	maxAmountExponent = 2 * MaxDecimals
	maxAmountDigits   = 80
)

func inBounds(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp > maxAmountExponent || exp < -maxAmountExponent {
		return false
	}
	return d.NumDigits() <= maxAmountDigits
}

// ParseAmount coerces a user or upstream value into a decimal.
// nil, "", non-numeric strings, NaN and Inf report false.
func ParseAmount(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return bounded(t)
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, false
		}
		return bounded(*t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return bounded(decimal.NewFromFloat(t))
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return bounded(decimal.NewFromFloat32(t))
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return decimal.Zero, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return bounded(d)
}

func bounded(d decimal.Decimal) (decimal.Decimal, bool) {
	if !inBounds(d) {
		return decimal.Zero, false
	}
	return d, true
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// ParseInt64 reads an integer query or flag value leniently: fractions are
// truncated, out-of-range values saturate and anything unparsable is 0.
func ParseInt64(v any) int64 {
	d, ok := ParseAmount(v)
	if !ok {
		return 0
	}
	d = d.Truncate(0)
	switch {
	case d.GreaterThan(maxInt64):
		return math.MaxInt64
	case d.LessThan(minInt64):
		return math.MinInt64
	}
	return d.IntPart()
}

// scaleFactor resolves the decimals argument shared by ScaleUp and ScaleDown.
// It returns either a shift exponent or a literal multiplier.
func scaleFactor(decimals any) (exp int32, multiplier *decimal.Decimal, ok bool) {
	if decimals == nil {
		return DefaultDecimals, nil, true
	}
	if s, isString := decimals.(string); isString {
		s = strings.TrimSpace(s)
		if s == "" {
			return DefaultDecimals, nil, true
		}
		if len(s) > literalMultiplierLen {
			m, ok := ParseAmount(s)
			if !ok {
				return 0, nil, false
			}
			return 0, &m, true
		}
	}

	d, parsed := ParseAmount(decimals)
	if !parsed || !d.IsInteger() || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(MaxDecimals)) {
		return 0, nil, false
	}
	return int32(d.IntPart()), nil, true
}

// ScaleUp converts display units into raw units: amount × 10^decimals.
// Invalid input yields zero.
func ScaleUp(amount any, decimals any) decimal.Decimal {
	a, ok := ParseAmount(amount)
	if !ok || a.IsZero() {
		return decimal.Zero
	}
	exp, multiplier, ok := scaleFactor(decimals)
	if !ok {
		return decimal.Zero
	}
	if multiplier != nil {
		return a.Mul(*multiplier)
	}
	return a.Shift(exp)
}

// ScaleDown converts raw units into display units: amount / 10^decimals.
func ScaleDown(amount any, decimals any) decimal.Decimal {
	a, ok := ParseAmount(amount)
	if !ok || a.IsZero() {
		return decimal.Zero
	}
	exp, multiplier, ok := scaleFactor(decimals)
	if !ok {
		return decimal.Zero
	}
	if multiplier != nil {
		if multiplier.IsZero() {
			return decimal.Zero
		}
		return a.Div(*multiplier)
	}
	return a.Shift(-exp)
}

// FormatWithPlaces truncates value toward zero to places and groups thousands.
// Trailing fractional zeros are dropped. Unparsable input yields "".
func FormatWithPlaces(value any, places int) string {
	d, ok := ParseAmount(value)
	if !ok {
		return SentinelEmpty
	}
	if places < 0 {
		places = 2
	}
	return groupThousands(d.RoundDown(int32(places)))
}

func groupThousands(d decimal.Decimal) string {
	neg := d.IsNegative()
	abs := d.Abs()

	intPart := abs.Truncate(0)
	frac := abs.Sub(intPart).String()

	var b strings.Builder
	if neg && !abs.IsZero() {
		b.WriteByte('-')
	}
	b.WriteString(humanize.BigComma(intPart.BigInt()))
	if frac != "0" {
		// frac is "0.xxx"
		b.WriteString(strings.TrimPrefix(frac, "0"))
	}
	return b.String()
}

// bigIntString is used by callers that need an integer raw amount for the wire.
func bigIntString(d decimal.Decimal) string {
	bi := d.Truncate(0).BigInt()
	if bi == nil {
		return new(big.Int).String()
	}
	return bi.String()
}

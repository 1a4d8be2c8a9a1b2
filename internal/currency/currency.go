package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts are integer counts of minor units (santim). Derived values are
// computed with arbitrary-precision decimals and rounded half-up back to
// an integer, never through binary floats.

const (
	Code   = "ETB"
	Symbol = "ETB"

	// DefaultTelebirrFeeRate is the Telebirr settlement fee (2.5%).
	DefaultTelebirrFeeRate = 0.025
)

var ErrArithmetic = errors.New("currency: arithmetic error")

var minorUnitsPerBirr = decimal.NewFromInt(100)

// Format renders minor units as a display amount, e.g. 129950 -> "ETB 1,299.50".
func Format(minorUnits int64) string {
	value := decimal.NewFromInt(minorUnits).Div(minorUnitsPerBirr)
	return Symbol + " " + groupThousands(value.StringFixed(2))
}

// Parse is the inverse of Format. It accepts an optional currency prefix and
// thousands separators and returns minor units, or ErrArithmetic when the
// input is not a representable amount.
func Parse(display string) (int64, error) {
	cleaned := strings.TrimSpace(display)
	cleaned = strings.TrimPrefix(cleaned, Symbol)
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrArithmetic)
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal amount", ErrArithmetic, display)
	}

	minor := value.Mul(minorUnitsPerBirr)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q has sub-minor-unit precision", ErrArithmetic, display)
	}
	return minor.IntPart(), nil
}

// Percentage returns rate*amount rounded half-up to an integer minor-unit
// value. Percentage(x, 0) is 0 for every x.
func Percentage(amount int64, rate float64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(rate)).
		Round(0).
		IntPart()
}

// Add sums two minor-unit amounts.
func Add(a, b int64) int64 {
	return decimal.NewFromInt(a).Add(decimal.NewFromInt(b)).IntPart()
}

// Subtract returns a minus b in minor units.
func Subtract(a, b int64) int64 {
	return decimal.NewFromInt(a).Sub(decimal.NewFromInt(b)).IntPart()
}

// Multiply scales a minor-unit amount by an arbitrary factor, rounded half-up.
func Multiply(amount int64, factor float64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(factor)).
		Round(0).
		IntPart()
}

// TelebirrFee computes the provider fee for a gross amount.
func TelebirrFee(amount int64, rate float64) int64 {
	if rate <= 0 {
		rate = DefaultTelebirrFeeRate
	}
	return Percentage(amount, rate)
}

// NetAmount returns the gross amount minus the provider fee.
func NetAmount(gross, fee int64) int64 {
	return Subtract(gross, fee)
}

// MajorUnits renders minor units as a plain "1299.50" string, the form the
// provider APIs expect in request payloads.
func MajorUnits(minorUnits int64) string {
	return decimal.NewFromInt(minorUnits).Div(minorUnitsPerBirr).StringFixed(2)
}

func groupThousands(fixed string) string {
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	negative := strings.HasPrefix(intPart, "-")
	if negative {
		intPart = intPart[1:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := b.String() + "." + fracPart
	if negative {
		out = "-" + out
	}
	return out
}

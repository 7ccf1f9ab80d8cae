package payments

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/p2pcore/internal/allocation"
)

var (
	// ErrAmountPrecision rejects amounts finer than the currency's minor unit.
	ErrAmountPrecision = errors.New("amount has more decimal places than the currency allows")
	// ErrAmountRange rejects negative or overflowing amounts.
	ErrAmountRange = errors.New("amount out of range")
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ToMinor converts a major-unit amount such as 1500.50 to minor units.
func ToMinor(amount decimal.Decimal, exponent int32) (allocation.Money, error) {
	if amount.IsNegative() {
		return 0, ErrAmountRange
	}
	minor := amount.Shift(exponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrAmountPrecision
	}
	if minor.GreaterThan(maxMinor) {
		return 0, ErrAmountRange
	}
	return minor.IntPart(), nil
}

// FormatMinor renders minor units in major units with a fixed scale.
func FormatMinor(amount allocation.Money, exponent int32) string {
	return decimal.New(amount, -exponent).StringFixed(exponent)
}

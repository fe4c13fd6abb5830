package donations

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
)

// ToCents converts a positive amount with at most two decimal places.
func ToCents(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !amount.Equal(amount.Truncate(2)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	cents := amount.Shift(2)
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(maxCents)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount out of range")
	}
	return cents.IntPart(), nil
}

// FromCents renders a cents total as a two-place decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// numeric(12,2) upper bound.
const maxCents = 99_999_999_999

package checkout

import (
	"math"

	"github.com/pkg/errors"
)

// MinorUnits converts a stored decimal major-currency amount to integer minor
// units. The stored amount is always a major-unit decimal; the one supported
// conversion is round(amount * 100), half away from zero. Records that do not
// normalize to a finite positive integer are rejected rather than guessed at.
func MinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, errors.Wrapf(ErrInvalidAmount, "amount %v is not finite", amount)
	}

	minor := math.Round(amount * 100)
	if minor <= 0 || minor > math.MaxInt64 {
		return 0, errors.Wrapf(ErrInvalidAmount, "amount %v does not normalize to positive minor units", amount)
	}

	return int64(minor), nil
}

package ledger

import (
	"math/bits"

	dErrors "tranche/pkg/domain-errors"
)

// addChecked returns a+b or an invariant error on uint64 overflow.
func addChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, dErrors.Newf(dErrors.CodeInvariantViolation, "addition overflow: %d + %d", a, b)
	}
	return sum, nil
}

// subChecked returns a-b or an invariant error on underflow.
func subChecked(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, dErrors.Newf(dErrors.CodeInvariantViolation, "subtraction underflow: %d - %d", a, b)
	}
	return diff, nil
}

// mulDiv computes a*b/c with a 128-bit intermediate so the product cannot
// overflow, truncating toward zero. Multiplying before dividing keeps
// pro-rata payouts exact up to the final truncation.
func mulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, dErrors.New(dErrors.CodeInvariantViolation, "division by zero")
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, dErrors.Newf(dErrors.CodeInvariantViolation, "quotient overflow: %d * %d / %d", a, b, c)
	}
	quo, _ := bits.Div64(hi, lo, c)
	return quo, nil
}

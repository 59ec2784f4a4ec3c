// Package safe provides overflow-checked arithmetic on 256-bit token amounts.
package safe

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when a result does not fit in 256 bits.
var ErrOverflow = errors.New("arithmetic overflow")

// ErrUnderflow is returned when a subtraction would go below zero.
var ErrUnderflow = errors.New("arithmetic underflow")

// ErrDivisionByZero is returned by SafeMulDiv for a zero divisor.
var ErrDivisionByZero = errors.New("division by zero")

// SafeAdd returns a+b. Inputs are never modified.
func SafeAdd(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// SafeSub returns a-b.
func SafeSub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// SafeMul returns a*b.
func SafeMul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// SafeMulDiv returns floor(a*b/d) using a 512-bit intermediate product,
// so only a quotient wider than 256 bits overflows.
func SafeMulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// OrZero returns x, or a fresh zero value when x is nil.
func OrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

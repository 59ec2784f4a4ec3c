// Package units converts between human-readable token amounts and base units.
package units

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// EtherDecimals is the base-unit exponent used by every paper token.
const EtherDecimals int32 = 18

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more decimal places than the token supports")
	ErrTooLarge       = errors.New("amount does not fit in 256 bits")
)

// ParseUnits parses a decimal string such as "1.5" into base units.
func ParseUnits(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d, decimals)
}

// FromDecimal converts a decimal amount into base units.
func FromDecimal(d decimal.Decimal, decimals int32) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, ErrTooPrecise
	}
	v, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, ErrTooLarge
	}
	return v, nil
}

// FormatUnits renders base units as a decimal string, e.g. 1500000000000000000 -> "1.5".
func FormatUnits(v *uint256.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}

// Ether parses s with 18 decimals and panics on malformed input.
// Intended for constants and tests.
func Ether(s string) *uint256.Int {
	v, err := ParseUnits(s, EtherDecimals)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatEther renders an 18-decimal amount.
func FormatEther(v *uint256.Int) string {
	return FormatUnits(v, EtherDecimals)
}

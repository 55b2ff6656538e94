// Package safemath provides checked 256-bit unsigned arithmetic. Every helper
// allocates a fresh result and never mutates its operands.
package safemath

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow = errors.New("arithmetic underflow")
	ErrDivisionByZero      = errors.New("division by zero")
)

// Add returns x + y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// Sub returns x - y.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrArithmeticUnderflow
	}
	return z, nil
}

// Mul returns x * y.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// Div returns floor(x / y).
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(x, y), nil
}

// MulDiv returns floor(x * y / d) using a 512-bit intermediate product, so it
// only fails when the final quotient does not fit in 256 bits.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// Inc returns x + 1.
func Inc(x *uint256.Int) (*uint256.Int, error) {
	return Add(x, uint256.NewInt(1))
}

/*
This file contains common utility functions for converting between different numeric types,
particularly for SDK math operations, oracle price exponents and amount bounds.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// MaxAmountBits bounds every externally supplied amount. Keeping inputs at 128 bits leaves
// room for the products computed downstream without reaching the 256-bit limit of sdkmath.Int.
const MaxAmountBits = 128

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrAmountTooLarge   = errors.New("amount exceeds 128 bits")
	ErrOverflow         = errors.New("arithmetic overflow")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrInvalidPrice     = errors.New("price is invalid")
	ErrDivisionByZero   = errors.New("division by zero")
)

var (
	decScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(sdkmath.LegacyPrecision), nil)
	// half the LegacyDec range, leaving headroom for the rounding of the real operation
	maxDecRepr = new(big.Int).Mul(new(big.Int).Lsh(big.NewInt(1), sdkmath.MaxBitLen-1), decScale)
)

// ValidateAmount checks that an amount is set, non-negative and within MaxAmountBits.
func ValidateAmount(amount sdkmath.Int) error {
	if amount.IsNil() {
		return ErrAmountNil
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrAmountNegative, amount)
	}
	if amount.BigInt().BitLen() > MaxAmountBits {
		return fmt.Errorf("%w: %s", ErrAmountTooLarge, amount)
	}
	return nil
}

// CheckedAdd adds two amounts, returning ErrOverflow instead of panicking past sdkmath.MaxBitLen.
func CheckedAdd(a, b sdkmath.Int) (sdkmath.Int, error) {
	sum := new(big.Int).Add(a.BigInt(), b.BigInt())
	if sum.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return sdkmath.NewIntFromBigInt(sum), nil
}

// AddDecChecked returns a + b, or ErrOverflow where LegacyDec.Add would panic.
func AddDecChecked(a, b sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	repr := new(big.Int).Add(a.BigInt(), b.BigInt())
	if repr.CmpAbs(maxDecRepr) >= 0 {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return a.Add(b), nil
}

// MulIntChecked returns d * i, or ErrOverflow where LegacyDec.MulInt would panic.
func MulIntChecked(d sdkmath.LegacyDec, i sdkmath.Int) (sdkmath.LegacyDec, error) {
	repr := new(big.Int).Mul(d.BigInt(), i.BigInt())
	if repr.CmpAbs(maxDecRepr) >= 0 {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s * %s", ErrOverflow, d, i)
	}
	return d.MulInt(i), nil
}

// MulDecChecked returns a * b, or ErrOverflow where LegacyDec.Mul would panic.
func MulDecChecked(a, b sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	repr := new(big.Int).Mul(a.BigInt(), b.BigInt())
	repr.Quo(repr, decScale)
	if repr.CmpAbs(maxDecRepr) >= 0 {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s * %s", ErrOverflow, a, b)
	}
	return a.Mul(b), nil
}

// QuoDecChecked returns a / b, or an error where LegacyDec.Quo would panic.
func QuoDecChecked(a, b sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if b.IsZero() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s / 0", ErrDivisionByZero, a)
	}
	repr := new(big.Int).Mul(a.BigInt(), decScale)
	repr.Quo(repr, b.BigInt())
	if repr.CmpAbs(maxDecRepr) >= 0 {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s / %s", ErrOverflow, a, b)
	}
	return a.Quo(b), nil
}

// MulQuoFloor returns floor(a * i / b) for non-negative operands, computed exactly.
// A result wider than sdkmath.MaxBitLen is ErrOverflow.
func MulQuoFloor(a sdkmath.LegacyDec, i sdkmath.Int, b sdkmath.LegacyDec) (sdkmath.Int, error) {
	if !b.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: divisor %s", ErrDivisionByZero, b)
	}
	// both decimals carry the same scale, which cancels out
	n := new(big.Int).Mul(a.BigInt(), i.BigInt())
	n.Quo(n, b.BigInt())
	if n.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s * %s / %s", ErrOverflow, a, i, b)
	}
	return sdkmath.NewIntFromBigInt(n), nil
}

// PriceToDec converts an oracle (price, exponent) pair into a decimal, i.e. price * 10^expo.
// Digits beyond the 18 decimal places of LegacyDec are truncated.
func PriceToDec(price int64, expo int32) (sdkmath.LegacyDec, error) {
	if price <= 0 {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: non-positive price %d", ErrInvalidPrice, price)
	}
	value := decimal.New(price, expo).Truncate(sdkmath.LegacyPrecision)
	if value.IsZero() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %de%d rounds to zero", ErrInvalidPrice, price, expo)
	}

	dec, err := sdkmath.LegacyNewDecFromStr(value.String())
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return dec, nil
}

// DecFromString parses a decimal string through shopspring/decimal so that inputs such as
// "1e-3" are accepted, then converts it to LegacyDec.
func DecFromString(s string) (sdkmath.LegacyDec, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	dec, err := sdkmath.LegacyNewDecFromStr(d.Truncate(sdkmath.LegacyPrecision).String())
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return dec, nil
}

// DecToFloat64 converts a LegacyDec to float64 for display purposes only.
func DecToFloat64(d sdkmath.LegacyDec) (float64, error) {
	if d.IsNil() {
		return 0, ErrAmountNil
	}
	f, err := d.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDec(10).Power(uint64(precision))
	return DecToFloat64(decAmount.Quo(factor))
}

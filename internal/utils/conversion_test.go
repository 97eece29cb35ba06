package utils

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxForBits(bits uint) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(sdkmath.NewInt(5)))
	assert.NoError(t, ValidateAmount(sdkmath.ZeroInt()))
	assert.ErrorIs(t, ValidateAmount(sdkmath.Int{}), ErrAmountNil)
	assert.ErrorIs(t, ValidateAmount(sdkmath.NewInt(-1)), ErrAmountNegative)

	maxU128 := sdkmath.NewIntFromBigInt(maxForBits(128))
	assert.NoError(t, ValidateAmount(maxU128))
	assert.ErrorIs(t, ValidateAmount(maxU128.AddRaw(1)), ErrAmountTooLarge)
}

func TestCheckedAdd(t *testing.T) {
	sum, err := CheckedAdd(sdkmath.NewInt(2), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "5", sum.String())

	huge := sdkmath.NewIntFromBigInt(maxForBits(sdkmath.MaxBitLen))
	_, err = CheckedAdd(huge, sdkmath.OneInt())
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedDecArithmetic(t *testing.T) {
	huge := sdkmath.LegacyNewDecFromBigInt(new(big.Int).Lsh(big.NewInt(1), 200))
	maxU128 := sdkmath.NewIntFromBigInt(maxForBits(128))

	product, err := MulIntChecked(sdkmath.LegacyMustNewDecFromStr("1.5"), sdkmath.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, "6.000000000000000000", product.String())
	_, err = MulIntChecked(huge, maxU128)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDecChecked(huge, huge)
	assert.ErrorIs(t, err, ErrOverflow)
	square, err := MulDecChecked(sdkmath.LegacyNewDec(3), sdkmath.LegacyNewDec(3))
	require.NoError(t, err)
	assert.True(t, square.Equal(sdkmath.LegacyNewDec(9)))

	_, err = QuoDecChecked(huge, sdkmath.LegacySmallestDec())
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = QuoDecChecked(huge, sdkmath.LegacyZeroDec())
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = AddDecChecked(huge.MulInt64(1<<54), huge.MulInt64(1<<54))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulQuoFloor(t *testing.T) {
	out, err := MulQuoFloor(sdkmath.LegacyNewDec(10), sdkmath.NewInt(990), sdkmath.LegacyNewDec(2))
	require.NoError(t, err)
	assert.Equal(t, "4950", out.String())

	out, err = MulQuoFloor(sdkmath.LegacyOneDec(), sdkmath.NewInt(2), sdkmath.LegacyNewDec(3))
	require.NoError(t, err)
	assert.Equal(t, "0", out.String())

	_, err = MulQuoFloor(sdkmath.LegacyNewDecFromBigInt(new(big.Int).Lsh(big.NewInt(1), 140)), sdkmath.NewIntFromBigInt(maxForBits(128)), sdkmath.LegacyOneDec())
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulQuoFloor(sdkmath.LegacyOneDec(), sdkmath.OneInt(), sdkmath.LegacyZeroDec())
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestPriceToDec(t *testing.T) {
	dec, err := PriceToDec(6512345678, -8)
	require.NoError(t, err)
	assert.Equal(t, "65.123456780000000000", dec.String())

	dec, err = PriceToDec(3, 2)
	require.NoError(t, err)
	assert.True(t, dec.Equal(sdkmath.LegacyNewDec(300)))

	_, err = PriceToDec(0, -8)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = PriceToDec(1, -30)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestDecFromString(t *testing.T) {
	dec, err := DecFromString("0.003")
	require.NoError(t, err)
	assert.True(t, dec.Equal(sdkmath.LegacyNewDecWithPrec(3, 3)))

	dec, err = DecFromString("3e-3")
	require.NoError(t, err)
	assert.True(t, dec.Equal(sdkmath.LegacyNewDecWithPrec(3, 3)))

	_, err = DecFromString("abc")
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestSDKIntToFloat64(t *testing.T) {
	f, err := SDKIntToFloat64(sdkmath.NewInt(1500000), 6)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, f, 1e-12)

	_, err = SDKIntToFloat64(sdkmath.NewInt(1), 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestValidateAddress(t *testing.T) {
	addr, err := bech32.ConvertAndEncode("elys", []byte("01234567890123456789"))
	require.NoError(t, err)

	assert.NoError(t, ValidateAddress(addr, "elys"))
	assert.ErrorIs(t, ValidateAddress(addr, "cosmos"), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress("not-bech32", "elys"), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress("", ""), ErrInvalidAddress)
	assert.NoError(t, ValidateAddress("alice", ""))
}

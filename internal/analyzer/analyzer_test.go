package analyzer

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func token(asset string, bonded, requested, swappedIn, swappedOut int64) types.AssetAggregate {
	agg := types.NewAssetAggregate(asset, asset, "")
	agg.Bonded.SMA = sdkmath.NewInt(bonded)
	agg.Requested.SMA = sdkmath.NewInt(requested)
	agg.SwappedIn.SMA = sdkmath.NewInt(swappedIn)
	agg.SwappedOut.SMA = sdkmath.NewInt(swappedOut)
	return agg
}

func provider(addr string, bonded map[string]int64) types.Provider {
	p := types.Provider{Address: addr}
	for _, asset := range []string{"a", "b", "c"} {
		amount, ok := bonded[asset]
		if !ok {
			continue
		}
		pos := types.NewAssetPosition(asset, 0)
		pos.Bonded = sdkmath.NewInt(amount)
		p.Positions = append(p.Positions, pos)
	}
	return p
}

func TestVolumeRatio(t *testing.T) {
	zero := sdkmath.ZeroInt()

	r, err := VolumeRatio(zero, zero, zero, zero, dec("0.003"))
	require.NoError(t, err)
	assert.True(t, r.Equal(MinRatioDec()))

	r, err = VolumeRatio(zero, sdkmath.NewInt(5), zero, zero, dec("0.003"))
	require.NoError(t, err)
	assert.True(t, r.Equal(MaxRatioDec()))

	r, err = VolumeRatio(sdkmath.NewInt(100), sdkmath.NewInt(50), zero, zero, sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	assert.True(t, r.Equal(dec("0.5")))

	// half of swapped_in is fee, so volume in is 100
	r, err = VolumeRatio(zero, zero, sdkmath.NewInt(200), sdkmath.NewInt(50), dec("0.5"))
	require.NoError(t, err)
	assert.True(t, r.Equal(dec("0.5")))
}

func TestVolumeRatioClamp(t *testing.T) {
	huge := sdkmath.NewIntWithDecimal(1, 30)
	one := sdkmath.OneInt()
	zero := sdkmath.ZeroInt()

	r, err := VolumeRatio(one, huge, zero, zero, dec("0.003"))
	require.NoError(t, err)
	assert.True(t, r.Equal(MaxRatioDec()))

	r, err = VolumeRatio(huge, one, zero, zero, dec("0.003"))
	require.NoError(t, err)
	assert.True(t, r.Equal(MinRatioDec()))
}

func TestVolumeRatioRejectsFeeRate(t *testing.T) {
	zero := sdkmath.ZeroInt()
	_, err := VolumeRatio(zero, zero, zero, zero, sdkmath.LegacyOneDec())
	assert.ErrorIs(t, err, ErrInvalidFeeRate)

	_, err = VolumeRatio(zero, zero, zero, zero, dec("-0.1"))
	assert.ErrorIs(t, err, ErrInvalidFeeRate)
}

func TestTokenWeights(t *testing.T) {
	tokens := []types.AssetAggregate{
		token("a", 100, 50, 0, 0),
		token("b", 100, 150, 0, 0),
	}
	weights, sum, err := TokenWeights(tokens, sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	assert.True(t, sum.Equal(dec("2")))
	require.Len(t, weights, 2)
	assert.True(t, weights[0].Weight.Equal(dec("0.25")))
	assert.True(t, weights[1].Weight.Equal(dec("0.75")))

	weights, sum, err = TokenWeights(nil, sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
	assert.Empty(t, weights)
}

func TestDistributeSingleProviderGetsWholeFee(t *testing.T) {
	tokens := []types.AssetAggregate{token("a", 100, 0, 0, 0), token("b", 100, 0, 0, 0)}
	providers := []types.Provider{provider("alice", map[string]int64{"a": 100, "b": 100})}

	d, err := Distribute(SwapInput{
		AmountIn: sdkmath.NewInt(10000),
		PriceIn:  dec("1"),
		PriceOut: dec("1"),
		FeeRate:  dec("0.003"),
	}, providers, tokens)
	require.NoError(t, err)

	require.Len(t, d.Rewards, 1)
	assert.Equal(t, "alice", d.Rewards[0].Address)
	assert.True(t, d.Rewards[0].Power.Equal(sdkmath.LegacyOneDec()))
	assert.Equal(t, "30", d.Rewards[0].Amount.String())
	assert.Equal(t, "30", d.SwapFee.String())
	assert.Equal(t, "9970", d.AmountOut.String())
}

func TestDistributeFeeRounding(t *testing.T) {
	tokens := []types.AssetAggregate{token("a", 1, 0, 0, 0)}
	providers := []types.Provider{provider("alice", map[string]int64{"a": 1})}

	d, err := Distribute(SwapInput{
		AmountIn: sdkmath.NewInt(1001),
		PriceIn:  dec("1"),
		PriceOut: dec("2"),
		FeeRate:  dec("0.003"),
	}, providers, tokens)
	require.NoError(t, err)

	assert.Equal(t, "3", d.SwapFee.String())
	assert.Equal(t, "4", d.FeeCeil.String())
	assert.Equal(t, "997", d.AmountInNet.String())
	assert.Equal(t, "498", d.AmountOut.String())
}

func TestDistributeConservation(t *testing.T) {
	tokens := []types.AssetAggregate{
		token("a", 300, 40, 10, 70),
		token("b", 900, 0, 500, 5),
		token("c", 7, 1, 0, 0),
	}
	providers := []types.Provider{
		provider("p1", map[string]int64{"a": 1, "b": 1}),
		provider("p2", map[string]int64{"a": 1, "c": 3}),
		provider("p3", map[string]int64{"a": 1, "b": 7, "c": 4}),
	}

	for _, amount := range []int64{1, 333, 1000, 123457, 99999999} {
		d, err := Distribute(SwapInput{
			AmountIn: sdkmath.NewInt(amount),
			PriceIn:  dec("1.5"),
			PriceOut: dec("0.7"),
			FeeRate:  dec("0.003"),
		}, providers, tokens)
		require.NoError(t, err)
		assert.True(t, d.Distributed().LTE(d.SwapFee), "amount %d: %s > %s", amount, d.Distributed(), d.SwapFee)
		assert.True(t, d.SwapFee.LTE(d.FeeCeil))
	}
}

func TestDistributeEqualThirds(t *testing.T) {
	tokens := []types.AssetAggregate{token("a", 3, 0, 0, 0)}
	providers := []types.Provider{
		provider("p1", map[string]int64{"a": 1}),
		provider("p2", map[string]int64{"a": 1}),
		provider("p3", map[string]int64{"a": 1}),
	}

	d, err := Distribute(SwapInput{
		AmountIn: sdkmath.NewInt(10000),
		PriceIn:  dec("1"),
		PriceOut: dec("1"),
		FeeRate:  dec("0.01"),
	}, providers, tokens)
	require.NoError(t, err)

	require.Len(t, d.Rewards, 3)
	for _, r := range d.Rewards {
		assert.Equal(t, "33", r.Amount.String())
	}
	assert.Equal(t, "99", d.Distributed().String())
}

func TestDistributeSkipsUnregisteredAndUnbonded(t *testing.T) {
	tokens := []types.AssetAggregate{token("a", 10, 0, 0, 0)}
	idle := provider("idle", map[string]int64{"a": 0})
	stray := provider("stray", map[string]int64{"b": 50})
	active := provider("active", map[string]int64{"a": 10})

	d, err := Distribute(SwapInput{
		AmountIn: sdkmath.NewInt(1000),
		PriceIn:  dec("1"),
		PriceOut: dec("1"),
		FeeRate:  dec("0.1"),
	}, []types.Provider{active, idle, stray}, tokens)
	require.NoError(t, err)

	require.Len(t, d.Rewards, 1)
	assert.Equal(t, "active", d.Rewards[0].Address)
	assert.Equal(t, "100", d.Rewards[0].Amount.String())
}

func TestDistributeRejectsBadPrices(t *testing.T) {
	_, err := Distribute(SwapInput{
		AmountIn: sdkmath.NewInt(1000),
		PriceIn:  dec("1"),
		PriceOut: sdkmath.LegacyZeroDec(),
		FeeRate:  dec("0.1"),
	}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestDistributeOverflowIsAnError(t *testing.T) {
	maxU128 := sdkmath.NewIntFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))
	tokens := []types.AssetAggregate{token("a", 1, 0, 0, 0)}
	providers := []types.Provider{provider("alice", map[string]int64{"a": 1})}

	var err error
	assert.NotPanics(t, func() {
		_, err = Distribute(SwapInput{
			AmountIn: maxU128,
			PriceIn:  dec("10000000000000000000000000000000000000000"), // 1e40
			PriceOut: dec("1"),
			FeeRate:  dec("0.01"),
		}, providers, tokens)
	})
	assert.ErrorIs(t, err, utils.ErrOverflow)

	// fits an Int but not an amount
	_, err = Distribute(SwapInput{
		AmountIn: maxU128,
		PriceIn:  dec("1000000000000000000000000000000"), // 1e30
		PriceOut: dec("1"),
		FeeRate:  dec("0.01"),
	}, providers, tokens)
	assert.ErrorIs(t, err, utils.ErrAmountTooLarge)

	_, err = Distribute(SwapInput{
		AmountIn: maxU128.AddRaw(1),
		PriceIn:  dec("1"),
		PriceOut: dec("1"),
		FeeRate:  dec("0.01"),
	}, providers, tokens)
	assert.ErrorIs(t, err, utils.ErrAmountTooLarge)
}

func TestDistributeAmountOutIsFloored(t *testing.T) {
	tokens := []types.AssetAggregate{token("a", 1, 0, 0, 0)}
	providers := []types.Provider{provider("alice", map[string]int64{"a": 1})}

	// 100 * 1 / 3 = 33.33.., no rounding up at the 18th decimal
	d, err := Distribute(SwapInput{
		AmountIn: sdkmath.NewInt(100),
		PriceIn:  dec("1"),
		PriceOut: dec("3"),
		FeeRate:  sdkmath.LegacyZeroDec(),
	}, providers, tokens)
	require.NoError(t, err)
	assert.Equal(t, "33", d.AmountOut.String())
	assert.True(t, d.SwapFee.IsZero())
}

func TestLiquidity(t *testing.T) {
	p1 := provider("p1", map[string]int64{"a": 5})
	p1.Positions[0].Requested = sdkmath.NewInt(3)
	p1.Positions[0].Unbonded = sdkmath.NewInt(100)
	p2 := provider("p2", map[string]int64{"a": 2, "b": 9})

	assert.Equal(t, "10", Liquidity([]types.Provider{p1, p2}, "a").String())
	assert.Equal(t, "9", Liquidity([]types.Provider{p1, p2}, "b").String())
	assert.Equal(t, "0", Liquidity([]types.Provider{p1, p2}, "c").String())
}

func TestEstimateAPR(t *testing.T) {
	tokens := []types.AssetAggregate{token("a", 1000, 0, 100, 0)}
	prices := map[string]sdkmath.LegacyDec{"a": dec("1")}

	aprs, err := EstimateAPR(tokens, prices, dec("0.01"), year)
	require.NoError(t, err)
	require.Len(t, aprs, 1)
	assert.True(t, aprs[0].APR.Equal(dec("0.001")), aprs[0].APR.String())

	aprs, err = EstimateAPR(tokens, prices, dec("0.01"), year/365)
	require.NoError(t, err)
	assert.True(t, aprs[0].APR.Equal(dec("0.365")), aprs[0].APR.String())

	empty := []types.AssetAggregate{token("a", 0, 0, 100, 0)}
	aprs, err = EstimateAPR(empty, prices, dec("0.01"), year)
	require.NoError(t, err)
	assert.True(t, aprs[0].APR.IsZero())

	_, err = EstimateAPR(tokens, map[string]sdkmath.LegacyDec{}, dec("0.01"), year)
	assert.ErrorIs(t, err, ErrMissingPrice)

	_, err = EstimateAPR(tokens, prices, dec("0.01"), 0)
	assert.ErrorIs(t, err, ErrZeroWindow)

	// a dust bonded value against a huge swap volume elsewhere
	dust := token("a", 1, 0, 0, 0)
	busy := token("b", 0, 0, 0, 0)
	busy.SwappedIn.SMA = sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 127))
	skewedPrices := map[string]sdkmath.LegacyDec{
		"a": dec("0.000000000000000001"),
		"b": dec("1000000000000000000000000000000"),
	}
	assert.NotPanics(t, func() {
		_, err = EstimateAPR([]types.AssetAggregate{dust, busy}, skewedPrices, dec("0.01"), year)
	})
	assert.ErrorIs(t, err, utils.ErrOverflow)

}

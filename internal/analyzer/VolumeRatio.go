/*

This file converts the per-asset sample series averages into a volume ratio and a normalized token weight.
A high ratio means the asset is paid out more than it is supplied, so its providers deserve a larger share of fees.

*/

package analyzer

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/types"
)

// MaxRatio bounds the volume ratio to [1/MaxRatio, MaxRatio].
const MaxRatio = 1_000_000

var ErrInvalidFeeRate = errors.New("swap fee rate must be in [0, 1)")

// MaxRatioDec returns MaxRatio as a decimal.
func MaxRatioDec() sdkmath.LegacyDec {
	return sdkmath.LegacyNewDec(MaxRatio)
}

// MinRatioDec returns 1/MaxRatio as a decimal.
func MinRatioDec() sdkmath.LegacyDec {
	return sdkmath.LegacyOneDec().QuoInt64(MaxRatio)
}

// TokenWeight is an asset's clamped volume ratio and its share of the ratio sum.
type TokenWeight struct {
	AssetID string            `json:"asset_id"`
	Ratio   sdkmath.LegacyDec `json:"ratio"`
	Weight  sdkmath.LegacyDec `json:"weight"`
}

func validateFeeRate(feeRate sdkmath.LegacyDec) error {
	if feeRate.IsNil() || feeRate.IsNegative() || feeRate.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: %s", ErrInvalidFeeRate, feeRate)
	}
	return nil
}

// VolumeRatio computes (requested + swapped_out) / (bonded + (1 - fee) * swapped_in) from the
// windowed averages, clamped to [1/MaxRatio, MaxRatio].
func VolumeRatio(bondedSMA, requestedSMA, swappedInSMA, swappedOutSMA sdkmath.Int, feeRate sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if err := validateFeeRate(feeRate); err != nil {
		return sdkmath.LegacyZeroDec(), err
	}

	volumeIn := sdkmath.LegacyNewDecFromInt(bondedSMA).
		Add(sdkmath.LegacyOneDec().Sub(feeRate).MulInt(swappedInSMA))
	volumeOut := sdkmath.LegacyNewDecFromInt(requestedSMA.Add(swappedOutSMA))

	if volumeIn.IsZero() {
		if volumeOut.IsZero() {
			return MinRatioDec(), nil
		}
		return MaxRatioDec(), nil
	}
	return clampRatio(volumeOut.Quo(volumeIn)), nil
}

func clampRatio(r sdkmath.LegacyDec) sdkmath.LegacyDec {
	if r.LT(MinRatioDec()) {
		return MinRatioDec()
	}
	if r.GT(MaxRatioDec()) {
		return MaxRatioDec()
	}
	return r
}

// TokenRatio computes the volume ratio of an aggregate from its stored averages.
func TokenRatio(agg types.AssetAggregate, feeRate sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	return VolumeRatio(agg.Bonded.Average(), agg.Requested.Average(), agg.SwappedIn.Average(), agg.SwappedOut.Average(), feeRate)
}

// TokenWeights computes the ratio of every asset and normalizes it by the sum of all ratios.
// Weights are all zero when the sum is zero. The returned sum is the normalization factor.
func TokenWeights(tokens []types.AssetAggregate, feeRate sdkmath.LegacyDec) ([]TokenWeight, sdkmath.LegacyDec, error) {
	weights := make([]TokenWeight, 0, len(tokens))
	sum := sdkmath.LegacyZeroDec()
	for _, token := range tokens {
		ratio, err := TokenRatio(token, feeRate)
		if err != nil {
			return nil, sdkmath.LegacyZeroDec(), fmt.Errorf("asset %s: %w", token.AssetID, err)
		}
		sum = sum.Add(ratio)
		weights = append(weights, TokenWeight{AssetID: token.AssetID, Ratio: ratio})
	}

	for i := range weights {
		if sum.IsZero() {
			weights[i].Weight = sdkmath.LegacyZeroDec()
			continue
		}
		weights[i].Weight = weights[i].Ratio.Quo(sum)
	}
	return weights, sum, nil
}

/*

This file estimates the annualized fee yield of bonding each asset from the windowed averages.
The estimate assumes the swap activity of the last window repeats for a year.

*/

package analyzer

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
)

const year = 365 * 24 * time.Hour

var (
	ErrMissingPrice = errors.New("no price for asset")
	ErrZeroWindow   = errors.New("window must be positive")
)

// AssetAPR is the estimated annual yield of one bonded unit of value in an asset.
type AssetAPR struct {
	AssetID string            `json:"asset_id"`
	Weight  sdkmath.LegacyDec `json:"weight"`
	APR     sdkmath.LegacyDec `json:"apr"`
}

// EstimateAPR projects the fees collected over the last window onto the bonded value of each asset.
//
// fees = rate * sum_j(swapped_in_sma_j * price_j)
// apr_i = weight_i * fees / (bonded_sma_i * price_i) * (year / window)
func EstimateAPR(tokens []types.AssetAggregate, prices map[string]sdkmath.LegacyDec, feeRate sdkmath.LegacyDec, window time.Duration) ([]AssetAPR, error) {
	if window <= 0 {
		return nil, ErrZeroWindow
	}
	weights, _, err := TokenWeights(tokens, feeRate)
	if err != nil {
		return nil, err
	}

	swappedValue := sdkmath.LegacyZeroDec()
	for _, token := range tokens {
		price, ok := prices[token.AssetID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingPrice, token.AssetID)
		}
		value, err := utils.MulIntChecked(price, token.SwappedIn.Average())
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", token.AssetID, err)
		}
		if swappedValue, err = utils.AddDecChecked(swappedValue, value); err != nil {
			return nil, err
		}
	}
	fees := feeRate.Mul(swappedValue)
	periods := sdkmath.LegacyNewDec(int64(year)).QuoInt64(int64(window))

	out := make([]AssetAPR, 0, len(tokens))
	for i, token := range tokens {
		apr, err := assetAPR(weights[i].Weight, fees, prices[token.AssetID], token.Bonded.Average(), periods)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", token.AssetID, err)
		}
		out = append(out, AssetAPR{AssetID: token.AssetID, Weight: weights[i].Weight, APR: apr})
	}
	return out, nil
}

// assetAPR is weight * fees / (bonded * price) * periods, zero when nothing is bonded.
func assetAPR(weight, fees, price sdkmath.LegacyDec, bonded sdkmath.Int, periods sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	bondedValue, err := utils.MulIntChecked(price, bonded)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	if !bondedValue.IsPositive() {
		return sdkmath.LegacyZeroDec(), nil
	}
	share, err := utils.QuoDecChecked(weight.Mul(fees), bondedValue)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return utils.MulDecChecked(share, periods)
}

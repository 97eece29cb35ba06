/*

This file splits the fee of a single swap across liquidity providers.

A provider's power is the sum over the assets it has bonded of (its share of that asset's bonded total)
times (the asset's token weight). Each provider receives floor(power * fee) of the asset sent in.

*/

package analyzer

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/logger"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
)

var distributionLogger = logger.GetForComponent("reward_allocator")

var ErrInvalidPrice = errors.New("price must be positive")

// SwapInput describes the swap whose fee is being distributed.
type SwapInput struct {
	AmountIn sdkmath.Int
	PriceIn  sdkmath.LegacyDec
	PriceOut sdkmath.LegacyDec
	FeeRate  sdkmath.LegacyDec
}

// ProviderReward is the fee share credited to one provider.
type ProviderReward struct {
	Address string            `json:"address"`
	Power   sdkmath.LegacyDec `json:"power"`
	Amount  sdkmath.Int       `json:"amount"`
}

// Distribution is the outcome of a swap: what each provider earns and what the sender receives.
type Distribution struct {
	Rewards     []ProviderReward
	AmountOut   sdkmath.Int
	SwapFee     sdkmath.Int // floor(rate * amount_in), the distributable pool
	FeeCeil     sdkmath.Int // ceil(rate * amount_in), kept from amount_in
	AmountInNet sdkmath.Int // amount_in - FeeCeil
}

// Distributed returns the sum of all rewards.
func (d Distribution) Distributed() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, r := range d.Rewards {
		total = total.Add(r.Amount)
	}
	return total
}

// BondedTotals sums the bonded balance of every provider per asset.
func BondedTotals(providers []types.Provider) map[string]sdkmath.Int {
	totals := make(map[string]sdkmath.Int)
	for _, p := range providers {
		for _, pos := range p.Positions {
			pos = pos.Normalize()
			current, ok := totals[pos.AssetID]
			if !ok {
				current = sdkmath.ZeroInt()
			}
			totals[pos.AssetID] = current.Add(pos.Bonded)
		}
	}
	return totals
}

// ProviderPower computes a provider's normalized share of fee-earning weight, clamped to [0, 1].
// Only assets present in ratios count; zero-bonded positions contribute nothing.
func ProviderPower(positions types.ProviderAccount, totals map[string]sdkmath.Int, ratios map[string]sdkmath.LegacyDec, ratioSum sdkmath.LegacyDec) sdkmath.LegacyDec {
	if !ratioSum.IsPositive() {
		return sdkmath.LegacyZeroDec()
	}

	// sum(allocation_i * ratio_i) / sum(ratio) keeps a single division per provider
	weighted := sdkmath.LegacyZeroDec()
	for _, pos := range positions {
		pos = pos.Normalize()
		ratio, ok := ratios[pos.AssetID]
		if !ok || !pos.Bonded.IsPositive() {
			continue
		}

		allocation := sdkmath.LegacyOneDec()
		if total, ok := totals[pos.AssetID]; ok && total.IsPositive() {
			allocation = sdkmath.LegacyNewDecFromInt(pos.Bonded).QuoInt(total)
		}
		weighted = weighted.Add(allocation.Mul(ratio))
	}

	power := weighted.Quo(ratioSum)
	if power.GT(sdkmath.LegacyOneDec()) {
		return sdkmath.LegacyOneDec()
	}
	return power
}

// Distribute computes the swap fee, the amount paid out and each provider's reward.
// Providers are processed in the given order and the sum of rewards never exceeds SwapFee.
func Distribute(in SwapInput, providers []types.Provider, tokens []types.AssetAggregate) (Distribution, error) {
	if err := validateFeeRate(in.FeeRate); err != nil {
		return Distribution{}, err
	}
	if in.PriceIn.IsNil() || !in.PriceIn.IsPositive() {
		return Distribution{}, fmt.Errorf("%w: price in %s", ErrInvalidPrice, in.PriceIn)
	}
	if in.PriceOut.IsNil() || !in.PriceOut.IsPositive() {
		return Distribution{}, fmt.Errorf("%w: price out %s", ErrInvalidPrice, in.PriceOut)
	}

	if err := utils.ValidateAmount(in.AmountIn); err != nil {
		return Distribution{}, err
	}

	// --- Fee and amount out ---
	fee, err := utils.MulIntChecked(in.FeeRate, in.AmountIn)
	if err != nil {
		return Distribution{}, err
	}
	swapFee := fee.TruncateInt()
	feeCeil := fee.Ceil().TruncateInt()
	amountInNet := in.AmountIn.Sub(feeCeil)

	// floor(price_in * net / price_out), exact
	amountOut, err := utils.MulQuoFloor(in.PriceIn, amountInNet, in.PriceOut)
	if err != nil {
		return Distribution{}, err
	}
	if err := utils.ValidateAmount(amountOut); err != nil {
		return Distribution{}, fmt.Errorf("amount out: %w", err)
	}

	// --- Token weights ---
	weights, ratioSum, err := TokenWeights(tokens, in.FeeRate)
	if err != nil {
		return Distribution{}, err
	}
	ratios := make(map[string]sdkmath.LegacyDec, len(weights))
	for _, w := range weights {
		ratios[w.AssetID] = w.Ratio
	}
	totals := BondedTotals(providers)

	// --- Provider rewards ---
	rewards := make([]ProviderReward, 0, len(providers))
	distributed := sdkmath.ZeroInt()
	for _, p := range providers {
		power := ProviderPower(p.Positions, totals, ratios, ratioSum)
		reward := power.MulInt(swapFee).TruncateInt()

		if remaining := swapFee.Sub(distributed); reward.GT(remaining) {
			distributionLogger.Warn().
				Str("provider", p.Address).
				Str("reward", reward.String()).
				Str("remaining", remaining.String()).
				Msg("Reward capped at the undistributed fee")
			reward = remaining
		}
		if !reward.IsPositive() {
			continue
		}

		distributed = distributed.Add(reward)
		rewards = append(rewards, ProviderReward{Address: p.Address, Power: power, Amount: reward})
	}

	distributionLogger.Debug().
		Str("amountIn", in.AmountIn.String()).
		Str("swapFee", swapFee.String()).
		Str("distributed", distributed.String()).
		Str("amountOut", amountOut.String()).
		Int("providers", len(rewards)).
		Msg("Swap fee distributed")

	return Distribution{
		Rewards:     rewards,
		AmountOut:   amountOut,
		SwapFee:     swapFee,
		FeeCeil:     feeCeil,
		AmountInNet: amountInNet,
	}, nil
}

// Liquidity returns the bonded plus requested balance of an asset across all providers.
func Liquidity(providers []types.Provider, assetID string) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, p := range providers {
		if i := p.Positions.Find(assetID); i >= 0 {
			pos := p.Positions[i].Normalize()
			total = total.Add(pos.Bonded).Add(pos.Requested)
		}
	}
	return total
}

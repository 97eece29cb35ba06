package pool

import (
	"context"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/aggregate"
	"github.com/elys-network/fluxpool/internal/analyzer"
	"github.com/elys-network/fluxpool/internal/bonding"
	"github.com/elys-network/fluxpool/internal/pricefeed"
	"github.com/elys-network/fluxpool/internal/state"
	"github.com/elys-network/fluxpool/internal/types"
)

// Swap exchanges amountIn of assetIn for assetOut at oracle prices. The floor of the fee is shared
// among all providers by power and credited as assetIn rewards.
func (p *Pool) Swap(ctx context.Context, now time.Time, sender string, amountIn sdkmath.Int, assetIn, assetOut string) (types.Response, error) {
	if err := p.validateAddress(sender); err != nil {
		return types.Response{}, err
	}
	if err := validateAmount(amountIn); err != nil {
		return types.Response{}, err
	}
	if assetIn == assetOut {
		return types.Response{}, ErrSameAssetSwap
	}
	ts, err := types.Timestamp(now)
	if err != nil {
		return types.Response{}, err
	}

	// Prices are fetched outside the transaction so retries do not hit the oracle again.
	cfg, err := loadConfig(ctx, p.store)
	if err != nil {
		return types.Response{}, err
	}
	priceIn, err := p.resolvePrice(ctx, assetIn, cfg.PriceStalenessBound, now)
	if err != nil {
		return types.Response{}, err
	}
	priceOut, err := p.resolvePrice(ctx, assetOut, cfg.PriceStalenessBound, now)
	if err != nil {
		return types.Response{}, err
	}

	return p.execute(ctx, "swap", now, func(tx state.Tx, op *operation) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := loadToken(ctx, tx, assetIn); err != nil {
			return err
		}
		if _, err := loadToken(ctx, tx, assetOut); err != nil {
			return err
		}
		tokens, err := loadTokens(ctx, tx)
		if err != nil {
			return err
		}
		providers, err := loadProviders(ctx, tx)
		if err != nil {
			return err
		}

		// --- Settle every provider ---
		settlement := aggregate.NewTracker()
		dirty := make(map[string]bool)
		for i := range providers {
			account, matured, err := settleAccount(providers[i].Positions, ts, settlement)
			if err != nil {
				return err
			}
			providers[i].Positions = account
			if matured {
				dirty[providers[i].Address] = true
			}
		}
		settled, err := applyTracker(ctx, tx, settlement, ts, cfg)
		if err != nil {
			return err
		}
		for i, token := range tokens {
			if updated, ok := settled[token.AssetID]; ok {
				tokens[i] = updated
			}
		}

		// --- Distribute ---
		dist, err := analyzer.Distribute(analyzer.SwapInput{
			AmountIn: amountIn,
			PriceIn:  priceIn.Value,
			PriceOut: priceOut.Value,
			FeeRate:  cfg.SwapFeeRate,
		}, providers, tokens)
		if err != nil {
			return err
		}
		if !dist.AmountOut.IsPositive() {
			return ErrZeroAmount
		}

		byAddress := make(map[string]int, len(providers))
		for i, pr := range providers {
			byAddress[pr.Address] = i
		}
		for _, reward := range dist.Rewards {
			i := byAddress[reward.Address]
			account, err := bonding.CreditRewards(providers[i].Positions, assetIn, reward.Amount, ts)
			if err != nil {
				return err
			}
			providers[i].Positions = account
			dirty[reward.Address] = true
		}

		volume := aggregate.NewTracker()
		volume.Increase(assetIn, aggregate.SwappedIn, dist.AmountInNet)
		volume.Increase(assetOut, aggregate.SwappedOut, dist.AmountOut)
		if _, err := applyTracker(ctx, tx, volume, ts, cfg); err != nil {
			return err
		}

		for _, pr := range providers {
			if !dirty[pr.Address] {
				continue
			}
			if err := saveProvider(ctx, tx, pr.Address, bonding.Prune(pr.Positions)); err != nil {
				return err
			}
		}

		op.transfer(sender, assetOut, dist.AmountOut)
		op.attr("sender", sender)
		op.attr("asset_in", assetIn)
		op.attr("asset_out", assetOut)
		op.attr("amount_in", amountIn.String())
		op.attr("amount_out", dist.AmountOut.String())
		op.attr("price_in", priceIn.Value.String())
		op.attr("price_out", priceOut.Value.String())
		op.attr("swap_fee", dist.SwapFee.String())
		op.attr("distributed", dist.Distributed().String())
		op.attr("rewarded_providers", strconv.Itoa(len(dist.Rewards)))
		return nil
	})
}

// resolvePrice looks up the asset's feed reference and fetches a fresh price.
func (p *Pool) resolvePrice(ctx context.Context, assetID string, maxAge time.Duration, now time.Time) (types.Price, error) {
	token, err := loadToken(ctx, p.store, assetID)
	if err != nil {
		return types.Price{}, err
	}
	return pricefeed.Resolve(ctx, p.feed, assetID, token.PriceFeedRef, maxAge, now)
}

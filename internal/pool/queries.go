package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/fluxpool/internal/analyzer"
	"github.com/elys-network/fluxpool/internal/pricefeed"
	"github.com/elys-network/fluxpool/internal/state"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/vault"
)

// AssetLiquidity is the bonded plus requested balance of one asset.
type AssetLiquidity struct {
	AssetID string      `json:"asset_id"`
	Amount  sdkmath.Int `json:"amount"`
}

// QueryConfig returns the pool configuration.
func (p *Pool) QueryConfig(ctx context.Context) (types.PoolConfig, error) {
	return loadConfig(ctx, p.store)
}

// QueryProviders returns the accounts of the given providers, or of every provider when
// none are given. Unknown addresses are skipped.
func (p *Pool) QueryProviders(ctx context.Context, addresses ...string) ([]types.Provider, error) {
	if len(addresses) == 0 {
		return loadProviders(ctx, p.store)
	}

	providers := make([]types.Provider, 0, len(addresses))
	for _, addr := range addresses {
		account, ok, err := loadProvider(ctx, p.store, addr)
		if err != nil {
			return nil, err
		}
		if ok {
			providers = append(providers, types.Provider{Address: addr, Positions: account})
		}
	}
	return providers, nil
}

// QueryTokens returns the aggregates of the given assets, or of every asset when none are given.
func (p *Pool) QueryTokens(ctx context.Context, assetIDs ...string) ([]types.AssetAggregate, error) {
	if len(assetIDs) == 0 {
		return loadTokens(ctx, p.store)
	}

	tokens := make([]types.AssetAggregate, 0, len(assetIDs))
	for _, id := range assetIDs {
		token, err := loadToken(ctx, p.store, id)
		if errors.Is(err, ErrAssetNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// QueryTokenWeights returns the current volume ratio and weight of every asset.
func (p *Pool) QueryTokenWeights(ctx context.Context) ([]analyzer.TokenWeight, error) {
	cfg, err := loadConfig(ctx, p.store)
	if err != nil {
		return nil, err
	}
	tokens, err := loadTokens(ctx, p.store)
	if err != nil {
		return nil, err
	}
	weights, _, err := analyzer.TokenWeights(tokens, cfg.SwapFeeRate)
	return weights, err
}

// QueryLiquidity returns the liquidity held for every registered asset.
func (p *Pool) QueryLiquidity(ctx context.Context) ([]AssetLiquidity, error) {
	tokens, err := loadTokens(ctx, p.store)
	if err != nil {
		return nil, err
	}
	providers, err := loadProviders(ctx, p.store)
	if err != nil {
		return nil, err
	}

	out := make([]AssetLiquidity, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, AssetLiquidity{AssetID: token.AssetID, Amount: analyzer.Liquidity(providers, token.AssetID)})
	}
	return out, nil
}

// QueryPrices resolves the current price of every registered asset.
func (p *Pool) QueryPrices(ctx context.Context, now time.Time) ([]types.Price, error) {
	cfg, err := loadConfig(ctx, p.store)
	if err != nil {
		return nil, err
	}
	tokens, err := loadTokens(ctx, p.store)
	if err != nil {
		return nil, err
	}

	prices := make([]types.Price, 0, len(tokens))
	for _, token := range tokens {
		price, err := pricefeed.Resolve(ctx, p.feed, token.AssetID, token.PriceFeedRef, cfg.PriceStalenessBound, now)
		if err != nil {
			return nil, err
		}
		prices = append(prices, price)
	}
	return prices, nil
}

// QueryAPR estimates the annual fee yield of every registered asset.
func (p *Pool) QueryAPR(ctx context.Context, now time.Time) ([]analyzer.AssetAPR, error) {
	cfg, err := loadConfig(ctx, p.store)
	if err != nil {
		return nil, err
	}
	tokens, err := loadTokens(ctx, p.store)
	if err != nil {
		return nil, err
	}
	prices, err := p.QueryPrices(ctx, now)
	if err != nil {
		return nil, err
	}

	byAsset := make(map[string]sdkmath.LegacyDec, len(prices))
	for _, price := range prices {
		byAsset[price.AssetID] = price.Value
	}
	return analyzer.EstimateAPR(tokens, byAsset, cfg.SwapFeeRate, cfg.Window)
}

// QueryBalances returns the ledger balances of address when the ledger keeps them.
func (p *Pool) QueryBalances(ctx context.Context, address string) (sdktypes.Coins, error) {
	reader, ok := p.ledger.(vault.BalanceReader)
	if !ok {
		return nil, ErrBalancesUnavailable
	}
	if err := p.validateAddress(address); err != nil {
		return nil, err
	}
	coins, err := reader.Balances(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read balances of %s: %w", address, err)
	}
	return coins, nil
}

// QueryOutbox returns the transfer batches waiting for the ledger, oldest operation first.
func (p *Pool) QueryOutbox(ctx context.Context) ([]types.PendingTransfers, error) {
	entries, err := state.RangeAll[types.PendingTransfers](ctx, p.store, outboxPrefix)
	if err != nil {
		return nil, err
	}
	pending := make([]types.PendingTransfers, 0, len(entries))
	for _, e := range entries {
		pending = append(pending, e.Value)
	}
	return pending, nil
}

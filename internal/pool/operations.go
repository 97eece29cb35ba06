package pool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/aggregate"
	"github.com/elys-network/fluxpool/internal/bonding"
	"github.com/elys-network/fluxpool/internal/state"
	"github.com/elys-network/fluxpool/internal/types"
)

// Instantiate stores the initial configuration. It fails if the pool already has one.
func (p *Pool) Instantiate(ctx context.Context, now time.Time, cfg types.PoolConfig) (types.Response, error) {
	if err := cfg.Validate(); err != nil {
		return types.Response{}, err
	}
	if err := p.validateAddress(cfg.Admin); err != nil {
		return types.Response{}, err
	}

	return p.execute(ctx, "instantiate", now, func(tx state.Tx, op *operation) error {
		if _, ok, err := tx.Get(ctx, configKey); err != nil {
			return err
		} else if ok {
			return ErrAlreadyInstantiated
		}
		if err := state.Save(ctx, tx, configKey, cfg); err != nil {
			return err
		}
		op.attr("admin", cfg.Admin)
		op.attr("swap_fee_rate", cfg.SwapFeeRate.String())
		op.attr("window", cfg.Window.String())
		op.attr("unbonding_period", cfg.UnbondingPeriod.String())
		return nil
	})
}

// Deposit bonds amount of assetID for provider, creating the account and position on first use.
func (p *Pool) Deposit(ctx context.Context, now time.Time, provider, assetID string, amount sdkmath.Int) (types.Response, error) {
	if err := p.validateAddress(provider); err != nil {
		return types.Response{}, err
	}
	if err := validateAmount(amount); err != nil {
		return types.Response{}, err
	}
	ts, err := types.Timestamp(now)
	if err != nil {
		return types.Response{}, err
	}

	return p.execute(ctx, "deposit", now, func(tx state.Tx, op *operation) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := loadToken(ctx, tx, assetID); err != nil {
			return err
		}
		account, _, err := loadProvider(ctx, tx, provider)
		if err != nil {
			return err
		}

		tracker := aggregate.NewTracker()
		account, _, err = settleAccount(account, ts, tracker)
		if err != nil {
			return err
		}

		pos, err := bonding.Deposit(bonding.PositionOrDefault(account, assetID, ts), amount, ts)
		if err != nil {
			return err
		}
		account = bonding.Put(account, pos)
		tracker.Increase(assetID, aggregate.Bonded, amount)

		if _, err := applyTracker(ctx, tx, tracker, ts, cfg); err != nil {
			return err
		}
		if err := saveProvider(ctx, tx, provider, account); err != nil {
			return err
		}

		op.attr("provider", provider)
		op.attr("asset", assetID)
		op.attr("amount", amount.String())
		op.attr("bonded", pos.Bonded.String())
		return nil
	})
}

// Unbond moves amount from bonded to requested. The whole requested balance matures one
// unbonding period from now.
func (p *Pool) Unbond(ctx context.Context, now time.Time, provider, assetID string, amount sdkmath.Int) (types.Response, error) {
	if err := p.validateAddress(provider); err != nil {
		return types.Response{}, err
	}
	if err := validateAmount(amount); err != nil {
		return types.Response{}, err
	}
	ts, err := types.Timestamp(now)
	if err != nil {
		return types.Response{}, err
	}

	return p.execute(ctx, "unbond", now, func(tx state.Tx, op *operation) error {
		cfg, account, tracker, err := p.prepareProvider(ctx, tx, provider, assetID, ts)
		if err != nil {
			return err
		}

		pos, err := bonding.Unbond(bonding.PositionOrDefault(account, assetID, ts), amount, ts, cfg.UnbondingSeconds())
		if err != nil {
			return err
		}
		account = bonding.Put(account, pos)
		tracker.Move(assetID, aggregate.Bonded, aggregate.Requested, amount)

		if _, err := applyTracker(ctx, tx, tracker, ts, cfg); err != nil {
			return err
		}
		if err := saveProvider(ctx, tx, provider, bonding.Prune(account)); err != nil {
			return err
		}

		op.attr("provider", provider)
		op.attr("asset", assetID)
		op.attr("amount", amount.String())
		op.attr("maturity", strconv.FormatUint(pos.Maturity, 10))
		return nil
	})
}

// Withdraw pays out amount of the provider's unbonded balance.
func (p *Pool) Withdraw(ctx context.Context, now time.Time, provider, assetID string, amount sdkmath.Int) (types.Response, error) {
	if err := p.validateAddress(provider); err != nil {
		return types.Response{}, err
	}
	if err := validateAmount(amount); err != nil {
		return types.Response{}, err
	}
	ts, err := types.Timestamp(now)
	if err != nil {
		return types.Response{}, err
	}

	return p.execute(ctx, "withdraw", now, func(tx state.Tx, op *operation) error {
		cfg, account, tracker, err := p.prepareProvider(ctx, tx, provider, assetID, ts)
		if err != nil {
			return err
		}

		pos, err := bonding.Withdraw(bonding.PositionOrDefault(account, assetID, ts), amount, ts)
		if err != nil {
			return err
		}
		account = bonding.Put(account, pos)
		tracker.Decrease(assetID, aggregate.Unbonded, amount)

		if _, err := applyTracker(ctx, tx, tracker, ts, cfg); err != nil {
			return err
		}
		if err := saveProvider(ctx, tx, provider, bonding.Prune(account)); err != nil {
			return err
		}

		op.transfer(provider, assetID, amount)
		op.attr("provider", provider)
		op.attr("asset", assetID)
		op.attr("amount", amount.String())
		return nil
	})
}

// Claim pays out every unclaimed reward of the provider.
func (p *Pool) Claim(ctx context.Context, now time.Time, provider string) (types.Response, error) {
	if err := p.validateAddress(provider); err != nil {
		return types.Response{}, err
	}
	ts, err := types.Timestamp(now)
	if err != nil {
		return types.Response{}, err
	}

	return p.execute(ctx, "claim", now, func(tx state.Tx, op *operation) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		account, ok, err := loadProvider(ctx, tx, provider)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrProviderNotFound, provider)
		}

		tracker := aggregate.NewTracker()
		account, _, err = settleAccount(account, ts, tracker)
		if err != nil {
			return err
		}
		account, rewards := bonding.TakeRewards(account)

		if _, err := applyTracker(ctx, tx, tracker, ts, cfg); err != nil {
			return err
		}
		if err := saveProvider(ctx, tx, provider, bonding.Prune(account)); err != nil {
			return err
		}

		for _, r := range rewards {
			op.transfer(provider, r.AssetID, r.Amount)
		}
		op.attr("provider", provider)
		op.attr("claimed_assets", strconv.Itoa(len(rewards)))
		return nil
	})
}

// prepareProvider loads the state shared by unbond and withdraw and settles the account.
func (p *Pool) prepareProvider(ctx context.Context, tx state.Tx, provider, assetID string, ts uint64) (types.PoolConfig, types.ProviderAccount, *aggregate.Tracker, error) {
	cfg, err := loadConfig(ctx, tx)
	if err != nil {
		return cfg, nil, nil, err
	}
	account, ok, err := loadProvider(ctx, tx, provider)
	if err != nil {
		return cfg, nil, nil, err
	}
	if !ok {
		return cfg, nil, nil, fmt.Errorf("%w: %s", ErrProviderNotFound, provider)
	}
	if _, err := loadToken(ctx, tx, assetID); err != nil {
		return cfg, nil, nil, err
	}

	tracker := aggregate.NewTracker()
	account, _, err = settleAccount(account, ts, tracker)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, account, tracker, nil
}

// --- Admin ---

// ConfigUpdate lists the configuration fields to change. Nil fields are left as they are.
type ConfigUpdate struct {
	Admin               *string            `json:"admin,omitempty"`
	SwapFeeRate         *sdkmath.LegacyDec `json:"swap_fee_rate,omitempty"`
	Window              *time.Duration     `json:"window,omitempty"`
	UnbondingPeriod     *time.Duration     `json:"unbonding_period,omitempty"`
	PriceStalenessBound *time.Duration     `json:"price_staleness_bound,omitempty"`
}

func (u ConfigUpdate) apply(cfg types.PoolConfig) types.PoolConfig {
	if u.Admin != nil {
		cfg.Admin = *u.Admin
	}
	if u.SwapFeeRate != nil {
		cfg.SwapFeeRate = *u.SwapFeeRate
	}
	if u.Window != nil {
		cfg.Window = *u.Window
	}
	if u.UnbondingPeriod != nil {
		cfg.UnbondingPeriod = *u.UnbondingPeriod
	}
	if u.PriceStalenessBound != nil {
		cfg.PriceStalenessBound = *u.PriceStalenessBound
	}
	return cfg
}

// UpdateConfig replaces the configured fields. Only the admin may call it.
func (p *Pool) UpdateConfig(ctx context.Context, now time.Time, sender string, update ConfigUpdate) (types.Response, error) {
	if update.Admin != nil {
		if err := p.validateAddress(*update.Admin); err != nil {
			return types.Response{}, err
		}
	}

	return p.execute(ctx, "update_config", now, func(tx state.Tx, op *operation) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if sender != cfg.Admin {
			return ErrUnauthorized
		}

		next := update.apply(cfg)
		if err := next.Validate(); err != nil {
			return err
		}
		if err := state.Save(ctx, tx, configKey, next); err != nil {
			return err
		}

		op.attr("admin", next.Admin)
		op.attr("swap_fee_rate", next.SwapFeeRate.String())
		op.attr("window", next.Window.String())
		op.attr("unbonding_period", next.UnbondingPeriod.String())
		op.attr("price_staleness_bound", next.PriceStalenessBound.String())
		return nil
	})
}

// RegisterOrUpdateAsset creates the aggregate of a new asset or updates the metadata of a
// registered one. Series are never touched.
func (p *Pool) RegisterOrUpdateAsset(ctx context.Context, now time.Time, sender, assetID, symbol, priceFeedRef string) (types.Response, error) {
	if err := validateAssetID(assetID); err != nil {
		return types.Response{}, err
	}

	return p.execute(ctx, "register_asset", now, func(tx state.Tx, op *operation) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if sender != cfg.Admin {
			return ErrUnauthorized
		}

		created := false
		err = state.Update(ctx, tx, tokenKey(assetID), func(token types.AssetAggregate, exists bool) (types.AssetAggregate, error) {
			if !exists {
				created = true
				return types.NewAssetAggregate(assetID, symbol, priceFeedRef), nil
			}
			token.Symbol = symbol
			token.PriceFeedRef = priceFeedRef
			return token, nil
		})
		if err != nil {
			return err
		}

		op.attr("asset", assetID)
		op.attr("symbol", symbol)
		op.attr("price_feed", priceFeedRef)
		op.attr("created", strconv.FormatBool(created))
		return nil
	})
}

/*

This is the singleton configuration of the pool. It is mutated only through an admin-authorized update.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

var ErrConfigInvalid = errors.New("pool configuration is invalid")

// PoolConfig holds the tunable protocol parameters.
type PoolConfig struct {
	Admin               string            `json:"admin"`
	SwapFeeRate         sdkmath.LegacyDec `json:"swap_fee_rate"`         // In [0, 1), e.g., 0.003
	Window              time.Duration     `json:"window"`                // SMA window
	UnbondingPeriod     time.Duration     `json:"unbonding_period"`      // Delay between unbond and withdrawable
	PriceStalenessBound time.Duration     `json:"price_staleness_bound"` // Max accepted price age
}

// Validate checks the invariants of the configuration.
func (c PoolConfig) Validate() error {
	if c.Admin == "" {
		return fmt.Errorf("%w: admin cannot be empty", ErrConfigInvalid)
	}
	if c.SwapFeeRate.IsNil() || c.SwapFeeRate.IsNegative() {
		return fmt.Errorf("%w: swap fee rate must be non-negative", ErrConfigInvalid)
	}
	if c.SwapFeeRate.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: swap fee rate %s must be below 1", ErrConfigInvalid, c.SwapFeeRate)
	}
	if c.Window < 0 || c.UnbondingPeriod < 0 || c.PriceStalenessBound < 0 {
		return fmt.Errorf("%w: durations cannot be negative", ErrConfigInvalid)
	}
	return nil
}

// WindowSeconds returns the SMA window in whole seconds.
func (c PoolConfig) WindowSeconds() uint64 {
	return Seconds(c.Window)
}

// UnbondingSeconds returns the unbonding period in whole seconds.
func (c PoolConfig) UnbondingSeconds() uint64 {
	return Seconds(c.UnbondingPeriod)
}

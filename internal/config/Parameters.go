/*

This file contains the default pool parameters.

*/

package config

import (
	"time"

	"github.com/elys-network/fluxpool/internal/types"
)

const (
	DefaultSwapFeeRate         = "0.003"
	DefaultWindow              = time.Hour
	DefaultUnbondingPeriod     = 7 * 24 * time.Hour
	DefaultPriceStalenessBound = time.Minute
)

// DefaultPoolConfig returns the baseline configuration for a new pool administered by admin.
func DefaultPoolConfig(admin string) types.PoolConfig {
	return types.PoolConfig{
		Admin:       admin,
		SwapFeeRate: decOrZero(DefaultSwapFeeRate), // 0.3% of every swap goes to providers.

		Window: DefaultWindow,
		// One hour of history smooths single large swaps out of the volume ratio
		// while still reacting within the day.

		UnbondingPeriod:     DefaultUnbondingPeriod,
		PriceStalenessBound: DefaultPriceStalenessBound, // Pyth publishes several times per second.
	}
}

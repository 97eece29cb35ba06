// Package bonding implements the per-asset bonding state machine of a liquidity provider.
//
// A position moves funds bonded -> requested -> unbonded -> withdrawn. The requested -> unbonded
// step is lazy: it is applied by Settle at the start of every mutating operation once the
// position's maturity has been reached.
package bonding

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Settle moves a matured requested balance into unbonded and returns the amount that matured.
// Calling it again without time passing or new requests matures nothing.
func Settle(pos types.AssetPosition, now uint64) (types.AssetPosition, sdkmath.Int, error) {
	pos = pos.Normalize()
	if !pos.Requested.IsPositive() || pos.Maturity > now {
		return pos, sdkmath.ZeroInt(), nil
	}

	matured := pos.Requested
	unbonded, err := utils.CheckedAdd(pos.Unbonded, matured)
	if err != nil {
		return pos, sdkmath.ZeroInt(), err
	}
	pos.Unbonded = unbonded
	pos.Requested = sdkmath.ZeroInt()
	return pos, matured, nil
}

// Deposit settles the position and bonds amount.
func Deposit(pos types.AssetPosition, amount sdkmath.Int, now uint64) (types.AssetPosition, error) {
	pos, _, err := Settle(pos, now)
	if err != nil {
		return pos, err
	}
	bonded, err := utils.CheckedAdd(pos.Bonded, amount)
	if err != nil {
		return pos, err
	}
	pos.Bonded = bonded
	return pos, nil
}

// Unbond settles the position and moves amount from bonded to requested. The maturity of the
// whole requested balance restarts at now + period.
func Unbond(pos types.AssetPosition, amount sdkmath.Int, now, period uint64) (types.AssetPosition, error) {
	settled, _, err := Settle(pos, now)
	if err != nil {
		return pos, err
	}
	if settled.Bonded.LT(amount) {
		return pos, fmt.Errorf("%w: %s bonded %s, unbond %s", ErrInsufficientFunds, settled.AssetID, settled.Bonded, amount)
	}
	if period > math.MaxUint64-now {
		return pos, fmt.Errorf("%w: maturity %d + %d", utils.ErrOverflow, now, period)
	}

	requested, err := utils.CheckedAdd(settled.Requested, amount)
	if err != nil {
		return pos, err
	}
	settled.Bonded = settled.Bonded.Sub(amount)
	settled.Requested = requested
	settled.Maturity = now + period
	return settled, nil
}

// Withdraw settles the position and removes amount from unbonded.
func Withdraw(pos types.AssetPosition, amount sdkmath.Int, now uint64) (types.AssetPosition, error) {
	settled, _, err := Settle(pos, now)
	if err != nil {
		return pos, err
	}
	if settled.Unbonded.LT(amount) {
		return pos, fmt.Errorf("%w: %s unbonded %s, withdraw %s", ErrInsufficientFunds, settled.AssetID, settled.Unbonded, amount)
	}
	settled.Unbonded = settled.Unbonded.Sub(amount)
	return settled, nil
}

/*

This file contains the per-provider bookkeeping types: one AssetPosition per asset the provider ever touched.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// AssetPosition tracks a provider's balances in a single asset.
type AssetPosition struct {
	AssetID   string      `json:"asset_id"`
	Bonded    sdkmath.Int `json:"bonded"`    // Earning fee share
	Unbonded  sdkmath.Int `json:"unbonded"`  // Withdrawable
	Requested sdkmath.Int `json:"requested"` // Waiting for maturity
	Maturity  uint64      `json:"maturity"`  // Unix seconds at which Requested becomes Unbonded
	Rewards   sdkmath.Int `json:"rewards"`   // Unclaimed swap fee rewards, denominated in AssetID
}

// NewAssetPosition returns a zero position that matures at now.
func NewAssetPosition(assetID string, now uint64) AssetPosition {
	return AssetPosition{
		AssetID:   assetID,
		Bonded:    sdkmath.ZeroInt(),
		Unbonded:  sdkmath.ZeroInt(),
		Requested: sdkmath.ZeroInt(),
		Maturity:  now,
		Rewards:   sdkmath.ZeroInt(),
	}
}

// IsEmpty reports whether all four balances are zero.
func (p AssetPosition) IsEmpty() bool {
	return p.Bonded.IsZero() && p.Unbonded.IsZero() && p.Requested.IsZero() && p.Rewards.IsZero()
}

// Normalize replaces nil amounts (e.g. from sparse JSON) with zero.
func (p AssetPosition) Normalize() AssetPosition {
	if p.Bonded.IsNil() {
		p.Bonded = sdkmath.ZeroInt()
	}
	if p.Unbonded.IsNil() {
		p.Unbonded = sdkmath.ZeroInt()
	}
	if p.Requested.IsNil() {
		p.Requested = sdkmath.ZeroInt()
	}
	if p.Rewards.IsNil() {
		p.Rewards = sdkmath.ZeroInt()
	}
	return p
}

// ProviderAccount is the insertion-ordered list of a provider's positions.
type ProviderAccount []AssetPosition

// Find returns the index of the asset's position, or -1.
func (a ProviderAccount) Find(assetID string) int {
	for i, pos := range a {
		if pos.AssetID == assetID {
			return i
		}
	}
	return -1
}

// Clone returns a copy that can be mutated without affecting the receiver.
func (a ProviderAccount) Clone() ProviderAccount {
	out := make(ProviderAccount, len(a))
	copy(out, a)
	return out
}

// Provider pairs a provider identity with its account, as returned by ordered range queries.
type Provider struct {
	Address   string          `json:"address"`
	Positions ProviderAccount `json:"positions"`
}

package bonding

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionOrDefault(t *testing.T) {
	account := types.ProviderAccount{types.NewAssetPosition("uatom", 5)}
	account[0].Bonded = sdkmath.NewInt(7)

	assert.Equal(t, "7", PositionOrDefault(account, "uatom", 10).Bonded.String())

	missing := PositionOrDefault(account, "uosmo", 10)
	assert.Equal(t, "uosmo", missing.AssetID)
	assert.True(t, missing.IsEmpty())
	assert.Equal(t, uint64(10), missing.Maturity)
}

func TestPutKeepsInsertionOrder(t *testing.T) {
	var account types.ProviderAccount
	account = Put(account, types.NewAssetPosition("b", 0))
	account = Put(account, types.NewAssetPosition("a", 0))

	updated := types.NewAssetPosition("b", 0)
	updated.Bonded = sdkmath.NewInt(3)
	account = Put(account, updated)

	require.Len(t, account, 2)
	assert.Equal(t, "b", account[0].AssetID)
	assert.Equal(t, "3", account[0].Bonded.String())
	assert.Equal(t, "a", account[1].AssetID)
}

func TestSettleAccount(t *testing.T) {
	a := types.NewAssetPosition("a", 0)
	a.Requested = sdkmath.NewInt(4)
	a.Maturity = 50
	b := types.NewAssetPosition("b", 0)
	b.Requested = sdkmath.NewInt(9)
	b.Maturity = 200
	account := types.ProviderAccount{a, b}

	settled, matured, err := SettleAccount(account, 100)
	require.NoError(t, err)
	assert.Equal(t, "4", settled[0].Unbonded.String())
	assert.Equal(t, "9", settled[1].Requested.String())
	assert.Len(t, matured, 1)
	assert.Equal(t, "4", matured["a"].String())

	// input is untouched
	assert.Equal(t, "4", account[0].Requested.String())
}

func TestPrune(t *testing.T) {
	kept := types.NewAssetPosition("kept", 0)
	kept.Rewards = sdkmath.NewInt(1)
	account := types.ProviderAccount{types.NewAssetPosition("gone", 0), kept}

	pruned := Prune(account)
	require.Len(t, pruned, 1)
	assert.Equal(t, "kept", pruned[0].AssetID)
}

func TestCreditAndTakeRewards(t *testing.T) {
	var account types.ProviderAccount
	var err error

	account, err = CreditRewards(account, "a", sdkmath.NewInt(3), 0)
	require.NoError(t, err)
	account, err = CreditRewards(account, "a", sdkmath.NewInt(4), 0)
	require.NoError(t, err)
	account, err = CreditRewards(account, "b", sdkmath.NewInt(1), 0)
	require.NoError(t, err)

	account, taken := TakeRewards(account)
	require.Len(t, taken, 2)
	assert.Equal(t, "a", taken[0].AssetID)
	assert.Equal(t, "7", taken[0].Amount.String())
	assert.Equal(t, "1", taken[1].Amount.String())
	for _, pos := range account {
		assert.True(t, pos.Rewards.IsZero())
	}

	_, taken = TakeRewards(account)
	assert.Empty(t, taken)
}

package bonding

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
)

// Reward is an amount of a single asset owed to a provider.
type Reward struct {
	AssetID string
	Amount  sdkmath.Int
}

// SettleAccount settles every position of the account and reports what matured per asset.
func SettleAccount(account types.ProviderAccount, now uint64) (types.ProviderAccount, map[string]sdkmath.Int, error) {
	settled := account.Clone()
	matured := make(map[string]sdkmath.Int)
	for i, pos := range settled {
		next, amount, err := Settle(pos, now)
		if err != nil {
			return account, nil, err
		}
		settled[i] = next
		if amount.IsPositive() {
			matured[pos.AssetID] = amount
		}
	}
	return settled, matured, nil
}

// PositionOrDefault returns the account's position in asset, or a zero position maturing at now.
func PositionOrDefault(account types.ProviderAccount, assetID string, now uint64) types.AssetPosition {
	if i := account.Find(assetID); i >= 0 {
		return account[i].Normalize()
	}
	return types.NewAssetPosition(assetID, now)
}

// Put replaces the position for pos.AssetID, appending it if the asset is new to the account.
func Put(account types.ProviderAccount, pos types.AssetPosition) types.ProviderAccount {
	out := account.Clone()
	if i := out.Find(pos.AssetID); i >= 0 {
		out[i] = pos
		return out
	}
	return append(out, pos)
}

// Prune drops positions whose balances are all zero, keeping the order of the rest.
func Prune(account types.ProviderAccount) types.ProviderAccount {
	out := make(types.ProviderAccount, 0, len(account))
	for _, pos := range account {
		if pos.Normalize().IsEmpty() {
			continue
		}
		out = append(out, pos)
	}
	return out
}

// CreditRewards adds amount to the rewards of the asset's position, creating it when absent.
func CreditRewards(account types.ProviderAccount, assetID string, amount sdkmath.Int, now uint64) (types.ProviderAccount, error) {
	pos := PositionOrDefault(account, assetID, now)
	rewards, err := utils.CheckedAdd(pos.Rewards, amount)
	if err != nil {
		return account, err
	}
	pos.Rewards = rewards
	return Put(account, pos), nil
}

// TakeRewards zeroes every reward balance and returns the non-zero ones in position order.
func TakeRewards(account types.ProviderAccount) (types.ProviderAccount, []Reward) {
	out := account.Clone()
	var taken []Reward
	for i, pos := range out {
		pos = pos.Normalize()
		if pos.Rewards.IsPositive() {
			taken = append(taken, Reward{AssetID: pos.AssetID, Amount: pos.Rewards})
		}
		pos.Rewards = sdkmath.ZeroInt()
		out[i] = pos
	}
	return out, taken
}

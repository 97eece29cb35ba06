/*

This is the global per-asset state. Every balance and swap volume is kept as a sample series so the
pool can weight fee distribution by recent activity rather than by a single snapshot.

*/

package types

// AssetAggregate is the pool-wide state of a registered asset.
type AssetAggregate struct {
	AssetID      string       `json:"asset_id"`       // e.g., "inj1...", the token contract address
	Symbol       string       `json:"symbol"`         // e.g., "ATOM"
	PriceFeedRef string       `json:"price_feed_ref"` // e.g., "0x61226d...", a Pyth price feed id
	Bonded       SampleSeries `json:"bonded"`         // Total bonded by all providers
	Unbonded     SampleSeries `json:"unbonded"`       // Total unbonded (withdrawable) by all providers
	Requested    SampleSeries `json:"requested"`      // Total waiting for maturity
	SwappedIn    SampleSeries `json:"swapped_in"`     // Per-swap amounts received, net of fee
	SwappedOut   SampleSeries `json:"swapped_out"`    // Per-swap amounts paid out
}

// NewAssetAggregate returns a freshly registered asset with empty series.
func NewAssetAggregate(assetID, symbol, priceFeedRef string) AssetAggregate {
	return AssetAggregate{
		AssetID:      assetID,
		Symbol:       symbol,
		PriceFeedRef: priceFeedRef,
		Bonded:       NewSampleSeries(),
		Unbonded:     NewSampleSeries(),
		Requested:    NewSampleSeries(),
		SwappedIn:    NewSampleSeries(),
		SwappedOut:   NewSampleSeries(),
	}
}

// Package aggregate maintains the pool-wide per-asset sample series.
//
// Balance series (bonded, unbonded, requested) hold running totals across all providers, so the
// newest sample of each is the current total. Swap series hold the amount of each swap. A Tracker
// collects the changes of one operation and Apply turns them into exactly one new sample per
// touched series.
package aggregate

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/series"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
)

var (
	ErrUnknownAsset  = errors.New("asset has no aggregate")
	ErrNegativeTotal = errors.New("aggregate total would become negative")
)

// Field selects one of the five series of an AssetAggregate.
type Field int

const (
	Bonded Field = iota
	Unbonded
	Requested
	SwappedIn
	SwappedOut
)

func (f Field) String() string {
	switch f {
	case Bonded:
		return "bonded"
	case Unbonded:
		return "unbonded"
	case Requested:
		return "requested"
	case SwappedIn:
		return "swapped_in"
	case SwappedOut:
		return "swapped_out"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

func (f Field) isBalance() bool {
	return f == Bonded || f == Unbonded || f == Requested
}

type change struct {
	asset string
	field Field
}

// Tracker accumulates the effect of one operation on the aggregates.
// Balance fields accumulate signed deltas; swap fields accumulate the swapped amount.
type Tracker struct {
	amounts map[change]sdkmath.Int
	order   []change
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{amounts: make(map[change]sdkmath.Int)}
}

func (t *Tracker) add(asset string, field Field, amount sdkmath.Int) {
	if amount.IsNil() || amount.IsZero() {
		return
	}
	key := change{asset: asset, field: field}
	current, ok := t.amounts[key]
	if !ok {
		t.order = append(t.order, key)
		current = sdkmath.ZeroInt()
	}
	t.amounts[key] = current.Add(amount)
}

// Increase records amount flowing into a balance field, or an amount swapped for a swap field.
func (t *Tracker) Increase(asset string, field Field, amount sdkmath.Int) {
	t.add(asset, field, amount)
}

// Decrease records amount leaving a balance field.
func (t *Tracker) Decrease(asset string, field Field, amount sdkmath.Int) {
	if amount.IsNil() {
		return
	}
	t.add(asset, field, amount.Neg())
}

// Move records amount leaving one balance field and entering another.
func (t *Tracker) Move(asset string, from, to Field, amount sdkmath.Int) {
	t.Decrease(asset, from, amount)
	t.Increase(asset, to, amount)
}

// Empty reports whether nothing was recorded.
func (t *Tracker) Empty() bool {
	return len(t.order) == 0
}

// Assets returns the touched assets in first-touch order.
func (t *Tracker) Assets() []string {
	seen := make(map[string]bool)
	var assets []string
	for _, c := range t.order {
		if !seen[c.asset] {
			seen[c.asset] = true
			assets = append(assets, c.asset)
		}
	}
	return assets
}

// Apply appends one sample at now to every touched series and returns the updated aggregates
// keyed by asset. The input map is not modified. A balance whose accumulated delta nets to zero
// is still sampled, because the operation touched it.
func (t *Tracker) Apply(aggregates map[string]types.AssetAggregate, now, window uint64) (map[string]types.AssetAggregate, error) {
	updated := make(map[string]types.AssetAggregate, len(t.Assets()))
	for _, c := range t.order {
		agg, ok := updated[c.asset]
		if !ok {
			agg, ok = aggregates[c.asset]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, c.asset)
			}
		}

		s := seriesOf(&agg, c.field)
		value, err := t.nextValue(*s, c)
		if err != nil {
			return nil, err
		}
		next, err := series.Append(*s, types.NewSample(value, now), window)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", c.asset, c.field, err)
		}
		*s = next
		updated[c.asset] = agg
	}
	return updated, nil
}

func (t *Tracker) nextValue(s types.SampleSeries, c change) (sdkmath.Int, error) {
	amount := t.amounts[c]
	if !c.field.isBalance() {
		return amount, nil
	}
	total, err := utils.CheckedAdd(s.Current(), amount)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if total.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s %s total %s, delta %s", ErrNegativeTotal, c.asset, c.field, s.Current(), amount)
	}
	return total, nil
}

func seriesOf(agg *types.AssetAggregate, field Field) *types.SampleSeries {
	switch field {
	case Bonded:
		return &agg.Bonded
	case Unbonded:
		return &agg.Unbonded
	case Requested:
		return &agg.Requested
	case SwappedIn:
		return &agg.SwappedIn
	default:
		return &agg.SwappedOut
	}
}

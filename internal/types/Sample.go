/*

Samples and sample series are the raw material of every simple moving average the pool keeps.
Timestamps are Unix seconds, the same resolution as block time.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

var ErrInvalidTimestamp = errors.New("timestamp is before the Unix epoch")

// Sample is a single (value, timestamp) observation.
type Sample struct {
	Value     sdkmath.Int `json:"value"`
	Timestamp uint64      `json:"timestamp"` // Unix seconds
}

// NewSample builds a sample, normalizing a nil value to zero.
func NewSample(value sdkmath.Int, timestamp uint64) Sample {
	if value.IsNil() {
		value = sdkmath.ZeroInt()
	}
	return Sample{Value: value, Timestamp: timestamp}
}

// SampleSeries is an ordered, time non-decreasing list of samples together with
// the time-weighted average over the configured window.
type SampleSeries struct {
	Samples []Sample    `json:"samples"`
	SMA     sdkmath.Int `json:"sma"`
}

// NewSampleSeries returns an empty series with a zero average.
func NewSampleSeries() SampleSeries {
	return SampleSeries{Samples: []Sample{}, SMA: sdkmath.ZeroInt()}
}

// Current returns the value of the newest sample, or zero for an empty series.
func (s SampleSeries) Current() sdkmath.Int {
	if len(s.Samples) == 0 {
		return sdkmath.ZeroInt()
	}
	return s.Samples[len(s.Samples)-1].Value
}

// Average returns the stored SMA, zero if it was never computed.
func (s SampleSeries) Average() sdkmath.Int {
	if s.SMA.IsNil() {
		return sdkmath.ZeroInt()
	}
	return s.SMA
}

// Timestamp converts a wall-clock instant into Unix seconds.
func Timestamp(t time.Time) (uint64, error) {
	secs := t.Unix()
	if secs < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTimestamp, t.UTC().Format(time.RFC3339))
	}
	return uint64(secs), nil
}

// Seconds converts a duration into whole seconds, clamping negatives to zero.
func Seconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}

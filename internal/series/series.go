// Package series implements the windowed, time-weighted simple moving average over
// irregularly timed samples. The series is treated as a piecewise-linear function of time.
package series

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/types"
)

var (
	ErrEmptySeries         = errors.New("sample series is empty")
	ErrWindowTooLarge      = errors.New("window is larger than the newest timestamp")
	ErrDegenerateInterval  = errors.New("interpolation interval is degenerate")
	ErrPointBeforeInterval = errors.New("query point is before interval start")
	ErrInvertedSpan        = errors.New("sample timestamps are not ordered")
	ErrOutOfOrderSample    = errors.New("sample is older than the newest sample in the series")
)

// Interpolate returns the value at t on the line through left and right.
// Unsigned arithmetic is kept by branching on the direction of the segment.
func Interpolate(left, right types.Sample, t uint64) (sdkmath.Int, error) {
	if left.Value.Equal(right.Value) || t == left.Timestamp {
		return left.Value, nil
	}
	if right.Timestamp <= left.Timestamp {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: [%d, %d]", ErrDegenerateInterval, left.Timestamp, right.Timestamp)
	}
	if t < left.Timestamp {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d < %d", ErrPointBeforeInterval, t, left.Timestamp)
	}

	elapsed := sdkmath.NewIntFromUint64(t - left.Timestamp)
	span := sdkmath.NewIntFromUint64(right.Timestamp - left.Timestamp)

	if right.Value.GT(left.Value) {
		delta := right.Value.Sub(left.Value).Mul(elapsed).Quo(span)
		return left.Value.Add(delta), nil
	}
	delta := left.Value.Sub(right.Value).Mul(elapsed).Quo(span)
	return left.Value.Sub(delta), nil
}

// Area returns the trapezoidal area under the segment between two samples, floored.
func Area(left, right types.Sample) (sdkmath.Int, error) {
	doubled, err := doubledArea(left, right)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return doubled.QuoRaw(2), nil
}

func doubledArea(left, right types.Sample) (sdkmath.Int, error) {
	if right.Timestamp < left.Timestamp {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d after %d", ErrInvertedSpan, left.Timestamp, right.Timestamp)
	}
	width := sdkmath.NewIntFromUint64(right.Timestamp - left.Timestamp)
	return left.Value.Add(right.Value).Mul(width), nil
}

// Frame fits samples to the trailing window ending at the newest sample.
//
// Samples older than the boundary are dropped and replaced by a single sample
// interpolated at the boundary. When the window reaches back before the oldest
// sample, a zero sample is placed at the boundary instead, so a series that is still
// filling up averages in the time it had no value.
func Frame(samples []types.Sample, window uint64) ([]types.Sample, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySeries
	}

	newest := samples[len(samples)-1].Timestamp
	if window > newest {
		return nil, fmt.Errorf("%w: window %d, newest timestamp %d", ErrWindowTooLarge, window, newest)
	}
	boundary := newest - window
	oldest := samples[0].Timestamp

	if oldest > boundary {
		framed := make([]types.Sample, 0, len(samples)+1)
		framed = append(framed, types.NewSample(sdkmath.ZeroInt(), boundary))
		return append(framed, samples...), nil
	}

	if oldest == boundary {
		framed := make([]types.Sample, len(samples))
		copy(framed, samples)
		return framed, nil
	}

	var left types.Sample
	framed := make([]types.Sample, 0, len(samples))
	for _, s := range samples {
		if s.Timestamp < boundary {
			left = s
			continue
		}
		framed = append(framed, s)
	}

	right := framed[0]
	if right.Timestamp == boundary {
		// already anchored
		return framed, nil
	}

	value, err := Interpolate(left, right, boundary)
	if err != nil {
		return nil, err
	}
	return append([]types.Sample{types.NewSample(value, boundary)}, framed...), nil
}

// Average returns the time-weighted average of the piecewise-linear function through
// samples, floored. A single sample averages to its own value.
func Average(samples []types.Sample) (sdkmath.Int, error) {
	if len(samples) == 0 {
		return sdkmath.ZeroInt(), ErrEmptySeries
	}
	last := samples[len(samples)-1]
	if len(samples) == 1 {
		return last.Value, nil
	}

	first := samples[0]
	if last.Timestamp < first.Timestamp {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: span [%d, %d]", ErrInvertedSpan, first.Timestamp, last.Timestamp)
	}

	sum := sdkmath.ZeroInt()
	for i := 1; i < len(samples); i++ {
		area, err := doubledArea(samples[i-1], samples[i])
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		sum = sum.Add(area)
	}

	span := last.Timestamp - first.Timestamp
	if span == 0 {
		return last.Value, nil
	}
	return sum.Quo(sdkmath.NewIntFromUint64(span).MulRaw(2)), nil
}

// Append adds sample as the newest observation, refits the window and recomputes the
// average. The input series is left untouched.
func Append(s types.SampleSeries, sample types.Sample, window uint64) (types.SampleSeries, error) {
	if n := len(s.Samples); n > 0 && sample.Timestamp < s.Samples[n-1].Timestamp {
		return s, fmt.Errorf("%w: %d < %d", ErrOutOfOrderSample, sample.Timestamp, s.Samples[n-1].Timestamp)
	}

	updated := make([]types.Sample, 0, len(s.Samples)+1)
	updated = append(updated, s.Samples...)
	updated = append(updated, types.NewSample(sample.Value, sample.Timestamp))

	framed, err := Frame(updated, window)
	if err != nil {
		return s, err
	}
	sma, err := Average(framed)
	if err != nil {
		return s, err
	}

	return types.SampleSeries{Samples: framed, SMA: sma}, nil
}

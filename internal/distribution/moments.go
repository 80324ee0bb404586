// Package distribution computes statistics of trait distributions: agent
// counts per trait class measured against a fixed bin axis.
package distribution

import (
	"errors"
	"fmt"
	"math"

	"github.com/chrissnell/traitlag/internal/series"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrAxisMismatch is returned when a histogram and its axis differ in length.
	ErrAxisMismatch = errors.New("histogram length does not match bin axis")

	// ErrAxisNotIncreasing is returned for axes that are not strictly increasing.
	ErrAxisNotIncreasing = errors.New("bin axis must be strictly increasing with at least two points")
)

// Standard axis: 201 trait classes from 5.0 to 25.0 in steps of 0.1.
const (
	StandardStart = 5.0
	StandardStop  = 25.0
	StandardBins  = 201
)

// Axis holds the trait value at the center of each bin.
type Axis []float64

// NewAxis returns n evenly spaced bin centers from start to stop inclusive.
func NewAxis(start, stop float64, n int) (Axis, error) {
	if n < 2 || !(stop > start) {
		return nil, fmt.Errorf("%w: start=%g stop=%g n=%d", ErrAxisNotIncreasing, start, stop, n)
	}
	return Axis(floats.Span(make([]float64, n), start, stop)), nil
}

// StandardAxis returns the 5.0..25.0 axis with 201 bins.
func StandardAxis() Axis {
	a, _ := NewAxis(StandardStart, StandardStop, StandardBins)
	return a
}

// Validate checks that the axis is strictly increasing.
func (a Axis) Validate() error {
	if len(a) < 2 {
		return ErrAxisNotIncreasing
	}
	for i := 1; i < len(a); i++ {
		if !(a[i] > a[i-1]) {
			return fmt.Errorf("%w: a[%d]=%g, a[%d]=%g", ErrAxisNotIncreasing, i-1, a[i-1], i, a[i])
		}
	}
	return nil
}

// Shift returns a copy of the axis moved by d, for traces whose bins are
// labelled by their left edge.
func (a Axis) Shift(d float64) Axis {
	out := make(Axis, len(a))
	copy(out, a)
	floats.AddConst(d, out)
	return out
}

// Min returns the first bin center.
func (a Axis) Min() float64 { return a[0] }

// Max returns the last bin center.
func (a Axis) Max() float64 { return a[len(a)-1] }

// Moments summarises one snapshot. Mean and Variance are NaN when Total is
// zero.
type Moments struct {
	Mean     float64
	Variance float64
	Total    int64
}

// StdDev returns the population standard deviation.
func (m Moments) StdDev() float64 {
	return math.Sqrt(m.Variance)
}

// Defined reports whether the snapshot had any agents.
func (m Moments) Defined() bool {
	return m.Total != 0
}

// SnapshotMoments computes the count-weighted mean and population variance
// of the axis values.
func SnapshotMoments(counts []int32, axis Axis) (Moments, error) {
	if len(counts) != len(axis) {
		return Moments{}, fmt.Errorf("%w: %d counts, %d bins", ErrAxisMismatch, len(counts), len(axis))
	}

	weights := make([]float64, len(counts))
	var total int64
	ref := -1
	for i, c := range counts {
		weights[i] = float64(c)
		total += int64(c)
		if ref < 0 && c != 0 {
			ref = i
		}
	}

	if total == 0 {
		return Moments{Mean: math.NaN(), Variance: math.NaN()}, nil
	}

	// Deviations are taken from the first occupied bin, so a single occupied
	// bin yields its centre exactly.
	dev := make([]float64, len(axis))
	floats.AddConst(-axis[ref], dev)
	floats.Add(dev, axis)

	n := float64(total)
	shift := floats.Dot(weights, dev) / n
	var ss float64
	for i, w := range weights {
		if w != 0 {
			d := dev[i] - shift
			ss += w * d * d
		}
	}
	return Moments{Mean: axis[ref] + shift, Variance: ss / n, Total: total}, nil
}

// MeanSeries returns the mean trait of every row of t, NaN for rows with no
// agents.
func MeanSeries(t *series.Table, field string, axis Axis) ([]float64, error) {
	out := make([]float64, t.Len())
	for i := range out {
		counts, err := t.Counts(i, field)
		if err != nil {
			return nil, err
		}
		m, err := SnapshotMoments(counts, axis)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t.Offset()+i, err)
		}
		out[i] = m.Mean
	}
	return out, nil
}

// TotalSeries returns the number of agents in every row of t.
func TotalSeries(t *series.Table, field string) ([]float64, error) {
	out := make([]float64, t.Len())
	for i := range out {
		counts, err := t.Counts(i, field)
		if err != nil {
			return nil, err
		}
		var total int64
		for _, c := range counts {
			total += int64(c)
		}
		out[i] = float64(total)
	}
	return out, nil
}

// Amplitude returns half the peak-to-peak range of x, ignoring NaN. It is
// NaN when x has no finite values.
func Amplitude(x []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return math.NaN()
	}
	return (hi - lo) / 2
}

// WithinTolerance reports whether |value-target| < tol. NaN is never within
// tolerance.
func WithinTolerance(value, target, tol float64) bool {
	return math.Abs(value-target) < tol
}

package distribution

import (
	"math"

	"github.com/chrissnell/traitlag/internal/series"
	"gonum.org/v1/gonum/floats"
)

// truncate is the kernel half-width in standard deviations.
const truncate = 4.0

// DefaultDensityFloor is the smallest value kept in a density field, so a
// log color scale never sees zero.
const DefaultDensityFloor = 0.1

// Smooth applies a separable Gaussian filter to m with standard deviation
// sigmaRows along the first axis and sigmaCols along the second. Boundaries
// use half-sample reflection, so the edge sample is repeated. A sigma of
// zero leaves that axis untouched. m is not modified.
func Smooth(m [][]float64, sigmaRows, sigmaCols float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return out
	}

	if k := gaussianKernel(sigmaCols); k != nil {
		for i := range out {
			out[i] = convolve(out[i], k)
		}
	}

	if k := gaussianKernel(sigmaRows); k != nil {
		col := make([]float64, len(out))
		for j := range out[0] {
			for i := range out {
				col[i] = out[i][j]
			}
			smoothed := convolve(col, k)
			for i := range out {
				out[i][j] = smoothed[i]
			}
		}
	}

	return out
}

// DensityField returns the trait-by-time matrix of t (rows are bins,
// columns are steps), smoothed and clamped below at floor.
func DensityField(t *series.Table, field string, sigmaBins, sigmaSteps, floor float64) ([][]float64, error) {
	if t.Len() == 0 {
		return nil, nil
	}

	first, err := t.Counts(0, field)
	if err != nil {
		return nil, err
	}

	raw := make([][]float64, len(first))
	for b := range raw {
		raw[b] = make([]float64, t.Len())
	}
	for s := 0; s < t.Len(); s++ {
		counts, err := t.Counts(s, field)
		if err != nil {
			return nil, err
		}
		for b, c := range counts {
			raw[b][s] = float64(c)
		}
	}

	smoothed := Smooth(raw, sigmaBins, sigmaSteps)
	for _, row := range smoothed {
		for j, v := range row {
			if v < floor {
				row[j] = floor
			}
		}
	}
	return smoothed, nil
}

func gaussianKernel(sigma float64) []float64 {
	if !(sigma > 0) {
		return nil
	}
	radius := int(truncate*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	for i := range k {
		x := float64(i - radius)
		k[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

func convolve(x, k []float64) []float64 {
	n := len(x)
	radius := len(k) / 2
	out := make([]float64, n)
	for i := range x {
		var sum float64
		for j, w := range k {
			sum += w * x[reflect(i+j-radius, n)]
		}
		out[i] = sum
	}
	return out
}

// reflect maps an out-of-range index back into [0, n) by mirroring about
// the edges: d c b a | a b c d | d c b a.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

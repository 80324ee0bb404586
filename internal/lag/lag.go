// Package lag estimates the temporal offset between a driving series and a
// responding series.
//
// Two estimators are provided. PeakMatching is causal by construction and is
// the reference definition: a positive lag means the response peaks after
// the driver. CrossCorrelation uses the same sign convention, so a response
// delayed by d samples yields +d from both.
package lag

import (
	"math"
	"math/cmplx"
	"sort"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Method identifies the estimator that produced a Result.
type Method string

const (
	MethodCrossCorrelation Method = "cross-correlation"
	MethodPeakMatching     Method = "peak-matching"
)

// Result is a lag estimate in samples.
type Result struct {
	// Steps is the lag in samples; NaN when undefined.
	Steps float64
	// Method is the estimator used.
	Method Method
	// Matched is the number of peak pairs averaged (peak matching) or the
	// number of overlapping samples at the chosen lag (cross-correlation).
	Matched int
	// Peak is the normalised correlation at the chosen lag. NaN for peak
	// matching.
	Peak float64
}

func undefined(m Method) Result {
	return Result{Steps: math.NaN(), Method: m, Peak: math.NaN()}
}

// Defined reports whether the estimate exists.
func (r Result) Defined() bool {
	return !math.IsNaN(r.Steps)
}

// Duration converts the lag to simulated time. An undefined lag is zero;
// check Defined first.
func (r Result) Duration(interval time.Duration) time.Duration {
	if !r.Defined() {
		return 0
	}
	return time.Duration(r.Steps * float64(interval))
}

// In returns the lag expressed in unit, NaN when undefined.
func (r Result) In(interval, unit time.Duration) float64 {
	return r.Steps * float64(interval) / float64(unit)
}

// CorrelationOptions tunes CrossCorrelation.
type CorrelationOptions struct {
	// Normalize divides each centred series by its standard deviation.
	Normalize bool
}

// CrossCorrelation returns the lag k maximising Σ ref[n]·resp[n+k] over
// k in [-(N-1), N-1]; ties go to the lag closest to zero. Both series are
// centred on their NaN-aware mean and NaN samples contribute zero. If the
// lengths differ, the shorter tail of both is used. Two constant series
// correlate equally at every lag and so yield 0. The estimate is only
// meaningful over a stationary window; pass the output of Tail rather than
// a whole run.
func CrossCorrelation(ref, resp []float64, opts CorrelationOptions) Result {
	n := min(len(ref), len(resp))
	if n == 0 {
		return undefined(MethodCrossCorrelation)
	}

	a, okA := centre(ref[len(ref)-n:], opts.Normalize)
	b, okB := centre(resp[len(resp)-n:], opts.Normalize)
	if a == nil || b == nil {
		return undefined(MethodCrossCorrelation)
	}
	if !okA && !okB {
		return Result{Steps: 0, Method: MethodCrossCorrelation, Matched: n, Peak: math.NaN()}
	}
	if !okA || !okB {
		return undefined(MethodCrossCorrelation)
	}

	c := correlate(a, b)
	m := len(c)

	best, bestVal := 0, c[0]
	for d := 1; d < n; d++ {
		if c[d] > bestVal {
			best, bestVal = d, c[d]
		}
		if c[m-d] > bestVal {
			best, bestVal = -d, c[m-d]
		}
	}

	return Result{
		Steps:   float64(best),
		Method:  MethodCrossCorrelation,
		Matched: n - abs(best),
		Peak:    pearsonAt(a, b, best),
	}
}

// correlate returns the circular cross-correlation of a and b zero padded
// to at least 2n-1 samples, so that index k >= 0 holds lag k and index
// m+k holds lag k < 0. Values are scaled by a positive constant.
func correlate(a, b []float64) []float64 {
	m := 1
	for m < 2*len(a)-1 {
		m <<= 1
	}

	pa := make([]float64, m)
	pb := make([]float64, m)
	copy(pa, a)
	copy(pb, b)

	fft := fourier.NewFFT(m)
	ca := fft.Coefficients(nil, pa)
	cb := fft.Coefficients(nil, pb)
	for i := range ca {
		ca[i] = cmplx.Conj(ca[i]) * cb[i]
	}
	return fft.Sequence(nil, ca)
}

// pearsonAt is the correlation of the overlapping parts of a and b at lag k,
// normalised by the full-length norms.
func pearsonAt(a, b []float64, k int) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range a {
		j := i + k
		if j < 0 || j >= len(b) {
			continue
		}
		sum += a[i] * b[j]
	}
	return sum / (na * nb)
}

// centre subtracts the mean of the finite samples, optionally divides by
// their standard deviation, and zeroes NaN. It returns nil for a series
// with no finite samples; ok is false when the series does not vary.
func centre(x []float64, normalize bool) (out []float64, ok bool) {
	finite := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil, false
	}

	out = make([]float64, len(x))
	mean, variance := stat.PopMeanVariance(finite, nil)
	if !(variance > 0) {
		return out, false
	}
	scale := 1.0
	if normalize {
		scale = 1 / math.Sqrt(variance)
	}

	for i, v := range x {
		if math.IsNaN(v) {
			continue
		}
		out[i] = (v - mean) * scale
	}
	return out, true
}

// PeakOptions tunes PeakMatching.
type PeakOptions struct {
	// Distance is the minimum separation between peaks in one series, which
	// suppresses sub-period wiggles.
	Distance int
	// Window bounds the causal search: a response peak must fall in
	// [p, p+Window) of driver peak p. Zero or negative means unbounded.
	Window int
}

// PeakMatching pairs each driver peak with the first response peak at or
// after it inside the search window and returns the mean offset. The result
// is undefined when either series has no peaks or nothing matches.
func PeakMatching(ref, resp []float64, opts PeakOptions) Result {
	pr := FindPeaks(ref, opts.Distance)
	pq := FindPeaks(resp, opts.Distance)
	if len(pr) == 0 || len(pq) == 0 {
		return undefined(MethodPeakMatching)
	}

	diffs := make([]float64, 0, len(pr))
	for _, p := range pr {
		j := sort.SearchInts(pq, p)
		if j == len(pq) {
			break
		}
		if opts.Window > 0 && pq[j] >= p+opts.Window {
			continue
		}
		diffs = append(diffs, float64(pq[j]-p))
	}
	if len(diffs) == 0 {
		return undefined(MethodPeakMatching)
	}

	return Result{
		Steps:   stat.Mean(diffs, nil),
		Method:  MethodPeakMatching,
		Matched: len(diffs),
		Peak:    math.NaN(),
	}
}

// Tail returns the trailing fraction of x; Tail(x, 0.5) is the second half.
func Tail(x []float64, fraction float64) []float64 {
	fraction = math.Max(0, math.Min(1, fraction))
	return TailN(x, int(math.Ceil(fraction*float64(len(x)))))
}

// TailN returns the last n samples of x.
func TailN(x []float64, n int) []float64 {
	if n >= len(x) {
		return x
	}
	if n <= 0 {
		return x[len(x):]
	}
	return x[len(x)-n:]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

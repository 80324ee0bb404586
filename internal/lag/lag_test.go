package lag

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const period = 360

func sine(n, shift int, amplitude, offset float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = offset + amplitude*math.Sin(2*math.Pi*float64(i-shift)/period)
	}
	return x
}

var seasonal = PeakOptions{Distance: 300, Window: 180}

func TestIdenticalSeriesHaveZeroLag(t *testing.T) {
	x := sine(10*period, 0, 5, 15)

	xc := CrossCorrelation(x, x, CorrelationOptions{Normalize: true})
	require.True(t, xc.Defined())
	assert.Equal(t, 0.0, xc.Steps)
	assert.Equal(t, MethodCrossCorrelation, xc.Method)
	assert.InDelta(t, 1.0, xc.Peak, 1e-9)
	assert.Equal(t, len(x), xc.Matched)

	pm := PeakMatching(x, x, seasonal)
	require.True(t, pm.Defined())
	assert.Equal(t, 0.0, pm.Steps)
	assert.Equal(t, 10, pm.Matched)
	assert.Equal(t, MethodPeakMatching, pm.Method)
}

func TestPeakMatchingRecoversShift(t *testing.T) {
	for _, shift := range []int{1, 17, 30, 90, 150} {
		ref := sine(10*period, 0, 5, 15)
		resp := sine(10*period, shift, 5, 15)

		pm := PeakMatching(ref, resp, seasonal)
		require.True(t, pm.Defined(), "shift %d", shift)
		assert.InDelta(t, float64(shift), pm.Steps, 1, "shift %d", shift)
	}
}

func TestPeakMatchingIgnoresAmplitude(t *testing.T) {
	ref := sine(8*period, 0, 5, 15)
	resp := sine(8*period, 45, 1, 17)

	pm := PeakMatching(ref, resp, seasonal)
	assert.InDelta(t, 45, pm.Steps, 1)
}

func TestCrossCorrelationSignAgreesWithPeakMatching(t *testing.T) {
	ref := sine(20*period, 0, 5, 15)
	resp := sine(20*period, 30, 1, 15)

	pm := PeakMatching(ref, resp, seasonal)
	xc := CrossCorrelation(ref, resp, CorrelationOptions{Normalize: true})
	require.True(t, pm.Defined())
	require.True(t, xc.Defined())

	assert.InDelta(t, 30, pm.Steps, 1)
	assert.InDelta(t, pm.Steps, xc.Steps, 1)
	assert.Greater(t, xc.Steps, 0.0)

	// Swapping the roles flips the correlation lag.
	swapped := CrossCorrelation(resp, ref, CorrelationOptions{Normalize: true})
	assert.InDelta(t, -xc.Steps, swapped.Steps, 1)
}

func TestPeakMatchingIsCausal(t *testing.T) {
	ref := sine(10*period, 30, 5, 15)
	resp := sine(10*period, 0, 5, 15)

	// resp leads ref by 30 samples; the next resp peak after each ref peak
	// is 330 samples later, outside the half-period window.
	pm := PeakMatching(ref, resp, seasonal)
	assert.False(t, pm.Defined())
	assert.Zero(t, pm.Matched)
}

func TestPeakMatchingUndefinedWithoutPeaks(t *testing.T) {
	flat := make([]float64, 1000)
	x := sine(1000, 0, 1, 0)

	assert.True(t, math.IsNaN(PeakMatching(flat, x, seasonal).Steps))
	assert.True(t, math.IsNaN(PeakMatching(x, flat, seasonal).Steps))
	assert.False(t, PeakMatching(nil, nil, seasonal).Defined())
}

func TestCrossCorrelationUndefined(t *testing.T) {
	assert.False(t, CrossCorrelation(nil, []float64{1, 2}, CorrelationOptions{}).Defined())
	assert.False(t, CrossCorrelation([]float64{3, 3, 3}, []float64{1, 2, 3}, CorrelationOptions{}).Defined())

	nan := []float64{math.NaN(), math.NaN()}
	assert.False(t, CrossCorrelation(nan, []float64{1, 2}, CorrelationOptions{}).Defined())
}

func TestCrossCorrelationConstantSeries(t *testing.T) {
	flat := []float64{15, 15, 15, 15, 15}

	xc := CrossCorrelation(flat, flat, CorrelationOptions{Normalize: true})
	require.True(t, xc.Defined())
	assert.Equal(t, 0.0, xc.Steps)
	assert.Equal(t, len(flat), xc.Matched)
	assert.True(t, math.IsNaN(xc.Peak))
}

func TestCrossCorrelationToleratesNaN(t *testing.T) {
	ref := sine(20*period, 0, 5, 15)
	resp := sine(20*period, 20, 5, 15)
	for i := 0; i < len(resp); i += 97 {
		resp[i] = math.NaN()
	}

	xc := CrossCorrelation(ref, resp, CorrelationOptions{Normalize: true})
	require.True(t, xc.Defined())
	assert.InDelta(t, 20, xc.Steps, 1)
}

func TestCrossCorrelationUsesCommonTail(t *testing.T) {
	ref := sine(24*period, 0, 5, 15)
	// resp covers only the last 22 periods of ref.
	resp := sine(24*period, 25, 5, 15)[2*period:]

	xc := CrossCorrelation(ref, resp, CorrelationOptions{})
	assert.InDelta(t, 25, xc.Steps, 1)
	assert.LessOrEqual(t, xc.Matched, len(resp))
}

func TestResultConversions(t *testing.T) {
	r := Result{Steps: 90, Method: MethodPeakMatching}
	assert.Equal(t, 90*24*time.Hour, r.Duration(24*time.Hour))
	assert.InDelta(t, 3.0, r.In(24*time.Hour, 30*24*time.Hour), 1e-12)

	u := undefined(MethodPeakMatching)
	assert.Zero(t, u.Duration(time.Hour))
	assert.True(t, math.IsNaN(u.In(time.Hour, time.Hour)))
}

func TestTail(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	assert.Equal(t, []float64{2, 3, 4}, Tail(x, 0.5))
	assert.Equal(t, x, Tail(x, 1.5))
	assert.Empty(t, Tail(x, 0))
	assert.Equal(t, []float64{3, 4}, TailN(x, 2))
	assert.Equal(t, x, TailN(x, 10))
	assert.Empty(t, TailN(x, -1))
}

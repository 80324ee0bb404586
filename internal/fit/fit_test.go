package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func standardAxis() []float64 {
	x := make([]float64, 201)
	for i := range x {
		x[i] = 5 + 0.1*float64(i)
	}
	return x
}

func gaussianSamples(x []float64, a, x0, sigma float64) []float64 {
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = GaussianModel{}.Eval(v, []float64{a, x0, sigma})
	}
	return y
}

func TestGaussianRecoversParameters(t *testing.T) {
	x := standardAxis()
	y := gaussianSamples(x, 100, 15, 1)

	res := Gaussian(x, y)
	require.True(t, res.Converged, "err: %v", res.Err)
	assert.NoError(t, res.Err)
	assert.Equal(t, "gaussian", res.Model)

	assert.InEpsilon(t, 15.0, res.Param(ParamCentre), 0.01)
	assert.InEpsilon(t, 1.0, res.Param(ParamSigma), 0.01)
	assert.InEpsilon(t, 100.0, res.Param(ParamAmplitude), 0.05)
	assert.InDelta(t, 100.0, res.Eval(15), 5)
}

func TestGaussianOffCentreGuess(t *testing.T) {
	// A skewed noise floor pulls the moment estimate away from the peak.
	x := standardAxis()
	y := gaussianSamples(x, 80, 12.3, 0.7)
	for i := 150; i < len(y); i++ {
		y[i] += 0.5
	}

	res := Gaussian(x, y)
	require.True(t, res.Converged, "err: %v", res.Err)
	assert.InDelta(t, 12.3, res.Param(ParamCentre), 0.05)
	assert.InDelta(t, 0.7, res.Param(ParamSigma), 0.05)
	assert.Len(t, res.Errors, 3)
	assert.Greater(t, res.Error(ParamCentre), 0.0)
}

func TestGaussianNoSignal(t *testing.T) {
	x := standardAxis()
	res := Gaussian(x, make([]float64, len(x)))
	assert.False(t, res.Converged)
	assert.ErrorIs(t, res.Err, ErrNoSignal)
	assert.True(t, math.IsNaN(res.Param(ParamCentre)))
	assert.True(t, math.IsNaN(res.Eval(15)))

	res = Gaussian(nil, nil)
	assert.ErrorIs(t, res.Err, ErrNoSignal)
}

func TestRelaxationRecoversTau(t *testing.T) {
	const tau, ti, tf = 1.25, 15.0, 20.0
	m := RelaxationModel{Initial: ti, Final: tf}

	var ts, ys []float64
	for d := 1; d <= 5*360; d++ {
		tt := float64(d) / 360
		ts = append(ts, tt)
		ys = append(ys, m.Eval(tt, []float64{tau}))
	}

	for _, guess := range []float64{1.25, 0.5, 3} {
		res := Relaxation(ts, ys, ti, tf, guess)
		require.True(t, res.Converged, "guess %v: %v", guess, res.Err)
		assert.InEpsilon(t, tau, res.Param(ParamTau), 0.05, "guess %v", guess)
	}
}

func TestRelaxationWithNoise(t *testing.T) {
	m := RelaxationModel{Initial: 15, Final: 20}
	var ts, ys []float64
	for d := 1; d <= 4*360; d++ {
		tt := float64(d) / 360
		ts = append(ts, tt)
		// Deterministic seasonal wobble standing in for noise.
		ys = append(ys, m.Eval(tt, []float64{2})+0.2*math.Sin(2*math.Pi*tt))
	}

	res := Relaxation(ts, ys, 15, 20, 1.25)
	require.True(t, res.Converged)
	assert.InEpsilon(t, 2.0, res.Param(ParamTau), 0.05)
	assert.Greater(t, res.Residual, 0.0)
	assert.Greater(t, res.Error(ParamTau), 0.0)
}

func TestFitRejectsTooFewPoints(t *testing.T) {
	res := Relaxation(nil, nil, 15, 20, 1.25)
	assert.False(t, res.Converged)
	assert.ErrorIs(t, res.Err, ErrTooFewPoints)

	res = LevenbergMarquardt(GaussianModel{}, []float64{1, 2}, []float64{1, 1}, []float64{1, 1, 1}, DefaultOptions())
	assert.False(t, res.Converged)
	assert.ErrorIs(t, res.Err, ErrTooFewPoints)
	assert.Equal(t, 2, res.Samples)
}

func TestFitDropsNonFiniteSamples(t *testing.T) {
	x := standardAxis()
	y := gaussianSamples(x, 100, 15, 1)
	y[10] = math.NaN()
	y[20] = math.Inf(1)

	res := Gaussian(x, y)
	require.True(t, res.Converged)
	assert.Equal(t, len(x)-2, res.Samples)
	assert.InEpsilon(t, 15.0, res.Param(ParamCentre), 0.01)
}

func TestFitRejectsBadGuess(t *testing.T) {
	res := LevenbergMarquardt(GaussianModel{}, []float64{1, 2, 3}, []float64{1, 2, 1}, []float64{1, 2}, DefaultOptions())
	assert.False(t, res.Converged)
	assert.Error(t, res.Err)

	res = Relaxation([]float64{1, 2}, []float64{16, 17}, 15, 20, math.NaN())
	assert.ErrorIs(t, res.Err, ErrNotFinite)
}

func TestRelaxationWithoutJumpIsSingular(t *testing.T) {
	var ts, ys []float64
	for d := 1; d <= 360; d++ {
		ts = append(ts, float64(d)/360)
		ys = append(ys, 17)
	}

	res := Relaxation(ts, ys, 15, 15, 1.25)
	assert.False(t, res.Converged)
	assert.ErrorIs(t, res.Err, ErrSingular)
	assert.True(t, math.IsNaN(res.Param(ParamTau)))
	assert.Nil(t, res.Covariance)
}

func TestResultUnknownParameter(t *testing.T) {
	res := Relaxation([]float64{1, 2, 3}, []float64{17, 18, 19}, 15, 20, 1)
	assert.True(t, math.IsNaN(res.Param("nope")))
	assert.True(t, math.IsNaN(res.Error("nope")))
	assert.Len(t, res.Curve([]float64{0, 1}), 2)
}

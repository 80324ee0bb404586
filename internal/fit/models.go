package fit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Parameter names.
const (
	ParamAmplitude = "a"
	ParamCentre    = "x0"
	ParamSigma     = "sigma"
	ParamTau       = "tau"
)

// GaussianModel is a·exp(-(x-x0)²/(2σ²)).
type GaussianModel struct{}

func (GaussianModel) Name() string { return "gaussian" }

func (GaussianModel) Params() []string {
	return []string{ParamAmplitude, ParamCentre, ParamSigma}
}

func (GaussianModel) Eval(x float64, p []float64) float64 {
	d := x - p[1]
	return p[0] * math.Exp(-d*d/(2*p[2]*p[2]))
}

func (GaussianModel) Gradient(dst []float64, x float64, p []float64) {
	a, s := p[0], p[2]
	d := x - p[1]
	e := math.Exp(-d * d / (2 * s * s))
	dst[0] = e
	dst[1] = a * e * d / (s * s)
	dst[2] = a * e * d * d / (s * s * s)
}

// RelaxationModel is Tf - (Tf-Ti)·exp(-t/τ) with fixed end points. Only τ is
// free. t is the time since the perturbation.
type RelaxationModel struct {
	Initial float64
	Final   float64
}

func (RelaxationModel) Name() string { return "relaxation" }

func (RelaxationModel) Params() []string { return []string{ParamTau} }

func (m RelaxationModel) Eval(t float64, p []float64) float64 {
	return m.Final - (m.Final-m.Initial)*math.Exp(-t/p[0])
}

func (m RelaxationModel) Gradient(dst []float64, t float64, p []float64) {
	tau := p[0]
	dst[0] = -(m.Final - m.Initial) * math.Exp(-t/tau) * t / (tau * tau)
}

// Gaussian fits a Gaussian to an empirical histogram. The initial guess is
// the peak height and the weighted mean and standard deviation of x.
func Gaussian(x, y []float64) Result {
	m := GaussianModel{}
	fx, fy := finitePairs(x, y)

	// Negative counts carry no weight in the moment estimate.
	w := make([]float64, len(fy))
	for i, v := range fy {
		w[i] = math.Max(v, 0)
	}
	if len(w) == 0 || floats.Sum(w) == 0 {
		return failed(m, len(fx), ErrNoSignal)
	}

	mean, variance := stat.PopMeanVariance(fx, w)
	sd := math.Sqrt(variance)
	if !(sd > 0) {
		sd = (floats.Max(fx) - floats.Min(fx)) / float64(len(fx))
	}
	if !(sd > 0) {
		sd = 1
	}

	res := LevenbergMarquardt(m, fx, fy, []float64{floats.Max(fy), mean, sd}, DefaultOptions())
	if len(res.Params) == 3 {
		// The model is even in σ.
		res.Params[2] = math.Abs(res.Params[2])
	}
	return res
}

// Relaxation fits the timescale τ of an exponential approach from
// tInitial to tFinal.
func Relaxation(t, y []float64, tInitial, tFinal, tauGuess float64) Result {
	m := RelaxationModel{Initial: tInitial, Final: tFinal}
	return LevenbergMarquardt(m, t, y, []float64{tauGuess}, DefaultOptions())
}

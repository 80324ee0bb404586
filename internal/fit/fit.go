// Package fit solves small nonlinear least-squares problems with the
// Levenberg-Marquardt method.
//
// A failed fit is reported through Result.Converged and Result.Err. Nothing
// in this package panics on bad data.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrTooFewPoints  = errors.New("fewer finite samples than parameters")
	ErrSingular      = errors.New("normal equations are singular")
	ErrNotFinite     = errors.New("parameters are not finite")
	ErrNoConvergence = errors.New("iteration limit reached")
	ErrNoSignal      = errors.New("no positive weight to derive an initial guess")
)

const (
	minLambda = 1e-12
	maxLambda = 1e16
)

// Model is a parametric function of one variable with an analytic Jacobian.
type Model interface {
	Name() string
	Params() []string
	Eval(x float64, p []float64) float64
	// Gradient writes the partial derivatives of Eval with respect to p
	// into dst.
	Gradient(dst []float64, x float64, p []float64)
}

// Options tunes LevenbergMarquardt.
type Options struct {
	MaxIterations int
	// Tolerance is the relative change in the sum of squared residuals, or
	// in the parameter vector, below which the fit is considered converged.
	Tolerance float64
	// Lambda is the initial damping factor.
	Lambda float64
}

func DefaultOptions() Options {
	return Options{MaxIterations: 200, Tolerance: 1e-10, Lambda: 1e-3}
}

// Result holds a fitted parameter vector.
type Result struct {
	Model  string
	Names  []string
	Params []float64
	// Errors are the one-sigma uncertainties, the square roots of the
	// covariance diagonal. NaN when the covariance could not be estimated.
	Errors     []float64
	Covariance *mat.SymDense
	// Residual is the sum of squared residuals at Params.
	Residual   float64
	Samples    int
	Iterations int
	Converged  bool
	Err        error

	model Model
}

func (r Result) index(name string) int {
	for i, n := range r.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Param returns the named parameter, NaN if unknown.
func (r Result) Param(name string) float64 {
	i := r.index(name)
	if i < 0 || i >= len(r.Params) {
		return math.NaN()
	}
	return r.Params[i]
}

// Error returns the uncertainty of the named parameter, NaN if unknown.
func (r Result) Error(name string) float64 {
	i := r.index(name)
	if i < 0 || i >= len(r.Errors) {
		return math.NaN()
	}
	return r.Errors[i]
}

// Eval evaluates the fitted model at x. It returns NaN for a failed fit.
func (r Result) Eval(x float64) float64 {
	if !r.Converged || r.model == nil {
		return math.NaN()
	}
	return r.model.Eval(x, r.Params)
}

// Curve evaluates the fitted model at every x.
func (r Result) Curve(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = r.Eval(v)
	}
	return out
}

func failed(m Model, n int, err error) Result {
	k := len(m.Params())
	nan := make([]float64, k)
	errs := make([]float64, k)
	for i := range nan {
		nan[i] = math.NaN()
		errs[i] = math.NaN()
	}
	return Result{
		Model:    m.Name(),
		Names:    m.Params(),
		Params:   nan,
		Errors:   errs,
		Residual: math.NaN(),
		Samples:  n,
		Err:      err,
		model:    m,
	}
}

// finitePairs drops samples where x or y is NaN or infinite.
func finitePairs(x, y []float64) ([]float64, []float64) {
	n := min(len(x), len(y))
	fx := make([]float64, 0, n)
	fy := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if isFinite(x[i]) && isFinite(y[i]) {
			fx = append(fx, x[i])
			fy = append(fy, y[i])
		}
	}
	return fx, fy
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(p []float64) bool {
	for _, v := range p {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

// system holds the residuals and Jacobian of a model at one parameter
// vector.
type system struct {
	m    Model
	x, y []float64
	grad []float64
}

func (s *system) cost(p []float64) float64 {
	var sum float64
	for i, x := range s.x {
		d := s.y[i] - s.m.Eval(x, p)
		sum += d * d
	}
	return sum
}

// normal returns JᵀJ and Jᵀr at p.
func (s *system) normal(p []float64) (*mat.SymDense, *mat.VecDense) {
	n, k := len(s.x), len(p)
	jac := mat.NewDense(n, k, nil)
	res := mat.NewVecDense(n, nil)
	for i, x := range s.x {
		s.m.Gradient(s.grad, x, p)
		jac.SetRow(i, s.grad)
		res.SetVec(i, s.y[i]-s.m.Eval(x, p))
	}

	jtj := mat.NewSymDense(k, nil)
	jtj.SymOuterK(1, jac.T())
	g := mat.NewVecDense(k, nil)
	g.MulVec(jac.T(), res)
	return jtj, g
}

// LevenbergMarquardt minimises the sum of squared residuals of m against
// (x, y) starting from p0. Non-finite samples are dropped first. The
// covariance is s²·(JᵀJ)⁻¹ with s² = SSR/(n-k).
func LevenbergMarquardt(m Model, x, y, p0 []float64, opts Options) Result {
	fx, fy := finitePairs(x, y)
	n, k := len(fx), len(m.Params())
	if len(p0) != k {
		return failed(m, n, fmt.Errorf("initial guess has %d parameters, model %s wants %d", len(p0), m.Name(), k))
	}
	if n < k {
		return failed(m, n, ErrTooFewPoints)
	}
	if !allFinite(p0) {
		return failed(m, n, ErrNotFinite)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.Lambda <= 0 {
		opts.Lambda = DefaultOptions().Lambda
	}

	sys := &system{m: m, x: fx, y: fy, grad: make([]float64, k)}
	p := append([]float64(nil), p0...)
	cost := sys.cost(p)
	if !isFinite(cost) {
		return failed(m, n, ErrNotFinite)
	}

	lambda := opts.Lambda
	a := mat.NewSymDense(k, nil)
	delta := mat.NewVecDense(k, nil)
	trial := make([]float64, k)

	converged := false
	iter := 0
	for iter < opts.MaxIterations && !converged {
		iter++
		jtj, g := sys.normal(p)
		if cost == 0 || floats.Norm(g.RawVector().Data, math.Inf(1)) == 0 {
			converged = true
			break
		}

		factored, improved := false, false
		for lambda <= maxLambda {
			for i := 0; i < k; i++ {
				for j := i; j < k; j++ {
					a.SetSym(i, j, jtj.At(i, j))
				}
				d := jtj.At(i, i)
				if d == 0 {
					d = 1
				}
				a.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}

			var chol mat.Cholesky
			if !chol.Factorize(a) {
				lambda *= 10
				continue
			}
			factored = true
			if err := chol.SolveVecTo(delta, g); err != nil {
				lambda *= 10
				continue
			}

			for i := range trial {
				trial[i] = p[i] + delta.AtVec(i)
			}
			next := sys.cost(trial)
			if !allFinite(trial) || !isFinite(next) || next >= cost {
				lambda *= 10
				continue
			}

			improved = true
			small := cost-next <= opts.Tolerance*cost ||
				floats.Norm(delta.RawVector().Data, 2) <= opts.Tolerance*(floats.Norm(p, 2)+opts.Tolerance)
			copy(p, trial)
			cost = next
			lambda = math.Max(lambda/10, minLambda)
			converged = small
			break
		}

		if !factored {
			return failed(m, n, ErrSingular)
		}
		if !improved {
			// No damped step lowers the cost: p is a minimum to working
			// precision.
			converged = true
		}
	}

	res := Result{
		Model:      m.Name(),
		Names:      m.Params(),
		Params:     p,
		Residual:   cost,
		Samples:    n,
		Iterations: iter,
		Converged:  converged,
		model:      m,
	}
	if !converged {
		res.Err = ErrNoConvergence
	}
	if !allFinite(p) {
		res.Converged = false
		res.Err = ErrNotFinite
	}
	res.Covariance, res.Errors = covariance(sys, p, cost, n)
	if res.Covariance == nil && res.Err == nil {
		// JᵀJ does not factor at the solution: some parameter is not
		// determined by the data.
		return failed(m, n, ErrSingular)
	}
	return res
}

func covariance(sys *system, p []float64, cost float64, n int) (*mat.SymDense, []float64) {
	k := len(p)
	errs := make([]float64, k)
	for i := range errs {
		errs[i] = math.NaN()
	}

	jtj, _ := sys.normal(p)
	var chol mat.Cholesky
	if !chol.Factorize(jtj) {
		return nil, errs
	}
	cov := mat.NewSymDense(k, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, errs
	}

	s2 := math.NaN()
	if n > k {
		s2 = cost / float64(n-k)
	}
	cov.ScaleSym(s2, cov)
	for i := range errs {
		errs[i] = math.Sqrt(cov.At(i, i))
	}
	return cov, errs
}

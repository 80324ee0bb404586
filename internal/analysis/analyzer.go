// Package analysis runs the trait analyses over the configured simulator
// scenarios and collects the results into a Report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/traitlag/internal/distribution"
	"github.com/chrissnell/traitlag/internal/fit"
	"github.com/chrissnell/traitlag/internal/lag"
	"github.com/chrissnell/traitlag/internal/series"
	"github.com/chrissnell/traitlag/pkg/config"
	"github.com/chrissnell/traitlag/pkg/fortran"
	"github.com/chrissnell/traitlag/pkg/layout"
	"go.uber.org/zap"
)

const (
	day   = 24 * time.Hour
	month = 30 * day
)

// Trace names as they appear in ScenarioReport.
const (
	TraceEnv  = "env"
	TraceEco  = "eco"
	TraceDist = "dist"
)

var (
	ErrAxisLayout = errors.New("bin axis does not match the distribution layout")
	ErrNoTrace    = errors.New("trace not available")
)

// Traces holds the assembled tables of one scenario. A nil table means the
// trace file was absent.
type Traces struct {
	Env  *series.Table
	Eco  *series.Table
	Dist *series.Table
}

// Analyzer derives statistics from scenario traces. It holds no mutable
// state and is safe for concurrent use.
type Analyzer struct {
	cfg      config.ConfigData
	axis     distribution.Axis
	interval time.Duration
	source   string
	opts     fortran.Options
	logger   *zap.SugaredLogger
}

// New builds an Analyzer for cfg. The output interval is resolved once here;
// an unreadable parameter file only produces a warning.
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) (*Analyzer, error) {
	axis, err := distribution.NewAxis(cfg.BinAxis.Start, cfg.BinAxis.Stop, cfg.BinAxis.Count)
	if err != nil {
		return nil, err
	}
	if cfg.BinAxis.Shift != 0 {
		axis = axis.Shift(cfg.BinAxis.Shift)
	}
	if len(axis) != layout.DistBins {
		return nil, fmt.Errorf("%w: %d bins, layout %s has %d", ErrAxisLayout, len(axis), layout.Dist.Name(), layout.DistBins)
	}

	interval, source, err := cfg.ResolveOutputInterval()
	if err != nil {
		logger.Warnw("could not read output interval from parameter file, using default",
			"file", cfg.ParameterFile, "default", interval, "error", err)
	}

	return &Analyzer{
		cfg:      *cfg,
		axis:     axis,
		interval: interval,
		source:   source,
		opts:     fortran.DefaultOptions(),
		logger:   logger,
	}, nil
}

// Axis returns the trait bin centres.
func (a *Analyzer) Axis() distribution.Axis { return a.axis }

// Interval returns the simulated time between records.
func (a *Analyzer) Interval() time.Duration { return a.interval }

func (a *Analyzer) stepsPerYear() int {
	return max(1, int(a.cfg.ModelYear()/a.interval))
}

// Load assembles the traces of s. Missing files are recorded in rep and
// logged; every other failure is returned.
func (a *Analyzer) Load(s config.ScenarioData, rep *ScenarioReport) (*Traces, error) {
	var (
		tr  Traces
		err error
	)
	if tr.Env, err = a.load(rep, TraceEnv, s.EnvPath(), layout.Env); err != nil {
		return nil, err
	}
	if tr.Eco, err = a.load(rep, TraceEco, s.EcoPath(), layout.Eco); err != nil {
		return nil, err
	}
	if tr.Dist, err = a.load(rep, TraceDist, s.DistPath(), layout.Dist); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (a *Analyzer) load(rep *ScenarioReport, name, path string, l layout.Layout) (*series.Table, error) {
	t, err := series.AssembleFile(path, l, a.interval, a.opts)
	if errors.Is(err, fortran.ErrTraceNotFound) {
		a.logger.Warnw("trace not found, skipping dependent analyses",
			"scenario", rep.Name, "trace", name, "path", path)
		rep.Missing = append(rep.Missing, name)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rep.Records[name] = t.Len()
	if t.Truncated() {
		a.logger.Warnw("trace ends in a partial record, ignoring it",
			"scenario", rep.Name, "trace", name, "records", t.Len())
		rep.Truncated = append(rep.Truncated, name)
	}
	return t, nil
}

// Analyze loads and analyses one scenario.
func (a *Analyzer) Analyze(ctx context.Context, s config.ScenarioData) (*ScenarioReport, *Traces, error) {
	rep := &ScenarioReport{Name: s.Name, Records: make(map[string]int)}
	a.logger.Infow("analysing scenario", "scenario", s.Name, "dir", s.Dir)

	tr, err := a.Load(s, rep)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if tr.Dist == nil || tr.Dist.Len() == 0 {
		return rep, tr, nil
	}

	mean, err := distribution.MeanSeries(tr.Dist, layout.FieldBinCounts, a.axis)
	if err != nil {
		return nil, nil, err
	}

	final, err := a.snapshotAt(tr.Dist, "final", tr.Dist.Len()-1, false)
	if err != nil {
		return nil, nil, err
	}
	rep.Final = final

	for _, snap := range s.Snapshots {
		r, err := a.snapshotAt(tr.Dist, snap.Label, clampStep(snap.Step, tr.Dist.Len()), snap.Fit)
		if err != nil {
			return nil, nil, err
		}
		rep.Snapshots = append(rep.Snapshots, *r)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if tr.Env != nil {
		rep.Seasonal, err = a.seasonal(tr.Env, mean)
		if err != nil {
			return nil, nil, err
		}
	}

	if s.Relaxation != nil {
		rep.Relaxation = a.relaxation(s.Name, tr.Dist, mean, *s.Relaxation)
	}

	if v := s.Validation; v != nil {
		diff := final.Mean - Float(v.TargetMean)
		rep.Validation = &ValidationReport{
			Target:     Float(v.TargetMean),
			Tolerance:  Float(v.Tolerance),
			Mean:       final.Mean,
			Difference: diff,
			Passed:     distribution.WithinTolerance(float64(final.Mean), v.TargetMean, v.Tolerance),
		}
		if !rep.Validation.Passed {
			a.logger.Warnw("final mean trait outside validation tolerance",
				"scenario", s.Name, "mean", float64(final.Mean), "target", v.TargetMean, "tolerance", v.Tolerance)
		}
	}

	return rep, tr, nil
}

// clampStep resolves a possibly negative step against n rows.
func clampStep(step, n int) int {
	if step < 0 {
		step += n
	}
	return min(max(step, 0), n-1)
}

// Snapshot computes the statistics of row step of the distribution trace.
// Negative steps count from the end. Unlike configured snapshots, an out of
// range step is an error.
func (a *Analyzer) Snapshot(tr *Traces, step int, withFit bool) (*SnapshotReport, error) {
	if tr == nil || tr.Dist == nil {
		return nil, fmt.Errorf("%s: %w", TraceDist, ErrNoTrace)
	}
	n := tr.Dist.Len()
	idx := step
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return nil, fmt.Errorf("%w: %d with %d records", series.ErrStepOutOfRange, step, n)
	}
	return a.snapshotAt(tr.Dist, fmt.Sprintf("step %d", step), idx, withFit)
}

func (a *Analyzer) snapshotAt(t *series.Table, label string, idx int, withFit bool) (*SnapshotReport, error) {
	counts, err := t.Counts(idx, layout.FieldBinCounts)
	if err != nil {
		return nil, err
	}
	m, err := distribution.SnapshotMoments(counts, a.axis)
	if err != nil {
		return nil, err
	}

	rep := &SnapshotReport{
		Label:  label,
		Step:   t.Offset() + idx,
		Day:    Float(float64(t.Time(idx)) / float64(day)),
		Total:  m.Total,
		Mean:   Float(m.Mean),
		StdDev: Float(m.StdDev()),
	}
	if !withFit {
		return rep, nil
	}

	y := make([]float64, len(counts))
	for i, c := range counts {
		y[i] = float64(c)
	}
	res := fit.Gaussian(a.axis, y)
	if !res.Converged {
		a.logger.Warnw("gaussian fit failed", "snapshot", label, "step", rep.Step, "error", res.Err)
	}
	rep.Fit = newFitReport(res)
	return rep, nil
}

// window returns the number of trailing samples used for the seasonal
// benchmark out of n.
func (a *Analyzer) window(n int) int {
	w := int(math.Ceil(a.cfg.Lag.TailFraction * float64(n)))
	if a.cfg.Lag.TailYears > 0 {
		w = int(math.Round(a.cfg.Lag.TailYears * float64(a.stepsPerYear())))
	}
	return min(max(w, 0), n)
}

func (a *Analyzer) seasonal(env *series.Table, mean []float64) (*SeasonalReport, error) {
	temp, err := env.Column(layout.FieldTemperature)
	if err != nil {
		return nil, err
	}

	n := min(len(temp), len(mean))
	w := a.window(n)
	ref := lag.TailN(temp[:n], w)
	resp := lag.TailN(mean[:n], w)

	envAmp := distribution.Amplitude(ref)
	traitAmp := distribution.Amplitude(resp)

	xc := lag.CrossCorrelation(ref, resp, lag.CorrelationOptions{Normalize: a.cfg.Lag.Normalize})
	pm := lag.PeakMatching(ref, resp, lag.PeakOptions{
		Distance: a.cfg.Lag.PeakDistance,
		Window:   a.cfg.Lag.SearchWindow,
	})

	return &SeasonalReport{
		WindowSteps:      w,
		EnvAmplitude:     Float(envAmp),
		TraitAmplitude:   Float(traitAmp),
		AmplitudeRatio:   Float(traitAmp / envAmp),
		CrossCorrelation: newLagReport(xc, a.interval),
		PeakMatching:     newLagReport(pm, a.interval),
	}, nil
}

// relaxation fits the adaptation timescale of the mean trait after the
// forcing jump. Only samples strictly after the jump are used, with time
// measured from the jump.
func (a *Analyzer) relaxation(scenario string, dist *series.Table, mean []float64, r config.RelaxationData) *RelaxationReport {
	years := dist.Times(a.cfg.ModelYear())
	var t, y []float64
	for i, yr := range years {
		if yr > r.JumpYears {
			t = append(t, yr-r.JumpYears)
			y = append(y, mean[i])
		}
	}

	res := fit.Relaxation(t, y, r.TInitial, r.TFinal, r.TauGuess)
	if !res.Converged {
		a.logger.Warnw("relaxation fit failed", "scenario", scenario, "samples", res.Samples, "error", res.Err)
	}
	tau := res.Param(fit.ParamTau)

	return &RelaxationReport{
		JumpYears: Float(r.JumpYears),
		TInitial:  Float(r.TInitial),
		TFinal:    Float(r.TFinal),
		TauYears:  Float(tau),
		TauMonths: Float(tau * 12),
		Fit:       *newFitReport(res),
	}
}

// MeanSeriesReport is the mean trait over time, with the environmental
// temperature alongside when available.
type MeanSeriesReport struct {
	Days        []Float `json:"days"`
	Mean        []Float `json:"mean"`
	Total       []Float `json:"total"`
	Temperature []Float `json:"temperature,omitempty"`
}

// MeanSeries returns the mean trait series of tr.
func (a *Analyzer) MeanSeries(tr *Traces) (*MeanSeriesReport, error) {
	if tr == nil || tr.Dist == nil {
		return nil, fmt.Errorf("%s: %w", TraceDist, ErrNoTrace)
	}
	mean, err := distribution.MeanSeries(tr.Dist, layout.FieldBinCounts, a.axis)
	if err != nil {
		return nil, err
	}
	total, err := distribution.TotalSeries(tr.Dist, layout.FieldBinCounts)
	if err != nil {
		return nil, err
	}

	out := &MeanSeriesReport{
		Days:  toFloats(tr.Dist.Times(day)),
		Mean:  toFloats(mean),
		Total: toFloats(total),
	}
	if tr.Env != nil {
		temp, err := tr.Env.Column(layout.FieldTemperature)
		if err != nil {
			return nil, err
		}
		out.Temperature = toFloats(temp[:min(len(temp), len(mean))])
	}
	return out, nil
}

// DensityReport is the smoothed trait density over time; Values[b][s] is
// bin b at step s.
type DensityReport struct {
	Axis   []Float     `json:"axis"`
	Days   []Float     `json:"days"`
	Values [][]float64 `json:"values"`
}

// Density returns the smoothed distribution field of tr.
func (a *Analyzer) Density(tr *Traces) (*DensityReport, error) {
	if tr == nil || tr.Dist == nil {
		return nil, fmt.Errorf("%s: %w", TraceDist, ErrNoTrace)
	}
	d := a.cfg.Density
	values, err := distribution.DensityField(tr.Dist, layout.FieldBinCounts, d.SigmaBins, d.SigmaSteps, d.Floor)
	if err != nil {
		return nil, err
	}
	return &DensityReport{
		Axis:   toFloats(a.axis),
		Days:   toFloats(tr.Dist.Times(day)),
		Values: values,
	}, nil
}

package analysis

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"github.com/chrissnell/traitlag/internal/fit"
	"github.com/chrissnell/traitlag/internal/lag"
)

// Float is a float64 that encodes NaN and infinities as JSON null, the
// report's marker for an undefined statistic.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Defined reports whether f holds a finite value.
func (f Float) Defined() bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func toFloats(x []float64) []Float {
	out := make([]Float, len(x))
	for i, v := range x {
		out[i] = Float(v)
	}
	return out
}

// Report is the outcome of one analysis run over every configured scenario.
type Report struct {
	RunID          string            `json:"run_id"`
	GeneratedAt    time.Time         `json:"generated_at"`
	Version        string            `json:"version"`
	OutputInterval string            `json:"output_interval"`
	IntervalSource string            `json:"interval_source"`
	Axis           AxisReport        `json:"axis"`
	Scenarios      []*ScenarioReport `json:"scenarios"`
	Comparison     *ComparisonReport `json:"comparison,omitempty"`
}

// Scenario returns the report for the named scenario.
func (r *Report) Scenario(name string) (*ScenarioReport, bool) {
	for _, s := range r.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

type AxisReport struct {
	Start Float `json:"start"`
	Stop  Float `json:"stop"`
	Bins  int   `json:"bins"`
}

// ScenarioReport holds every statistic derived from one scenario's traces.
// Sections whose traces are missing are left nil.
type ScenarioReport struct {
	Name       string            `json:"name"`
	Missing    []string          `json:"missing,omitempty"`
	Truncated  []string          `json:"truncated,omitempty"`
	Records    map[string]int    `json:"records"`
	Final      *SnapshotReport   `json:"final,omitempty"`
	Snapshots  []SnapshotReport  `json:"snapshots,omitempty"`
	Seasonal   *SeasonalReport   `json:"seasonal,omitempty"`
	Relaxation *RelaxationReport `json:"relaxation,omitempty"`
	Validation *ValidationReport `json:"validation,omitempty"`
}

type SnapshotReport struct {
	Label  string     `json:"label"`
	Step   int        `json:"step"`
	Day    Float      `json:"day"`
	Total  int64      `json:"total"`
	Mean   Float      `json:"mean"`
	StdDev Float      `json:"std_dev"`
	Fit    *FitReport `json:"fit,omitempty"`
}

type FitReport struct {
	Model      string           `json:"model"`
	Params     map[string]Float `json:"params"`
	Errors     map[string]Float `json:"errors"`
	Residual   Float            `json:"residual"`
	Samples    int              `json:"samples"`
	Iterations int              `json:"iterations"`
	Converged  bool             `json:"converged"`
	Error      string           `json:"error,omitempty"`
}

func newFitReport(r fit.Result) *FitReport {
	fr := &FitReport{
		Model:      r.Model,
		Params:     make(map[string]Float, len(r.Names)),
		Errors:     make(map[string]Float, len(r.Names)),
		Residual:   Float(r.Residual),
		Samples:    r.Samples,
		Iterations: r.Iterations,
		Converged:  r.Converged,
	}
	for _, n := range r.Names {
		fr.Params[n] = Float(r.Param(n))
		fr.Errors[n] = Float(r.Error(n))
	}
	if r.Err != nil {
		fr.Error = r.Err.Error()
	}
	return fr
}

type LagReport struct {
	Method  string `json:"method"`
	Steps   Float  `json:"steps"`
	Days    Float  `json:"days"`
	Months  Float  `json:"months"`
	Matched int    `json:"matched"`
	Peak    Float  `json:"peak"`
}

func newLagReport(r lag.Result, interval time.Duration) LagReport {
	return LagReport{
		Method:  string(r.Method),
		Steps:   Float(r.Steps),
		Days:    Float(r.In(interval, day)),
		Months:  Float(r.In(interval, month)),
		Matched: r.Matched,
		Peak:    Float(r.Peak),
	}
}

// SeasonalReport compares the environmental temperature cycle with the
// mean trait over the trailing window.
type SeasonalReport struct {
	WindowSteps      int       `json:"window_steps"`
	EnvAmplitude     Float     `json:"env_amplitude"`
	TraitAmplitude   Float     `json:"trait_amplitude"`
	AmplitudeRatio   Float     `json:"amplitude_ratio"`
	CrossCorrelation LagReport `json:"cross_correlation"`
	PeakMatching     LagReport `json:"peak_matching"`
}

// RelaxationReport is the adaptation timescale after a step change.
type RelaxationReport struct {
	JumpYears Float     `json:"jump_years"`
	TInitial  Float     `json:"t_initial"`
	TFinal    Float     `json:"t_final"`
	TauYears  Float     `json:"tau_years"`
	TauMonths Float     `json:"tau_months"`
	Fit       FitReport `json:"fit"`
}

type ValidationReport struct {
	Target     Float `json:"target"`
	Tolerance  Float `json:"tolerance"`
	Mean       Float `json:"mean"`
	Difference Float `json:"difference"`
	Passed     bool  `json:"passed"`
}

// ComparisonReport contrasts phytoplankton biomass between an evolving and
// a static-trait scenario over their common length.
type ComparisonReport struct {
	Evolving       string  `json:"evolving"`
	Static         string  `json:"static"`
	Steps          int     `json:"steps"`
	MeanEvolving   Float   `json:"mean_evolving"`
	MeanStatic     Float   `json:"mean_static"`
	MeanRatio      Float   `json:"mean_ratio"`
	AnnualEvolving []Float `json:"annual_evolving"`
	AnnualStatic   []Float `json:"annual_static"`
	FinalEvolving  Float   `json:"final_year_evolving"`
	FinalStatic    Float   `json:"final_year_static"`
	Error          string  `json:"error,omitempty"`
}

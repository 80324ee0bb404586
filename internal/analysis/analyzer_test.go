package analysis

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/traitlag/internal/lag"
	"github.com/chrissnell/traitlag/internal/series"
	"github.com/chrissnell/traitlag/internal/synth"
	"github.com/chrissnell/traitlag/pkg/config"
	"github.com/chrissnell/traitlag/pkg/layout"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(scenarios ...config.ScenarioData) *config.ConfigData {
	cfg := &config.ConfigData{
		OutputInterval: 24 * time.Hour,
		Scenarios:      scenarios,
	}
	cfg.ApplyDefaults()
	return cfg
}

func newAnalyzer(t *testing.T, cfg *config.ConfigData) *Analyzer {
	t.Helper()
	require.NoError(t, cfg.Validate())
	a, err := New(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	return a
}

func TestSingleBinTraceEndToEnd(t *testing.T) {
	dir := t.TempDir()

	const bin = 82
	var recs []layout.Record
	for i := 0; i < 10; i++ {
		r := layout.Dist.NewRecord()
		counts := make([]int32, layout.DistBins)
		counts[bin] = 100
		r.SetInts(layout.FieldBinCounts, counts)
		recs = append(recs, r)
	}
	require.NoError(t, synth.WriteTrace(filepath.Join(dir, "fort.12"), layout.Dist, recs, false))

	cfg := testConfig(config.ScenarioData{Name: "single", Dir: dir})
	a := newAnalyzer(t, cfg)

	rep, tr, err := a.Analyze(context.Background(), cfg.Scenarios[0])
	require.NoError(t, err)
	assert.Equal(t, []string{TraceEnv, TraceEco}, rep.Missing)
	assert.Equal(t, 10, rep.Records[TraceDist])
	assert.Nil(t, rep.Seasonal)

	ms, err := a.MeanSeries(tr)
	require.NoError(t, err)
	require.Len(t, ms.Mean, 10)
	centre := a.Axis()[bin]
	for i, m := range ms.Mean {
		assert.Equal(t, Float(centre), m, "step %d", i)
	}
	assert.Empty(t, ms.Temperature)

	mean := make([]float64, len(ms.Mean))
	for i, m := range ms.Mean {
		mean[i] = float64(m)
	}
	xc := lag.CrossCorrelation(mean, mean, lag.CorrelationOptions{Normalize: true})
	require.True(t, xc.Defined())
	assert.Equal(t, 0.0, xc.Steps)

	require.NotNil(t, rep.Final)
	assert.Equal(t, int64(100), rep.Final.Total)
	assert.Equal(t, Float(centre), rep.Final.Mean)
	assert.Equal(t, Float(0), rep.Final.StdDev)
	assert.Equal(t, 9, rep.Final.Step)
	assert.Equal(t, Float(9), rep.Final.Day)
}

func TestSeasonalScenario(t *testing.T) {
	dir := t.TempDir()
	gen := synth.DefaultSeasonal()
	require.NoError(t, synth.Write(dir, synth.DefaultFiles(), gen.Generate(), false))

	cfg := testConfig(config.ScenarioData{Name: "seasonal", Dir: dir})
	a := newAnalyzer(t, cfg)

	rep, _, err := a.Analyze(context.Background(), cfg.Scenarios[0])
	require.NoError(t, err)
	assert.Empty(t, rep.Missing)
	assert.Empty(t, rep.Truncated)
	require.NotNil(t, rep.Seasonal)

	s := rep.Seasonal
	assert.Equal(t, gen.Years*gen.StepsPerYear/2, s.WindowSteps)
	assert.InDelta(t, gen.EnvAmplitude, float64(s.EnvAmplitude), 1e-9)
	assert.InDelta(t, gen.AmplitudeRatio, float64(s.AmplitudeRatio), 0.02)

	assert.Equal(t, string(lag.MethodPeakMatching), s.PeakMatching.Method)
	assert.InDelta(t, float64(gen.LagSteps), float64(s.PeakMatching.Steps), 5)
	assert.InDelta(t, float64(gen.LagSteps), float64(s.PeakMatching.Days), 5)
	assert.InDelta(t, 3.0, float64(s.PeakMatching.Months), 0.2)
	assert.Equal(t, 5, s.PeakMatching.Matched)

	assert.InDelta(t, float64(gen.LagSteps), float64(s.CrossCorrelation.Steps), 5)
	assert.Greater(t, float64(s.CrossCorrelation.Peak), 0.5)
}

func TestSeasonalWindowInYears(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, synth.Write(dir, synth.DefaultFiles(), synth.DefaultSeasonal().Generate(), false))

	cfg := testConfig(config.ScenarioData{Name: "seasonal", Dir: dir})
	cfg.Lag.TailYears = 2
	a := newAnalyzer(t, cfg)

	rep, _, err := a.Analyze(context.Background(), cfg.Scenarios[0])
	require.NoError(t, err)
	assert.Equal(t, 720, rep.Seasonal.WindowSteps)
	assert.Equal(t, 2, rep.Seasonal.PeakMatching.Matched)
}

func TestStepScenario(t *testing.T) {
	dir := t.TempDir()
	gen := synth.DefaultStep()
	require.NoError(t, synth.Write(dir, synth.DefaultFiles(), gen.Generate(), false))

	cfg := testConfig(config.ScenarioData{
		Name:       "step",
		Dir:        dir,
		Snapshots:  []config.SnapshotData{{Label: "end", Step: -1, Fit: true}, {Label: "way past", Step: 1e6}},
		Relaxation: &config.RelaxationData{TInitial: 15, TFinal: 20},
		Validation: &config.ValidationData{TargetMean: 20, Tolerance: 1},
	})
	a := newAnalyzer(t, cfg)

	rep, _, err := a.Analyze(context.Background(), cfg.Scenarios[0])
	require.NoError(t, err)

	require.NotNil(t, rep.Relaxation)
	r := rep.Relaxation
	assert.True(t, r.Fit.Converged, r.Fit.Error)
	assert.InEpsilon(t, gen.Tau, float64(r.TauYears), 0.05)
	assert.InEpsilon(t, gen.Tau*12, float64(r.TauMonths), 0.05)
	assert.Equal(t, Float(1), r.JumpYears)

	want := gen.TraitAt(float64(gen.Years*gen.StepsPerYear-1) / float64(gen.StepsPerYear))
	require.NotNil(t, rep.Validation)
	assert.True(t, rep.Validation.Passed)
	assert.InDelta(t, want, float64(rep.Validation.Mean), 0.01)
	assert.InDelta(t, want-20, float64(rep.Validation.Difference), 0.01)

	require.Len(t, rep.Snapshots, 2)
	end := rep.Snapshots[0]
	require.NotNil(t, end.Fit)
	assert.True(t, end.Fit.Converged, end.Fit.Error)
	assert.InDelta(t, want, float64(end.Fit.Params["x0"]), 0.01)
	assert.InDelta(t, 1.0, float64(end.Fit.Params["sigma"]), 0.01)

	// Out of range configured steps clamp to the final record.
	assert.Equal(t, rep.Final.Step, rep.Snapshots[1].Step)
	assert.Nil(t, rep.Snapshots[1].Fit)
}

func TestRelaxationWithoutJumpIsNotReported(t *testing.T) {
	dir := t.TempDir()
	gen := synth.DefaultStep()
	gen.Years = 2
	require.NoError(t, synth.Write(dir, synth.DefaultFiles(), gen.Generate(), false))

	cfg := testConfig(config.ScenarioData{
		Name:       "flat",
		Dir:        dir,
		Relaxation: &config.RelaxationData{TInitial: 20, TFinal: 20},
	})
	rep, _, err := newAnalyzer(t, cfg).Analyze(context.Background(), cfg.Scenarios[0])
	require.NoError(t, err)

	require.NotNil(t, rep.Relaxation)
	assert.False(t, rep.Relaxation.Fit.Converged)
	assert.NotEmpty(t, rep.Relaxation.Fit.Error)
	assert.False(t, rep.Relaxation.TauYears.Defined())
	assert.False(t, rep.Relaxation.TauMonths.Defined())
}

func TestValidationFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, synth.Write(dir, synth.DefaultFiles(), synth.DefaultStep().Generate(), false))

	cfg := testConfig(config.ScenarioData{
		Name:       "step",
		Dir:        dir,
		Validation: &config.ValidationData{TargetMean: 21.1, Tolerance: 1},
	})
	rep, _, err := newAnalyzer(t, cfg).Analyze(context.Background(), cfg.Scenarios[0])
	require.NoError(t, err)
	assert.False(t, rep.Validation.Passed)
}

func TestMissingTraces(t *testing.T) {
	cfg := testConfig(config.ScenarioData{Name: "empty", Dir: t.TempDir()})
	a := newAnalyzer(t, cfg)

	rep, tr, err := a.Analyze(context.Background(), cfg.Scenarios[0])
	require.NoError(t, err)
	assert.Equal(t, []string{TraceEnv, TraceEco, TraceDist}, rep.Missing)
	assert.Nil(t, rep.Final)
	assert.Nil(t, rep.Seasonal)

	_, err = a.MeanSeries(tr)
	assert.ErrorIs(t, err, ErrNoTrace)
	_, err = a.Snapshot(tr, 0, false)
	assert.ErrorIs(t, err, ErrNoTrace)
	_, err = a.Density(tr)
	assert.ErrorIs(t, err, ErrNoTrace)
}

func TestTruncatedTraces(t *testing.T) {
	dir := t.TempDir()
	gen := synth.DefaultStep()
	gen.Years = 1
	require.NoError(t, synth.Write(dir, synth.DefaultFiles(), gen.Generate(), true))

	cfg := testConfig(config.ScenarioData{Name: "cut", Dir: dir})
	rep, _, err := newAnalyzer(t, cfg).Analyze(context.Background(), cfg.Scenarios[0])
	require.NoError(t, err)
	assert.Equal(t, []string{TraceEnv, TraceEco, TraceDist}, rep.Truncated)
	assert.Equal(t, 360, rep.Records[TraceDist])
	assert.Equal(t, 360, rep.Records[TraceEnv])
}

func TestSnapshotAndDensity(t *testing.T) {
	dir := t.TempDir()
	gen := synth.DefaultStep()
	gen.Years = 1
	require.NoError(t, synth.Write(dir, synth.DefaultFiles(), gen.Generate(), false))

	cfg := testConfig(config.ScenarioData{Name: "s", Dir: dir})
	a := newAnalyzer(t, cfg)
	_, tr, err := a.Analyze(context.Background(), cfg.Scenarios[0])
	require.NoError(t, err)

	snap, err := a.Snapshot(tr, -1, true)
	require.NoError(t, err)
	assert.Equal(t, 359, snap.Step)
	require.NotNil(t, snap.Fit)

	_, err = a.Snapshot(tr, 360, false)
	assert.ErrorIs(t, err, series.ErrStepOutOfRange)
	_, err = a.Snapshot(tr, -361, false)
	assert.ErrorIs(t, err, series.ErrStepOutOfRange)

	d, err := a.Density(tr)
	require.NoError(t, err)
	assert.Len(t, d.Axis, layout.DistBins)
	require.Len(t, d.Values, layout.DistBins)
	assert.Len(t, d.Values[0], 360)
	assert.Len(t, d.Days, 360)

	ms, err := a.MeanSeries(tr)
	require.NoError(t, err)
	assert.Len(t, ms.Temperature, 360)
	assert.InDelta(t, 10000, float64(ms.Total[0]), 10)
}

func TestRunWithComparison(t *testing.T) {
	root := t.TempDir()
	evo := synth.DefaultSeasonal()
	evo.Years = 3
	sta := synth.DefaultStep()
	sta.Years = 2
	require.NoError(t, synth.Write(filepath.Join(root, "evolving"), synth.DefaultFiles(), evo.Generate(), false))
	require.NoError(t, synth.Write(filepath.Join(root, "static"), synth.DefaultFiles(), sta.Generate(), false))

	cfg := testConfig(
		config.ScenarioData{Name: "evolving", Dir: filepath.Join(root, "evolving")},
		config.ScenarioData{Name: "static", Dir: filepath.Join(root, "static")},
	)
	cfg.Comparison = &config.ComparisonData{Evolving: "evolving", Static: "static"}

	res, err := Run(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)

	_, err = uuid.Parse(res.Report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, "24h0m0s", res.Report.OutputInterval)
	assert.Equal(t, config.SourceConfig, res.Report.IntervalSource)
	assert.Equal(t, 201, res.Report.Axis.Bins)
	require.Len(t, res.Report.Scenarios, 2)
	assert.Equal(t, "evolving", res.Report.Scenarios[0].Name)
	assert.Contains(t, res.Traces, "static")

	_, ok := res.Report.Scenario("static")
	assert.True(t, ok)
	_, ok = res.Report.Scenario("nope")
	assert.False(t, ok)

	c := res.Report.Comparison
	require.NotNil(t, c)
	assert.Empty(t, c.Error)
	assert.Equal(t, 720, c.Steps)
	assert.Len(t, c.AnnualEvolving, 2)
	assert.Len(t, c.AnnualStatic, 2)
	// A full seasonal cycle averages out to the offset.
	assert.InDelta(t, 1.0, float64(c.FinalEvolving), 1e-9)
	assert.InDelta(t, 1.0, float64(c.FinalStatic), 1e-12)
	assert.InDelta(t, 1.0, float64(c.MeanRatio), 1e-9)
}

func TestComparisonWithoutEcoTrace(t *testing.T) {
	cfg := testConfig(
		config.ScenarioData{Name: "a", Dir: t.TempDir()},
		config.ScenarioData{Name: "b", Dir: t.TempDir()},
	)
	cfg.Comparison = &config.ComparisonData{Evolving: "a", Static: "b"}

	res, err := Run(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NotNil(t, res.Report.Comparison)
	assert.NotEmpty(t, res.Report.Comparison.Error)
	assert.False(t, res.Report.Comparison.MeanRatio.Defined())
}

func TestRunFailsOnUnreadableTrace(t *testing.T) {
	dir := t.TempDir()
	// A directory where a trace file should be cannot be read.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "fort.12"), 0o755))

	cfg := testConfig(config.ScenarioData{Name: "broken", Dir: dir})
	_, err := Run(context.Background(), cfg, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRunHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, synth.Write(dir, synth.DefaultFiles(), synth.DefaultStep().Generate(), false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testConfig(config.ScenarioData{Name: "x", Dir: dir}), zap.NewNop().Sugar())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsAxisMismatch(t *testing.T) {
	cfg := testConfig(config.ScenarioData{Name: "x"})
	cfg.BinAxis.Count = 100
	_, err := New(cfg, zap.NewNop().Sugar())
	assert.ErrorIs(t, err, ErrAxisLayout)
}

func TestNewShiftsAxis(t *testing.T) {
	cfg := testConfig(config.ScenarioData{Name: "x"})
	cfg.BinAxis.Shift = -0.05
	a := newAnalyzer(t, cfg)
	assert.InDelta(t, 4.95, a.Axis().Min(), 1e-12)
	assert.InDelta(t, 24.95, a.Axis().Max(), 1e-12)
}

func TestIntervalFromParameterFile(t *testing.T) {
	dir := t.TempDir()
	nml := filepath.Join(dir, "parameters.nml")
	require.NoError(t, os.WriteFile(nml, []byte("&run\n dt_out = 4.32d4\n/\n"), 0o644))

	cfg := testConfig(config.ScenarioData{Name: "x"})
	cfg.OutputInterval = 0
	cfg.ParameterFile = nml
	assert.Equal(t, 12*time.Hour, newAnalyzer(t, cfg).Interval())

	cfg.ParameterFile = filepath.Join(dir, "absent.nml")
	assert.Equal(t, config.DefaultOutputInterval, newAnalyzer(t, cfg).Interval())
}

func TestFloatJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Float   `json:"a"`
		B Float   `json:"b"`
		C []Float `json:"c"`
	}{Float(math.NaN()), 1.5, []Float{Float(math.Inf(1)), 2}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null,"b":1.5,"c":[null,2]}`, string(b))

	var back struct {
		A Float `json:"a"`
		B Float `json:"b"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.False(t, back.A.Defined())
	assert.Equal(t, Float(1.5), back.B)
}

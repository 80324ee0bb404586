package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/traitlag/internal/constants"
	"github.com/chrissnell/traitlag/pkg/config"
	"github.com/chrissnell/traitlag/pkg/layout"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Results pairs a report with the tables it was computed from, so that
// series can be served without decoding the traces again.
type Results struct {
	Report *Report
	Traces map[string]*Traces
}

// Run analyses every scenario of cfg.
func Run(ctx context.Context, cfg *config.ConfigData, logger *zap.SugaredLogger) (*Results, error) {
	a, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx)
}

// Run analyses all scenarios concurrently. The first fatal error cancels the
// rest.
func (a *Analyzer) Run(ctx context.Context) (*Results, error) {
	scenarios := a.cfg.Scenarios
	reports := make([]*ScenarioReport, len(scenarios))
	traces := make([]*Traces, len(scenarios))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range scenarios {
		g.Go(func() error {
			rep, tr, err := a.Analyze(gctx, s)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", s.Name, err)
			}
			reports[i], traces[i] = rep, tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Results{
		Report: &Report{
			RunID:          uuid.NewString(),
			GeneratedAt:    time.Now().UTC(),
			Version:        constants.Version,
			OutputInterval: a.interval.String(),
			IntervalSource: a.source,
			Axis: AxisReport{
				Start: Float(a.axis.Min()),
				Stop:  Float(a.axis.Max()),
				Bins:  len(a.axis),
			},
			Scenarios: reports,
		},
		Traces: make(map[string]*Traces, len(scenarios)),
	}
	for i, s := range scenarios {
		res.Traces[s.Name] = traces[i]
	}

	if cmp := a.cfg.Comparison; cmp != nil {
		c, err := a.compare(cmp.Evolving, cmp.Static, res.Traces[cmp.Evolving], res.Traces[cmp.Static])
		if err != nil {
			return nil, err
		}
		res.Report.Comparison = c
	}

	a.logger.Infow("analysis complete", "run_id", res.Report.RunID, "scenarios", len(reports))
	return res, nil
}

// compare contrasts the phytoplankton biomass of two scenarios.
func (a *Analyzer) compare(evolving, static string, evo, sta *Traces) (*ComparisonReport, error) {
	nan := Float(math.NaN())
	rep := &ComparisonReport{
		Evolving:      evolving,
		Static:        static,
		MeanEvolving:  nan,
		MeanStatic:    nan,
		MeanRatio:     nan,
		FinalEvolving: nan,
		FinalStatic:   nan,
	}
	if evo == nil || sta == nil || evo.Eco == nil || sta.Eco == nil {
		rep.Error = fmt.Sprintf("%s trace: %v", TraceEco, ErrNoTrace)
		a.logger.Warnw("skipping scenario comparison", "evolving", evolving, "static", static, "error", rep.Error)
		return rep, nil
	}

	pe, err := evo.Eco.Column(layout.FieldPhytoplankton)
	if err != nil {
		return nil, err
	}
	ps, err := sta.Eco.Column(layout.FieldPhytoplankton)
	if err != nil {
		return nil, err
	}

	n := min(len(pe), len(ps))
	rep.Steps = n
	if n == 0 {
		rep.Error = "no common records"
		return rep, nil
	}
	pe, ps = pe[:n], ps[:n]

	me, ms := stat.Mean(pe, nil), stat.Mean(ps, nil)
	rep.MeanEvolving, rep.MeanStatic = Float(me), Float(ms)
	rep.MeanRatio = Float(me / ms)

	rep.AnnualEvolving = toFloats(annualMeans(pe, a.stepsPerYear()))
	rep.AnnualStatic = toFloats(annualMeans(ps, a.stepsPerYear()))
	if k := len(rep.AnnualEvolving); k > 0 {
		rep.FinalEvolving = rep.AnnualEvolving[k-1]
		rep.FinalStatic = rep.AnnualStatic[k-1]
	}
	return rep, nil
}

// annualMeans averages x over each complete year of perYear samples.
func annualMeans(x []float64, perYear int) []float64 {
	years := len(x) / perYear
	out := make([]float64, years)
	for y := range out {
		out[y] = stat.Mean(x[y*perYear:(y+1)*perYear], nil)
	}
	return out
}

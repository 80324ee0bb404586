// Package synth generates synthetic simulator traces with known seasonal
// lags and relaxation timescales.
package synth

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/chrissnell/traitlag/internal/distribution"
	"github.com/chrissnell/traitlag/pkg/fortran"
	"github.com/chrissnell/traitlag/pkg/layout"
)

// Traces holds the records of the three trace files of one run.
type Traces struct {
	Env  []layout.Record
	Eco  []layout.Record
	Dist []layout.Record
}

// Seasonal describes a run forced by a sinusoidal temperature cycle. The
// mean trait follows the cycle LagSteps later with AmplitudeRatio times its
// amplitude.
type Seasonal struct {
	Years          int
	StepsPerYear   int
	MeanTemp       float64
	EnvAmplitude   float64
	LagSteps       int
	AmplitudeRatio float64
	Agents         int
	Spread         float64
}

// DefaultSeasonal is a ten year run with a three month lag.
func DefaultSeasonal() Seasonal {
	return Seasonal{
		Years:          10,
		StepsPerYear:   360,
		MeanTemp:       15,
		EnvAmplitude:   5,
		LagSteps:       90,
		AmplitudeRatio: 0.2,
		Agents:         10000,
		Spread:         1,
	}
}

func (s Seasonal) Generate() Traces {
	axis := distribution.StandardAxis()
	n := s.Years * s.StepsPerYear
	tr := Traces{}
	for i := 0; i < n; i++ {
		phase := 2 * math.Pi * float64(i) / float64(s.StepsPerYear)
		lagged := 2 * math.Pi * float64(i-s.LagSteps) / float64(s.StepsPerYear)

		temp := s.MeanTemp + s.EnvAmplitude*math.Sin(phase)
		trait := s.MeanTemp + s.AmplitudeRatio*s.EnvAmplitude*math.Sin(lagged)

		tr.Env = append(tr.Env, envRecord(temp, 100+50*math.Sin(phase)))
		tr.Eco = append(tr.Eco, ecoRecord(2-math.Sin(phase), 0.5, 1+0.5*math.Sin(lagged)))
		tr.Dist = append(tr.Dist, distRecord(Histogram(axis, trait, s.Spread, s.Agents)))
	}
	return tr
}

// Step describes a run whose temperature jumps from TInitial to TFinal at
// JumpYears, after which the mean trait relaxes with timescale Tau years.
type Step struct {
	Years        int
	StepsPerYear int
	JumpYears    float64
	TInitial     float64
	TFinal       float64
	Tau          float64
	Agents       int
	Spread       float64
}

// DefaultStep is a five year run with a 15 to 20 degree jump after one year.
func DefaultStep() Step {
	return Step{
		Years:        5,
		StepsPerYear: 360,
		JumpYears:    1,
		TInitial:     15,
		TFinal:       20,
		Tau:          1.25,
		Agents:       10000,
		Spread:       1,
	}
}

// TraitAt returns the mean trait at t years.
func (s Step) TraitAt(t float64) float64 {
	if t <= s.JumpYears {
		return s.TInitial
	}
	return s.TFinal - (s.TFinal-s.TInitial)*math.Exp(-(t-s.JumpYears)/s.Tau)
}

func (s Step) Generate() Traces {
	axis := distribution.StandardAxis()
	n := s.Years * s.StepsPerYear
	tr := Traces{}
	for i := 0; i < n; i++ {
		t := float64(i) / float64(s.StepsPerYear)
		temp := s.TInitial
		if t > s.JumpYears {
			temp = s.TFinal
		}
		tr.Env = append(tr.Env, envRecord(temp, 100))
		tr.Eco = append(tr.Eco, ecoRecord(2, 0.5, 1))
		tr.Dist = append(tr.Dist, distRecord(Histogram(axis, s.TraitAt(t), s.Spread, s.Agents)))
	}
	return tr
}

// Histogram spreads agents over the axis as a discretised normal
// distribution. Bins are rounded to whole agents.
func Histogram(axis distribution.Axis, mean, sd float64, agents int) []int32 {
	counts := make([]int32, len(axis))
	if len(axis) < 2 || !(sd > 0) {
		return counts
	}
	width := axis[1] - axis[0]
	for i, x := range axis {
		d := (x - mean) / sd
		p := math.Exp(-d*d/2) / (sd * math.Sqrt(2*math.Pi)) * width
		counts[i] = int32(math.Round(float64(agents) * p))
	}
	return counts
}

func envRecord(temp, light float64) layout.Record {
	r := layout.Env.NewRecord()
	r.SetFloat(layout.FieldTemperature, temp)
	r.SetFloat(layout.FieldIrradiance, light)
	return r
}

func ecoRecord(nutrient, detritus, phyto float64) layout.Record {
	r := layout.Eco.NewRecord()
	r.SetFloat(layout.FieldNutrient, nutrient)
	r.SetFloat(layout.FieldDetritus, detritus)
	r.SetFloat(layout.FieldPhytoplankton, phyto)
	return r
}

func distRecord(counts []int32) layout.Record {
	r := layout.Dist.NewRecord()
	r.SetInts(layout.FieldBinCounts, counts)
	return r
}

// Files names the three trace files inside a run directory.
type Files struct {
	Env, Eco, Dist string
}

// DefaultFiles are the simulator's unit numbers.
func DefaultFiles() Files {
	return Files{Env: "fort.10", Eco: "fort.11", Dist: "fort.12"}
}

// Write writes the traces into dir. With truncate set every file ends in a
// partial record, as left behind by an interrupted run.
func Write(dir string, files Files, tr Traces, truncate bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		l    layout.Layout
		recs []layout.Record
	}{
		{files.Env, layout.Env, tr.Env},
		{files.Eco, layout.Eco, tr.Eco},
		{files.Dist, layout.Dist, tr.Dist},
	} {
		if f.name == "" {
			continue
		}
		if err := WriteTrace(filepath.Join(dir, f.name), f.l, f.recs, truncate); err != nil {
			return err
		}
	}
	return nil
}

// WriteTrace encodes recs with l into a sequential record file at path.
func WriteTrace(path string, l layout.Layout, recs []layout.Record, truncate bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := fortran.NewWriter(f, l.ByteOrder())
	for i, rec := range recs {
		payload, err := l.Encode(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := w.WriteRecord(payload); err != nil {
			return err
		}
	}

	if truncate {
		// Leading marker and half a payload, no trailing marker.
		partial := make([]byte, 4+l.Size()/2)
		l.ByteOrder().PutUint32(partial, uint32(l.Size()))
		if _, err := f.Write(partial); err != nil {
			return err
		}
	}
	return nil
}

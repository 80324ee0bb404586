package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chrissnell/traitlag/internal/log"
	"github.com/chrissnell/traitlag/internal/synth"
)

// paramFile is the namelist written next to the traces so that the output
// interval resolves without configuration.
const paramFile = "params.nml"

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "trace-emulator: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("trace-emulator", flag.ContinueOnError)
	fs.SetOutput(stderr)

	seasonal := synth.DefaultSeasonal()
	step := synth.DefaultStep()

	var (
		dir      = fs.String("dir", "run", "Directory to write fort.10, fort.11 and fort.12 into")
		scenario = fs.String("scenario", "seasonal", "Scenario to generate: seasonal or step")
		years    = fs.Int("years", 0, "Run length in model years (0 keeps the scenario default)")
		perYear  = fs.Int("steps-per-year", 360, "Output records per model year")
		agents   = fs.Int("agents", 10000, "Number of agents spread over the trait axis")
		spread   = fs.Float64("spread", 1, "Standard deviation of the trait distribution")
		truncate = fs.Bool("truncate", false, "End every trace with a partial record")
		debug    = fs.Bool("debug", false, "Turn on debugging output")

		lagSteps = fs.Int("lag", seasonal.LagSteps, "Seasonal: trait lag behind temperature in steps")
		ratio    = fs.Float64("amplitude-ratio", seasonal.AmplitudeRatio, "Seasonal: trait amplitude over temperature amplitude")
		meanTemp = fs.Float64("mean-temp", seasonal.MeanTemp, "Seasonal: mean temperature")
		envAmp   = fs.Float64("env-amplitude", seasonal.EnvAmplitude, "Seasonal: temperature amplitude")

		jump  = fs.Float64("jump", step.JumpYears, "Step: time of the temperature jump in years")
		tInit = fs.Float64("t-initial", step.TInitial, "Step: temperature before the jump")
		tFin  = fs.Float64("t-final", step.TFinal, "Step: temperature after the jump")
		tau   = fs.Float64("tau", step.Tau, "Step: relaxation timescale in years")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := log.Init(*debug); err != nil {
		return err
	}
	defer log.Sync()

	if *perYear <= 0 || *agents <= 0 || !(*spread > 0) {
		return fmt.Errorf("steps-per-year, agents and spread must be positive")
	}

	var tr synth.Traces
	switch *scenario {
	case "seasonal":
		seasonal.StepsPerYear, seasonal.Agents, seasonal.Spread = *perYear, *agents, *spread
		seasonal.LagSteps, seasonal.AmplitudeRatio = *lagSteps, *ratio
		seasonal.MeanTemp, seasonal.EnvAmplitude = *meanTemp, *envAmp
		if *years > 0 {
			seasonal.Years = *years
		}
		tr = seasonal.Generate()
	case "step":
		step.StepsPerYear, step.Agents, step.Spread = *perYear, *agents, *spread
		step.JumpYears, step.TInitial, step.TFinal, step.Tau = *jump, *tInit, *tFin, *tau
		if *years > 0 {
			step.Years = *years
		}
		tr = step.Generate()
	default:
		return fmt.Errorf("unknown scenario %q: use seasonal or step", *scenario)
	}

	if err := synth.Write(*dir, synth.DefaultFiles(), tr, *truncate); err != nil {
		return fmt.Errorf("writing traces: %w", err)
	}

	// Seconds between records in a 360 day model year.
	dt := 360 * 86400 / float64(*perYear)
	nml := fmt.Sprintf("&run_params\n  dt_out = %gd0  ! seconds between records\n/\n", dt)
	if err := os.WriteFile(filepath.Join(*dir, paramFile), []byte(nml), 0o644); err != nil {
		return err
	}

	log.Infow("traces written",
		"dir", *dir,
		"scenario", *scenario,
		"records", len(tr.Dist),
		"truncated", *truncate,
	)
	return nil
}

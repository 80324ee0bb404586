package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultEnvFile           = "fort.10"
	DefaultEcoFile           = "fort.11"
	DefaultDistFile          = "fort.12"
	DefaultOutputInterval    = 24 * time.Hour
	DefaultOutputIntervalKey = "dt_out"
	FallbackIntervalKey      = "dt"
	DefaultDaysPerYear       = 360
	DefaultTailFraction      = 0.5
	DefaultPeakDistance      = 300
	DefaultSearchWindow      = 180
	DefaultTauGuess          = 1.25
	DefaultJumpYears         = 1.0
	DefaultAxisStart         = 5.0
	DefaultAxisStop          = 25.0
	DefaultAxisCount         = 201
	DefaultSigmaBins         = 2.0
	DefaultSigmaSteps        = 1.0
	DefaultDensityFloor      = 0.1
	DefaultPort              = 8080
	DefaultFormat            = "json"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	LoadConfig() (*ConfigData, error)
	IsReadOnly() bool
	Close() error
}

// ConfigData is the complete analysis configuration. It is passed by value
// into every component that needs it.
type ConfigData struct {
	// OutputInterval is the simulated time between two records. When zero
	// it is read from ParameterFile.
	OutputInterval    time.Duration   `json:"output_interval"`
	ParameterFile     string          `json:"parameter_file,omitempty"`
	OutputIntervalKey string          `json:"output_interval_key,omitempty"`
	DaysPerYear       int             `json:"days_per_year"`
	BinAxis           AxisData        `json:"bin_axis"`
	Lag               LagData         `json:"lag"`
	Scenarios         []ScenarioData  `json:"scenarios"`
	Comparison        *ComparisonData `json:"comparison,omitempty"`
	Density           DensityData     `json:"density"`
	Server            ServerData      `json:"server"`
	Report            ReportData      `json:"report"`
}

// AxisData describes the trait bin centres.
type AxisData struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Count int     `json:"count"`
	// Shift is added to every centre, e.g. -0.05 to use left bin edges.
	Shift float64 `json:"shift,omitempty"`
}

// LagData tunes both lag estimators.
type LagData struct {
	// TailYears, when positive, sets the analysis window in model years
	// and takes precedence over TailFraction.
	TailYears    float64 `json:"tail_years,omitempty"`
	TailFraction float64 `json:"tail_fraction"`
	PeakDistance int     `json:"peak_distance"`
	SearchWindow int     `json:"search_window"`
	Normalize    bool    `json:"normalize"`
}

type ScenarioData struct {
	Name       string          `json:"name"`
	Dir        string          `json:"dir,omitempty"`
	EnvFile    string          `json:"env_file,omitempty"`
	EcoFile    string          `json:"eco_file,omitempty"`
	DistFile   string          `json:"dist_file,omitempty"`
	Snapshots  []SnapshotData  `json:"snapshots,omitempty"`
	Relaxation *RelaxationData `json:"relaxation,omitempty"`
	Validation *ValidationData `json:"validation,omitempty"`
}

// SnapshotData selects one distribution row. Negative steps count from the
// end, -1 being the final record.
type SnapshotData struct {
	Label string `json:"label"`
	Step  int    `json:"step"`
	Fit   bool   `json:"fit"`
}

type RelaxationData struct {
	JumpYears float64 `json:"jump_years"`
	TInitial  float64 `json:"t_initial"`
	TFinal    float64 `json:"t_final"`
	TauGuess  float64 `json:"tau_guess"`
}

type ValidationData struct {
	TargetMean float64 `json:"target_mean"`
	Tolerance  float64 `json:"tolerance"`
}

// ComparisonData names two scenarios whose phytoplankton biomass is
// compared, typically with and without trait evolution.
type ComparisonData struct {
	Evolving string `json:"evolving"`
	Static   string `json:"static"`
}

type DensityData struct {
	SigmaBins  float64 `json:"sigma_bins"`
	SigmaSteps float64 `json:"sigma_steps"`
	Floor      float64 `json:"floor"`
}

type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
}

type ReportData struct {
	Path   string `json:"path,omitempty"`
	Format string `json:"format,omitempty"`
}

// EnvPath returns the location of the environment trace.
func (s ScenarioData) EnvPath() string { return filepath.Join(s.Dir, s.EnvFile) }

// EcoPath returns the location of the ecosystem trace.
func (s ScenarioData) EcoPath() string { return filepath.Join(s.Dir, s.EcoFile) }

// DistPath returns the location of the trait distribution trace.
func (s ScenarioData) DistPath() string { return filepath.Join(s.Dir, s.DistFile) }

// Scenario looks up a scenario by name.
func (c *ConfigData) Scenario(name string) (ScenarioData, bool) {
	for _, s := range c.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return ScenarioData{}, false
}

// ModelYear is the length of one simulated year.
func (c *ConfigData) ModelYear() time.Duration {
	return time.Duration(c.DaysPerYear) * 24 * time.Hour
}

// ApplyDefaults fills every unset field with its documented default.
func (c *ConfigData) ApplyDefaults() {
	if c.OutputIntervalKey == "" {
		c.OutputIntervalKey = DefaultOutputIntervalKey
	}
	if c.DaysPerYear == 0 {
		c.DaysPerYear = DefaultDaysPerYear
	}
	if c.BinAxis.Count == 0 {
		c.BinAxis.Start, c.BinAxis.Stop, c.BinAxis.Count = DefaultAxisStart, DefaultAxisStop, DefaultAxisCount
	}
	if c.Lag.TailFraction == 0 {
		c.Lag.TailFraction = DefaultTailFraction
	}
	if c.Lag.PeakDistance == 0 {
		c.Lag.PeakDistance = DefaultPeakDistance
	}
	if c.Lag.SearchWindow == 0 {
		c.Lag.SearchWindow = DefaultSearchWindow
	}
	if c.Density.SigmaBins == 0 {
		c.Density.SigmaBins = DefaultSigmaBins
	}
	if c.Density.SigmaSteps == 0 {
		c.Density.SigmaSteps = DefaultSigmaSteps
	}
	if c.Density.Floor == 0 {
		c.Density.Floor = DefaultDensityFloor
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Report.Format == "" {
		c.Report.Format = DefaultFormat
	}

	for i := range c.Scenarios {
		s := &c.Scenarios[i]
		if s.EnvFile == "" {
			s.EnvFile = DefaultEnvFile
		}
		if s.EcoFile == "" {
			s.EcoFile = DefaultEcoFile
		}
		if s.DistFile == "" {
			s.DistFile = DefaultDistFile
		}
		if r := s.Relaxation; r != nil {
			if r.JumpYears == 0 {
				r.JumpYears = DefaultJumpYears
			}
			if r.TauGuess == 0 {
				r.TauGuess = DefaultTauGuess
			}
		}
	}
}

// Validate rejects configurations no analysis can run against.
func (c *ConfigData) Validate() error {
	if len(c.Scenarios) == 0 {
		return fmt.Errorf("%w: no scenarios", ErrInvalidConfig)
	}
	if c.OutputInterval < 0 {
		return fmt.Errorf("%w: output_interval %v is negative", ErrInvalidConfig, c.OutputInterval)
	}
	if c.DaysPerYear <= 0 {
		return fmt.Errorf("%w: days_per_year must be positive", ErrInvalidConfig)
	}
	if c.BinAxis.Count < 2 || !(c.BinAxis.Stop > c.BinAxis.Start) {
		return fmt.Errorf("%w: bin_axis needs count >= 2 and stop > start", ErrInvalidConfig)
	}
	if c.Lag.TailFraction <= 0 || c.Lag.TailFraction > 1 {
		return fmt.Errorf("%w: lag.tail_fraction must be in (0, 1]", ErrInvalidConfig)
	}
	if c.Lag.TailYears < 0 {
		return fmt.Errorf("%w: lag.tail_years must not be negative", ErrInvalidConfig)
	}
	if c.Density.SigmaBins < 0 || c.Density.SigmaSteps < 0 {
		return fmt.Errorf("%w: density sigmas must not be negative", ErrInvalidConfig)
	}
	switch c.Report.Format {
	case "json", "msgpack":
	default:
		return fmt.Errorf("%w: report.format %q", ErrInvalidConfig, c.Report.Format)
	}

	seen := make(map[string]bool, len(c.Scenarios))
	for _, s := range c.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("%w: scenario without a name", ErrInvalidConfig)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate scenario %q", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true

		if r := s.Relaxation; r != nil && !(r.TauGuess > 0) {
			return fmt.Errorf("%w: scenario %q: tau_guess must be positive", ErrInvalidConfig, s.Name)
		}
		if v := s.Validation; v != nil && v.Tolerance < 0 {
			return fmt.Errorf("%w: scenario %q: negative tolerance", ErrInvalidConfig, s.Name)
		}
	}

	if cmp := c.Comparison; cmp != nil {
		for _, name := range []string{cmp.Evolving, cmp.Static} {
			if !seen[name] {
				return fmt.Errorf("%w: comparison references unknown scenario %q", ErrInvalidConfig, name)
			}
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig reads the file, applies defaults and validates the result.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := Parse(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// Parse decodes a YAML document into a defaulted, validated ConfigData.
func Parse(data []byte) (*ConfigData, error) {
	var yamlConfig ConfigYAML
	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return nil, err
	}

	config := yamlConfig.convert()
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

func (c ConfigYAML) convert() *ConfigData {
	config := &ConfigData{
		OutputInterval:    c.OutputInterval,
		ParameterFile:     c.ParameterFile,
		OutputIntervalKey: c.OutputIntervalKey,
		DaysPerYear:       c.DaysPerYear,
		BinAxis: AxisData{
			Start: c.BinAxis.Start,
			Stop:  c.BinAxis.Stop,
			Count: c.BinAxis.Count,
			Shift: c.BinAxis.Shift,
		},
		Lag: LagData{
			TailYears:    c.Lag.TailYears,
			TailFraction: c.Lag.TailFraction,
			PeakDistance: c.Lag.PeakDistance,
			SearchWindow: c.Lag.SearchWindow,
			Normalize:    c.Lag.Normalize,
		},
		Density: DensityData{
			SigmaBins:  c.Density.SigmaBins,
			SigmaSteps: c.Density.SigmaSteps,
			Floor:      c.Density.Floor,
		},
		Server: ServerData{
			ListenAddr: c.Server.ListenAddr,
			Port:       c.Server.Port,
		},
		Report: ReportData{
			Path:   c.Report.Path,
			Format: c.Report.Format,
		},
		Scenarios: make([]ScenarioData, len(c.Scenarios)),
	}

	if c.Comparison != nil {
		config.Comparison = &ComparisonData{
			Evolving: c.Comparison.Evolving,
			Static:   c.Comparison.Static,
		}
	}

	for i, s := range c.Scenarios {
		config.Scenarios[i] = ScenarioData{
			Name:     s.Name,
			Dir:      s.Dir,
			EnvFile:  s.EnvFile,
			EcoFile:  s.EcoFile,
			DistFile: s.DistFile,
		}
		for _, snap := range s.Snapshots {
			config.Scenarios[i].Snapshots = append(config.Scenarios[i].Snapshots, SnapshotData{
				Label: snap.Label,
				Step:  snap.Step,
				Fit:   snap.Fit,
			})
		}
		if s.Relaxation != nil {
			config.Scenarios[i].Relaxation = &RelaxationData{
				JumpYears: s.Relaxation.JumpYears,
				TInitial:  s.Relaxation.TInitial,
				TFinal:    s.Relaxation.TFinal,
				TauGuess:  s.Relaxation.TauGuess,
			}
		}
		if s.Validation != nil {
			config.Scenarios[i].Validation = &ValidationData{
				TargetMean: s.Validation.TargetMean,
				Tolerance:  s.Validation.Tolerance,
			}
		}
	}

	return config
}

// YAML-specific structs with the file's own key spelling
type ConfigYAML struct {
	OutputInterval    time.Duration   `yaml:"output-interval,omitempty"`
	ParameterFile     string          `yaml:"parameter-file,omitempty"`
	OutputIntervalKey string          `yaml:"output-interval-key,omitempty"`
	DaysPerYear       int             `yaml:"days-per-year,omitempty"`
	BinAxis           AxisYAML        `yaml:"bin-axis,omitempty"`
	Lag               LagYAML         `yaml:"lag,omitempty"`
	Scenarios         []ScenarioYAML  `yaml:"scenarios"`
	Comparison        *ComparisonYAML `yaml:"comparison,omitempty"`
	Density           DensityYAML     `yaml:"density,omitempty"`
	Server            ServerYAML      `yaml:"server,omitempty"`
	Report            ReportYAML      `yaml:"report,omitempty"`
}

type AxisYAML struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Count int     `yaml:"count"`
	Shift float64 `yaml:"shift,omitempty"`
}

type LagYAML struct {
	TailYears    float64 `yaml:"tail-years,omitempty"`
	TailFraction float64 `yaml:"tail-fraction,omitempty"`
	PeakDistance int     `yaml:"peak-distance,omitempty"`
	SearchWindow int     `yaml:"search-window,omitempty"`
	Normalize    bool    `yaml:"normalize,omitempty"`
}

type ScenarioYAML struct {
	Name       string          `yaml:"name"`
	Dir        string          `yaml:"dir,omitempty"`
	EnvFile    string          `yaml:"env-file,omitempty"`
	EcoFile    string          `yaml:"eco-file,omitempty"`
	DistFile   string          `yaml:"dist-file,omitempty"`
	Snapshots  []SnapshotYAML  `yaml:"snapshots,omitempty"`
	Relaxation *RelaxationYAML `yaml:"relaxation,omitempty"`
	Validation *ValidationYAML `yaml:"validation,omitempty"`
}

type SnapshotYAML struct {
	Label string `yaml:"label"`
	Step  int    `yaml:"step"`
	Fit   bool   `yaml:"fit,omitempty"`
}

type RelaxationYAML struct {
	JumpYears float64 `yaml:"jump-years,omitempty"`
	TInitial  float64 `yaml:"t-initial"`
	TFinal    float64 `yaml:"t-final"`
	TauGuess  float64 `yaml:"tau-guess,omitempty"`
}

type ValidationYAML struct {
	TargetMean float64 `yaml:"target-mean"`
	Tolerance  float64 `yaml:"tolerance"`
}

type ComparisonYAML struct {
	Evolving string `yaml:"evolving"`
	Static   string `yaml:"static"`
}

type DensityYAML struct {
	SigmaBins  float64 `yaml:"sigma-bins,omitempty"`
	SigmaSteps float64 `yaml:"sigma-steps,omitempty"`
	Floor      float64 `yaml:"floor,omitempty"`
}

type ServerYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
}

type ReportYAML struct {
	Path   string `yaml:"path,omitempty"`
	Format string `yaml:"format,omitempty"`
}

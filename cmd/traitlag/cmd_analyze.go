package main

import (
	"fmt"
	"path/filepath"

	"github.com/chrissnell/traitlag/internal/app"
	"github.com/chrissnell/traitlag/internal/log"
	"github.com/chrissnell/traitlag/pkg/config"
	"github.com/chrissnell/traitlag/pkg/responseformat"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyse every configured scenario and write a report",
		Long: `Reads the scenario traces named in the configuration file and writes
the analysis report. The report goes to stdout unless --out or the
report.path setting names a file. Undefined statistics encode as null.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer provider.Close()

			out := cfg.Report.Path
			if cmd.Flags().Changed("out") {
				out, _ = cmd.Flags().GetString("out")
			}
			formatName := cfg.Report.Format
			if cmd.Flags().Changed("format") {
				formatName, _ = cmd.Flags().GetString("format")
			}
			format, err := responseformat.ParseFormat(formatName)
			if err != nil {
				return err
			}

			a := app.New(provider, log.GetSugaredLogger())
			return a.WriteReport(cmd.Context(), cmd.OutOrStdout(), out, format)
		},
	}

	addConfigFlag(cmd)
	cmd.Flags().String("format", config.DefaultFormat, "Report format: json or msgpack")
	cmd.Flags().String("out", "", "Write the report to this file instead of stdout")
	return cmd
}

func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "analysis.yaml", "Path to the YAML analysis configuration")
}

// loadConfig opens the provider named by --config and loads it once so that
// configuration errors surface before any trace is read.
func loadConfig(cmd *cobra.Command) (config.ConfigProvider, *config.ConfigData, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	filename, _ := filepath.Abs(cfgFile)

	provider := config.NewYAMLProvider(filename)
	cfg, err := provider.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading config file. Did you pass the --config flag? Run with -h for help: %w", err)
	}
	return provider, cfg, nil
}

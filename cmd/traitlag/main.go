package main

import (
	"fmt"
	"os"

	"github.com/chrissnell/traitlag/internal/constants"
	"github.com/chrissnell/traitlag/internal/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "traitlag",
		Short: "Trait distribution and adaptation lag analysis for plankton simulator traces",
		Long: `traitlag decodes the binary trace files written by the trait-based
plankton simulator and derives distribution statistics, seasonal lags
between environment and mean trait, and adaptation timescales.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			return log.Init(debug)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Sync()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("debug", false, "Turn on debugging output")

	rootCmd.AddCommand(
		newVersionCmd(),
		newAnalyzeCmd(),
		newDecodeCmd(),
		newServeCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", constants.Name, constants.Version)
		},
	}
}

package main

import (
	"github.com/chrissnell/traitlag/internal/app"
	"github.com/chrissnell/traitlag/internal/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Analyse once, then serve the results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer provider.Close()

			return app.New(provider, log.GetSugaredLogger()).Serve(cmd.Context())
		},
	}

	addConfigFlag(cmd)
	return cmd
}

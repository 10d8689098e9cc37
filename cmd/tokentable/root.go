package main

import (
	"context"
	"fmt"

	"tokentable/internal/app"
	"tokentable/internal/config"

	"github.com/spf13/cobra"
)

func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tokentable",
		Short:         "Live token table: filter, sort and simulated price updates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.yaml (env CONFIG)")

	root.AddCommand(serveCmd(&cfgPath))
	root.AddCommand(snapshotCmd())
	return root
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event stream and price simulator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Path(*cfgPath))
			if err != nil {
				return fmt.Errorf("failed load config, error=%w", err)
			}

			if err = app.Run(cfg); err != nil {
				return fmt.Errorf("app run is failed, error=%w", err)
			}
			return nil
		},
	}
}

package main

import (
	"github.com/ethpandaops/regressoor/pkg/api"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the results API",
	Long: `Start the read-only HTTP API exposing test lists, score series,
segmentations, and alarms for report and plot renderers.`,
	RunE: serveAPI,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serveAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	defer func() {
		if err := s.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop store")
		}
	}()

	server := api.NewServer(log, cfg, s)

	return server.Start(ctx)
}

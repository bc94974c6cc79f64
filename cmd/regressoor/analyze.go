package main

import (
	"fmt"

	"github.com/ethpandaops/regressoor/pkg/analyzer"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [test-name...]",
	Short: "Detect changepoints in recorded score series",
	Long: `Rebuild each test's score series from the results store, segment it
into mean-homogeneous parts, and raise an alarm when the most recent
shift is still inside the recency window. Without arguments every
configured test is analysed.

A triggered alarm is a successful detection and exits zero; a non-zero
exit signals an analysis fault, never a regression.`,
	RunE: analyzeTests,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeTests(cmd *cobra.Command, args []string) error {
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

	names := args
	if len(names) == 0 {
		names = cfg.TestNames()
	}

	if len(names) == 0 {
		return fmt.Errorf("no tests configured")
	}

	a := analyzer.New(log, cfg, s)
	outcomes := a.AnalyzeAll(ctx, names)

	var failed, alarms int

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++

			continue
		}

		if outcome.Report.Alarm.Triggered {
			alarms++
		}

		path, err := a.WriteReport(outcome.Report)
		if err != nil {
			log.WithError(err).WithField("test", outcome.Test).
				Error("Writing report failed")

			failed++

			continue
		}

		log.WithField("test", outcome.Test).
			WithField("report", path).
			Debug("Report written")
	}

	log.WithField("tests", len(outcomes)).
		WithField("alarms", alarms).
		WithField("failed", failed).
		Info("Analysis pass completed")

	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(outcomes))
	}

	return nil
}

package main

import (
	"fmt"

	"github.com/ethpandaops/regressoor/pkg/runner"
	"github.com/ethpandaops/regressoor/pkg/scheduler"
	"github.com/ethpandaops/regressoor/pkg/store"
	"github.com/spf13/cobra"
)

var runNext bool

var runCmd = &cobra.Command{
	Use:   "run [test-name]",
	Short: "Run a functional test and record its result",
	Long: `Execute one configured test body and append its outcome to the
results store. With --next, the scheduler picks the test that has gone
longest without a run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runNext, "next", false,
		"run the test that is most overdue")
}

func runTest(cmd *cobra.Command, args []string) error {
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

	var name string

	switch {
	case runNext:
		name, err = scheduler.PickNext(ctx, cfg.TestNames(), s)
		if err != nil {
			return fmt.Errorf("picking next test: %w", err)
		}

		log.WithField("test", name).Info("Scheduler selected test")
	case len(args) == 1:
		name = args[0]
	default:
		return fmt.Errorf("a test name or --next is required")
	}

	test, ok := cfg.Test(name)
	if !ok {
		return fmt.Errorf("unknown test %q", name)
	}

	r := runner.NewRunner(log, cfg, s)

	run, err := r.RunTest(ctx, test)
	if err != nil {
		return err
	}

	if run.Status != store.StatusPassed {
		log.WithField("test", name).
			WithField("status", run.Status).
			Warn("Test did not pass")
	}

	return nil
}

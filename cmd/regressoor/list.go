package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethpandaops/regressoor/pkg/scheduler"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured tests ordered by staleness",
	Long: `Show every configured test with the time it last ran, most overdue
first. The first entry is what "run --next" would execute.`,
	RunE: listTests,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func listTests(cmd *cobra.Command, args []string) error {
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

	names := cfg.TestNames()
	if len(names) == 0 {
		return scheduler.ErrNoTestsAvailable
	}

	type entry struct {
		name string
		last *time.Time
	}

	entries := make([]entry, 0, len(names))

	for _, name := range names {
		last, err := s.LastRunTime(ctx, name)
		if err != nil {
			return fmt.Errorf("reading last run time for %q: %w", name, err)
		}

		entries = append(entries, entry{name: name, last: last})
	}

	// Most overdue first; never-run sorts before everything.
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		switch {
		case a.last == nil && b.last == nil:
			return a.name < b.name
		case a.last == nil:
			return true
		case b.last == nil:
			return false
		case a.last.Equal(*b.last):
			return a.name < b.name
		default:
			return a.last.Before(*b.last)
		}
	})

	for _, e := range entries {
		when := "never"
		if e.last != nil {
			when = e.last.UTC().Format(time.RFC3339)
		}

		fmt.Printf("%-40s %s\n", e.name, when)
	}

	return nil
}

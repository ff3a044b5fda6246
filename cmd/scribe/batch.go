package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/reasoning"
)

var batchSince time.Duration

func init() {
	batchCmd.Flags().DurationVar(&batchSince, "since", 24*time.Hour, "reason over encounters updated within this window")
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run clinical reasoning over recently updated encounters",
	Long: `Run the reasoning pass once over every encounter updated within
the --since window and store the result per patient. Meant to be run
nightly from cron or a scheduler.

Examples:
  scribe batch
  scribe batch --since 72h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		runner := reasoning.NewRunner(a.llm, a.config, a.store, slog.Default())
		summary, err := runner.Run(ctx, time.Now().Add(-batchSince))
		if err != nil {
			return err
		}
		slog.Info("batch finished",
			"encounters", summary.Encounters,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
		)
		return nil
	},
}

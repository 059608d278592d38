package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cityscout/events-cli/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full discovery pass over all enabled sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Pipeline.Run(ctx)
		if err != nil {
			// A fatal report still carries partial stats worth printing.
			if report != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(report)
			}
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("discovery complete",
			zap.String("status", string(report.Status)),
			zap.Int("events_created", report.Stats.EventsCreated),
			zap.Int("events_updated", report.Stats.EventsUpdated),
		)

		if report.Status == model.ReportStatusPartial {
			zap.L().Warn("some sources failed", zap.Int("failed", report.Stats.SourcesFailed))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

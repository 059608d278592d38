package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepMaxAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark stuck running runs as failed",
	Long:  "Finds runs stuck in the running state past the maximum age (a crashed process never completes its run) and marks them failed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		maxAge := sweepMaxAge
		if maxAge == 0 {
			maxAge = time.Duration(cfg.Pipeline.StuckRunAgeHours) * time.Hour
		}
		if maxAge <= 0 {
			maxAge = 6 * time.Hour
		}

		reclaimed, err := st.ReclaimStuckRuns(ctx, maxAge)
		if err != nil {
			return eris.Wrap(err, "sweep")
		}

		zap.L().Info("sweep complete",
			zap.Int("reclaimed", reclaimed),
			zap.Duration("max_age", maxAge),
		)
		return nil
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepMaxAge, "max-age", 0, "max run age before reclaim (default from config)")
	rootCmd.AddCommand(sweepCmd)
}

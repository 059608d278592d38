package pipeline

import (
	"fmt"
	"time"

	"github.com/cityscout/events-cli/internal/model"
)

// BuildReport assembles the structured end-of-run report. The status tier
// reflects source failures only; a run that died on an unhandled error is
// reported through buildFatalReport instead.
func BuildReport(runID string, stats model.RunStats, runErrs []string, duration time.Duration, partialThreshold, maxErrors int) model.RunReport {
	status := model.ReportStatusSuccess
	if stats.SourcesFailed > 0 {
		status = model.ReportStatusPartial
	}
	if partialThreshold > 0 && stats.SourcesFailed >= partialThreshold {
		status = model.ReportStatusFailed
	}

	return model.RunReport{
		RunID:    runID,
		Status:   status,
		Duration: duration.Round(time.Second).String(),
		Stats:    stats,
		Errors:   capErrors(runErrs, maxErrors),
		Summary:  summarize(stats),
	}
}

func buildFatalReport(runID string, stats model.RunStats, runErrs []string, fatal error, duration time.Duration, maxErrors int) model.RunReport {
	errs := append(capErrors(runErrs, maxErrors), "fatal: "+fatal.Error())
	return model.RunReport{
		RunID:    runID,
		Status:   model.ReportStatusFailed,
		Duration: duration.Round(time.Second).String(),
		Stats:    stats,
		Errors:   errs,
		Summary:  summarize(stats) + " (run aborted)",
	}
}

func capErrors(errs []string, max int) []string {
	if max <= 0 {
		max = 10
	}
	if len(errs) <= max {
		return errs
	}
	capped := make([]string, 0, max+1)
	capped = append(capped, errs[:max]...)
	capped = append(capped, fmt.Sprintf("... and %d more", len(errs)-max))
	return capped
}

func summarize(stats model.RunStats) string {
	return fmt.Sprintf("%d sources processed (%d failed), %d events found, %d created, %d updated, %d duplicates",
		stats.SourcesProcessed, stats.SourcesFailed, stats.EventsFound,
		stats.EventsCreated, stats.EventsUpdated,
		stats.DuplicatesInRun+stats.DuplicatesExact+stats.DuplicatesFuzzy,
	)
}

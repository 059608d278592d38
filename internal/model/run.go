package model

import "time"

// RunStatus represents the current state of an extraction run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one pipeline execution. Created when the run starts, updated once
// on completion. Runs stuck in "running" past an age threshold are
// reclassified as failed by the sweep.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Stats      RunStats   `json:"stats"`
	Summary    string     `json:"summary,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RunStats aggregates per-run counters.
type RunStats struct {
	SourcesProcessed   int `json:"sources_processed"`
	SourcesFailed      int `json:"sources_failed"`
	EventsFound        int `json:"events_found"`
	EventsCreated      int `json:"events_created"`
	EventsUpdated      int `json:"events_updated"`
	DuplicatesInRun    int `json:"duplicates_in_run"`
	DuplicatesExact    int `json:"duplicates_exact"`
	DuplicatesFuzzy    int `json:"duplicates_fuzzy"`
	PastEventsSkipped  int `json:"past_events_skipped"`
	ListingURLsSkipped int `json:"listing_urls_skipped"`
	RateLimitHits      int `json:"rate_limit_hits"`
	EventsCapDropped   int `json:"events_cap_dropped"`
	OrganizersCreated  int `json:"organizers_created"`
	LocationsCreated   int `json:"locations_created"`
}

// ReportStatus is the status tier of the end-of-run report.
type ReportStatus string

const (
	ReportStatusSuccess ReportStatus = "success"
	ReportStatusPartial ReportStatus = "partial"
	ReportStatusFailed  ReportStatus = "failed"
)

// RunReport is the structured report handed to the reporting collaborator
// at the end of every run.
type RunReport struct {
	RunID    string       `json:"run_id"`
	Status   ReportStatus `json:"status"`
	Duration string       `json:"duration"`
	Stats    RunStats     `json:"stats"`
	Errors   []string     `json:"errors,omitempty"`
	Summary  string       `json:"summary"`
}

// Package store persists events, sources, and run records behind a
// backend-neutral interface with Postgres and SQLite implementations.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cityscout/events-cli/internal/config"
	"github.com/cityscout/events-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the discovery pipeline.
type Store interface {
	// Events
	ListEventsByDate(ctx context.Context, date string) ([]model.StoredEvent, error)
	CreateEvent(ctx context.Context, ev model.StoredEvent) (*model.StoredEvent, error)
	UpdateEventEnrichment(ctx context.Context, eventID string, patch model.EventPatch) error

	// Reference entities: get-or-insert by name, reporting whether a new
	// row was created so the run stats can count them.
	ResolveOrCreateOrganizer(ctx context.Context, name string) (id string, created bool, err error)
	ResolveOrCreateLocation(ctx context.Context, name, address string) (id string, created bool, err error)
	ResolveOrCreateCategory(ctx context.Context, name string) (id string, created bool, err error)

	// Sources
	ListEnabledSources(ctx context.Context) ([]model.Source, error)
	TouchSourceScraped(ctx context.Context, sourceID string) error
	UpsertSource(ctx context.Context, src model.Source) (*model.Source, error)
	SuggestSource(ctx context.Context, sug model.SourceSuggestion) error

	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats, summary, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	ReclaimStuckRuns(ctx context.Context, olderThan time.Duration) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the store backend selected by config.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres", "":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

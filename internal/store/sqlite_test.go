package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscout/events-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_EventRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	start := time.Date(2026, 9, 12, 23, 0, 0, 0, time.UTC)
	created, err := s.CreateEvent(ctx, model.StoredEvent{
		Title:           "Midnight Special",
		NormalizedTitle: "midnight special",
		StartTime:       start,
		DetailURL:       "https://clubx.example/e/1",
		Confidence:      40,
		SourceID:        "src-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	events, err := s.ListEventsByDate(ctx, "2026-09-12")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Midnight Special", events[0].Title)
	assert.Equal(t, "midnight special", events[0].NormalizedTitle)
	assert.Equal(t, 40, events[0].Confidence)
	assert.Nil(t, events[0].EndTime)

	// Different date sees nothing.
	events, err = s.ListEventsByDate(ctx, "2026-09-13")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLiteStore_UpdateEventEnrichment(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := s.CreateEvent(ctx, model.StoredEvent{
		Title:           "Midnight Special",
		NormalizedTitle: "midnight special",
		StartTime:       time.Date(2026, 9, 12, 23, 0, 0, 0, time.UTC),
		DetailURL:       "https://clubx.example/e/1",
		Confidence:      20,
	})
	require.NoError(t, err)

	err = s.UpdateEventEnrichment(ctx, created.ID, model.EventPatch{
		Description: "A much richer description of the night.",
		ImageURL:    "https://clubx.example/flyer.jpg",
		Confidence:  60,
	})
	require.NoError(t, err)

	events, err := s.ListEventsByDate(ctx, "2026-09-12")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 60, events[0].Confidence)
	assert.Equal(t, "A much richer description of the night.", events[0].Description)
	// Identity fields untouched.
	assert.Equal(t, "Midnight Special", events[0].Title)
}

func TestSQLiteStore_UpdateEventEnrichment_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	err := s.UpdateEventEnrichment(context.Background(), "missing", model.EventPatch{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_ResolveOrCreate(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id1, created, err := s.ResolveOrCreateOrganizer(ctx, "Kollektiv Nacht")
	require.NoError(t, err)
	assert.True(t, created)

	// Case-insensitive resolve, no second row.
	id2, created, err := s.ResolveOrCreateOrganizer(ctx, "kollektiv nacht")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	locID, created, err := s.ResolveOrCreateLocation(ctx, "Club X", "Torstr. 1, Berlin")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, locID)

	catID, created, err := s.ResolveOrCreateCategory(ctx, "club_night")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, catID)
}

func TestSQLiteStore_SourceOrderingAndTouch(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.UpsertSource(ctx, model.Source{Name: "RA Berlin", URL: "https://ra.example/berlin", Kind: model.SourceKindAggregator, Reliability: 90, Enabled: true})
	require.NoError(t, err)
	_, err = s.UpsertSource(ctx, model.Source{Name: "Club X IG", URL: "https://instagram.example/clubx", Kind: model.SourceKindSocial, Reliability: 40, Enabled: true})
	require.NoError(t, err)
	_, err = s.UpsertSource(ctx, model.Source{Name: "Dead Source", URL: "https://dead.example", Kind: model.SourceKindLocation, Reliability: 99, Enabled: false})
	require.NoError(t, err)

	sources, err := s.ListEnabledSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	// Social first despite lower reliability.
	assert.Equal(t, "Club X IG", sources[0].Name)
	assert.Equal(t, "RA Berlin", sources[1].Name)
	assert.Nil(t, sources[0].LastScrapedAt)

	require.NoError(t, s.TouchSourceScraped(ctx, sources[0].ID))
	sources, err = s.ListEnabledSources(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sources[0].LastScrapedAt)
}

func TestSQLiteStore_UpsertSource_UpdatesByURL(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := s.UpsertSource(ctx, model.Source{Name: "RA", URL: "https://ra.example/berlin", Kind: model.SourceKindAggregator, Reliability: 50, Enabled: true})
	require.NoError(t, err)

	second, err := s.UpsertSource(ctx, model.Source{Name: "RA Berlin", URL: "https://ra.example/berlin", Kind: model.SourceKindAggregator, Reliability: 90, Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	sources, err := s.ListEnabledSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "RA Berlin", sources[0].Name)
	assert.Equal(t, 90, sources[0].Reliability)
}

func TestSQLiteStore_SuggestSource_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	sug := model.SourceSuggestion{
		URL:        "https://instagram.example/hall_y",
		Kind:       model.SourceKindSocial,
		Handle:     "hall_y",
		FoundOnURL: "https://hall-y.example/events",
	}
	require.NoError(t, s.SuggestSource(ctx, sug))
	require.NoError(t, s.SuggestSource(ctx, sug))
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	stats := model.RunStats{SourcesProcessed: 4, EventsCreated: 7, DuplicatesExact: 2}
	err = s.CompleteRun(ctx, run.ID, model.RunStatusCompleted, stats, "7 events created", "")
	require.NoError(t, err)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, 7, got.Stats.EventsCreated)
	assert.Equal(t, "7 events created", got.Summary)

	runs, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusCompleted})
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestSQLiteStore_ReclaimStuckRuns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx)
	require.NoError(t, err)

	// A fresh run is not stuck.
	n, err := s.ReclaimStuckRuns(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// With a zero age threshold everything running is reclaimed.
	time.Sleep(5 * time.Millisecond)
	n, err = s.ReclaimStuckRuns(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "reclaimed")
}

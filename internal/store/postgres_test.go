package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscout/events-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_ListEventsByDate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	start := time.Date(2026, 9, 12, 23, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "title", "normalized_title", "description", "start_time", "end_time",
		"organizer_id", "location_id", "category_id", "ticket_url", "image_url",
		"detail_url", "confidence", "published", "source_id", "created_at", "updated_at",
	}).AddRow(
		"ev-1", "Midnight Special", "midnight special", ptr("Late night techno"), start, (*time.Time)(nil),
		(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
		"https://clubx.example/e/1", 40, false, ptr("src-1"), now, now,
	)

	mock.ExpectQuery(`(?s)SELECT .+ FROM events WHERE start_date = \$1`).
		WithArgs("2026-09-12").
		WillReturnRows(rows)

	events, err := s.ListEventsByDate(context.Background(), "2026-09-12")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "midnight special", events[0].NormalizedTitle)
	assert.Equal(t, "Late night techno", events[0].Description)
	assert.Nil(t, events[0].EndTime)
	assert.Equal(t, "src-1", events[0].SourceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ptr(s string) *string { return &s }

// anyArgs returns n pgxmock.AnyArg matchers; pgxmock requires the expected
// argument count to match even when the values are not being asserted.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_CreateEvent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(anyArgs(18)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ev, err := s.CreateEvent(context.Background(), model.StoredEvent{
		Title:           "Midnight Special",
		NormalizedTitle: "midnight special",
		StartTime:       time.Date(2026, 9, 12, 23, 0, 0, 0, time.UTC),
		DetailURL:       "https://clubx.example/e/1",
		Confidence:      40,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateEventEnrichment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE events SET description = \$1, image_url = \$2, ticket_url = \$3, confidence = \$4`).
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateEventEnrichment(context.Background(), "ev-1", model.EventPatch{
		Description: "richer",
		Confidence:  60,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateEventEnrichment_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE events SET`).
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateEventEnrichment(context.Background(), "missing", model.EventPatch{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPostgresStore_ResolveOrCreateOrganizer_Existing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM organizers`).
		WithArgs("Kollektiv Nacht").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("org-1"))

	id, created, err := s.ResolveOrCreateOrganizer(context.Background(), "Kollektiv Nacht")
	require.NoError(t, err)
	assert.Equal(t, "org-1", id)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveOrCreateOrganizer_New(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM organizers`).
		WithArgs("Kollektiv Nacht").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO organizers`).
		WithArgs(pgxmock.AnyArg(), "Kollektiv Nacht").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, created, err := s.ResolveOrCreateOrganizer(context.Background(), "Kollektiv Nacht")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEnabledSources_Ordering(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM sources.+ORDER BY CASE WHEN kind = 'social' THEN 0 ELSE 1 END, reliability DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "url", "kind", "reliability", "enabled", "last_scraped_at"}).
			AddRow("s2", "Club X IG", "https://instagram.example/clubx", "social", 40, true, (*time.Time)(nil)).
			AddRow("s1", "RA Berlin", "https://ra.example/berlin", "aggregator", 90, true, (*time.Time)(nil)))

	sources, err := s.ListEnabledSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, model.SourceKindSocial, sources[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAndCompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	run, err := s.CreateRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	err = s.CompleteRun(context.Background(), run.ID, model.RunStatusCompleted,
		model.RunStats{EventsCreated: 3}, "3 events created", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReclaimStuckRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, finished_at = \$2, error = \$3 WHERE status = \$4 AND started_at < \$5`).
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := s.ReclaimStuckRuns(context.Background(), 6*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SuggestSource_Idempotent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO source_suggestions .+ ON CONFLICT \(url\) DO NOTHING`).
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.SuggestSource(context.Background(), model.SourceSuggestion{
		URL:        "https://instagram.example/hall_y",
		Kind:       model.SourceKindSocial,
		Handle:     "hall_y",
		FoundOnURL: "https://hall-y.example/events",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cityscout/events-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS organizers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS locations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	address    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sources (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	url             TEXT NOT NULL UNIQUE,
	kind            TEXT NOT NULL,
	reliability     INTEGER NOT NULL DEFAULT 50,
	enabled         INTEGER NOT NULL DEFAULT 1,
	last_scraped_at DATETIME,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS source_suggestions (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL UNIQUE,
	kind         TEXT NOT NULL,
	handle       TEXT,
	found_on_url TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	normalized_title TEXT NOT NULL,
	description      TEXT,
	start_time       DATETIME NOT NULL,
	end_time         DATETIME,
	start_date       TEXT NOT NULL,
	organizer_id     TEXT REFERENCES organizers(id),
	location_id      TEXT REFERENCES locations(id),
	category_id      TEXT REFERENCES categories(id),
	ticket_url       TEXT,
	image_url        TEXT,
	detail_url       TEXT NOT NULL,
	confidence       INTEGER NOT NULL DEFAULT 0,
	published        INTEGER NOT NULL DEFAULT 0,
	source_id        TEXT,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	stats       TEXT,
	summary     TEXT,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_start_date ON events(start_date);
CREATE INDEX IF NOT EXISTS idx_events_normalized_title ON events(normalized_title);
CREATE INDEX IF NOT EXISTS idx_sources_enabled ON sources(enabled);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListEventsByDate(ctx context.Context, date string) ([]model.StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, normalized_title, description, start_time, end_time, organizer_id, location_id, category_id, ticket_url, image_url, detail_url, confidence, published, source_id, created_at, updated_at
		 FROM events WHERE start_date = ?`,
		date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events by date")
	}
	defer rows.Close()

	var events []model.StoredEvent
	for rows.Next() {
		var ev model.StoredEvent
		var description, organizerID, locationID, categoryID, ticketURL, imageURL, sourceID sql.NullString
		var endTime sql.NullTime

		if err := rows.Scan(&ev.ID, &ev.Title, &ev.NormalizedTitle, &description, &ev.StartTime, &endTime,
			&organizerID, &locationID, &categoryID, &ticketURL, &imageURL, &ev.DetailURL,
			&ev.Confidence, &ev.Published, &sourceID, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		if endTime.Valid {
			t := endTime.Time
			ev.EndTime = &t
		}
		ev.Description = description.String
		ev.OrganizerID = organizerID.String
		ev.LocationID = locationID.String
		ev.CategoryID = categoryID.String
		ev.TicketURL = ticketURL.String
		ev.ImageURL = imageURL.String
		ev.SourceID = sourceID.String
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, ev model.StoredEvent) (*model.StoredEvent, error) {
	ev.ID = uuid.New().String()
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, normalized_title, description, start_time, end_time, start_date, organizer_id, location_id, category_id, ticket_url, image_url, detail_url, confidence, published, source_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Title, ev.NormalizedTitle, nullStr(ev.Description), ev.StartTime, nullTime(ev.EndTime),
		ev.StartTime.Format("2006-01-02"), nullStr(ev.OrganizerID), nullStr(ev.LocationID),
		nullStr(ev.CategoryID), nullStr(ev.TicketURL), nullStr(ev.ImageURL), ev.DetailURL,
		ev.Confidence, ev.Published, nullStr(ev.SourceID), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert event %s", ev.Title)
	}
	return &ev, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *SQLiteStore) UpdateEventEnrichment(ctx context.Context, eventID string, patch model.EventPatch) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET description = ?, image_url = ?, ticket_url = ?, confidence = ?, updated_at = ? WHERE id = ?`,
		nullStr(patch.Description), nullStr(patch.ImageURL), nullStr(patch.TicketURL),
		patch.Confidence, time.Now().UTC(), eventID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update event %s", eventID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("event not found: %s", eventID)
	}
	return nil
}

func (s *SQLiteStore) ResolveOrCreateOrganizer(ctx context.Context, name string) (string, bool, error) {
	return s.resolveOrCreate(ctx, "organizers",
		`SELECT id FROM organizers WHERE lower(name) = lower(?)`,
		`INSERT INTO organizers (id, name) VALUES (?, ?)`,
		name)
}

func (s *SQLiteStore) ResolveOrCreateCategory(ctx context.Context, name string) (string, bool, error) {
	return s.resolveOrCreate(ctx, "categories",
		`SELECT id FROM categories WHERE lower(name) = lower(?)`,
		`INSERT INTO categories (id, name) VALUES (?, ?)`,
		name)
}

func (s *SQLiteStore) resolveOrCreate(ctx context.Context, table, selectSQL, insertSQL, name string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, selectSQL, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, eris.Wrapf(err, "sqlite: lookup %s", table)
	}

	id = uuid.New().String()
	if _, err := s.db.ExecContext(ctx, insertSQL, id, name); err != nil {
		return "", false, eris.Wrapf(err, "sqlite: insert %s", table)
	}
	return id, true, nil
}

func (s *SQLiteStore) ResolveOrCreateLocation(ctx context.Context, name, address string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM locations WHERE lower(name) = lower(?)`, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, eris.Wrap(err, "sqlite: lookup locations")
	}

	id = uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (id, name, address) VALUES (?, ?, ?)`,
		id, name, nullStr(address),
	); err != nil {
		return "", false, eris.Wrap(err, "sqlite: insert locations")
	}
	return id, true, nil
}

func (s *SQLiteStore) ListEnabledSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, kind, reliability, enabled, last_scraped_at FROM sources
		 WHERE enabled = 1
		 ORDER BY CASE WHEN kind = 'social' THEN 0 ELSE 1 END, reliability DESC, name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var lastScraped sql.NullTime
		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.Kind, &src.Reliability, &src.Enabled, &lastScraped); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		if lastScraped.Valid {
			t := lastScraped.Time
			src.LastScrapedAt = &t
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) TouchSourceScraped(ctx context.Context, sourceID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET last_scraped_at = ? WHERE id = ?`,
		time.Now().UTC(), sourceID,
	)
	return eris.Wrapf(err, "sqlite: touch source %s", sourceID)
}

func (s *SQLiteStore) UpsertSource(ctx context.Context, src model.Source) (*model.Source, error) {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, url, kind, reliability, enabled) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO UPDATE SET name = excluded.name, kind = excluded.kind, reliability = excluded.reliability, enabled = excluded.enabled`,
		src.ID, src.Name, src.URL, string(src.Kind), src.Reliability, src.Enabled,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert source %s", src.URL)
	}

	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM sources WHERE url = ?`, src.URL).Scan(&id); err != nil {
		return nil, eris.Wrap(err, "sqlite: reselect source")
	}
	src.ID = id
	return &src, nil
}

func (s *SQLiteStore) SuggestSource(ctx context.Context, sug model.SourceSuggestion) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_suggestions (id, url, kind, handle, found_on_url) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO NOTHING`,
		uuid.New().String(), sug.URL, string(sug.Kind), nullStr(sug.Handle), sug.FoundOnURL,
	)
	return eris.Wrap(err, "sqlite: suggest source")
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats, summary, errMsg string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, stats = ?, summary = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), string(statsJSON), nullStr(summary), nullStr(errMsg), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, started_at, finished_at, stats, summary, error FROM runs WHERE id = ?`,
		runID,
	)
	run, err := scanSQLiteRun(row.Scan)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func scanSQLiteRun(scan func(...any) error) (*model.Run, error) {
	var r model.Run
	var finishedAt sql.NullTime
	var statsJSON, summary, errMsg sql.NullString

	if err := scan(&r.ID, &r.Status, &r.StartedAt, &finishedAt, &statsJSON, &summary, &errMsg); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
			return nil, err
		}
	}
	r.Summary = summary.String
	r.Error = errMsg.String
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, finished_at, stats, summary, error FROM runs WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanSQLiteRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ReclaimStuckRuns(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE status = ? AND started_at < ?`,
		string(model.RunStatusFailed), time.Now().UTC(), "reclaimed: exceeded max run age",
		string(model.RunStatusRunning), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reclaim stuck runs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

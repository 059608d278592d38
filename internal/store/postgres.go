package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cityscout/events-cli/internal/model"
)

// Pool is the slice of pgxpool.Pool the store uses, satisfied by pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot per-candidate store operations.
var preparedStatements = map[string]string{
	"list_events_by_date": `SELECT id, title, normalized_title, description, start_time, end_time, organizer_id, location_id, category_id, ticket_url, image_url, detail_url, confidence, published, source_id, created_at, updated_at FROM events WHERE start_date = $1`,
	"insert_event":        `INSERT INTO events (id, title, normalized_title, description, start_time, end_time, start_date, organizer_id, location_id, category_id, ticket_url, image_url, detail_url, confidence, published, source_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
	"update_enrichment":   `UPDATE events SET description = $1, image_url = $2, ticket_url = $3, confidence = $4, updated_at = $5 WHERE id = $6`,
	"touch_source":        `UPDATE sources SET last_scraped_at = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, for tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS organizers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS locations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	address    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sources (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	url             TEXT NOT NULL UNIQUE,
	kind            TEXT NOT NULL,
	reliability     INTEGER NOT NULL DEFAULT 50,
	enabled         BOOLEAN NOT NULL DEFAULT true,
	last_scraped_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS source_suggestions (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL UNIQUE,
	kind        TEXT NOT NULL,
	handle      TEXT,
	found_on_url TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	normalized_title TEXT NOT NULL,
	description      TEXT,
	start_time       TIMESTAMPTZ NOT NULL,
	end_time         TIMESTAMPTZ,
	start_date       TEXT NOT NULL,
	organizer_id     TEXT REFERENCES organizers(id),
	location_id      TEXT REFERENCES locations(id),
	category_id      TEXT REFERENCES categories(id),
	ticket_url       TEXT,
	image_url        TEXT,
	detail_url       TEXT NOT NULL,
	confidence       INTEGER NOT NULL DEFAULT 0,
	published        BOOLEAN NOT NULL DEFAULT false,
	source_id        TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	stats       JSONB,
	summary     TEXT,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_start_date ON events(start_date);
CREATE INDEX IF NOT EXISTS idx_events_normalized_title ON events(normalized_title);
CREATE INDEX IF NOT EXISTS idx_sources_enabled ON sources(enabled);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListEventsByDate(ctx context.Context, date string) ([]model.StoredEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, normalized_title, description, start_time, end_time, organizer_id, location_id, category_id, ticket_url, image_url, detail_url, confidence, published, source_id, created_at, updated_at
		 FROM events WHERE start_date = $1`,
		date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events by date")
	}
	defer rows.Close()

	var events []model.StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		events = append(events, *ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func scanEvent(row pgx.Row) (*model.StoredEvent, error) {
	var ev model.StoredEvent
	var description, organizerID, locationID, categoryID, ticketURL, imageURL, sourceID *string
	var endTime *time.Time

	err := row.Scan(&ev.ID, &ev.Title, &ev.NormalizedTitle, &description, &ev.StartTime, &endTime,
		&organizerID, &locationID, &categoryID, &ticketURL, &imageURL, &ev.DetailURL,
		&ev.Confidence, &ev.Published, &sourceID, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}

	ev.EndTime = endTime
	ev.Description = deref(description)
	ev.OrganizerID = deref(organizerID)
	ev.LocationID = deref(locationID)
	ev.CategoryID = deref(categoryID)
	ev.TicketURL = deref(ticketURL)
	ev.ImageURL = deref(imageURL)
	ev.SourceID = deref(sourceID)
	return &ev, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *PostgresStore) CreateEvent(ctx context.Context, ev model.StoredEvent) (*model.StoredEvent, error) {
	ev.ID = uuid.New().String()
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, title, normalized_title, description, start_time, end_time, start_date, organizer_id, location_id, category_id, ticket_url, image_url, detail_url, confidence, published, source_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		ev.ID, ev.Title, ev.NormalizedTitle, nullable(ev.Description), ev.StartTime, ev.EndTime,
		ev.StartTime.Format("2006-01-02"), nullable(ev.OrganizerID), nullable(ev.LocationID),
		nullable(ev.CategoryID), nullable(ev.TicketURL), nullable(ev.ImageURL), ev.DetailURL,
		ev.Confidence, ev.Published, nullable(ev.SourceID), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert event %s", ev.Title)
	}
	return &ev, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PostgresStore) UpdateEventEnrichment(ctx context.Context, eventID string, patch model.EventPatch) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET description = $1, image_url = $2, ticket_url = $3, confidence = $4, updated_at = $5 WHERE id = $6`,
		nullable(patch.Description), nullable(patch.ImageURL), nullable(patch.TicketURL),
		patch.Confidence, time.Now().UTC(), eventID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update event %s", eventID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("event not found: %s", eventID)
	}
	return nil
}

func (s *PostgresStore) ResolveOrCreateOrganizer(ctx context.Context, name string) (string, bool, error) {
	return s.resolveOrCreate(ctx, "organizers",
		`SELECT id FROM organizers WHERE lower(name) = lower($1)`,
		`INSERT INTO organizers (id, name) VALUES ($1, $2)`,
		name)
}

func (s *PostgresStore) ResolveOrCreateCategory(ctx context.Context, name string) (string, bool, error) {
	return s.resolveOrCreate(ctx, "categories",
		`SELECT id FROM categories WHERE lower(name) = lower($1)`,
		`INSERT INTO categories (id, name) VALUES ($1, $2)`,
		name)
}

func (s *PostgresStore) resolveOrCreate(ctx context.Context, table, selectSQL, insertSQL, name string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, selectSQL, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, eris.Wrapf(err, "postgres: lookup %s", table)
	}

	id = uuid.New().String()
	if _, err := s.pool.Exec(ctx, insertSQL, id, name); err != nil {
		return "", false, eris.Wrapf(err, "postgres: insert %s", table)
	}
	return id, true, nil
}

func (s *PostgresStore) ResolveOrCreateLocation(ctx context.Context, name, address string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM locations WHERE lower(name) = lower($1)`, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, eris.Wrap(err, "postgres: lookup locations")
	}

	id = uuid.New().String()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO locations (id, name, address) VALUES ($1, $2, $3)`,
		id, name, nullable(address),
	); err != nil {
		return "", false, eris.Wrap(err, "postgres: insert locations")
	}
	return id, true, nil
}

func (s *PostgresStore) ListEnabledSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, url, kind, reliability, enabled, last_scraped_at FROM sources
		 WHERE enabled
		 ORDER BY CASE WHEN kind = 'social' THEN 0 ELSE 1 END, reliability DESC, name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.Kind, &src.Reliability, &src.Enabled, &src.LastScrapedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) TouchSourceScraped(ctx context.Context, sourceID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sources SET last_scraped_at = $1 WHERE id = $2`,
		time.Now().UTC(), sourceID,
	)
	return eris.Wrapf(err, "postgres: touch source %s", sourceID)
}

func (s *PostgresStore) UpsertSource(ctx context.Context, src model.Source) (*model.Source, error) {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sources (id, name, url, kind, reliability, enabled) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (url) DO UPDATE SET name = $2, kind = $4, reliability = $5, enabled = $6
		 RETURNING id`,
		src.ID, src.Name, src.URL, string(src.Kind), src.Reliability, src.Enabled,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert source %s", src.URL)
	}
	src.ID = id
	return &src, nil
}

func (s *PostgresStore) SuggestSource(ctx context.Context, sug model.SourceSuggestion) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_suggestions (id, url, kind, handle, found_on_url) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO NOTHING`,
		uuid.New().String(), sug.URL, string(sug.Kind), nullable(sug.Handle), sug.FoundOnURL,
	)
	return eris.Wrap(err, "postgres: suggest source")
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats, summary, errMsg string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, finished_at = $2, stats = $3, summary = $4, error = $5 WHERE id = $6`,
		string(status), time.Now().UTC(), statsJSON, nullable(summary), nullable(errMsg), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, started_at, finished_at, stats, summary, error FROM runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func scanRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var statsJSON []byte
	var summary, errMsg *string

	if err := row.Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt, &statsJSON, &summary, &errMsg); err != nil {
		return nil, err
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, err
		}
	}
	r.Summary = deref(summary)
	r.Error = deref(errMsg)
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, finished_at, stats, summary, error FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ReclaimStuckRuns(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, finished_at = $2, error = $3 WHERE status = $4 AND started_at < $5`,
		string(model.RunStatusFailed), time.Now().UTC(), "reclaimed: exceeded max run age",
		string(model.RunStatusRunning), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reclaim stuck runs")
	}
	return int(tag.RowsAffected()), nil
}

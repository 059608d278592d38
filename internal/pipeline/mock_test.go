package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/cityscout/events-cli/internal/model"
	"github.com/cityscout/events-cli/internal/store"
)

// fakeStore is an in-memory store.Store. It keeps real state so dedup
// behavior across consecutive runs can be exercised.
type fakeStore struct {
	mu          sync.Mutex
	events      []model.StoredEvent
	organizers  map[string]string
	locations   map[string]string
	categories  map[string]string
	sources     []model.Source
	suggestions []model.SourceSuggestion
	runs        map[string]*model.Run
	touched     map[string]int

	listSourcesErr error
	createEventErr error
}

func newFakeStore(sources ...model.Source) *fakeStore {
	return &fakeStore{
		organizers: map[string]string{},
		locations:  map[string]string{},
		categories: map[string]string{},
		sources:    sources,
		runs:       map[string]*model.Run{},
		touched:    map[string]int{},
	}
}

func (f *fakeStore) ListEventsByDate(_ context.Context, date string) ([]model.StoredEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.StoredEvent
	for _, ev := range f.events {
		if ev.StartTime.Format("2006-01-02") == date {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateEvent(_ context.Context, ev model.StoredEvent) (*model.StoredEvent, error) {
	if f.createEventErr != nil {
		return nil, f.createEventErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ev.ID = uuid.New().String()
	ev.CreatedAt = time.Now().UTC()
	ev.UpdatedAt = ev.CreatedAt
	f.events = append(f.events, ev)
	return &ev, nil
}

func (f *fakeStore) UpdateEventEnrichment(_ context.Context, eventID string, patch model.EventPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].ID == eventID {
			f.events[i].Description = patch.Description
			f.events[i].ImageURL = patch.ImageURL
			f.events[i].TicketURL = patch.TicketURL
			f.events[i].Confidence = patch.Confidence
			f.events[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return eris.Errorf("event not found: %s", eventID)
}

func (f *fakeStore) resolve(m map[string]string, key string) (string, bool) {
	key = strings.ToLower(key)
	if id, ok := m[key]; ok {
		return id, false
	}
	id := uuid.New().String()
	m[key] = id
	return id, true
}

func (f *fakeStore) ResolveOrCreateOrganizer(_ context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, created := f.resolve(f.organizers, name)
	return id, created, nil
}

func (f *fakeStore) ResolveOrCreateLocation(_ context.Context, name, _ string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, created := f.resolve(f.locations, name)
	return id, created, nil
}

func (f *fakeStore) ResolveOrCreateCategory(_ context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, created := f.resolve(f.categories, name)
	return id, created, nil
}

func (f *fakeStore) ListEnabledSources(_ context.Context) ([]model.Source, error) {
	if f.listSourcesErr != nil {
		return nil, f.listSourcesErr
	}
	return f.sources, nil
}

func (f *fakeStore) TouchSourceScraped(_ context.Context, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[sourceID]++
	return nil
}

func (f *fakeStore) UpsertSource(_ context.Context, src model.Source) (*model.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	f.sources = append(f.sources, src)
	return &src, nil
}

func (f *fakeStore) SuggestSource(_ context.Context, sug model.SourceSuggestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions = append(f.suggestions, sug)
	return nil
}

func (f *fakeStore) CreateRun(_ context.Context) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeStore) CompleteRun(_ context.Context, runID string, status model.RunStatus, stats model.RunStats, summary, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	now := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &now
	run.Stats = stats
	run.Summary = summary
	run.Error = errMsg
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	return run, nil
}

func (f *fakeStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Run
	for _, r := range f.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) ReclaimStuckRuns(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeStore) Migrate(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                    { return nil }

func (f *fakeStore) singleRun() *model.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.runs {
		return r
	}
	return nil
}

// stubFetcher serves canned pages per source URL.
type stubFetcher struct {
	pages map[string]*model.Page
	errs  map[string]error
}

func (s *stubFetcher) Fetch(_ context.Context, src model.Source) (*model.Page, error) {
	if err, ok := s.errs[src.URL]; ok {
		return nil, err
	}
	if page, ok := s.pages[src.URL]; ok {
		return page, nil
	}
	return &model.Page{URL: src.URL, Content: "no events tonight"}, nil
}

// stubExtractor serves canned candidates per page URL.
type stubExtractor struct {
	candidates map[string][]model.CandidateEvent
	errs       map[string]error
}

func (s *stubExtractor) Extract(_ context.Context, _ model.Source, page model.Page) ([]model.CandidateEvent, error) {
	if err, ok := s.errs[page.URL]; ok {
		return nil, err
	}
	return s.candidates[page.URL], nil
}

// recordingNotifier captures reports and alerts.
type recordingNotifier struct {
	mu      sync.Mutex
	reports []model.RunReport
	alerts  []string
}

func (r *recordingNotifier) ReportRun(_ context.Context, report model.RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *recordingNotifier) AlertFatal(_ context.Context, runID string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, runID)
}

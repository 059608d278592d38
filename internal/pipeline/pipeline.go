// Package pipeline orchestrates a discovery run: fetch each enabled
// source, extract candidate events, deduplicate within the run and
// against the store, and persist what survives.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cityscout/events-cli/internal/config"
	"github.com/cityscout/events-cli/internal/dedup"
	"github.com/cityscout/events-cli/internal/model"
	"github.com/cityscout/events-cli/internal/notify"
	"github.com/cityscout/events-cli/internal/resilience"
	"github.com/cityscout/events-cli/internal/store"
)

// ContentFetcher is the slice of the fetch chain the pipeline needs.
type ContentFetcher interface {
	Fetch(ctx context.Context, src model.Source) (*model.Page, error)
}

// EventExtractor is the slice of the extractor the pipeline needs.
type EventExtractor interface {
	Extract(ctx context.Context, src model.Source, page model.Page) ([]model.CandidateEvent, error)
}

// Pipeline runs the full discovery sequence. It processes sources one at
// a time with no internal parallelism: the store dedup pass depends on
// candidates arriving in discovery order, and the sources are external
// sites that do not appreciate concurrent crawling.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	fetcher   ContentFetcher
	extractor EventExtractor
	notifier  notify.Notifier
	engine    *dedup.Engine
	gate      *dedup.ListingGate

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, fetcher ContentFetcher, extractor EventExtractor, notifier notify.Notifier) (*Pipeline, error) {
	gate, err := dedup.NewListingGate(cfg.Dedup.ListingPatterns, cfg.Dedup.TrustedListingHosts)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build listing gate")
	}
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		fetcher:   fetcher,
		extractor: extractor,
		notifier:  notifier,
		engine:    dedup.NewEngine(st),
		gate:      gate,
		now:       time.Now,
		sleep:     sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes one full discovery run and reports it. The returned error
// is non-nil only for unhandled failures that aborted the run; per-source
// failures are contained and reflected in the report instead.
func (p *Pipeline) Run(ctx context.Context) (*model.RunReport, error) {
	started := p.now()

	if reclaimed, err := p.store.ReclaimStuckRuns(ctx, p.stuckRunAge()); err != nil {
		zap.L().Warn("pipeline: stuck-run reclaim failed", zap.Error(err))
	} else if reclaimed > 0 {
		zap.L().Info("pipeline: reclaimed stuck runs", zap.Int("count", reclaimed))
	}

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started")

	var stats model.RunStats
	var runErrs []string

	fail := func(fatal error) (*model.RunReport, error) {
		report := buildFatalReport(run.ID, stats, runErrs, fatal, p.now().Sub(started), p.cfg.Pipeline.MaxReportErrors)
		if err := p.store.CompleteRun(ctx, run.ID, model.RunStatusFailed, stats, report.Summary, fatal.Error()); err != nil {
			log.Error("pipeline: failed to mark run failed", zap.Error(err))
		}
		p.notifier.AlertFatal(ctx, run.ID, fatal)
		p.notifier.ReportRun(ctx, report)
		return &report, fatal
	}

	sources, err := p.store.ListEnabledSources(ctx)
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: list sources"))
	}
	log.Info("pipeline: sources loaded", zap.Int("count", len(sources)))

	ledger := dedup.NewLedger()
	var collected []model.CandidateEvent

	maxEvents := p.cfg.Pipeline.MaxEventsPerRun
	if maxEvents <= 0 {
		maxEvents = 120
	}

	for _, src := range sources {
		if len(collected) >= maxEvents {
			log.Warn("pipeline: event cap reached, skipping remaining sources",
				zap.Int("cap", maxEvents))
			break
		}

		accepted, err := p.processSource(ctx, src, ledger, &stats)
		if err != nil {
			stats.SourcesFailed++
			runErrs = append(runErrs, fmt.Sprintf("source %s: %v", src.Name, err))
			log.Error("pipeline: source failed",
				zap.String("source", src.Name),
				zap.Error(err),
			)
		} else {
			stats.SourcesProcessed++
			room := maxEvents - len(collected)
			if len(accepted) > room {
				dropped := len(accepted) - room
				stats.EventsCapDropped += dropped
				log.Warn("pipeline: event cap reached, dropping candidates",
					zap.String("source", src.Name),
					zap.Int("dropped", dropped),
					zap.Int("cap", maxEvents))
				accepted = accepted[:room]
			}
			collected = append(collected, accepted...)
		}

		if err := p.sleep(ctx, p.interSourceDelay()); err != nil {
			return fail(err)
		}
	}

	// Persisted-layer dedup pass, in discovery order.
	for _, cand := range collected {
		if err := p.persistCandidate(ctx, cand, &stats); err != nil {
			return fail(err)
		}
	}

	duration := p.now().Sub(started)
	report := BuildReport(run.ID, stats, runErrs, duration, p.cfg.Pipeline.PartialThreshold, p.cfg.Pipeline.MaxReportErrors)

	if err := p.store.CompleteRun(ctx, run.ID, model.RunStatusCompleted, stats, report.Summary, ""); err != nil {
		return fail(eris.Wrap(err, "pipeline: complete run"))
	}
	p.notifier.ReportRun(ctx, report)

	log.Info("pipeline: run completed",
		zap.String("status", string(report.Status)),
		zap.Duration("duration", duration),
		zap.Int("events_created", stats.EventsCreated),
		zap.Int("events_updated", stats.EventsUpdated),
	)
	return &report, nil
}

// processSource fetches one source and returns the candidates that pass
// the per-candidate gates. Any error aborts only this source.
func (p *Pipeline) processSource(ctx context.Context, src model.Source, ledger *dedup.Ledger, stats *model.RunStats) ([]model.CandidateEvent, error) {
	log := zap.L().With(zap.String("source", src.Name))

	page, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	// Secondary signals are a bonus; failure to record them never fails
	// the source.
	for _, sug := range ScanForSources(page) {
		if err := p.store.SuggestSource(ctx, sug); err != nil {
			log.Warn("pipeline: failed to record source suggestion",
				zap.String("url", sug.URL),
				zap.Error(err),
			)
		}
	}

	candidates, err := p.extractor.Extract(ctx, src, *page)
	if err != nil {
		if resilience.IsRateLimited(err) {
			stats.RateLimitHits++
		}
		return nil, err
	}
	stats.EventsFound += len(candidates)

	if err := p.store.TouchSourceScraped(ctx, src.ID); err != nil {
		log.Warn("pipeline: failed to touch source", zap.Error(err))
	}

	now := p.now()
	var accepted []model.CandidateEvent
	for _, cand := range candidates {
		cand.SourceID = src.ID
		cand.SourceKind = src.Kind

		if cand.StartTime.Before(now) {
			stats.PastEventsSkipped++
			continue
		}
		if !p.gate.Allow(cand.DetailURL) {
			stats.ListingURLsSkipped++
			log.Debug("pipeline: listing url skipped", zap.String("url", cand.DetailURL))
			continue
		}
		if ledger.Observe(dedup.Normalize(cand.Title), cand.Date()) {
			stats.DuplicatesInRun++
			continue
		}
		accepted = append(accepted, cand)
	}

	log.Info("pipeline: source processed",
		zap.Int("extracted", len(candidates)),
		zap.Int("accepted", len(accepted)),
	)
	return accepted, nil
}

// persistCandidate runs the persisted-layer dedup decision for one
// candidate and applies it.
func (p *Pipeline) persistCandidate(ctx context.Context, cand model.CandidateEvent, stats *model.RunStats) error {
	decision, err := p.engine.Decide(ctx, cand)
	if err != nil {
		return err
	}

	switch decision.Action {
	case dedup.ActionCreate:
		ev := model.StoredEvent{
			Title:           cand.Title,
			NormalizedTitle: dedup.Normalize(cand.Title),
			Description:     cand.Description,
			StartTime:       cand.StartTime,
			EndTime:         cand.EndTime,
			TicketURL:       cand.TicketURL,
			ImageURL:        cand.ImageURL,
			DetailURL:       cand.DetailURL,
			Confidence:      decision.Score,
			SourceID:        cand.SourceID,
		}

		if model.NonTrivial(cand.OrganizerName) {
			id, created, err := p.store.ResolveOrCreateOrganizer(ctx, cand.OrganizerName)
			if err != nil {
				return err
			}
			ev.OrganizerID = id
			if created {
				stats.OrganizersCreated++
			}
		}
		if model.NonTrivial(cand.LocationName) {
			id, created, err := p.store.ResolveOrCreateLocation(ctx, cand.LocationName, cand.LocationAddress)
			if err != nil {
				return err
			}
			ev.LocationID = id
			if created {
				stats.LocationsCreated++
			}
		}
		catID, _, err := p.store.ResolveOrCreateCategory(ctx, string(cand.Category))
		if err != nil {
			return err
		}
		ev.CategoryID = catID

		if _, err := p.store.CreateEvent(ctx, ev); err != nil {
			return err
		}
		stats.EventsCreated++

	case dedup.ActionUpdate:
		patch := model.EventPatch{
			Description: cand.Description,
			ImageURL:    cand.ImageURL,
			TicketURL:   cand.TicketURL,
			Confidence:  decision.Score,
		}
		if err := p.store.UpdateEventEnrichment(ctx, decision.Matched.ID, patch); err != nil {
			return err
		}
		stats.EventsUpdated++

	case dedup.ActionDiscardExact:
		stats.DuplicatesExact++

	case dedup.ActionDiscardFuzzy:
		stats.DuplicatesFuzzy++
	}

	return nil
}

func (p *Pipeline) stuckRunAge() time.Duration {
	hours := p.cfg.Pipeline.StuckRunAgeHours
	if hours <= 0 {
		hours = 6
	}
	return time.Duration(hours) * time.Hour
}

func (p *Pipeline) interSourceDelay() time.Duration {
	secs := p.cfg.Pipeline.InterSourceDelaySecs
	if secs <= 0 {
		secs = 5
	}
	return time.Duration(secs) * time.Second
}

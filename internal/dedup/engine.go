package dedup

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cityscout/events-cli/internal/model"
	"github.com/cityscout/events-cli/internal/score"
)

// Action is the persisted-layer verdict for a candidate.
type Action int

const (
	// ActionCreate: no stored event matches; promote the candidate.
	ActionCreate Action = iota
	// ActionUpdate: an exact match exists and the candidate scores strictly
	// higher; overwrite the stored event's mutable fields.
	ActionUpdate
	// ActionDiscardExact: an exact match exists and the candidate does not
	// improve on it.
	ActionDiscardExact
	// ActionDiscardFuzzy: a containment or shared-prefix match exists.
	// Fuzzy matches are certainly the same event but never safe to
	// overwrite: the titles differ enough that a blind overwrite risks
	// corrupting the better of the two.
	ActionDiscardFuzzy
)

// Decision is the outcome of checking one candidate against the store.
type Decision struct {
	Action  Action
	Matched *model.StoredEvent
	// Score is the candidate's confidence score, computed for the exact
	// tie-break and persisted with created/updated records.
	Score int
}

// EventFinder is the slice of the store the engine needs.
type EventFinder interface {
	ListEventsByDate(ctx context.Context, date string) ([]model.StoredEvent, error)
}

// Engine applies the persisted-layer deduplication policy.
type Engine struct {
	finder EventFinder
}

// NewEngine creates an Engine over the given event finder.
func NewEngine(finder EventFinder) *Engine {
	return &Engine{finder: finder}
}

// Decide checks a candidate against stored events sharing its calendar
// date. Exact matches are score-compared (a richer later extraction may
// improve a thin earlier record); fuzzy matches always discard; no match
// means create.
func (e *Engine) Decide(ctx context.Context, cand model.CandidateEvent) (Decision, error) {
	normTitle := Normalize(cand.Title)
	candScore := score.Confidence(cand)

	stored, err := e.finder.ListEventsByDate(ctx, cand.Date())
	if err != nil {
		return Decision{}, eris.Wrap(err, "dedup: list events by date")
	}

	// Scan all same-date matches before deciding. Duplicates can exist
	// transiently, so an exact and a fuzzy record may both be present; the
	// exact record wins regardless of row order, otherwise a fuzzy row
	// returned first would shadow it and block enrichment.
	var fuzzy *model.StoredEvent
	for i := range stored {
		existing := &stored[i]
		if !TitlesMatch(existing.NormalizedTitle, normTitle) {
			continue
		}

		if ExactMatch(existing.NormalizedTitle, normTitle) {
			if candScore > existing.Confidence {
				zap.L().Debug("dedup: exact match improves stored record",
					zap.String("title", cand.Title),
					zap.Int("stored_confidence", existing.Confidence),
					zap.Int("candidate_confidence", candScore),
				)
				return Decision{Action: ActionUpdate, Matched: existing, Score: candScore}, nil
			}
			return Decision{Action: ActionDiscardExact, Matched: existing, Score: candScore}, nil
		}

		if fuzzy == nil {
			fuzzy = existing
		}
	}

	if fuzzy != nil {
		zap.L().Debug("dedup: fuzzy match, discarding candidate",
			zap.String("candidate_title", cand.Title),
			zap.String("stored_title", fuzzy.Title),
		)
		return Decision{Action: ActionDiscardFuzzy, Matched: fuzzy, Score: candScore}, nil
	}

	return Decision{Action: ActionCreate, Score: candScore}, nil
}

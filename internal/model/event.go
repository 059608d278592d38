package model

import (
	"strings"
	"time"
)

// Category represents an event category from the closed enumeration the
// extractor is allowed to emit.
type Category string

const (
	CategoryConcert    Category = "concert"
	CategoryClubNight  Category = "club_night"
	CategoryFestival   Category = "festival"
	CategoryExhibition Category = "exhibition"
	CategoryTheatre    Category = "theatre"
	CategoryMarket     Category = "market"
	CategoryWorkshop   Category = "workshop"
	CategorySport      Category = "sport"
	CategoryFood       Category = "food_drink"
	CategoryCommunity  Category = "community"
	CategoryOther      Category = "other"
)

// AllCategories returns all defined event categories.
func AllCategories() []Category {
	return []Category{
		CategoryConcert,
		CategoryClubNight,
		CategoryFestival,
		CategoryExhibition,
		CategoryTheatre,
		CategoryMarket,
		CategoryWorkshop,
		CategorySport,
		CategoryFood,
		CategoryCommunity,
		CategoryOther,
	}
}

// ValidCategory returns true if s names a defined category.
func ValidCategory(s string) bool {
	for _, c := range AllCategories() {
		if string(c) == s {
			return true
		}
	}
	return false
}

// CandidateEvent is a single extraction result before dedup and persistence.
// It is never written to the store directly; the dedup engine either promotes
// it to a StoredEvent, merges it into one, or discards it.
type CandidateEvent struct {
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	LocationName    string     `json:"location_name,omitempty"`
	LocationAddress string     `json:"location_address,omitempty"`
	OrganizerName   string     `json:"organizer_name,omitempty"`
	TicketURL       string     `json:"ticket_url,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	DetailURL       string     `json:"detail_url"`
	Category        Category   `json:"category"`

	// Provenance: where this candidate was extracted from.
	SourceID   string     `json:"source_id"`
	SourceKind SourceKind `json:"source_kind"`
}

// Date returns the calendar date portion of the start time.
func (e CandidateEvent) Date() string {
	return e.StartTime.Format("2006-01-02")
}

// StoredEvent is a durable, deduplicated event record. Identity fields
// (title, start time, organizer, location) are immutable after creation;
// only the enrichment fields in EventPatch are ever updated.
type StoredEvent struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	NormalizedTitle string     `json:"normalized_title"`
	Description     string     `json:"description,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	OrganizerID     string     `json:"organizer_id,omitempty"`
	LocationID      string     `json:"location_id,omitempty"`
	CategoryID      string     `json:"category_id,omitempty"`
	TicketURL       string     `json:"ticket_url,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	DetailURL       string     `json:"detail_url"`
	Confidence      int        `json:"confidence"`
	Published       bool       `json:"published"`
	SourceID        string     `json:"source_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EventPatch holds the mutable fields of a StoredEvent. A later extraction
// with a strictly higher confidence score overwrites exactly these.
type EventPatch struct {
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	TicketURL   string `json:"ticket_url,omitempty"`
	Confidence  int    `json:"confidence"`
}

// NonTrivial reports whether s carries a usable value: non-empty after
// trimming and not a known placeholder the model sometimes emits.
func NonTrivial(s string) bool {
	t := strings.TrimSpace(strings.ToLower(s))
	switch t {
	case "", "null", "none", "n/a", "tba", "tbd", "unknown", "-":
		return false
	}
	return len(t) >= 3
}

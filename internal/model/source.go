package model

import "time"

// SourceKind is the closed set of crawlable source types.
type SourceKind string

const (
	SourceKindAggregator SourceKind = "aggregator"
	SourceKindLocation   SourceKind = "location"
	SourceKindOrganizer  SourceKind = "organizer"
	SourceKindSocial     SourceKind = "social"
)

// AllSourceKinds returns all defined source kinds.
func AllSourceKinds() []SourceKind {
	return []SourceKind{
		SourceKindAggregator,
		SourceKindLocation,
		SourceKindOrganizer,
		SourceKindSocial,
	}
}

// ValidSourceKind returns true if s names a defined source kind.
func ValidSourceKind(s string) bool {
	for _, k := range AllSourceKinds() {
		if string(k) == s {
			return true
		}
	}
	return false
}

// Capabilities describes how a source kind must be fetched and queried.
// Dispatch happens through this table rather than scattered string checks.
type Capabilities struct {
	// NeedsBrowser marks kinds whose pages only render under a scripted
	// browser (social profiles behind client-side rendering).
	NeedsBrowser bool
	// QueryTemplate formats the source URL into the fetch target.
	// %s is replaced with the source URL.
	QueryTemplate string
}

var sourceCapabilities = map[SourceKind]Capabilities{
	SourceKindAggregator: {QueryTemplate: "%s"},
	SourceKindLocation:   {QueryTemplate: "%s"},
	SourceKindOrganizer:  {QueryTemplate: "%s"},
	SourceKindSocial:     {NeedsBrowser: true, QueryTemplate: "%s"},
}

// Capabilities returns the fetch/query capabilities for the kind.
// Unknown kinds get aggregator capabilities.
func (k SourceKind) Capabilities() Capabilities {
	if c, ok := sourceCapabilities[k]; ok {
		return c
	}
	return sourceCapabilities[SourceKindAggregator]
}

// Source identifies a place to crawl. Sources are externally managed; the
// pipeline only reads them and touches LastScrapedAt.
type Source struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Kind          SourceKind `json:"kind"`
	Reliability   int        `json:"reliability"`
	Enabled       bool       `json:"enabled"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
}

// SourceSuggestion is a secondary signal found while scanning fetched
// content (a social handle, a platform event link) that may grow the
// source list after review.
type SourceSuggestion struct {
	URL        string     `json:"url"`
	Kind       SourceKind `json:"kind"`
	Handle     string     `json:"handle,omitempty"`
	FoundOnURL string     `json:"found_on_url"`
}

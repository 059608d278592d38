package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscout/events-cli/internal/model"
)

func page(html, content string) *model.Page {
	return &model.Page{URL: "https://venue.example/events", HTML: html, Content: content}
}

func TestScanForSources_InstagramLink(t *testing.T) {
	p := page(`<a href="https://www.instagram.com/berghain_ostgut/">follow</a>`, "")
	sugs := ScanForSources(p)

	require.Len(t, sugs, 1)
	assert.Equal(t, "https://www.instagram.com/berghain_ostgut", sugs[0].URL)
	assert.Equal(t, model.SourceKindSocial, sugs[0].Kind)
	assert.Equal(t, "berghain_ostgut", sugs[0].Handle)
	assert.Equal(t, "https://venue.example/events", sugs[0].FoundOnURL)
}

func TestScanForSources_PlaintextMention(t *testing.T) {
	p := page("", "tickets at the door, updates via @late_shift_club every friday")
	sugs := ScanForSources(p)

	require.Len(t, sugs, 1)
	assert.Equal(t, "late_shift_club", sugs[0].Handle)
	assert.Equal(t, "https://www.instagram.com/late_shift_club", sugs[0].URL)
}

func TestScanForSources_MentionAndLinkDeduped(t *testing.T) {
	p := page(
		`<a href="https://instagram.com/club_x">IG</a>`,
		"follow @club_x for the lineup",
	)
	sugs := ScanForSources(p)
	require.Len(t, sugs, 1)
	assert.Equal(t, "club_x", sugs[0].Handle)
}

func TestScanForSources_FacebookReservedPathsIgnored(t *testing.T) {
	p := page(
		`<a href="https://www.facebook.com/events/123">e</a>
		 <a href="https://facebook.com/watch/">w</a>
		 <a href="https://www.facebook.com/clubxberlin">page</a>`,
		"",
	)
	sugs := ScanForSources(p)

	require.Len(t, sugs, 1)
	assert.Equal(t, "https://www.facebook.com/clubxberlin", sugs[0].URL)
	assert.Equal(t, "clubxberlin", sugs[0].Handle)
	assert.Equal(t, model.SourceKindSocial, sugs[0].Kind)
}

func TestScanForSources_EventPlatformPages(t *testing.T) {
	p := page(
		`<a href="https://www.eventbrite.de/o/kollektiv-nacht-1234">org</a>
		 <a href="https://ra.co/clubs/5678">venue</a>`,
		"",
	)
	sugs := ScanForSources(p)
	require.Len(t, sugs, 2)

	byKind := map[model.SourceKind]model.SourceSuggestion{}
	for _, s := range sugs {
		byKind[s.Kind] = s
	}
	assert.Equal(t, "https://www.eventbrite.de/o/kollektiv-nacht-1234", byKind[model.SourceKindOrganizer].URL)
	assert.Equal(t, "https://ra.co/clubs/5678", byKind[model.SourceKindLocation].URL)
}

func TestScanForSources_BareURLInPlaintext(t *testing.T) {
	p := page("", "more info at https://www.instagram.com/warehouse_nights and at the bar")
	sugs := ScanForSources(p)

	require.Len(t, sugs, 1)
	assert.Equal(t, "warehouse_nights", sugs[0].Handle)
}

func TestScanForSources_ShortMentionRejected(t *testing.T) {
	p := page("", "dm @ab for guestlist")
	assert.Empty(t, ScanForSources(p))
}

func TestScanForSources_NothingFound(t *testing.T) {
	p := page(`<a href="/kontakt">contact</a>`, "plain schedule text, no links")
	assert.Empty(t, ScanForSources(p))
}

package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/cityscout/events-cli/internal/model"
)

// systemPromptTemplate encodes the extraction contract: geographic filter,
// closed category list, date normalization rules, and the detail-URL rule.
// %s slots: target region (x3), category list, current year, next year.
const systemPromptTemplate = `You are an event extraction system for %s. You receive raw page content (HTML, markdown, or pre-structured event blocks) and return structured event data.

Rules:

1. REGION FILTER: Only extract events taking place in or around %s. If an event is clearly outside %s, omit it entirely.

2. CATEGORIES: Every event must have exactly one category from this closed list:
%s

Disambiguation: a DJ-led night in a club is "club_night", not "concert"; a live band on a stage is "concert". Multi-day music programming is "festival". A gallery opening is "exhibition". Food markets are "market", not "food_drink"; "food_drink" is for tastings, pop-up dinners, and similar.

3. DATES: Normalize all times to ISO-8601 (YYYY-MM-DDTHH:MM:SS, no timezone suffix). If the year is omitted on the page, assume %d if the date has not yet passed this year, otherwise %d. If the time of day is omitted: use 20:00:00 for evening-coded events (club nights, concerts, parties) and 10:00:00 for daytime events (markets, workshops, exhibitions).

4. DETAIL URL: "detail_url" must point at the specific page for that single event, never at a listing or overview page. If no specific event URL can be found in the content, SKIP the event entirely rather than using the listing URL.

5. OUTPUT: Return a single JSON object and nothing else, in the form:
{"events": [{"title": "...", "description": "...", "start_time": "...", "end_time": "...", "location_name": "...", "location_address": "...", "organizer_name": "...", "ticket_url": "...", "image_url": "...", "detail_url": "...", "category": "..."}]}

Use "" for unknown string fields. Do not wrap the JSON in markdown fences. Do not emit unescaped double quotes inside string values. If the page contains no extractable events, return {"events": []}.`

// BuildSystemPrompt renders the extraction system prompt for the target
// region, anchored to now for year inference.
func BuildSystemPrompt(targetRegion string, now time.Time) string {
	var cats strings.Builder
	for _, c := range model.AllCategories() {
		cats.WriteString("  - ")
		cats.WriteString(string(c))
		cats.WriteString("\n")
	}
	return fmt.Sprintf(systemPromptTemplate,
		targetRegion, targetRegion, targetRegion,
		strings.TrimRight(cats.String(), "\n"),
		now.Year(), now.Year()+1,
	)
}

// BuildUserPrompt renders the per-page user prompt.
func BuildUserPrompt(sourceName, sourceURL, content string) string {
	return fmt.Sprintf("Source: %s\nSource URL: %s\n\nPage content:\n%s", sourceName, sourceURL, content)
}

// Truncate cuts content to maxChars runes. Content past the cutoff is
// silently dropped: bounding model input is a deliberate cost and latency
// tradeoff, and the head of a page carries nearly all of its event data.
func Truncate(content string, maxChars int) string {
	if maxChars <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}
	return string(runes[:maxChars])
}

package extract

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cityscout/events-cli/internal/model"
)

// rawEvent is the JSON shape the model is asked to emit for each event.
type rawEvent struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	LocationName    string `json:"location_name"`
	LocationAddress string `json:"location_address"`
	OrganizerName   string `json:"organizer_name"`
	TicketURL       string `json:"ticket_url"`
	ImageURL        string `json:"image_url"`
	DetailURL       string `json:"detail_url"`
	Category        string `json:"category"`
}

// rawResponse is the single top-level JSON object the model must return.
type rawResponse struct {
	Events []rawEvent `json:"events"`
}

// timeLayouts are accepted start/end time formats, most specific first.
// The prompt asks for ISO-8601 with seconds; the looser layouts absorb
// model drift rather than burning a retry on it.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.New("extract: empty time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("extract: unparseable time %q", s)
}

// parseCandidates parses raw (already repaired) model output and validates
// every event against the schema. Both mandatory fields (title, start
// time) must be present and the category must come from the closed
// enumeration; a single invalid event invalidates the whole response so
// the caller re-extracts instead of persisting partial data.
func parseCandidates(text string, src model.Source) ([]model.CandidateEvent, error) {
	text = stripMarkdownFence(text)

	var resp rawResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, eris.Wrap(err, "extract: parse response")
	}

	out := make([]model.CandidateEvent, 0, len(resp.Events))
	for i, re := range resp.Events {
		if strings.TrimSpace(re.Title) == "" {
			return nil, eris.Errorf("extract: event %d: missing title", i)
		}
		start, err := parseEventTime(re.StartTime)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: event %d (%s): start time", i, re.Title)
		}
		if !model.ValidCategory(re.Category) {
			return nil, eris.Errorf("extract: event %d (%s): category %q not in enumeration", i, re.Title, re.Category)
		}
		if strings.TrimSpace(re.DetailURL) == "" {
			return nil, eris.Errorf("extract: event %d (%s): missing detail url", i, re.Title)
		}

		cand := model.CandidateEvent{
			Title:           strings.TrimSpace(re.Title),
			Description:     strings.TrimSpace(re.Description),
			StartTime:       start,
			LocationName:    strings.TrimSpace(re.LocationName),
			LocationAddress: strings.TrimSpace(re.LocationAddress),
			OrganizerName:   strings.TrimSpace(re.OrganizerName),
			TicketURL:       strings.TrimSpace(re.TicketURL),
			ImageURL:        strings.TrimSpace(re.ImageURL),
			DetailURL:       strings.TrimSpace(re.DetailURL),
			Category:        model.Category(re.Category),
			SourceID:        src.ID,
			SourceKind:      src.Kind,
		}

		if re.EndTime != "" {
			if end, endErr := parseEventTime(re.EndTime); endErr == nil {
				cand.EndTime = &end
			}
			// An unparseable optional end time is dropped, not fatal.
		}

		out = append(out, cand)
	}

	return out, nil
}

// stripMarkdownFence removes a surrounding ```json fence if the model
// wrapped its output in one despite instructions.
func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

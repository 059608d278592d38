package pipeline

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cityscout/events-cli/internal/model"
)

var (
	instagramProfileRe = regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/([a-z0-9_.]{2,30})/?(?:[?#\s]|$)`)
	facebookPageRe     = regexp.MustCompile(`(?i)https?://(?:www\.)?facebook\.com/([a-z0-9.]{3,50})/?(?:[?#\s]|$)`)
	eventbriteOrgRe    = regexp.MustCompile(`(?i)https?://(?:www\.)?eventbrite\.[a-z.]+/o/([a-z0-9-]+)`)
	raClubRe           = regexp.MustCompile(`(?i)https?://(?:www\.)?ra\.co/clubs/(\d+)`)
	mentionRe          = regexp.MustCompile(`(?:^|[\s(])@([a-z0-9_.]{3,30})`)
)

// facebookReservedPaths are facebook.com paths that look like page slugs
// but are not pages.
var facebookReservedPaths = map[string]bool{
	"events": true, "groups": true, "photo": true, "photos": true,
	"watch": true, "marketplace": true, "login": true, "sharer": true,
	"share": true, "profile.php": true,
}

// ScanForSources scans a fetched page for secondary signals worth adding
// to the source list: social profile links, @mentions, and organizer or
// venue pages on event platforms. Results are deduplicated by URL.
func ScanForSources(page *model.Page) []model.SourceSuggestion {
	seen := make(map[string]bool)
	var out []model.SourceSuggestion

	add := func(s model.SourceSuggestion) {
		if s.URL == "" || seen[s.URL] {
			return
		}
		seen[s.URL] = true
		s.FoundOnURL = page.URL
		out = append(out, s)
	}

	for _, href := range collectHrefs(page) {
		if m := instagramProfileRe.FindStringSubmatch(href); m != nil {
			add(model.SourceSuggestion{
				URL:    "https://www.instagram.com/" + strings.ToLower(m[1]),
				Kind:   model.SourceKindSocial,
				Handle: strings.ToLower(m[1]),
			})
			continue
		}
		if m := facebookPageRe.FindStringSubmatch(href); m != nil {
			slug := strings.ToLower(m[1])
			if !facebookReservedPaths[slug] {
				add(model.SourceSuggestion{
					URL:    "https://www.facebook.com/" + slug,
					Kind:   model.SourceKindSocial,
					Handle: slug,
				})
			}
			continue
		}
		if m := eventbriteOrgRe.FindStringSubmatch(href); m != nil {
			add(model.SourceSuggestion{
				URL:  strings.ToLower(m[0]),
				Kind: model.SourceKindOrganizer,
			})
			continue
		}
		if m := raClubRe.FindStringSubmatch(href); m != nil {
			add(model.SourceSuggestion{
				URL:  "https://ra.co/clubs/" + m[1],
				Kind: model.SourceKindLocation,
			})
		}
	}

	// Plaintext @mentions, the only signal surviving HTML stripping.
	for _, m := range mentionRe.FindAllStringSubmatch(strings.ToLower(page.Content), -1) {
		handle := strings.Trim(m[1], ".")
		if len(handle) < 3 {
			continue
		}
		add(model.SourceSuggestion{
			URL:    "https://www.instagram.com/" + handle,
			Kind:   model.SourceKindSocial,
			Handle: handle,
		})
	}

	return out
}

// collectHrefs returns candidate link targets: anchor hrefs when HTML is
// available, plus bare URLs appearing in the plaintext.
func collectHrefs(page *model.Page) []string {
	var hrefs []string

	if page.HTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
		if err == nil {
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				if href, ok := s.Attr("href"); ok {
					hrefs = append(hrefs, href)
				}
			})
		}
	}

	for _, re := range []*regexp.Regexp{instagramProfileRe, facebookPageRe, eventbriteOrgRe, raClubRe} {
		hrefs = append(hrefs, re.FindAllString(page.Content, -1)...)
	}

	return hrefs
}

package dedup

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ListingGate rejects candidates whose detail URL points at a known
// aggregator listing page rather than a specific event page. Sources on the
// trusted-host allow-list bypass the gate: some sources only ever expose
// listing URLs, and rejecting them would mean never capturing any of their
// events.
type ListingGate struct {
	patterns     []*regexp.Regexp
	trustedHosts map[string]bool
}

// NewListingGate compiles the configured listing-page patterns.
func NewListingGate(patterns []string, trustedHosts []string) (*ListingGate, error) {
	g := &ListingGate{trustedHosts: make(map[string]bool, len(trustedHosts))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "dedup: compile listing pattern %q", p)
		}
		g.patterns = append(g.patterns, re)
	}
	for _, h := range trustedHosts {
		g.trustedHosts[strings.ToLower(h)] = true
	}
	return g, nil
}

// IsListingURL reports whether rawURL matches a known listing-page pattern.
func (g *ListingGate) IsListingURL(rawURL string) bool {
	for _, re := range g.patterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Allow decides whether a candidate with the given detail URL may proceed.
// Listing URLs from trusted hosts are accepted with a log annotation.
func (g *ListingGate) Allow(detailURL string) bool {
	if !g.IsListingURL(detailURL) {
		return true
	}
	u, err := url.Parse(detailURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if g.trustedHosts[host] {
		zap.L().Info("dedup: accepting listing url from trusted host",
			zap.String("url", detailURL),
			zap.String("host", host),
		)
		return true
	}
	return false
}

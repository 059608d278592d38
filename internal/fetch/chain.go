// Package fetch provides chained content retrieval for event sources:
// plain HTTP first, the Jina Reader proxy when pages block or render
// client-side, and a scripted browser for social profiles.
package fetch

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cityscout/events-cli/internal/model"
)

// Chain tries fetchers in priority order, returning the first success.
type Chain struct {
	fetchers []Fetcher
	limiter  *DomainLimiter
}

// NewChain creates a Chain with the given domain limiter and fetchers.
// Fetchers are tried in order; the first successful result is returned.
func NewChain(limiter *DomainLimiter, fetchers ...Fetcher) *Chain {
	return &Chain{
		fetchers: fetchers,
		limiter:  limiter,
	}
}

// Fetch resolves the source's fetch target and tries each fetcher that
// supports the source. Returns the first successful page, or an error
// when all fetchers fail.
func (c *Chain) Fetch(ctx context.Context, src model.Source) (*model.Page, error) {
	target := fmt.Sprintf(src.Kind.Capabilities().QueryTemplate, src.URL)

	var lastErr error
	for _, f := range c.fetchers {
		if !f.Supports(src) {
			continue
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, target); err != nil {
				return nil, eris.Wrap(err, "fetch: rate limit wait")
			}
		}
		page, err := f.Fetch(ctx, target)
		if err == nil && page != nil {
			zap.L().Info("fetch: page fetched",
				zap.String("source", src.Name),
				zap.String("fetcher", f.Name()),
				zap.Int("content_chars", len(page.Content)),
			)
			return page, nil
		}
		if err != nil {
			zap.L().Debug("fetch: fetcher failed, trying next",
				zap.String("fetcher", f.Name()),
				zap.String("url", target),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "fetch: all fetchers failed")
	}
	return nil, eris.Errorf("fetch: no suitable fetcher for source: %s", src.Name)
}

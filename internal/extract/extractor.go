// Package extract turns fetched page content into validated candidate
// events via a language model, owning all JSON repair and retry logic.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cityscout/events-cli/internal/config"
	"github.com/cityscout/events-cli/internal/model"
	"github.com/cityscout/events-cli/internal/resilience"
	"github.com/cityscout/events-cli/pkg/anthropic"
)

// Extractor extracts candidate events from page content.
type Extractor struct {
	client anthropic.Client
	cfg    config.ExtractConfig
	aiCfg  config.AnthropicConfig
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// New creates an Extractor.
func New(client anthropic.Client, cfg config.ExtractConfig, aiCfg config.AnthropicConfig) *Extractor {
	return &Extractor{
		client: client,
		cfg:    cfg,
		aiCfg:  aiCfg,
		now:    time.Now,
		sleep:  sleepCtx,
	}
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

// Extract produces zero or more validated candidate events from one page.
// Validation failures trigger a full re-extraction (the model may produce
// valid output on another attempt); after the configured attempts the
// whole source fails rather than returning partial data. Rate limits are
// surfaced as resilience.RateLimitError after exponential backoff.
func (x *Extractor) Extract(ctx context.Context, src model.Source, page model.Page) ([]model.CandidateEvent, error) {
	content := Truncate(page.Content, x.cfg.MaxInputChars)
	system := BuildSystemPrompt(x.cfg.TargetRegion, x.now())
	user := BuildUserPrompt(src.Name, page.URL, content)

	maxAttempts := x.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryDelay := time.Duration(x.cfg.RetryDelaySecs) * time.Second
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := x.complete(ctx, system, user)
		if err != nil {
			return nil, err
		}

		if resp.Truncated() {
			zap.L().Warn("extract: model output truncated at token limit, parsing partial response",
				zap.String("source", src.Name),
				zap.Int64("output_tokens", resp.Usage.OutputTokens),
			)
		}
		resp.Usage.LogUsage(x.aiCfg.Model, "extract")

		candidates, parseErr := parseCandidates(RepairQuotes(resp.Text), src)
		if parseErr == nil {
			zap.L().Info("extract: events extracted",
				zap.String("source", src.Name),
				zap.Int("events", len(candidates)),
				zap.Int("attempt", attempt),
			)
			return candidates, nil
		}

		lastErr = parseErr
		zap.L().Warn("extract: validation failed, re-extracting",
			zap.String("source", src.Name),
			zap.Int("attempt", attempt),
			zap.Error(parseErr),
		)

		if attempt < maxAttempts {
			if err := x.sleep(ctx, retryDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, eris.Wrapf(lastErr, "extract: source %s failed after %d attempts", src.Name, maxAttempts)
}

// complete performs one model call, backing off exponentially on rate
// limits before giving up with a distinguished RateLimitError.
func (x *Extractor) complete(ctx context.Context, system, user string) (*anthropic.MessageResponse, error) {
	attempts := x.cfg.RateLimitAttempts
	if attempts <= 0 {
		attempts = 4
	}
	base := time.Duration(x.cfg.RateLimitBaseSecs) * time.Second
	if base <= 0 {
		base = 5 * time.Second
	}

	req := anthropic.MessageRequest{
		Model:     x.aiCfg.Model,
		MaxTokens: x.aiCfg.MaxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: "user", Content: user},
		},
	}

	delay := base
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := x.client.CreateMessage(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !anthropic.IsRateLimited(err) && !anthropic.IsOverloaded(err) {
			return nil, eris.Wrap(err, "extract: model call")
		}

		if attempt < attempts {
			zap.L().Warn("extract: rate limited, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			if sleepErr := x.sleep(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}
			delay *= 2
		}
	}

	return nil, &resilience.RateLimitError{Service: "anthropic", Err: lastErr}
}

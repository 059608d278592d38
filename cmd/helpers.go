package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cityscout/events-cli/internal/extract"
	"github.com/cityscout/events-cli/internal/fetch"
	"github.com/cityscout/events-cli/internal/notify"
	"github.com/cityscout/events-cli/internal/pipeline"
	"github.com/cityscout/events-cli/internal/store"
	"github.com/cityscout/events-cli/pkg/anthropic"
	"github.com/cityscout/events-cli/pkg/jina"
)

// pipelineEnv bundles the pipeline with everything that needs releasing
// when the command finishes.
type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
	browser  *fetch.BrowserFetcher
}

func (e *pipelineEnv) Close() {
	if e.browser != nil {
		e.browser.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline wires the full discovery pipeline: store, fetch chain,
// extractor, notifier. Callers must Close the returned env.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
	anthropicClient := anthropic.NewClient(cfg.Anthropic.Key)

	browser := fetch.NewBrowserFetcher(cfg.Browser)
	chain := fetch.NewChain(
		fetch.NewDomainLimiter(cfg.Fetch.DomainRPS, cfg.Fetch.DomainBurst),
		fetch.NewHTTPFetcher(cfg.Fetch),
		fetch.NewJinaFetcher(jinaClient),
		browser,
	)

	extractor := extract.New(anthropicClient, cfg.Extract, cfg.Anthropic)
	notifier := notify.NewWebhook(cfg.Notify)

	p, err := pipeline.New(cfg, st, chain, extractor, notifier)
	if err != nil {
		browser.Close()
		_ = st.Close()
		return nil, eris.Wrap(err, "build pipeline")
	}

	return &pipelineEnv{Pipeline: p, Store: st, browser: browser}, nil
}

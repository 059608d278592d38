package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cityscout/events-cli/internal/config"
	"github.com/cityscout/events-cli/internal/model"
)

// BrowserFetcher drives a headless Chromium via Playwright for pages that
// only render client-side (social profiles). The browser process is
// expensive, so it is launched lazily on first use and shared for the
// rest of the run; Close must be called on every exit path.
type BrowserFetcher struct {
	cfg config.BrowserConfig

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	started bool
	initErr error
}

// NewBrowserFetcher creates a BrowserFetcher. No browser is launched
// until the first Fetch.
func NewBrowserFetcher(cfg config.BrowserConfig) *BrowserFetcher {
	return &BrowserFetcher{cfg: cfg}
}

func (b *BrowserFetcher) Name() string { return "browser" }

// Supports returns true for every source when the browser is enabled;
// ordered last in the chain it serves browser-only sources directly and
// everything else as a final fallback.
func (b *BrowserFetcher) Supports(_ model.Source) bool {
	return b.cfg.Enabled
}

// Fetch navigates to the target and returns the rendered page text.
func (b *BrowserFetcher) Fetch(ctx context.Context, target string) (*model.Page, error) {
	browser, err := b.acquire()
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(b.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 1024},
	})
	if err != nil {
		return nil, eris.Wrap(err, "browser: new page")
	}
	defer func() { _ = page.Close() }()

	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < timeout {
			timeout = remaining
		}
	}

	resp, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, eris.Wrap(err, "browser: goto")
	}

	// Best effort: give client-side rendering a chance to settle.
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(5000),
	}); err != nil {
		zap.L().Debug("browser: networkidle not reached", zap.String("url", target))
	}

	html, err := page.Content()
	if err != nil {
		return nil, eris.Wrap(err, "browser: page content")
	}

	text, err := page.Locator("body").InnerText()
	if err != nil {
		return nil, eris.Wrap(err, "browser: body text")
	}
	text = collapseWhitespace(text)

	if len(text) < 100 || looksBlocked(text) {
		return nil, eris.New("browser: page blocked or empty")
	}

	title, err := page.Title()
	if err != nil {
		title = ""
	}

	status := 0
	if resp != nil {
		status = resp.Status()
	}

	return &model.Page{
		URL:        target,
		Title:      strings.TrimSpace(title),
		Content:    text,
		HTML:       html,
		StatusCode: status,
	}, nil
}

// acquire launches Playwright and Chromium once; subsequent calls reuse
// the same browser. A failed launch is not retried within the run.
func (b *BrowserFetcher) acquire() (playwright.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return b.browser, b.initErr
	}
	b.started = true

	pw, err := playwright.Run()
	if err != nil {
		b.initErr = eris.Wrap(err, "browser: start playwright")
		return nil, b.initErr
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		b.initErr = eris.Wrap(err, "browser: launch chromium")
		return nil, b.initErr
	}

	zap.L().Info("browser: chromium launched", zap.Bool("headless", b.cfg.Headless))
	b.pw = pw
	b.browser = browser
	return browser, nil
}

// Close releases the browser session if one was started. Safe to call
// multiple times and when no browser was ever launched.
func (b *BrowserFetcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			zap.L().Warn("browser: close failed", zap.Error(err))
		}
		b.browser = nil
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			zap.L().Warn("browser: stop playwright failed", zap.Error(err))
		}
		b.pw = nil
	}
	b.started = false
	b.initErr = nil
}

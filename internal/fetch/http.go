package fetch

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/cityscout/events-cli/internal/config"
	"github.com/cityscout/events-cli/internal/model"
)

const maxBodyBytes = 512 * 1024

// HTTPFetcher fetches HTML via net/http and converts it to plaintext.
// Free, no API calls. Falls through to Jina or the browser when blocked.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	minLen    int
}

// NewHTTPFetcher creates an HTTPFetcher from fetch config.
func NewHTTPFetcher(cfg config.FetchConfig) *HTTPFetcher {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	minLen := cfg.MinContentLength
	if minLen <= 0 {
		minLen = 100
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: cfg.UserAgent,
		minLen:    minLen,
	}
}

func (h *HTTPFetcher) Name() string { return "http" }

// Supports returns true for sources that render without a browser.
func (h *HTTPFetcher) Supports(src model.Source) bool {
	return !src.Kind.Capabilities().NeedsBrowser
}

// Fetch retrieves a URL, detects blocks, and extracts plaintext.
func (h *HTTPFetcher) Fetch(ctx context.Context, target string) (*model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: http get")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("fetch: blocked (%s)", blockType)
	}

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("fetch: status %d", resp.StatusCode)
	}

	title, text, err := extractText(body)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: parse html")
	}

	if len(text) < h.minLen {
		return nil, eris.New("fetch: page too small after extraction")
	}

	return &model.Page{
		URL:        target,
		Title:      title,
		Content:    text,
		HTML:       string(body),
		StatusCode: resp.StatusCode,
	}, nil
}

// extractText parses HTML and returns the document title plus the
// visible text with boilerplate elements removed.
func extractText(body []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, nav, footer, iframe, svg").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
	})

	return title, collapseWhitespace(b.String()), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

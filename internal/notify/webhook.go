// Package notify delivers end-of-run reports and fatal alerts to an
// operator webhook. Delivery is best effort: failures are logged and
// never affect the outcome of the run being reported.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cityscout/events-cli/internal/config"
	"github.com/cityscout/events-cli/internal/model"
	"github.com/cityscout/events-cli/internal/resilience"
)

// Notifier receives the structured report at the end of every run.
type Notifier interface {
	ReportRun(ctx context.Context, report model.RunReport)
	AlertFatal(ctx context.Context, runID string, runErr error)
}

// WebhookNotifier posts reports as JSON to a configured webhook URL.
// With no URL configured every delivery is a silent no-op.
type WebhookNotifier struct {
	cfg    config.NotifyConfig
	client *http.Client
}

// NewWebhook creates a WebhookNotifier from notify config.
func NewWebhook(cfg config.NotifyConfig) *WebhookNotifier {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type reportPayload struct {
	Kind      string          `json:"kind"`
	Report    model.RunReport `json:"report"`
	Timestamp time.Time       `json:"timestamp"`
}

type alertPayload struct {
	Kind      string    `json:"kind"`
	Severity  string    `json:"severity"`
	RunID     string    `json:"run_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ReportRun delivers the run report.
func (w *WebhookNotifier) ReportRun(ctx context.Context, report model.RunReport) {
	if w.cfg.WebhookURL == "" {
		return
	}
	payload := reportPayload{
		Kind:      "run_report",
		Report:    report,
		Timestamp: time.Now().UTC(),
	}
	if err := w.post(ctx, payload); err != nil {
		zap.L().Error("notify: failed to deliver run report",
			zap.String("run_id", report.RunID),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("notify: run report delivered",
		zap.String("run_id", report.RunID),
		zap.String("status", string(report.Status)),
	)
}

// AlertFatal delivers a high-priority alert for a run that died on an
// unhandled error.
func (w *WebhookNotifier) AlertFatal(ctx context.Context, runID string, runErr error) {
	if w.cfg.WebhookURL == "" {
		return
	}
	payload := alertPayload{
		Kind:      "fatal_error",
		Severity:  "high",
		RunID:     runID,
		Message:   runErr.Error(),
		Timestamp: time.Now().UTC(),
	}
	if err := w.post(ctx, payload); err != nil {
		zap.L().Error("notify: failed to deliver fatal alert",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("notify: fatal alert delivered", zap.String("run_id", runID))
}

// post delivers one payload, retrying transient failures once. The report
// is the only record of a finished run, so a blip on the receiving end
// should not lose it; a misconfigured endpoint (4xx) fails immediately.
func (w *WebhookNotifier) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "notify: marshal payload")
	}

	cfg := resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 500 * time.Millisecond,
		OnRetry:        resilience.RetryLogger("webhook", "deliver"),
	}

	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "notify: create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return eris.Wrap(err, "notify: webhook request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(
				eris.Errorf("notify: webhook returned status %d", resp.StatusCode),
				resp.StatusCode,
			)
		}
		if resp.StatusCode >= 400 {
			return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// Package notify delivers pipeline events (run summaries, sync results,
// review decisions) to an operator webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/logging"
)

// Severity ranks an event for the receiving channel.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one notification payload.
type Event struct {
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// Notifier delivers events. Implementations must be safe for concurrent
// use.
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// Noop discards every event. Used when no webhook is configured.
type Noop struct{}

func (Noop) Send(context.Context, Event) error { return nil }

// Webhook posts events as JSON to a single URL.
type Webhook struct {
	url    string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewWebhook builds a webhook notifier. An empty url yields a Noop.
func NewWebhook(url string) Notifier {
	if url == "" {
		return Noop{}
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logging.Component("notify"),
		now:    time.Now,
	}
}

// Send posts the event, retrying transport failures. Delivery failures
// are logged and returned but callers treat them as non-fatal.
func (w *Webhook) Send(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = w.now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return engine.E(engine.KindProtocol, "notify", err)
	}

	err = retry.Do(
		func() error { return w.post(ctx, body) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(engine.IsRetryable),
	)
	if err != nil {
		w.log.Warn().Err(err).Str("type", ev.Type).Msg("webhook delivery failed")
		return err
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return engine.E(engine.KindConfig, "notify", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return engine.E(engine.KindTransport, "notify", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return engine.Errorf(engine.KindFromStatus(resp.StatusCode), "notify", "webhook returned %d", resp.StatusCode)
	}
	return nil
}

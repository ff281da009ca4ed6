package senders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/openfroyo/catalogd/pkg/engine"
)

// RequestIDHeader carries the work item id on every webhook request.
const RequestIDHeader = "X-Request-Id"

// DefaultTimeout bounds a webhook request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxErrorBody limits how much of a rejected response is kept for the failure description.
const maxErrorBody = 512

// Webhook POSTs work items to the executor. The executor acknowledges with a 2xx
// status and reports the outcome later through a callback.
type Webhook struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhook validates rawURL and creates a webhook sender. A zero timeout uses DefaultTimeout.
func NewWebhook(rawURL string, timeout time.Duration, logger zerolog.Logger) (*Webhook, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, engine.NewConfigurationError("invalid webhook URL", err).
			WithCode(engine.ErrCodeInvalidSender)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, engine.NewConfigurationError(fmt.Sprintf("webhook URL %q must be an absolute http(s) URL", rawURL), nil).
			WithCode(engine.ErrCodeInvalidSender)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Webhook{
		url:    parsed.String(),
		client: &http.Client{
			Timeout: timeout,
			// A redirect is a rejection. Following it would replay the work item elsewhere.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger.With().Str("component", "webhook-sender").Str("url", parsed.Redacted()).Logger(),
	}, nil
}

// URL returns the executor endpoint.
func (w *Webhook) URL() string {
	return w.url
}

// Send POSTs the item and reports it pending on a 2xx answer. Any other status or a
// transport error reports the item failed together with a transport error.
func (w *Webhook) Send(ctx context.Context, item *engine.WorkItem) (engine.DispatchResult, error) {
	logger := w.logger.With().
		Str("work_item_id", item.ID).
		Str("kind", string(item.Kind)).
		Str("operation", string(item.Operation)).
		Logger()

	body, err := json.Marshal(item)
	if err != nil {
		return engine.DispatchFailed, engine.NewPermanentError("failed to encode work item", err).
			WithCode(engine.ErrCodeDispatchFailed).
			WithResource(item.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return engine.DispatchFailed, engine.NewTransportError("failed to build webhook request", err).
			WithCode(engine.ErrCodeDispatchFailed).
			WithResource(item.ID)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, item.ID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := w.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("Webhook request failed")
		return engine.DispatchFailed, engine.NewTransportError("webhook request failed", err).
			WithCode(engine.ErrCodeDispatchFailed).
			WithResource(item.ID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("body", string(snippet)).
			Msg("Executor rejected work item")
		return engine.DispatchFailed, engine.NewTransportError(
			fmt.Sprintf("executor answered %s", resp.Status), nil).
			WithCode(engine.ErrCodeDispatchFailed).
			WithResource(item.ID).
			WithDetail("status_code", resp.StatusCode).
			WithDetail("body", string(snippet))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	logger.Debug().Int("status_code", resp.StatusCode).Msg("Executor accepted work item")
	return engine.DispatchPending, nil
}

package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"routeopt/internal/metrics"
)

// Webhook POSTs each event as JSON to one URL. With a secret the body is
// signed in X-Signature. Failed deliveries are retried with exponential
// backoff up to MaxAttempts.
type Webhook struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	Log         *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewWebhook(url, secret string, maxAttempts int, log *zap.Logger) *Webhook {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Webhook{
		URL:         url,
		Secret:      secret,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		Log:         log.Named("events.webhook"),
		sleep:       sleepCtx,
	}
}

// DeliveryError reports the last failed attempt.
type DeliveryError struct {
	URL      string
	Attempts int
	Code     int
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("webhook %s failed after %d attempts: status %d", e.URL, e.Attempts, e.Code)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (w *Webhook) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	sleep := w.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var last *DeliveryError
	for attempt := 0; attempt < w.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, nextBackoff(attempt-1)); err != nil {
				return err
			}
		}
		code, latency, err := w.deliver(ctx, evt, body, attempt)
		status := "ok"
		if err != nil || code < 200 || code >= 300 {
			status = "error"
		}
		metrics.WebhookLatency.WithLabelValues(string(evt.Type), status).Observe(float64(latency.Milliseconds()))
		if status == "ok" {
			metrics.EventsPublished.WithLabelValues(string(evt.Type), "webhook", "ok").Inc()
			return nil
		}
		last = &DeliveryError{URL: w.URL, Attempts: attempt + 1, Code: code, Err: err}
		w.Log.Warn("webhook delivery failed",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Int("attempt", attempt+1),
			zap.Int("code", code),
			zap.Error(err),
		)
	}
	metrics.EventsPublished.WithLabelValues(string(evt.Type), "webhook", "error").Inc()
	return last
}

func (w *Webhook) deliver(ctx context.Context, evt Event, body []byte, attempt int) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(evt.Type))
	req.Header.Set("X-Event-Id", evt.ID)
	req.Header.Set("X-Attempt", strconv.Itoa(attempt+1))
	if w.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(w.Secret, body))
	}
	client := w.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, latency, nil
}

// nextBackoff doubles from one second and caps at one minute.
func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 6 {
		attempts = 6
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Minute {
		base = time.Minute
	}
	return base
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SignHMAC returns lowercase hex of HMAC-SHA256 for use in headers.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks an HMAC-SHA256 signature over the raw body using the
// shared secret.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(mac.Sum(nil), b)
}

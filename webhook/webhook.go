// Package webhook notifies callers when an operation finishes.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event types.
const (
	EventCompleted = "scrape.completed"
	EventFailed    = "scrape.failed"
)

// SignatureHeader carries the HMAC-SHA256 of the body, "sha256=<hex>".
const SignatureHeader = "X-Harvest-Signature"

const attemptTimeout = 10 * time.Second

// Event is the payload posted to a webhook URL.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Operation string `json:"operation"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Wait before each DeliverAsync attempt.
var retryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

var client = &http.Client{Timeout: attemptTimeout}

// errPermanent marks responses a retry cannot fix.
var errPermanent = errors.New("webhook: endpoint rejected the event")

// Sign returns the signature header value of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver posts event to url once. The body is signed when secret is set.
// A 4xx answer other than 429 wraps errPermanent.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Harvest-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", errPermanent, resp.StatusCode)
	default:
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
}

// DeliverAsync delivers event in the background. Failed attempts are
// retried after 1s, 5s and 30s unless the endpoint rejected the event.
func DeliverAsync(url, secret string, event *Event) {
	log := slog.With("url", url, "event", event.Type, "job_id", event.JobID)
	delays := retryDelays

	go func() {
		for i, delay := range delays {
			time.Sleep(delay)

			ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
			err := Deliver(ctx, url, secret, event)
			cancel()

			switch {
			case err == nil:
				log.Info("webhook delivered", "attempt", i+1)
				return
			case errors.Is(err, errPermanent):
				log.Warn("webhook rejected", "attempt", i+1, "error", err)
				return
			}
			log.Warn("webhook attempt failed", "attempt", i+1, "error", err)
		}
		log.Error("webhook undelivered", "attempts", len(delays))
	}()
}

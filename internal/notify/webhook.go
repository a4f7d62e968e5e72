package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spinhouse/coinledger/internal/circuitbreaker"
	"github.com/spinhouse/coinledger/internal/retry"
)

// Endpoint is one webhook destination. Secret, when set, is used to
// HMAC-sign the payload.
type Endpoint struct {
	URL    string
	Secret string
}

// Dispatcher posts notification payloads to registered endpoints.
// Delivery is fire-and-forget: transient failures are retried with
// backoff, a 4xx response is not, and an endpoint that keeps failing
// trips its circuit so further notifications skip it for a while.
type Dispatcher struct {
	client    *http.Client
	breaker   *circuitbreaker.Breaker
	logger    *slog.Logger
	mu        sync.RWMutex
	endpoints []Endpoint
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(endpoints []Endpoint, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:    &http.Client{Timeout: 5 * time.Second},
		breaker:   circuitbreaker.New(5, 30*time.Second),
		logger:    logger,
		endpoints: endpoints,
	}
}

// AddEndpoint registers another destination.
func (d *Dispatcher) AddEndpoint(e Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, e)
}

// Dispatch sends the notification to every endpoint asynchronously.
func (d *Dispatcher) Dispatch(n *Notification) {
	d.mu.RLock()
	endpoints := make([]Endpoint, len(d.endpoints))
	copy(endpoints, d.endpoints)
	d.mu.RUnlock()

	for _, e := range endpoints {
		go d.send(e, n)
	}
}

func (d *Dispatcher) send(e Endpoint, n *Notification) {
	if !d.breaker.Allow(e.URL) {
		d.logger.Warn("webhook delivery skipped, circuit open", "url", e.URL)
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		d.logger.Error("webhook payload marshal failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		return d.post(ctx, e, n, payload)
	})
	if err != nil {
		d.breaker.RecordFailure(e.URL)
		d.logger.Warn("webhook delivery failed", "url", e.URL, "error", err)
		return
	}
	d.breaker.RecordSuccess(e.URL)
}

func (d *Dispatcher) post(ctx context.Context, e Endpoint, n *Notification, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Coinledger-Event", n.Type)
	req.Header.Set("X-Coinledger-Timestamp", fmt.Sprintf("%d", n.CreatedAt.Unix()))
	if e.Secret != "" {
		req.Header.Set("X-Coinledger-Signature", sign(payload, e.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The endpoint understood the request and refused it.
		return retry.Permanent(fmt.Errorf("endpoint rejected delivery: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

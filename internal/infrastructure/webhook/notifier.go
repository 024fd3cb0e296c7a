// Package webhook posts progress milestones to outgoing webhooks.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/felixgeelhaar/milestone/pkg/domain/events"
)

const (
	SignatureHeader = "X-Milestone-Signature"
	userAgent       = "Milestone-Webhook/1.0"
)

// Notifier turns controller views into events and delivers them.
// Deliveries run in their own goroutines; Wait blocks until they finish.
type Notifier struct {
	endpoints  []events.WebhookEndpoint
	client     *http.Client
	deadLetter *DeadLetterStore
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	last     *events.Observation
	revision uint64

	deliveries sync.WaitGroup
}

// NewNotifier creates a notifier. deadLetter may be nil.
func NewNotifier(endpoints []events.WebhookEndpoint, deadLetter *DeadLetterStore, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		deadLetter: deadLetter,
		logger:     logger,
		now:        time.Now,
	}
}

// Payload is the JSON body sent to webhook endpoints.
type Payload struct {
	EventType string       `json:"event_type"`
	Instance  string       `json:"instance,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Data      events.Event `json:"data"`
}

// Observe compares v with the last view seen and notifies what changed.
// The first view is only recorded. Views older than the last one are dropped.
// It has the shape of a SyncController subscriber.
func (n *Notifier) Observe(instance string, v application.View) {
	obs := events.Observation{Snapshot: v.Snapshot, Offline: v.Offline()}

	n.mu.Lock()
	if n.last != nil && v.Revision <= n.revision {
		n.mu.Unlock()
		return
	}
	prev := n.last
	n.last = &obs
	n.revision = v.Revision
	n.mu.Unlock()

	if prev == nil {
		return
	}
	for _, ev := range events.Detect(*prev, obs, n.now()) {
		n.Notify(context.Background(), instance, ev)
	}
}

// Notify sends an event to every endpoint that accepts its type.
func (n *Notifier) Notify(ctx context.Context, instance string, ev events.Event) {
	body, err := json.Marshal(Payload{
		EventType: ev.Type,
		Instance:  instance,
		Timestamp: ev.Timestamp,
		Data:      ev,
	})
	if err != nil {
		n.logger.Warn("encode webhook payload", "err", err)
		return
	}

	for _, ep := range n.endpoints {
		if !ep.Accepts(ev.Type) {
			continue
		}
		n.deliveries.Add(1)
		go n.deliver(ctx, ep, ev.Type, body)
	}
}

// Wait blocks until every delivery started so far has finished.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.deliveries.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) deliver(ctx context.Context, ep events.WebhookEndpoint, eventType string, body []byte) {
	defer n.deliveries.Done()

	attempts := ep.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	delay := ep.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	r := retry.New[struct{}](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  delay,
		BackoffPolicy: retry.BackoffExponential,
	})
	_, err := r.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.send(ctx, ep, body)
	})
	if err == nil {
		n.logger.Debug("webhook delivered", "webhook", ep.Name, "event", eventType)
		return
	}

	n.logger.Warn("webhook delivery failed", "webhook", ep.Name, "event", eventType, "attempts", attempts, "err", err)
	if n.deadLetter == nil {
		return
	}
	dl := events.DeadLetter{
		Timestamp:   n.now(),
		WebhookName: ep.Name,
		URL:         ep.URL,
		EventType:   eventType,
		Payload:     string(body),
		Error:       err.Error(),
		Attempts:    attempts,
	}
	if err := n.deadLetter.Append(dl); err != nil {
		n.logger.Warn("dead letter append failed", "err", err)
	}
}

func (n *Notifier) send(ctx context.Context, ep events.WebhookEndpoint, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the HMAC-SHA256 signature header value for a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

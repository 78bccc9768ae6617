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

	"github.com/google/uuid"
)

const (
	EventCertificateIssued   = "certificate.issued"
	EventCertificateVerified = "certificate.verified"
	EventBatchCompleted      = "batch.completed"
	EventTemplateDeleted     = "template.deleted"
)

const SignatureHeader = "X-Signature"

var defaultBackoff = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

type Event struct {
	EventType string      `json:"event_type"`
	EventID   string      `json:"event_id"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Notifier posts signed events to a single configured endpoint. A nil
// Notifier or one without a URL drops every event.
type Notifier struct {
	URL     string
	Secret  string
	Client  *http.Client
	Backoff []time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	base   context.Context
	cancel context.CancelFunc
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.URL != ""
}

// Dispatch delivers the event in the background, retrying on the backoff
// schedule until the schedule is exhausted or the Notifier is closed. The
// caller's cancellation does not stop delivery.
func (n *Notifier) Dispatch(ctx context.Context, eventType string, data interface{}) {
	if !n.Enabled() || n.baseContext().Err() != nil {
		return
	}
	event := Event{
		EventType: eventType,
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("webhook marshal", "event", eventType, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(n.baseContext(), cancel)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer stop()
		defer cancel()
		n.deliver(ctx, event, payload)
	}()
}

func (n *Notifier) baseContext() context.Context {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.base == nil {
		n.base, n.cancel = context.WithCancel(context.Background())
	}
	return n.base
}

// Close aborts pending retries and in-flight requests. Events dispatched
// afterwards are dropped.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.baseContext()
	n.cancel()
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

// Shutdown waits for in-flight deliveries until ctx is done, then closes
// the Notifier and waits for the aborted deliveries to return.
func (n *Notifier) Shutdown(ctx context.Context) {
	if n == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("abandoning pending webhook deliveries")
	}
	n.Close()
	<-done
}

func (n *Notifier) deliver(ctx context.Context, event Event, payload []byte) {
	backoff := n.Backoff
	if backoff == nil {
		backoff = defaultBackoff
	}
	for attempt := 1; ; attempt++ {
		status, err := n.post(ctx, payload)
		if err == nil {
			slog.Info("webhook delivered", "event", event.EventType, "id", event.EventID, "status", status)
			return
		}
		if attempt > len(backoff) {
			slog.Warn("webhook exhausted", "event", event.EventType, "id", event.EventID, "attempts", attempt, "error", err)
			return
		}
		wait := backoff[attempt-1]
		slog.Warn("webhook failed, will retry", "event", event.EventType, "attempt", attempt, "next_in", wait, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Sign returns the hex HMAC-SHA256 of payload, as sent in SignatureHeader
// with a "sha256=" prefix.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (n *Notifier) post(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+Sign(n.Secret, payload))

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Package alerts implements the alerting contract §4.B/§4.F describe: a
// well-formed alert object delivered through an open-ended list of
// channels, with a per-alert-key cooldown.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/R3E-Network/gguf-harvester/infrastructure/logging"
)

const cooldownWindow = 300 * time.Second

// Alert is the well-formed object every channel receives.
type Alert struct {
	Severity          string    `json:"severity"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	Timestamp         time.Time `json:"timestamp"`
	Context           map[string]interface{} `json:"context,omitempty"`
	SuggestedActions  []string  `json:"suggestedActions,omitempty"`
	Category          string    `json:"category"`
}

// Key identifies an alert for cooldown purposes: category + title.
func (a Alert) Key() string {
	return a.Category + "|" + a.Title
}

// Channel delivers an alert somewhere: log, webhook, email, issue tracker.
type Channel interface {
	Send(ctx context.Context, a Alert) error
}

// LogChannel emits alerts through the structured logger.
type LogChannel struct {
	log *logging.Logger
}

// NewLogChannel constructs a LogChannel.
func NewLogChannel(log *logging.Logger) *LogChannel { return &LogChannel{log: log} }

// Send logs the alert at error level with full structured context.
func (c *LogChannel) Send(ctx context.Context, a Alert) error {
	if c.log == nil {
		return nil
	}
	c.log.WithContext(ctx).WithFields(map[string]interface{}{
		"severity": a.Severity,
		"category": a.Category,
		"context":  a.Context,
	}).Error(a.Title + ": " + a.Message)
	return nil
}

// WebhookChannel posts the alert as JSON to a configured URL.
type WebhookChannel struct {
	url        string
	httpClient *http.Client
}

// NewWebhookChannel constructs a WebhookChannel.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{url: url, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// Send posts the alert body to the configured webhook URL.
func (c *WebhookChannel) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("alerts: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerts: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alerts: send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("alerts: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher fans an alert out to every registered channel, suppressing
// repeats of the same alert key within the cooldown window.
type Dispatcher struct {
	channels []Channel

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewDispatcher constructs a Dispatcher over the given channels.
func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, lastSent: map[string]time.Time{}}
}

// Dispatch sends a through every channel unless its key was sent within the
// last 300s.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) error {
	key := a.Key()

	d.mu.Lock()
	if last, ok := d.lastSent[key]; ok && time.Since(last) < cooldownWindow {
		d.mu.Unlock()
		return nil
	}
	d.lastSent[key] = time.Now()
	d.mu.Unlock()

	var firstErr error
	for _, ch := range d.channels {
		if err := ch.Send(ctx, a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SuggestedActionsFor returns the category-specific suggested-action list
// §7 calls for, e.g. for critical completeness findings.
func SuggestedActionsFor(category string) []string {
	switch category {
	case "completeness":
		return []string{"investigate discovery strategy failures", "consider full sync"}
	case "rate_limit":
		return []string{"reduce request concurrency", "verify authentication token is configured"}
	case "authentication":
		return []string{"verify hub API token is valid and not expired"}
	default:
		return nil
	}
}

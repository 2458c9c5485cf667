package testutil

import (
	"context"
	"sync"

	"worklog/internal/actions"
)

// CollectingAlerts captures user-facing notifications for assertions.
type CollectingAlerts struct {
	mu        sync.Mutex
	errors    []actions.Alert
	successes []string
}

// NewCollectingAlerts creates an empty alert sink.
func NewCollectingAlerts() *CollectingAlerts {
	return &CollectingAlerts{}
}

func (c *CollectingAlerts) Error(alert actions.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, alert)
}

func (c *CollectingAlerts) Success(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = append(c.successes, message)
}

// Errors returns the captured error alerts.
func (c *CollectingAlerts) Errors() []actions.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]actions.Alert, len(c.errors))
	copy(out, c.errors)
	return out
}

// Successes returns the captured success messages.
func (c *CollectingAlerts) Successes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.successes))
	copy(out, c.successes)
	return out
}

// CollectingNotifier records cross-session broadcasts.
type CollectingNotifier struct {
	mu       sync.Mutex
	messages []string
}

// NewCollectingNotifier creates an empty notifier.
func NewCollectingNotifier() *CollectingNotifier {
	return &CollectingNotifier{}
}

func (c *CollectingNotifier) Post(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	return nil
}

// Messages returns the broadcasts posted so far.
func (c *CollectingNotifier) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

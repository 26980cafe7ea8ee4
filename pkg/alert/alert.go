package alert

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Notification is the data sent to alert destinations when the monitored
// website could not be reached or answered with an error status.
type Notification struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	URL    string    `json:"url"`
	Status int       `json:"status"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// ProbeFailure builds the notification for a failed probe.
func ProbeFailure(url string, status int, err error, at time.Time) *Notification {
	n := &Notification{
		Title:  "Website unavailable",
		URL:    url,
		Status: status,
		Time:   at.UTC(),
	}
	if err != nil {
		n.Error = err.Error()
	}
	if status < 0 {
		n.Body = fmt.Sprintf("%s did not respond", url)
	} else {
		n.Body = fmt.Sprintf("%s answered with HTTP %d", url, status)
	}
	return n
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Package alert mirrors administrator warnings to an operations channel.
// Platform sinks live in subpackages.
package alert

import (
	"context"
	"fmt"
	"sync"
)

// Severity levels.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Color constants for alert severity.
const (
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Alert is one operational notice.
type Alert struct {
	Title    string
	Body     string
	Severity string
}

// Color returns the sidebar color for the alert's severity.
func (a Alert) Color() string {
	switch a.Severity {
	case SeverityWarning:
		return ColorWarning
	case SeverityError:
		return ColorError
	default:
		return ColorInfo
	}
}

// Text renders the alert as plain text.
func (a Alert) Text() string {
	if a.Body == "" {
		return a.Title
	}
	return fmt.Sprintf("%s\n%s", a.Title, a.Body)
}

// Sink delivers alerts.
type Sink interface {
	Notify(ctx context.Context, a Alert) error
}

// Nop discards alerts.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(ctx context.Context, a Alert) error { return nil }

// Recorder keeps every alert in memory, for tests.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

// Notify records a.
func (r *Recorder) Notify(ctx context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

// Alerts returns a copy of the recorded alerts.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

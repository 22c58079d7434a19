// Package notify delivers registration outcomes to registrants and operators.
// Delivery is fire-and-forget: Notify never returns an error and callers
// never wait on the outcome.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Kind identifies what happened to a registrant.
type Kind string

const (
	KindConfirmed    Kind = "confirmed"
	KindWaitlisted   Kind = "waitlisted"
	KindPromoted     Kind = "promoted"
	KindUnregistered Kind = "unregistered"
	KindRejected     Kind = "rejected"
)

// Notification describes one registration outcome.
type Notification struct {
	Kind         Kind
	RegistrantID string
	ActivityID   string
	ActivityName string
	PartySize    int
	// Reason is a stable code and Detail a readable message, both set for KindRejected.
	Reason string
	Detail string
	At     time.Time
}

// Notifier receives notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Fanout delivers every notification to each notifier in order.
type Fanout []Notifier

// Notify implements Notifier.
func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, next := range f {
		next.Notify(ctx, n)
	}
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Notification) {}

// LogNotifier writes each notification as a structured log line.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	attrs := []any{
		"kind", n.Kind,
		"registrant_id", n.RegistrantID,
		"activity_id", n.ActivityID,
		"party_size", n.PartySize,
	}
	if n.Reason != "" {
		attrs = append(attrs, "reason", n.Reason)
	}
	l.logger.InfoContext(ctx, "registration notification", attrs...)
}

package notify

import (
	"context"
	"log/slog"
	"time"
)

const deliveryTimeout = 30 * time.Second

// Dispatcher queues notifications and hands them to the next notifier from a
// single background goroutine, so slow sinks never hold up registration.
// A full queue drops the notification with a warning.
type Dispatcher struct {
	next   Notifier
	queue  chan Notification
	logger *slog.Logger
}

// NewDispatcher constructs a Dispatcher with room for size pending notifications.
func NewDispatcher(next Notifier, size int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		next:   next,
		queue:  make(chan Notification, size),
		logger: logger,
	}
}

// Notify implements Notifier. It never blocks.
func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification queue full, dropping",
			"kind", n.Kind,
			"registrant_id", n.RegistrantID,
			"activity_id", n.ActivityID,
		)
	}
}

// Run delivers queued notifications until ctx is cancelled, then drains
// whatever is still queued and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		case <-ctx.Done():
			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	d.next.Notify(ctx, n)
}

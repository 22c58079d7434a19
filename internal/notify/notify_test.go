package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.seen...)
}

type fakeSender struct {
	sent []Email
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg Email) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	n := Notification{Kind: KindConfirmed, RegistrantID: "ann"}

	Fanout{a, b, Nop{}}.Notify(context.Background(), n)

	assert.Equal(t, []Notification{n}, a.all())
	assert.Equal(t, []Notification{n}, b.all())
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 8, discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Notify(context.Background(), Notification{Kind: KindConfirmed, RegistrantID: "ann"})
	assert.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)

	d.Notify(context.Background(), Notification{Kind: KindPromoted, RegistrantID: "bob"})
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, rec.all(), 2)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 1, discard())

	d.Notify(context.Background(), Notification{RegistrantID: "first"})
	d.Notify(context.Background(), Notification{RegistrantID: "dropped"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	seen := rec.all()
	require.Len(t, seen, 1)
	assert.Equal(t, "first", seen[0].RegistrantID)
}

func TestRender(t *testing.T) {
	msg, err := Render(Notification{Kind: KindWaitlisted, ActivityName: "Summer & Sun", PartySize: 3})
	require.NoError(t, err)

	assert.Equal(t, "You're on the waiting list: Summer & Sun", msg.Subject)
	assert.Contains(t, msg.HTML, "<strong>Summer &amp; Sun</strong>")
	assert.Contains(t, msg.HTML, "party of 3")

	msg, err = Render(Notification{Kind: KindRejected, ActivityID: "a1", Reason: "deadline_passed", Detail: "registration deadline has passed"})
	require.NoError(t, err)
	assert.Equal(t, "Registration not accepted: a1", msg.Subject)
	assert.Contains(t, msg.HTML, "registration deadline has passed")

	_, err = Render(Notification{Kind: "unknown"})
	assert.Error(t, err)
}

func TestEmailNotifier(t *testing.T) {
	sender := &fakeSender{}
	e := NewEmailNotifier(sender, discard())

	e.Notify(context.Background(), Notification{Kind: KindConfirmed, RegistrantID: "member-42", ActivityName: "Picnic", PartySize: 1})
	assert.Empty(t, sender.sent, "non-email registrant ids are skipped")

	e.Notify(context.Background(), Notification{Kind: KindConfirmed, RegistrantID: "ann@example.com", ActivityName: "Picnic", PartySize: 1})
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"ann@example.com"}, sender.sent[0].To)
	assert.Contains(t, sender.sent[0].HTML, "1 person")

	sender.err = errors.New("provider down")
	assert.NotPanics(t, func() {
		e.Notify(context.Background(), Notification{Kind: KindPromoted, RegistrantID: "bob@example.com"})
	})
}

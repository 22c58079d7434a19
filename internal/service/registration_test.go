package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Shivanand-hulikatti/activity-registration/internal/clock"
	"github.com/Shivanand-hulikatti/activity-registration/internal/database"
	"github.com/Shivanand-hulikatti/activity-registration/internal/logger"
	"github.com/Shivanand-hulikatti/activity-registration/internal/model"
	"github.com/Shivanand-hulikatti/activity-registration/internal/notify"
	"github.com/Shivanand-hulikatti/activity-registration/internal/repository"
)

var start = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type RegistrationSuite struct {
	suite.Suite
	ctx        context.Context
	store      *repository.MemoryStore
	clock      *clock.Fake
	notifier   *recordingNotifier
	activities *ActivityService
	svc        *RegistrationService
}

func (s *RegistrationSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = repository.NewMemoryStore()
	s.clock = clock.NewFake(start)
	s.notifier = &recordingNotifier{}
	s.activities = NewActivityService(s.store, s.clock, logger.Discard())
	s.svc = NewRegistrationService(s.store, s.notifier, s.clock, logger.Discard())
}

func TestRegistrationSuite(t *testing.T) {
	suite.Run(t, new(RegistrationSuite))
}

func (s *RegistrationSuite) newActivity(capacity int, limit model.FamilyLimit) *model.Activity {
	a, err := s.activities.CreateActivity(s.ctx, model.CreateActivityRequest{
		Name:                   "Spring picnic",
		Capacity:               capacity,
		FamilyLimit:            limit,
		RegistrationDeadline:   start.Add(24 * time.Hour),
		UnregistrationDeadline: start.Add(12 * time.Hour),
	})
	s.Require().NoError(err)
	return a
}

func (s *RegistrationSuite) register(activityID, registrant string, party int) *model.RegisterResult {
	res, err := s.svc.Register(s.ctx, activityID, model.RegisterRequest{RegistrantID: registrant, PartySize: party})
	s.Require().NoError(err)
	return res
}

func (s *RegistrationSuite) load(id string) *model.Activity {
	a, err := s.store.Load(s.ctx, id)
	s.Require().NoError(err)
	return a
}

func (s *RegistrationSuite) TestConfirmWaitlistAndPromote() {
	a := s.newActivity(5, model.Unlimited())

	res := s.register(a.ID, "ann", 3)
	s.Equal(model.StatusConfirmed, res.Status)
	s.Equal(2, res.SpotsLeft)
	s.Require().NotNil(res.Registration)
	s.Equal(3, res.Registration.SeatsHeld)

	res = s.register(a.ID, "bob", 3)
	s.Equal(model.StatusWaitlisted, res.Status)
	s.Equal(1, res.WaitlistPosition)
	s.Equal(2, res.SpotsLeft)

	out, err := s.svc.Unregister(s.ctx, a.ID, model.UnregisterRequest{RegistrantID: "ann"})
	s.Require().NoError(err)
	s.Equal(model.StatusConfirmed, out.PreviousStatus)
	s.Equal(3, out.SeatsReleased)
	s.Equal(2, out.SpotsLeft)
	s.Require().Len(out.Promoted, 1)
	s.Equal("bob", out.Promoted[0].RegistrantID)

	stored := s.load(a.ID)
	s.Equal(2, stored.SpotsLeft)
	s.Equal(model.StatusConfirmed, stored.Status("bob").Status)
	s.Equal(model.StatusUnregistered, stored.Status("ann").Status)
	s.Zero(stored.WaitingList.Len())

	s.Equal([]notify.Kind{
		notify.KindConfirmed,
		notify.KindWaitlisted,
		notify.KindUnregistered,
		notify.KindPromoted,
	}, s.notifier.kinds())
}

func (s *RegistrationSuite) TestPromotionSkipsPartiesThatDoNotFit() {
	a := s.newActivity(3, model.Unlimited())
	s.register(a.ID, "x", 2)
	s.register(a.ID, "y", 1)
	s.Equal(model.StatusWaitlisted, s.register(a.ID, "a", 2).Status)
	s.Equal(model.StatusWaitlisted, s.register(a.ID, "b", 1).Status)

	out, err := s.svc.Unregister(s.ctx, a.ID, model.UnregisterRequest{RegistrantID: "y"})
	s.Require().NoError(err)

	s.Require().Len(out.Promoted, 1)
	s.Equal("b", out.Promoted[0].RegistrantID, "the party of 2 does not fit in 1 spot and is skipped")
	stored := s.load(a.ID)
	s.Equal(0, stored.SpotsLeft)
	s.Equal(model.RegistrantStatus{RegistrantID: "a", Status: model.StatusWaitlisted, PartySize: 2, WaitlistPosition: 1}, stored.Status("a"))
}

func (s *RegistrationSuite) TestReleasePromotesSeveralParties() {
	a := s.newActivity(4, model.Unlimited())
	s.register(a.ID, "big", 4)
	s.register(a.ID, "p1", 2)
	s.register(a.ID, "p2", 1)
	s.register(a.ID, "p3", 1)
	s.register(a.ID, "p4", 1)

	out, err := s.svc.Unregister(s.ctx, a.ID, model.UnregisterRequest{RegistrantID: "big"})
	s.Require().NoError(err)

	promoted := make([]string, 0, len(out.Promoted))
	for _, r := range out.Promoted {
		promoted = append(promoted, r.RegistrantID)
	}
	s.Equal([]string{"p1", "p2", "p3"}, promoted)
	s.Equal(0, out.SpotsLeft)
	s.Equal(1, s.load(a.ID).WaitingList.Len())
}

func (s *RegistrationSuite) TestSmallPartyAdmittedWhileLargerOneWaits() {
	a := s.newActivity(3, model.Unlimited())
	s.register(a.ID, "ann", 2)
	s.Equal(model.StatusWaitlisted, s.register(a.ID, "bob", 2).Status)

	res := s.register(a.ID, "cat", 1)
	s.Equal(model.StatusConfirmed, res.Status)
	s.Equal(0, res.SpotsLeft)
}

func (s *RegistrationSuite) TestRegistrationDeadline() {
	a := s.newActivity(5, model.Unlimited())
	s.clock.Set(start.Add(24*time.Hour + time.Second))

	_, err := s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "ann"})
	s.ErrorIs(err, model.ErrDeadlinePassed)

	stored := s.load(a.ID)
	s.Equal(5, stored.SpotsLeft)
	s.Empty(stored.Registrations)
	s.Zero(stored.WaitingList.Len())
	s.Require().Len(s.notifier.sent, 1)
	s.Equal(notify.KindRejected, s.notifier.sent[0].Kind)
	s.Equal("deadline_passed", s.notifier.sent[0].Reason)
}

func (s *RegistrationSuite) TestRegistrationAtDeadlineIsAllowed() {
	a := s.newActivity(5, model.Unlimited())
	s.clock.Set(start.Add(24 * time.Hour))

	s.Equal(model.StatusConfirmed, s.register(a.ID, "ann", 1).Status)
}

func (s *RegistrationSuite) TestUnregistrationDeadline() {
	a := s.newActivity(5, model.Unlimited())
	s.register(a.ID, "ann", 2)
	s.clock.Advance(13 * time.Hour)

	_, err := s.svc.Unregister(s.ctx, a.ID, model.UnregisterRequest{RegistrantID: "ann"})
	s.ErrorIs(err, model.ErrUnregistrationDeadlinePassed)

	stored := s.load(a.ID)
	s.Equal(model.StatusConfirmed, stored.Status("ann").Status)
	s.Equal(3, stored.SpotsLeft)
}

func (s *RegistrationSuite) TestWaitlistedCanLeaveAfterUnregistrationDeadline() {
	a := s.newActivity(1, model.Unlimited())
	s.register(a.ID, "ann", 1)
	s.register(a.ID, "bob", 1)
	s.clock.Advance(13 * time.Hour)

	out, err := s.svc.Unregister(s.ctx, a.ID, model.UnregisterRequest{RegistrantID: "bob"})
	s.Require().NoError(err)
	s.Equal(model.StatusWaitlisted, out.PreviousStatus)
	s.Zero(out.SeatsReleased)
	s.Equal(0, out.SpotsLeft)
	s.Zero(s.load(a.ID).WaitingList.Len())
}

func (s *RegistrationSuite) TestUnregisterIsIdempotent() {
	a := s.newActivity(5, model.Unlimited())
	s.register(a.ID, "ann", 2)

	_, err := s.svc.Unregister(s.ctx, a.ID, model.UnregisterRequest{RegistrantID: "ann"})
	s.Require().NoError(err)
	before := s.load(a.ID)
	s.notifier.reset()

	out, err := s.svc.Unregister(s.ctx, a.ID, model.UnregisterRequest{RegistrantID: "ann"})
	s.Require().NoError(err)
	s.Equal(model.StatusUnregistered, out.PreviousStatus)
	s.Equal(before, s.load(a.ID))
	s.Empty(s.notifier.sent)
}

func (s *RegistrationSuite) TestAlreadyRegistered() {
	a := s.newActivity(1, model.Unlimited())
	s.register(a.ID, "ann", 1)
	s.register(a.ID, "bob", 1)

	_, err := s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "ANN "})
	s.ErrorIs(err, model.ErrAlreadyRegistered)
	_, err = s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "bob"})
	s.ErrorIs(err, model.ErrAlreadyRegistered)

	s.Equal(1, s.load(a.ID).WaitingList.Len())
}

func (s *RegistrationSuite) TestRejectionOrder_AlreadyRegisteredBeforeFamilyLimit() {
	a := s.newActivity(2, model.Fixed(2))
	s.register(a.ID, "ann", 2)
	s.register(a.ID, "bob", 1)
	s.notifier.reset()

	_, err := s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "bob", PartySize: 5})
	s.ErrorIs(err, model.ErrAlreadyRegistered)
	_, err = s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "ann", PartySize: 5})
	s.ErrorIs(err, model.ErrAlreadyRegistered)

	s.Require().Len(s.notifier.sent, 2)
	s.Equal("already_registered", s.notifier.sent[0].Reason)
	s.Equal("already_registered", s.notifier.sent[1].Reason)
}

func (s *RegistrationSuite) TestRejectionOrder_DeadlineBeforeEverythingElse() {
	a := s.newActivity(2, model.Fixed(1))
	s.register(a.ID, "ann", 1)
	s.clock.Set(start.Add(25 * time.Hour))

	_, err := s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "ann", PartySize: 3})
	s.ErrorIs(err, model.ErrDeadlinePassed)
	_, err = s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "cat", PartySize: 3})
	s.ErrorIs(err, model.ErrDeadlinePassed)
}

func (s *RegistrationSuite) TestFamilyLimit() {
	a := s.newActivity(10, model.Proportional(25))

	_, err := s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "ann", PartySize: 3})
	s.ErrorIs(err, model.ErrFamilyLimitExceeded)
	s.Equal(10, s.load(a.ID).SpotsLeft)

	s.Equal(model.StatusConfirmed, s.register(a.ID, "ann", 2).Status)
}

func (s *RegistrationSuite) TestUnlimitedStillCappedByCapacity() {
	a := s.newActivity(4, model.Unlimited())

	_, err := s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "ann", PartySize: 5})
	s.ErrorIs(err, model.ErrFamilyLimitExceeded)
}

func (s *RegistrationSuite) TestValidation() {
	a := s.newActivity(4, model.Unlimited())

	_, err := s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "  "})
	s.ErrorIs(err, model.ErrValidation)
	_, err = s.svc.Register(s.ctx, a.ID, model.RegisterRequest{RegistrantID: "ann", PartySize: -2})
	s.ErrorIs(err, model.ErrValidation)
	_, err = s.svc.Unregister(s.ctx, a.ID, model.UnregisterRequest{})
	s.ErrorIs(err, model.ErrValidation)
	s.Empty(s.notifier.sent)
}

func (s *RegistrationSuite) TestUnknownActivity() {
	_, err := s.svc.Register(s.ctx, "missing", model.RegisterRequest{RegistrantID: "ann"})
	s.ErrorIs(err, model.ErrNotFound)
	_, err = s.svc.Unregister(s.ctx, "missing", model.UnregisterRequest{RegistrantID: "ann"})
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *RegistrationSuite) TestDefaultPartySizeIsOne() {
	a := s.newActivity(4, model.Fixed(1))

	res := s.register(a.ID, "ann", 0)
	s.Equal(1, res.PartySize)
	s.Equal(3, res.SpotsLeft)
}

// TestInvariantsHoldForRandomSequences drives random register/unregister
// calls and checks the ledger after every step.
func TestInvariantsHoldForRandomSequences(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clk := clock.NewFake(start)
	activities := NewActivityService(store, clk, logger.Discard())
	svc := NewRegistrationService(store, notify.Nop{}, clk, logger.Discard())

	a, err := activities.CreateActivity(ctx, model.CreateActivityRequest{
		Name:        "Working bee",
		Kind:        model.KindVolunteerTask,
		Capacity:    7,
		FamilyLimit: model.Fixed(3),
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	registrants := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for step := range 500 {
		who := registrants[rng.IntN(len(registrants))]
		clk.Advance(time.Second)
		if rng.IntN(2) == 0 {
			_, err = svc.Register(ctx, a.ID, model.RegisterRequest{RegistrantID: who, PartySize: 1 + rng.IntN(4)})
		} else {
			_, err = svc.Unregister(ctx, a.ID, model.UnregisterRequest{RegistrantID: who})
		}
		if err != nil {
			require.True(t,
				errors.Is(err, model.ErrAlreadyRegistered) || errors.Is(err, model.ErrFamilyLimitExceeded),
				"step %d: unexpected error %v", step, err)
		}

		got, err := store.Load(ctx, a.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got.SpotsLeft, 0, "step %d", step)
		require.LessOrEqual(t, got.SpotsLeft, got.Capacity, "step %d", step)
		require.Equal(t, got.Capacity, got.SpotsLeft+got.SeatsHeld(), "step %d", step)
		for _, e := range got.WaitingList {
			_, confirmed := got.Registration(e.RegistrantID)
			require.False(t, confirmed, "step %d: %s is both confirmed and waitlisted", step, e.RegistrantID)
		}
	}
}

func TestConcurrentRegistrationsNeverOverbook(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clk := clock.NewFake(start)
	activities := NewActivityService(store, clk, logger.Discard())
	svc := NewRegistrationService(store, notify.Nop{}, clk, logger.Discard())

	a, err := activities.CreateActivity(ctx, model.CreateActivityRequest{Name: "Gala", Capacity: 10})
	require.NoError(t, err)

	const attempts = 50
	results := make(chan model.Status, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Register(ctx, a.ID, model.RegisterRequest{RegistrantID: fmt.Sprintf("user%d@example.com", i)})
			if assert.NoError(t, err) {
				results <- res.Status
			}
		}(i)
	}
	wg.Wait()
	close(results)

	counts := map[model.Status]int{}
	for st := range results {
		counts[st]++
	}
	assert.Equal(t, 10, counts[model.StatusConfirmed])
	assert.Equal(t, 40, counts[model.StatusWaitlisted])

	got, err := store.Load(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SpotsLeft)
	assert.Len(t, got.Registrations, 10)
	assert.Equal(t, 40, got.WaitingList.Len())
}

func TestRegister_SeparateConnectionsNeverOverbook(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	clk := clock.NewFake(start)

	// Two services with their own connection pools share one database file,
	// as two server processes would.
	var services [2]*RegistrationService
	var stores [2]*repository.SQLiteStore
	for i := range services {
		db, err := database.OpenSQLite(ctx, path)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		stores[i] = repository.NewSQLiteStore(db)
		services[i] = NewRegistrationService(stores[i], notify.Nop{}, clk, logger.Discard())
	}

	a, err := NewActivityService(stores[0], clk, logger.Discard()).
		CreateActivity(ctx, model.CreateActivityRequest{Name: "Kayak tour", Capacity: 4})
	require.NoError(t, err)

	const attempts = 12
	results := make(chan model.Status, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := services[i%2].Register(ctx, a.ID, model.RegisterRequest{
				RegistrantID: fmt.Sprintf("paddler%d", i),
				PartySize:    2,
			})
			if assert.NoError(t, err) {
				results <- res.Status
			}
		}(i)
	}
	wg.Wait()
	close(results)

	counts := map[model.Status]int{}
	for st := range results {
		counts[st]++
	}
	assert.Equal(t, 2, counts[model.StatusConfirmed])
	assert.Equal(t, attempts-2, counts[model.StatusWaitlisted])

	got, err := stores[1].Load(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SpotsLeft)
	assert.Len(t, got.Registrations, 2, "every confirmed party keeps its seats")
	assert.Equal(t, attempts-2, got.WaitingList.Len())
}

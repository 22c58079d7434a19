package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/activity-registration/internal/clock"
	"github.com/Shivanand-hulikatti/activity-registration/internal/model"
	"github.com/Shivanand-hulikatti/activity-registration/internal/notify"
)

// RegistrationService is the only writer of activity capacity and waiting
// lists. Each operation runs inside ActivityStore.Update, which holds the
// activity's lock across load, mutation and write; rejected operations write
// nothing. Notifications go out only after the write commits.
type RegistrationService struct {
	store    ActivityStore
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	locks    activityLocks
}

// NewRegistrationService constructs a RegistrationService with its dependencies.
func NewRegistrationService(
	store ActivityStore,
	notifier notify.Notifier,
	clk clock.Clock,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		store:    store,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

// errUnchanged aborts an update that has nothing to write.
var errUnchanged = errors.New("activity unchanged")

// Register confirms the party if enough spots are free and puts it on the
// waiting list otherwise.
//
// Rejections, in the order they are checked: model.ErrDeadlinePassed,
// model.ErrAlreadyRegistered (confirmed or waitlisted already),
// model.ErrFamilyLimitExceeded.
func (s *RegistrationService) Register(ctx context.Context, activityID string, req model.RegisterRequest) (*model.RegisterResult, error) {
	registrantID := normalizeRegistrant(req.RegistrantID)
	if registrantID == "" {
		return nil, fmt.Errorf("%w: registrant_id is required", model.ErrValidation)
	}
	if activityID == "" {
		return nil, fmt.Errorf("%w: activity id is required", model.ErrValidation)
	}
	partySize := req.PartySize
	if partySize == 0 {
		partySize = 1
	}
	if partySize < 0 {
		return nil, fmt.Errorf("%w: party_size must be at least 1", model.ErrValidation)
	}

	unlock := s.locks.lock(activityID)
	defer unlock()

	var (
		result    *model.RegisterResult
		activity  *model.Activity
		rejection error
		kind      notify.Kind
		now       time.Time
	)
	err := s.store.Update(ctx, activityID, func(a *model.Activity) error {
		activity, rejection = a, nil
		now = s.clock.Now()

		switch {
		case a.RegistrationClosed(now):
			rejection = model.ErrDeadlinePassed
		case a.Status(registrantID).Status != model.StatusUnregistered:
			rejection = model.ErrAlreadyRegistered
		case partySize > a.MaxPartySize():
			rejection = model.ErrFamilyLimitExceeded
		}
		if rejection != nil {
			return rejection
		}

		result = &model.RegisterResult{ActivityID: a.ID, PartySize: partySize}
		kind = notify.KindConfirmed
		if granted, _ := a.Reserve(partySize); granted {
			reg := s.newRegistration(a.ID, registrantID, partySize, now)
			a.Confirm(reg)
			result.Status = model.StatusConfirmed
			result.Registration = &reg
		} else {
			a.WaitingList.Enqueue(model.WaitingListEntry{
				RegistrantID: registrantID,
				PartySize:    partySize,
				RequestedAt:  now,
			})
			pos, _, _ := a.WaitingList.Position(registrantID)
			result.Status = model.StatusWaitlisted
			result.WaitlistPosition = pos
			kind = notify.KindWaitlisted
		}
		result.SpotsLeft = a.SpotsLeft
		return nil
	})
	if err != nil {
		if rejection != nil && errors.Is(err, rejection) {
			return nil, s.reject(ctx, activity, registrantID, partySize, rejection)
		}
		return nil, storeError(err)
	}

	s.logger.InfoContext(ctx, "registration accepted",
		"activity_id", activity.ID,
		"registrant_id", registrantID,
		"status", result.Status,
		"party_size", partySize,
		"spots_left", activity.SpotsLeft,
	)
	s.notify(ctx, kind, activity, registrantID, partySize, now)
	return result, nil
}

// Unregister withdraws a registrant from an activity.
//
// Waitlisted registrants are removed from the waiting list at any time.
// Confirmed registrants release their seats unless the unregistration deadline
// has passed (model.ErrUnregistrationDeadlinePassed); freed seats are offered to
// the waiting list. Unregistering someone who holds nothing is a no-op that
// reports PreviousStatus "unregistered".
func (s *RegistrationService) Unregister(ctx context.Context, activityID string, req model.UnregisterRequest) (*model.UnregisterResult, error) {
	registrantID := normalizeRegistrant(req.RegistrantID)
	if registrantID == "" {
		return nil, fmt.Errorf("%w: registrant_id is required", model.ErrValidation)
	}
	if activityID == "" {
		return nil, fmt.Errorf("%w: activity id is required", model.ErrValidation)
	}

	unlock := s.locks.lock(activityID)
	defer unlock()

	var (
		result    *model.UnregisterResult
		activity  *model.Activity
		current   model.RegistrantStatus
		rejection error
		now       time.Time
	)
	err := s.store.Update(ctx, activityID, func(a *model.Activity) error {
		activity, rejection = a, nil
		now = s.clock.Now()
		current = a.Status(registrantID)
		result = &model.UnregisterResult{
			ActivityID:     a.ID,
			PreviousStatus: current.Status,
			SpotsLeft:      a.SpotsLeft,
			Promoted:       []model.Registration{},
		}

		switch current.Status {
		case model.StatusUnregistered:
			return errUnchanged

		case model.StatusWaitlisted:
			a.WaitingList.Remove(registrantID)

		case model.StatusConfirmed:
			if a.UnregistrationClosed(now) {
				rejection = model.ErrUnregistrationDeadlinePassed
				return rejection
			}
			reg, _ := a.Withdraw(registrantID)
			result.SeatsReleased = reg.SeatsHeld
			result.Promoted = s.promote(a, now)
		}
		result.SpotsLeft = a.SpotsLeft
		return nil
	})
	switch {
	case errors.Is(err, errUnchanged):
		return result, nil
	case err != nil && rejection != nil && errors.Is(err, rejection):
		return nil, s.reject(ctx, activity, registrantID, current.PartySize, rejection)
	case err != nil:
		return nil, storeError(err)
	}

	s.logger.InfoContext(ctx, "registration withdrawn",
		"activity_id", activity.ID,
		"registrant_id", registrantID,
		"previous_status", current.Status,
		"seats_released", result.SeatsReleased,
		"promoted", len(result.Promoted),
		"spots_left", activity.SpotsLeft,
	)
	s.notify(ctx, notify.KindUnregistered, activity, registrantID, current.PartySize, now)
	for _, reg := range result.Promoted {
		s.notify(ctx, notify.KindPromoted, activity, reg.RegistrantID, reg.SeatsHeld, now)
	}
	return result, nil
}

// promote confirms waiting parties, first fit from the head, until none of
// the remaining entries fits in the free spots.
func (s *RegistrationService) promote(a *model.Activity, now time.Time) []model.Registration {
	promoted := []model.Registration{}
	for {
		entry, ok := a.WaitingList.DequeueIfFits(a.SpotsLeft)
		if !ok {
			return promoted
		}
		if granted, _ := a.Reserve(entry.PartySize); !granted {
			// DequeueIfFits only returns entries that fit.
			panic(fmt.Sprintf("waitlist promotion: party of %d does not fit in %d spots", entry.PartySize, a.SpotsLeft))
		}
		reg := s.newRegistration(a.ID, entry.RegistrantID, entry.PartySize, now)
		a.Confirm(reg)
		promoted = append(promoted, reg)
	}
}

// storeError keeps model.ErrNotFound bare and wraps everything else.
func storeError(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return model.ErrNotFound
	}
	return fmt.Errorf("update activity: %w", err)
}

func (s *RegistrationService) newRegistration(activityID, registrantID string, seats int, now time.Time) model.Registration {
	return model.Registration{
		ID:           uuid.New().String(),
		ActivityID:   activityID,
		RegistrantID: registrantID,
		SeatsHeld:    seats,
		CreatedAt:    now,
	}
}

// reject reports a rejected operation and returns err unchanged.
func (s *RegistrationService) reject(ctx context.Context, a *model.Activity, registrantID string, partySize int, err error) error {
	s.logger.InfoContext(ctx, "registration rejected",
		"activity_id", a.ID,
		"registrant_id", registrantID,
		"reason", RejectionReason(err),
	)
	s.notifier.Notify(ctx, notify.Notification{
		Kind:         notify.KindRejected,
		RegistrantID: registrantID,
		ActivityID:   a.ID,
		ActivityName: a.Name,
		PartySize:    partySize,
		Reason:       RejectionReason(err),
		Detail:       err.Error(),
		At:           s.clock.Now(),
	})
	return err
}

func (s *RegistrationService) notify(ctx context.Context, kind notify.Kind, a *model.Activity, registrantID string, partySize int, now time.Time) {
	s.notifier.Notify(ctx, notify.Notification{
		Kind:         kind,
		RegistrantID: registrantID,
		ActivityID:   a.ID,
		ActivityName: a.Name,
		PartySize:    partySize,
		At:           now,
	})
}

// RejectionReason maps a rejection error to a stable, label-safe reason code.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, model.ErrDeadlinePassed):
		return "deadline_passed"
	case errors.Is(err, model.ErrUnregistrationDeadlinePassed):
		return "unregistration_deadline_passed"
	case errors.Is(err, model.ErrFamilyLimitExceeded):
		return "family_limit_exceeded"
	case errors.Is(err, model.ErrAlreadyRegistered):
		return "already_registered"
	default:
		return "other"
	}
}

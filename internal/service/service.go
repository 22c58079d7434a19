// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the persistence layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/activity-registration/internal/clock"
	"github.com/Shivanand-hulikatti/activity-registration/internal/model"
)

//go:generate mockgen -source=service.go -destination=mocks/mock_store.go -package=mocks ActivityStore

// ActivityStore persists activities together with their confirmed
// registrations and waiting list.
//
// Load and List return copies. Load and Update return model.ErrNotFound for
// unknown ids.
//
// Update is the only write path for an existing activity. It locks the
// activity, loads it, applies fn and writes the result back as one unit;
// concurrent updates of the same activity, from this process or any other
// sharing the store, run one after another and each sees the previous one's
// result. When fn returns an error nothing is written and Update returns
// that error unchanged.
type ActivityStore interface {
	Create(ctx context.Context, a *model.Activity) error
	Load(ctx context.Context, id string) (*model.Activity, error)
	Update(ctx context.Context, id string, fn func(a *model.Activity) error) error
	List(ctx context.Context) ([]*model.Activity, error)
}

// ActivityService orchestrates activity creation and read-side queries.
type ActivityService struct {
	store  ActivityStore
	clock  clock.Clock
	logger *slog.Logger
}

// NewActivityService constructs an ActivityService with its dependencies.
func NewActivityService(store ActivityStore, clk clock.Clock, logger *slog.Logger) *ActivityService {
	return &ActivityService{store: store, clock: clk, logger: logger}
}

// CreateActivity validates the request and stores a new activity with every seat free.
func (s *ActivityService) CreateActivity(ctx context.Context, req model.CreateActivityRequest) (*model.Activity, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: activity name is required", model.ErrValidation)
	}
	if req.Kind == "" {
		req.Kind = model.KindEvent
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown activity kind %q", model.ErrValidation, req.Kind)
	}
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be a positive integer", model.ErrValidation)
	}
	if req.Capacity > model.MaxCapacity {
		return nil, fmt.Errorf("%w: capacity cannot exceed 100,000", model.ErrValidation)
	}
	if req.FamilyLimit.Kind == "" {
		req.FamilyLimit = model.Unlimited()
	}
	if err := req.FamilyLimit.Validate(); err != nil {
		return nil, err
	}

	a := model.NewActivity(uuid.New().String(), req.Name, req.Kind, req.Capacity, req.FamilyLimit)
	a.StartsAt = req.StartsAt.UTC()
	a.RegistrationDeadline = req.RegistrationDeadline.UTC()
	a.UnregistrationDeadline = req.UnregistrationDeadline.UTC()
	a.CreatedAt = s.clock.Now()

	if err := s.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}
	s.logger.InfoContext(ctx, "activity created",
		"activity_id", a.ID,
		"kind", a.Kind,
		"capacity", a.Capacity,
		"family_limit", a.FamilyLimit.Kind,
	)
	return a, nil
}

// ListActivities returns all activities.
func (s *ActivityService) ListActivities(ctx context.Context) ([]*model.Activity, error) {
	activities, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// GetActivity returns a single activity by ID.
func (s *ActivityService) GetActivity(ctx context.Context, id string) (*model.Activity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: activity id is required", model.ErrValidation)
	}
	a, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

// ListRegistrations returns the confirmed registrations for an activity.
func (s *ActivityService) ListRegistrations(ctx context.Context, id string) ([]model.Registration, error) {
	a, err := s.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Registrations, nil
}

// WaitingList returns an activity's waiting list in priority order.
func (s *ActivityService) WaitingList(ctx context.Context, id string) (model.WaitingList, error) {
	a, err := s.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.WaitingList, nil
}

// RegistrantStatus reports whether a registrant is confirmed or waitlisted.
// Registrants with neither return model.ErrNotRegistered.
func (s *ActivityService) RegistrantStatus(ctx context.Context, id, registrantID string) (model.RegistrantStatus, error) {
	registrantID = normalizeRegistrant(registrantID)
	if registrantID == "" {
		return model.RegistrantStatus{}, fmt.Errorf("%w: registrant_id is required", model.ErrValidation)
	}
	a, err := s.GetActivity(ctx, id)
	if err != nil {
		return model.RegistrantStatus{}, err
	}
	st := a.Status(registrantID)
	if st.Status == model.StatusUnregistered {
		return model.RegistrantStatus{}, model.ErrNotRegistered
	}
	return st, nil
}

// normalizeRegistrant trims and lower-cases registrant ids so that
// "Ann@Example.com " and "ann@example.com" are the same registrant.
func normalizeRegistrant(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

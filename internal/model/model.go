// Package model defines the core domain types for activity registration:
// activities with finite capacity, confirmed registrations, and waiting lists.
package model

import "time"

// ActivityKind distinguishes the two things members can sign up for.
type ActivityKind string

const (
	KindEvent         ActivityKind = "event"
	KindVolunteerTask ActivityKind = "volunteer_task"
)

// Valid reports whether k is a known activity kind.
func (k ActivityKind) Valid() bool {
	return k == KindEvent || k == KindVolunteerTask
}

// MaxCapacity bounds the capacity accepted at creation time.
const MaxCapacity = 100_000

// Activity represents an event or volunteer task with a finite number of seats.
//
// SpotsLeft always equals Capacity minus the seats held by Registrations.
// A zero deadline means the corresponding operation is never closed.
type Activity struct {
	ID                     string         `json:"id"`
	Name                   string         `json:"name"`
	Kind                   ActivityKind   `json:"kind"`
	Capacity               int            `json:"capacity"`
	SpotsLeft              int            `json:"spots_left"`
	FamilyLimit            FamilyLimit    `json:"family_limit"`
	StartsAt               time.Time      `json:"starts_at,omitzero"`
	RegistrationDeadline   time.Time      `json:"registration_deadline,omitzero"`
	UnregistrationDeadline time.Time      `json:"unregistration_deadline,omitzero"`
	Registrations          []Registration `json:"-"`
	WaitingList            WaitingList    `json:"-"`
	CreatedAt              time.Time      `json:"created_at"`
}

// NewActivity returns an activity with every seat available and an empty waiting list.
func NewActivity(id, name string, kind ActivityKind, capacity int, limit FamilyLimit) *Activity {
	return &Activity{
		ID:          id,
		Name:        name,
		Kind:        kind,
		Capacity:    capacity,
		SpotsLeft:   capacity,
		FamilyLimit: limit,
	}
}

// MaxPartySize is the largest party a single registration may bring.
func (a *Activity) MaxPartySize() int {
	return a.FamilyLimit.MaxPartySize(a.Capacity)
}

// SeatsHeld sums the seats held by confirmed registrations.
func (a *Activity) SeatsHeld() int {
	total := 0
	for _, r := range a.Registrations {
		total += r.SeatsHeld
	}
	return total
}

// IsFull returns true when no seats remain.
func (a *Activity) IsFull() bool {
	return a.SpotsLeft <= 0
}

// RegistrationClosed reports whether registration is closed at now.
func (a *Activity) RegistrationClosed(now time.Time) bool {
	return !a.RegistrationDeadline.IsZero() && now.After(a.RegistrationDeadline)
}

// UnregistrationClosed reports whether confirmed registrants can no longer withdraw at now.
func (a *Activity) UnregistrationClosed(now time.Time) bool {
	return !a.UnregistrationDeadline.IsZero() && now.After(a.UnregistrationDeadline)
}

// Registration returns the confirmed registration held by registrantID, if any.
func (a *Activity) Registration(registrantID string) (Registration, bool) {
	for _, r := range a.Registrations {
		if r.RegistrantID == registrantID {
			return r, true
		}
	}
	return Registration{}, false
}

// removeRegistration drops the confirmed registration of registrantID.
func (a *Activity) removeRegistration(registrantID string) (Registration, bool) {
	for i, r := range a.Registrations {
		if r.RegistrantID == registrantID {
			a.Registrations = append(a.Registrations[:i], a.Registrations[i+1:]...)
			return r, true
		}
	}
	return Registration{}, false
}

// Confirm records a confirmed registration. Seats must already be reserved.
func (a *Activity) Confirm(reg Registration) {
	a.Registrations = append(a.Registrations, reg)
}

// Withdraw removes registrantID's confirmed registration and releases its seats.
func (a *Activity) Withdraw(registrantID string) (Registration, bool) {
	reg, ok := a.removeRegistration(registrantID)
	if !ok {
		return Registration{}, false
	}
	a.Release(reg.SeatsHeld)
	return reg, true
}

// Status reports where registrantID currently stands for this activity.
func (a *Activity) Status(registrantID string) RegistrantStatus {
	if reg, ok := a.Registration(registrantID); ok {
		return RegistrantStatus{
			RegistrantID: registrantID,
			Status:       StatusConfirmed,
			PartySize:    reg.SeatsHeld,
		}
	}
	if pos, entry, ok := a.WaitingList.Position(registrantID); ok {
		return RegistrantStatus{
			RegistrantID:     registrantID,
			Status:           StatusWaitlisted,
			PartySize:        entry.PartySize,
			WaitlistPosition: pos,
		}
	}
	return RegistrantStatus{RegistrantID: registrantID, Status: StatusUnregistered}
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (a *Activity) Clone() *Activity {
	c := *a
	c.Registrations = append([]Registration(nil), a.Registrations...)
	c.WaitingList = append(WaitingList(nil), a.WaitingList...)
	return &c
}

// Status is the state of one registrant for one activity.
type Status string

const (
	StatusUnregistered Status = "unregistered"
	StatusConfirmed    Status = "confirmed"
	StatusWaitlisted   Status = "waitlisted"
)

// Registration is a confirmed seat reservation for a party.
type Registration struct {
	ID           string    `json:"id"`
	ActivityID   string    `json:"activity_id"`
	RegistrantID string    `json:"registrant_id"`
	SeatsHeld    int       `json:"seats_held"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegistrantStatus describes one registrant's position for an activity.
type RegistrantStatus struct {
	RegistrantID     string `json:"registrant_id"`
	Status           Status `json:"status"`
	PartySize        int    `json:"party_size,omitempty"`
	WaitlistPosition int    `json:"waitlist_position,omitempty"`
}

// CreateActivityRequest is the payload for creating a new activity.
type CreateActivityRequest struct {
	Name                   string       `json:"name"`
	Kind                   ActivityKind `json:"kind"`
	Capacity               int          `json:"capacity"`
	FamilyLimit            FamilyLimit  `json:"family_limit"`
	StartsAt               time.Time    `json:"starts_at"`
	RegistrationDeadline   time.Time    `json:"registration_deadline"`
	UnregistrationDeadline time.Time    `json:"unregistration_deadline"`
}

// RegisterRequest is the payload for registering a party for an activity.
type RegisterRequest struct {
	RegistrantID string `json:"registrant_id"`
	PartySize    int    `json:"party_size"`
}

// UnregisterRequest is the payload for withdrawing from an activity.
type UnregisterRequest struct {
	RegistrantID string `json:"registrant_id"`
}

// RegisterResult summarises the outcome of a registration attempt.
type RegisterResult struct {
	ActivityID       string        `json:"activity_id"`
	Status           Status        `json:"status"`
	PartySize        int           `json:"party_size"`
	SpotsLeft        int           `json:"spots_left"`
	WaitlistPosition int           `json:"waitlist_position,omitempty"`
	Registration     *Registration `json:"registration,omitempty"`
}

// UnregisterResult summarises the outcome of an unregistration.
type UnregisterResult struct {
	ActivityID     string         `json:"activity_id"`
	PreviousStatus Status         `json:"previous_status"`
	SeatsReleased  int            `json:"seats_released"`
	SpotsLeft      int            `json:"spots_left"`
	Promoted       []Registration `json:"promoted"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

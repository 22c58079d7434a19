package model

import "errors"

// ErrNotFound is returned when a requested activity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation marks a malformed request. Wrapped with the offending field.
var ErrValidation = errors.New("invalid request")

// ErrDeadlinePassed is returned when registering after the registration deadline.
var ErrDeadlinePassed = errors.New("registration deadline has passed")

// ErrUnregistrationDeadlinePassed is returned when a confirmed registrant
// withdraws after the unregistration deadline.
var ErrUnregistrationDeadlinePassed = errors.New("unregistration deadline has passed")

// ErrFamilyLimitExceeded is returned when a party is larger than the activity's family limit allows.
var ErrFamilyLimitExceeded = errors.New("party size exceeds the family limit")

// ErrAlreadyRegistered is returned when a confirmed or waitlisted registrant registers again.
var ErrAlreadyRegistered = errors.New("already registered for this activity")

// ErrNotRegistered is returned by status lookups for registrants with no registration.
var ErrNotRegistered = errors.New("not registered for this activity")

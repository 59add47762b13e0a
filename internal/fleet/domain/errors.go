package fleet

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError is returned when an input falls outside its declared enumeration or range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "fleet: invalid input: " + e.Reason
	}
	return fmt.Sprintf("fleet: invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fleet: %s %q not found", e.Kind, e.ID)
}

// NoCapacityError is returned when every eligible service center is full for the window.
type NoCapacityError struct {
	VehicleID   string
	ServiceType string
	From        time.Time
	To          time.Time
}

func (e *NoCapacityError) Error() string {
	return fmt.Sprintf("fleet: no service capacity for vehicle %s (%s) between %s and %s",
		e.VehicleID, e.ServiceType, e.From.Format(DateLayout), e.To.Format(DateLayout))
}

// ConcurrentUpdateError is returned when a center load compare-and-swap keeps losing the race.
type ConcurrentUpdateError struct {
	CenterID string
	Attempts int
}

func (e *ConcurrentUpdateError) Error() string {
	return fmt.Sprintf("fleet: concurrent update conflict on center %s after %d attempts", e.CenterID, e.Attempts)
}

// ErrVersionMismatch is returned by stores when a compare-and-swap precondition fails.
var ErrVersionMismatch = errors.New("fleet: version mismatch")

// ErrInvalidTransition is returned when a status change is not allowed from the current state.
var ErrInvalidTransition = errors.New("fleet: invalid status transition")

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsNoCapacity reports whether err is a NoCapacityError.
func IsNoCapacity(err error) bool {
	var target *NoCapacityError
	return errors.As(err, &target)
}

// IsConcurrentUpdate reports whether err is a ConcurrentUpdateError.
func IsConcurrentUpdate(err error) bool {
	var target *ConcurrentUpdateError
	return errors.As(err, &target)
}

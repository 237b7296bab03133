package services

import (
	"errors"
	"fmt"
)

var (
	// ErrBuddyNotFound means the owner has no active buddy row.
	ErrBuddyNotFound = errors.New("buddy not found")
	// ErrBuddyExists is returned when creating a second active buddy for an owner.
	ErrBuddyExists = errors.New("buddy already exists for owner")
	// ErrStaleWrite means the row was already advanced past the state being written.
	ErrStaleWrite = errors.New("buddy was updated by another writer")
	// ErrActionInFlight rejects an action while another one is still being processed.
	ErrActionInFlight = errors.New("another action is still in progress")
	// ErrToggleCooldown rejects a sleep toggle right after a completed one.
	ErrToggleCooldown = errors.New("sleep was toggled too recently")
	// ErrNoSession means no engine is open for the owner.
	ErrNoSession = errors.New("no active session for owner")
	// ErrInvalidStepCount rejects a negative step reading.
	ErrInvalidStepCount = errors.New("step count must be non-negative")
)

// PersistenceError wraps a failed read or write against the store. It is always
// transient: the in-memory state is unchanged and the next tick or retry can succeed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable persistence failure.
func IsTransient(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	// contract errors pass through untouched
	if errors.Is(err, ErrBuddyNotFound) || errors.Is(err, ErrStaleWrite) || errors.Is(err, ErrBuddyExists) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

package order

import (
	"fmt"

	"ms-service-orders/internal/models"
)

// NotFoundError means the id resolves in neither the active nor the archived partition.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("service order %s not found", e.ID)
}

// InvalidStateError is returned for mutations the order's current state forbids.
type InvalidStateError struct {
	ID     string
	Status models.Status
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("service order %s (%s): %s", e.ID, e.Status, e.Reason)
}

type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid input: %s: %v", e.Message, e.Err)
	}
	return "invalid input: " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError wraps an adapter failure. The in-memory change it refers to has already been
// applied; retrying the save is up to the caller.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s failed for order %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

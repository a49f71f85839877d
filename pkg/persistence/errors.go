// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrShipmentNotFound indicates a shipment was not found by the given identifier.
	ErrShipmentNotFound = errors.New("shipment not found")

	// ErrShipmentAlreadyExists indicates a shipment with the same identifier already exists.
	ErrShipmentAlreadyExists = errors.New("shipment already exists")

	// ErrStageNotFound indicates the shipment has no stage with the given name.
	ErrStageNotFound = errors.New("stage not found")

	// ErrInvalidShipmentDocument indicates a stored shipment document failed schema validation.
	ErrInvalidShipmentDocument = errors.New("invalid shipment document")
)

// WriteError wraps a failed write with the operation and shipment it targeted.
// Creation propagates it to the caller; stage transitions report it through
// the divergence channel instead of aborting progression.
type WriteError struct {
	Op         string // Operation being performed (e.g., "Create", "CompleteStage")
	ShipmentID string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s write failed for shipment %s: %v", e.Op, e.ShipmentID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for write errors.
func (e *WriteError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWriteError creates a new write error with context.
func NewWriteError(op, shipmentID string, err error) *WriteError {
	return &WriteError{
		Op:         op,
		ShipmentID: shipmentID,
		Err:        err,
	}
}

// IsShipmentNotFound checks if an error indicates a shipment was not found.
func IsShipmentNotFound(err error) bool {
	return errors.Is(err, ErrShipmentNotFound)
}

// IsWriteError checks if an error is a persistence write failure.
func IsWriteError(err error) bool {
	var writeErr *WriteError

	return errors.As(err, &writeErr)
}

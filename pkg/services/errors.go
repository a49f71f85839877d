// Package services provides the shipment application services.
package services

import (
	"errors"
	"fmt"

	"github.com/courierlab/shipline/pkg/models"
	"github.com/courierlab/shipline/pkg/persistence"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// ErrShipmentNotFound is returned when a shipment is not found.
	ErrShipmentNotFound = persistence.ErrShipmentNotFound

	// ErrInvalidShipmentType is returned when a request names an unknown
	// shipment type.
	ErrInvalidShipmentType = models.ErrInvalidShipmentType

	// ErrInvalidRequest covers field-level validation failures (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrShipmentNotActive is returned when an operation needs an in-flight
	// shipment but the shipment already reached its terminal stage (409 Conflict).
	ErrShipmentNotActive = errors.New("shipment is not active")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidShipmentType)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrShipmentNotActive)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

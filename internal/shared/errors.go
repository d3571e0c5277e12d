package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a stock decrement larger than the available quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicate indicates a uniqueness constraint violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidState indicates an operation not permitted in the current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict indicates concurrent modification of the same resource.
	ErrConflict = errors.New("conflict")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientStockError names the product whose stock cannot cover a decrement.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int64
	Requested   int64
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("#%d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// DuplicateError reports a violated uniqueness constraint.
type DuplicateError struct {
	Entity     string
	Constraint string
	Value      string
}

func (e *DuplicateError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s with the same %s already exists", e.Entity, e.Constraint)
	}
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Constraint, e.Value)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// InvalidStateError reports an action rejected because of the entity status.
type InvalidStateError struct {
	Entity string
	Status string
	Action string
}

func (e *InvalidStateError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("cannot %s %s", e.Action, e.Entity)
	}
	return fmt.Sprintf("cannot %s %s in status %s", e.Action, e.Entity, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ConflictError reports a lost race against a concurrent writer.
type ConflictError struct {
	Resource string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is being modified concurrently, retry later", e.Resource)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

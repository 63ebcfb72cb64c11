package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every typed error below matches exactly one of these
// through errors.Is, so callers branch on the category rather than the type.
var (
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("resource not found")
	ErrConsistency = errors.New("aggregate consistency violation")
)

// Domain errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUserNotFound = &NotFoundError{Resource: "user"}

	ErrExpenseNotFound = &NotFoundError{Resource: "expense"}
	ErrBudgetNotFound  = &NotFoundError{Resource: "budget"}
	ErrGoalNotFound    = &NotFoundError{Resource: "goal"}
	ErrIncomeNotFound  = &NotFoundError{Resource: "income source"}

	ErrBudgetOverlap = &ConflictError{Reason: "an active budget for this category already overlaps the window"}

	// ErrVersionConflict is returned by repositories when an optimistic
	// compare-and-swap loses against a concurrent writer.
	ErrVersionConflict = errors.New("version conflict")

	ErrInvalidAmount    = NewValidationError("amount", "must be greater than zero")
	ErrInvalidCategory  = NewValidationError("category", "unknown category")
	ErrInvalidStatus    = NewValidationError("status", "must be one of pending, completed, cancelled")
	ErrInvalidFrequency = NewValidationError("frequency", "unknown frequency")
	ErrInvalidWindow    = NewValidationError("endDate", "must not be before startDate")
	ErrNameRequired     = NewValidationError("name", "is required")
	ErrNameTooLong      = NewValidationError("name", "exceeds maximum length")
	ErrDeadlinePast     = NewValidationError("deadline", "must be in the future")
	ErrGoalCompleted    = NewValidationError("goal", "goal is already completed")
	ErrInvalidThreshold = NewValidationError("alerts", "threshold percentages must be between 1 and 1000")
)

// Validation constants
const (
	MaxNameLength        = 255
	MaxDescriptionLength = 1000
	MaxCurrencyLength    = 3
)

// ValidationError is a caller-fixable input error.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a uniqueness or overlap violation.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError is returned both for missing records and for records owned by
// another user, so callers cannot learn whether the record exists.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConsistencyError describes a disagreement between a cached aggregate and
// the ledger. It is logged and corrected, never returned to API callers.
type ConsistencyError struct {
	Aggregate string
	ID        string
	Detail    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s %s inconsistent: %s", e.Aggregate, e.ID, e.Detail)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

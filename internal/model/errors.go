package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a referenced record does not exist or is inactive.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor's role does not permit an operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInsufficientStock is matched by every InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidTransition is returned when a request is not in a state the
	// operation can start from.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a bad input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid is a shorthand for building a ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError is returned when a quantity exceeds what is on hand.
type InsufficientStockError struct {
	MaterialID     int64
	MaterialNumber string
	Available      decimal.Decimal
	Requested      decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %s, requested %s",
		e.MaterialNumber, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

package service

import (
	"errors"
	"fmt"

	"inventory-service/internal/store"
)

var (
	// ErrInsufficientStock matches every InsufficientStockError
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrAlreadyProcessed is returned when a source event id was applied before
	ErrAlreadyProcessed = errors.New("event already processed")
)

// ValidationError is returned for malformed input; nothing was written
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity. It matches store.ErrNotFound.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return store.ErrNotFound
}

// notFound converts store.ErrNotFound into a NotFoundError for the resource
func notFound(err error, resource string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return err
}

// InsufficientStockError is returned when a debit would drive quantity below zero.
// Line is the 0-based invoice line, or -1 outside settlement.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
	Line        int
}

func (e *InsufficientStockError) Error() string {
	msg := fmt.Sprintf("insufficient stock for %s (product %d): requested %d, available %d",
		e.ProductName, e.ProductID, e.Requested, e.Available)
	if e.Line >= 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line+1, msg)
	}
	return msg
}

// Is makes errors.Is(err, ErrInsufficientStock) hold
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateName     = errors.New("duplicate product name")
	ErrStore             = errors.New("store failure")

	// ErrDuplicateCode is retried by code generation and never reaches callers.
	ErrDuplicateCode      = errors.New("duplicate product code")
	ErrCodeSpaceExhausted = errors.New("no free product code")
)

// OpError attaches operation and entity context to a ledger error
type OpError struct {
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *OpError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err unless it is nil
func NewOpError(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Entity: entity, ID: id, Err: err}
}

// Validationf returns an ErrValidation with a formatted reason
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StoreFailure marks err as a persistence failure
func StoreFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStore, err)
}

package utils

import (
	"errors"
	"fmt"
)

var (
	ErrorRecordNotFound    = errors.New("record not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDiscount   = errors.New("discount percent must be between 0 and 100")
	ErrMissingField      = errors.New("required field missing")
	ErrImmutableDocument = errors.New("document can no longer be modified")
	ErrCustomerMismatch  = errors.New("customer does not match target document")
	ErrCreditExceeded    = errors.New("applied credit exceeds credit note amount")
	ErrInvalidTarget     = errors.New("invalid payment target")
)

// ValidationError rejects caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(field string, err error, reason ...string) *ValidationError {
	r := ""
	if len(reason) > 0 {
		r = reason[0]
	} else if err != nil {
		r = err.Error()
	}
	return &ValidationError{Field: field, Reason: r, Err: err}
}

// NotFoundError matches ErrorRecordNotFound with errors.Is.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrorRecordNotFound }

// PersistenceError wraps repository I/O failures.
type PersistenceError struct {
	Op   string
	Kind string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DispatchError is logged and never escalated.
type DispatchError struct {
	To  []string
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %v: %v", e.To, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrorRecordNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// README: Typed application errors shared by modules and mapped to HTTP status codes by handlers.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed or out-of-range input field.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// RoutingError wraps a failure to resolve distance or duration for a trip.
type RoutingError struct {
	Op  string
	Err error
}

func (e RoutingError) Error() string {
	if e.Err == nil {
		return "route lookup failed"
	}
	if e.Op == "" {
		return "route lookup failed: " + e.Err.Error()
	}
	return fmt.Sprintf("route lookup failed (%s): %v", e.Op, e.Err)
}

func (e RoutingError) Unwrap() error { return e.Err }

// CapacityConflictError is returned when every active driver is already
// committed to an overlapping booking.
type CapacityConflictError struct {
	Date          string
	Time          string
	ActiveDrivers int
	Conflicts     int
}

func (e CapacityConflictError) Error() string {
	return fmt.Sprintf("no driver available on %s at %s", e.Date, e.Time)
}

// VoucherError describes why a voucher code cannot be used.
type VoucherError struct {
	Code   string
	Reason string
	Err    error
}

func (e VoucherError) Error() string {
	if e.Code == "" {
		return "voucher: " + e.Reason
	}
	return fmt.Sprintf("voucher %s: %s", e.Code, e.Reason)
}

func (e VoucherError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage failure. Its message is never shown to clients.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("persistence: %v", e.Err)
	}
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

func Validation(field, msg string) error {
	return ValidationError{Field: field, Msg: msg}
}

func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return PersistenceError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsRouting(err error) bool {
	var target RoutingError
	return errors.As(err, &target)
}

func IsCapacityConflict(err error) bool {
	var target CapacityConflictError
	return errors.As(err, &target)
}

func IsVoucher(err error) bool {
	var target VoucherError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target PersistenceError
	return errors.As(err, &target)
}

// internal/models/errors.go
package models

import "errors"

// Engine error kinds. Services return these (usually wrapped) so handlers can
// map them to HTTP responses with errors.Is.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidState   = errors.New("operation not permitted in current status")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrUnauthorized   = errors.New("caller lacks required role or ownership")
	ErrAlreadySettled = errors.New("installment already settled")
	ErrScheduleExists = errors.New("schedule already generated for this loan")
	ErrConflict       = errors.New("loan is busy, try again")
)

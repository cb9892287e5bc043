// Package apperr classifies failures returned by the scheduling and payment
// services so callers can react to the kind of failure instead of its text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindValidation      Kind = "validation_failed"
	KindPersistence     Kind = "persistence_failure"
	KindGatewayDeclined Kind = "gateway_declined"
)

// Error is a recoverable, typed failure. Two errors match under errors.Is when
// they share kind and code, so sentinels survive wrapping with extra context.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Persistence reports a store failure during op.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	// already classified further down
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{
		Kind:    KindPersistence,
		Code:    "persistence_failure",
		Message: op,
		Err:     err,
	}
}

// KindOf extracts the kind of err. Unclassified errors report persistence
// failure since they can only originate from infrastructure.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindPersistence
}

// CodeOf returns the machine readable code of err.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "internal_error"
}

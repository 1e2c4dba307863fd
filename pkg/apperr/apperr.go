// Package apperr defines the error kinds shared by the CRM data layer.
//
// Operations return one of three kinds: NotFoundError for missing users,
// companies, campaigns or jobs; ValidationError for input or row shapes that
// cannot be accepted; RemoteServiceError for any failure of a backing service
// (Postgres, Redis, S3). Handlers map them to HTTP responses in pkg/response.
package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError reports malformed input. No write has happened when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// RemoteServiceError wraps a failure of a backing service.
type RemoteServiceError struct {
	Op  string
	Err error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// NotFound returns a NotFoundError for entity/id.
func NotFound(entity string, id fmt.Stringer) error {
	s := ""
	if id != nil {
		s = id.String()
	}
	return &NotFoundError{Entity: entity, ID: s}
}

// Invalid returns a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Remote wraps err as a RemoteServiceError unless it is nil or already one of the domain kinds.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsValidation(err) || IsRemote(err) {
		return err
	}
	return &RemoteServiceError{Op: op, Err: err}
}

// FromStore converts a raw store error: pgx.ErrNoRows becomes NotFoundError for entity/id,
// everything else is passed through Remote.
func FromStore(op, entity string, id fmt.Stringer, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound(entity, id)
	}
	return Remote(op, err)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRemote reports whether err is (or wraps) a RemoteServiceError.
func IsRemote(err error) bool {
	var re *RemoteServiceError
	return errors.As(err, &re)
}

// Retryable reports whether retrying the operation may succeed.
// Context cancellation is final even when wrapped as a remote failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsRemote(err)
}

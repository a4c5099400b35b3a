// Package apperrors defines the error taxonomy shared by every service in
// the core. Storage drivers and collaborators never surface raw errors to
// callers; every failure is mapped into one of the kinds below.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Kind classifies an application error.
type Kind int

const (
	// KindNotFound covers both true absence and hidden existence: an
	// unauthorized caller receives the same kind as a caller asking for a
	// resource that does not exist.
	KindNotFound Kind = iota
	// KindPermissionDenied means the resource is visible to the caller but
	// the caller's role does not allow the action.
	KindPermissionDenied
	// KindAlreadyExists is the translation of a unique-constraint violation.
	KindAlreadyExists
	// KindDatabase wraps an underlying storage failure.
	KindDatabase
	// KindImmutableResource means an update was attempted on a write-once
	// resource.
	KindImmutableResource
	// KindPlanLimitExceeded means an organization quota was breached.
	KindPlanLimitExceeded
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindAlreadyExists:
		return "already_exists"
	case KindImmutableResource:
		return "immutable_resource"
	case KindPlanLimitExceeded:
		return "plan_limit_exceeded"
	default:
		return "database"
	}
}

// Error is a classified application error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two taxonomy errors by kind, so sentinel comparison via
// errors.Is(err, apperrors.NotFound("")) style checks work through wraps.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// NotFound creates a not-found error.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// NotFoundf creates a not-found error with formatting.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// PermissionDenied creates a permission-denied error.
func PermissionDenied(msg string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: msg}
}

// PermissionDeniedf creates a permission-denied error with formatting.
func PermissionDeniedf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates an already-exists error.
func AlreadyExists(msg string) *Error {
	return &Error{Kind: KindAlreadyExists, Message: msg}
}

// AlreadyExistsf creates an already-exists error with formatting.
func AlreadyExistsf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// Database wraps a storage driver failure, retaining the cause.
func Database(msg string, cause error) *Error {
	return &Error{Kind: KindDatabase, Message: msg, Cause: cause}
}

// Immutable creates an immutable-resource error.
func Immutable(msg string) *Error {
	return &Error{Kind: KindImmutableResource, Message: msg}
}

// PlanLimitExceeded creates a quota-breach error.
func PlanLimitExceeded(msg string) *Error {
	return &Error{Kind: KindPlanLimitExceeded, Message: msg}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsPermissionDenied reports whether err is a permission-denied error.
func IsPermissionDenied(err error) bool { return IsKind(err, KindPermissionDenied) }

// IsAlreadyExists reports whether err is an already-exists error.
func IsAlreadyExists(err error) bool { return IsKind(err, KindAlreadyExists) }

// IsImmutable reports whether err is an immutable-resource error.
func IsImmutable(err error) bool { return IsKind(err, KindImmutableResource) }

// IsPlanLimitExceeded reports whether err is a quota-breach error.
func IsPlanLimitExceeded(err error) bool { return IsKind(err, KindPlanLimitExceeded) }

// uniqueViolation is the PostgreSQL error code for unique-constraint
// violations.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation. Call sites use this to translate driver errors into
// AlreadyExists instead of retrying.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

// FromStorage maps a storage error into the taxonomy. sql.ErrNoRows is the
// caller's concern (it usually means NotFound with a resource-specific
// message); everything else becomes a Database error unless it is a unique
// violation.
func FromStorage(msg string, err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return &Error{Kind: KindAlreadyExists, Message: msg, Cause: err}
	}
	return Database(msg, err)
}

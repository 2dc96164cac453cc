// Package apperr defines the typed error taxonomy shared by all services.
//
// Every failure that crosses a service boundary is an *Error carrying a
// Kind plus a human-readable detail. The HTTP layer maps kinds to status
// codes; services construct errors with the helper constructors and wrap
// collaborator failures with Wrap so the cause stays inspectable via
// errors.Is/errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary handling.
type Kind int

const (
	// KindUnknown is an uncategorized internal failure.
	KindUnknown Kind = iota

	// KindNotFound indicates an entity is absent or out of scope.
	KindNotFound

	// KindValidation indicates malformed input or a schema violation.
	KindValidation

	// KindAuthorization indicates the principal lacks rights over the target.
	KindAuthorization

	// KindAuthentication indicates no valid principal could be resolved.
	KindAuthentication

	// KindExternal indicates an external collaborator failed.
	KindExternal
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindAuthentication:
		return "authentication"
	case KindExternal:
		return "external_service"
	default:
		return "internal"
	}
}

// Error is a classified application error.
type Error struct {
	kind   Kind
	detail string
	err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.detail + ": " + e.err.Error()
	}
	return e.detail
}

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// Detail returns the human-readable detail without the wrapped cause.
func (e *Error) Detail() string { return e.detail }

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.err }

// New creates an error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{kind: kind, detail: detail}
}

// Newf creates an error of the given kind with a formatted detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error without losing the cause.
func Wrap(kind Kind, err error, detail string) *Error {
	return &Error{kind: kind, detail: detail, err: err}
}

// NotFound creates a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

// Validation creates a KindValidation error.
func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

// Authorization creates a KindAuthorization error.
func Authorization(format string, args ...any) *Error {
	return Newf(KindAuthorization, format, args...)
}

// Authentication creates a KindAuthentication error.
func Authentication(format string, args ...any) *Error {
	return Newf(KindAuthentication, format, args...)
}

// External creates a KindExternal error.
func External(format string, args ...any) *Error {
	return Newf(KindExternal, format, args...)
}

// KindOf extracts the Kind from any error in err's chain.
// Returns KindUnknown for nil or unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

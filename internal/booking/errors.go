package booking

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ServiceError for callers that map failures onto a
// transport (HTTP status, exit code). Kinds mirror the booking taxonomy.
type ErrorKind string

const (
	// KindNotFound marks an absent table or reservation.
	KindNotFound ErrorKind = "not_found"
	// KindConflict marks a slot already claimed or an invalid double transition.
	KindConflict ErrorKind = "conflict"
	// KindValidation marks malformed or out-of-policy input.
	KindValidation ErrorKind = "validation"
	// KindQuotaExceeded marks a requester over the rolling booking quota.
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	// KindConfigMissing marks the absence of operating settings; fatal to booking only.
	KindConfigMissing ErrorKind = "config_missing"
	// KindForbidden marks an operation on a reservation the requester does not own.
	KindForbidden ErrorKind = "forbidden"
	// KindInternal marks storage or other infrastructure failures.
	KindInternal ErrorKind = "internal"
)

// ServiceError carries a stable dotted operation code, a taxonomy kind, and
// the underlying cause.
type ServiceError struct {
	kind ErrorKind
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code, e.g. "booking.book.slot_taken".
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the taxonomy classification.
func (e *ServiceError) Kind() ErrorKind {
	return e.kind
}

func newServiceError(kind ErrorKind, operation, reason string, cause error) error {
	return &ServiceError{kind: kind, code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// KindOf extracts the taxonomy kind from an error chain. Unknown errors are
// classified internal.
func KindOf(err error) ErrorKind {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind()
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind() == kind
	}
	return false
}

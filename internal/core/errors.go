package core

import "errors"

var (
	// ErrValidation covers rejected input: an empty justification, a value of
	// the wrong shape, or a duplicate edit request for the same field.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown entry or request identifiers.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when decide or consume is called out
	// of order or twice. A second call must fail cleanly, never silently
	// succeed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrForbidden means the actor never had permission for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrStaleApproval means the actor had an approval for the field but it
	// was consumed or superseded between read and write. Distinct from
	// ErrForbidden so callers can tell "never had it" from "had it, lost it".
	ErrStaleApproval = errors.New("approval already consumed or superseded")
)

package services

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// KindValidation covers bad input on the click path; surfaced as 400.
	KindValidation ErrorKind = "validation"
	// KindVerification covers webhook handshake and signature failures; surfaced as 403.
	KindVerification ErrorKind = "verification"
	// KindCollaborator covers ledger and downstream failures; logged, never surfaced.
	KindCollaborator ErrorKind = "collaborator"
)

type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("services: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("services: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func NewVerificationError(reason string) *Error {
	return newError(KindVerification, reason, nil)
}

// IsKind reports whether err carries a services.Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

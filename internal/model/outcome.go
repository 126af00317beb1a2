package model

import (
	"fmt"

	"github.com/and161185/qrscan/internal/errs"
)

// OutcomeKind tags the variant held by a DecodeOutcome.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomePasswordRequired
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomePasswordRequired:
		return "password_required"
	case OutcomeError:
		return "error"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// DecodeOutcome is the result of one call to the decode endpoint.
// Result is set for OutcomeOK, Err for OutcomeError (and optionally for
// OutcomePasswordRequired, carrying the server's hint such as "invalid password").
type DecodeOutcome struct {
	Kind   OutcomeKind
	Result *DecodeResult
	Err    *DecodeError
}

// OK wraps a successful result.
func OK(r *DecodeResult) DecodeOutcome { return DecodeOutcome{Kind: OutcomeOK, Result: r} }

// PasswordRequired reports that the content is password protected.
func PasswordRequired(msg string) DecodeOutcome {
	o := DecodeOutcome{Kind: OutcomePasswordRequired}
	if msg != "" {
		o.Err = &DecodeError{Kind: ErrorUnauthorized, Status: 401, Message: msg}
	}
	return o
}

// Failed wraps a terminal or recoverable error.
func Failed(e *DecodeError) DecodeOutcome { return DecodeOutcome{Kind: OutcomeError, Err: e} }

// ErrorKind classifies remote decode failures.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorNetwork
	ErrorBadRequest
	ErrorUnauthorized
	ErrorForbidden
	ErrorNotFound
	ErrorExpired
	ErrorDeactivated
	ErrorUnavailable
	ErrorServer
)

var errorKindNames = map[ErrorKind]string{
	ErrorUnknown:      "unknown",
	ErrorNetwork:      "network",
	ErrorBadRequest:   "bad_request",
	ErrorUnauthorized: "unauthorized",
	ErrorForbidden:    "forbidden",
	ErrorNotFound:     "not_found",
	ErrorExpired:      "expired",
	ErrorDeactivated:  "deactivated",
	ErrorUnavailable:  "unavailable",
	ErrorServer:       "server",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DecodeError is a failed decode call. Message is the server text (or transport error) verbatim.
type DecodeError struct {
	Kind    ErrorKind
	Status  int // 0 when no HTTP response was received
	Message string
}

func (e *DecodeError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("decode %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("decode %s (%d): %s", e.Kind, e.Status, e.Message)
}

// Unwrap maps the kind onto the matching sentinel so callers can use errors.Is.
func (e *DecodeError) Unwrap() error {
	switch e.Kind {
	case ErrorNetwork:
		return errs.ErrNetwork
	case ErrorBadRequest:
		return errs.ErrBadRequest
	case ErrorUnauthorized:
		return errs.ErrUnauthorized
	case ErrorForbidden:
		return errs.ErrForbidden
	case ErrorNotFound:
		return errs.ErrNotFound
	case ErrorExpired:
		return errs.ErrExpired
	case ErrorDeactivated:
		return errs.ErrDeactivated
	case ErrorUnavailable:
		return errs.ErrUnavailable
	case ErrorServer:
		return errs.ErrServer
	}
	return nil
}

// Recoverable reports whether scanning may resume after this error.
func (e *DecodeError) Recoverable() bool { return e.Kind == ErrorUnavailable }

package engine

import (
	"errors"
	"fmt"

	"github.com/pavelanni/examgen/internal/model"
)

// Kind classifies engine failures for callers and transports.
type Kind string

const (
	KindInternal           Kind = "internal"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindAlreadyCompleted   Kind = "already_completed"
	KindInvalidSubmission  Kind = "invalid_submission"
	KindInvalidRequest     Kind = "invalid_request"
	KindAttemptExpired     Kind = "attempt_expired"
	KindUpstreamGrading    Kind = "upstream_grading_failure"
	KindUpstreamGeneration Kind = "upstream_generation_failure"
)

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrAlreadyCompleted   = &Error{Kind: KindAlreadyCompleted}
	ErrInvalidSubmission  = &Error{Kind: KindInvalidSubmission}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrAttemptExpired     = &Error{Kind: KindAttemptExpired}
	ErrUpstreamGrading    = &Error{Kind: KindUpstreamGrading}
	ErrUpstreamGeneration = &Error{Kind: KindUpstreamGeneration}
)

// Error is a classified engine failure.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Msg != "" {
		msg = e.Msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// storeErr classifies a storage error: missing rows become KindNotFound,
// anything else is wrapped as an internal failure.
func storeErr(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return newError(KindNotFound, op, "", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

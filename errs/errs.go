// Package errs defines the error kinds shared by the race, training and ledger code.
//
// Every domain failure is an *Error carrying a Kind (what class of failure) and an
// optional Code (which specific condition). errors.Is matches on Kind and, when the
// target has one, on Code, so callers can test either broadly or precisely:
//
//	errors.Is(err, errs.ErrLocked)            // exactly "creature is in treatment"
//	errs.KindOf(err) == errs.KindStateConflict // any lifecycle conflict
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation             Kind = "validation"
	KindNotFound               Kind = "not_found"
	KindAuthorization          Kind = "authorization"
	KindStateConflict          Kind = "state_conflict"
	KindConcurrentModification Kind = "concurrent_modification"
	KindOracle                 Kind = "oracle"
	KindSeedUnavailable        Kind = "seed_unavailable"
	KindInsufficientEntrants   Kind = "insufficient_entrants"
	KindInternal               Kind = "internal"
)

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind and, if target names
// a code, the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels. Compare with errors.Is; wrap with Wrapf to add detail.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrAuthorization          = &Error{Kind: KindAuthorization}
	ErrStateConflict          = &Error{Kind: KindStateConflict}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification, Message: "record was modified concurrently, retry"}
	ErrOracle                 = &Error{Kind: KindOracle}
	ErrSeedUnavailable        = &Error{Kind: KindSeedUnavailable, Code: "SeedUnavailable", Message: "target block not mined yet"}
	ErrInsufficientEntrants   = &Error{Kind: KindInsufficientEntrants, Code: "InsufficientEntrants", Message: "race needs at least 2 entrants"}

	ErrAlreadyResolved       = &Error{Kind: KindStateConflict, Code: "AlreadyResolved", Message: "race already resolved"}
	ErrRaceNotOpen           = &Error{Kind: KindStateConflict, Code: "RaceNotOpen", Message: "race is not accepting entries"}
	ErrRaceStillOpen         = &Error{Kind: KindStateConflict, Code: "RaceStillOpen", Message: "entry deadline has not passed"}
	ErrRaceVoided            = &Error{Kind: KindStateConflict, Code: "RaceVoided", Message: "race was voided"}
	ErrAlreadyEntered        = &Error{Kind: KindStateConflict, Code: "AlreadyEntered", Message: "creature already entered"}
	ErrRaceFull              = &Error{Kind: KindStateConflict, Code: "RaceFull", Message: "race has no free slots"}
	ErrLocked                = &Error{Kind: KindStateConflict, Code: "Locked", Message: "creature is in treatment"}
	ErrAlreadyTrainedToday   = &Error{Kind: KindStateConflict, Code: "AlreadyTrainedToday", Message: "daily training already used"}
	ErrInsufficientCondition = &Error{Kind: KindStateConflict, Code: "InsufficientCondition", Message: "condition too low to train"}
	ErrInvalidActivity       = &Error{Kind: KindValidation, Code: "InvalidActivity", Message: "unknown training activity"}
)

// Wrapf returns a copy of sentinel with a formatted message, keeping its kind and code.
func Wrapf(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithCause returns a copy of sentinel wrapping cause.
func WithCause(sentinel *Error, cause error) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Err:     cause,
	}
}

func Validation(format string, args ...any) *Error {
	return Wrapf(ErrValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return Wrapf(ErrNotFound, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return Wrapf(ErrAuthorization, format, args...)
}

func Oracle(cause error, format string, args ...any) *Error {
	e := Wrapf(ErrOracle, format, args...)
	e.Err = cause
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether the caller may retry the same request later.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConcurrentModification, KindOracle, KindSeedUnavailable:
		return true
	}
	return false
}

package bracket

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")

	// Validation: rejected synchronously, nothing mutated
	ErrByeImmutable          = errors.New("bye matches cannot be changed")
	ErrMatchNotReady         = errors.New("match is waiting for a previous match")
	ErrWinnerNotInMatch      = errors.New("winner is not part of this match")
	ErrResultAlreadyRecorded = errors.New("match already has a different winner; use override")
	ErrNotOverridable        = errors.New("only completed matches can be overridden")
	ErrMatchCompleted        = errors.New("match is already completed")
	ErrEmptyCategory         = errors.New("category has no participants")
	ErrInvalidScore          = errors.New("scores must not be negative")
	ErrInvalidInput          = errors.New("invalid input")
	ErrReplaceNotConfirmed   = errors.New("brackets already exist; regeneration must be confirmed")

	// Conflicts: safe to retry later
	ErrBracketLocked        = errors.New("bracket is locked")
	ErrGenerationInProgress = errors.New("bracket generation is already running for this tournament")
	ErrCategoryBusy         = errors.New("category is being modified")

	ErrStandingsNotFinal = errors.New("standings not final")

	// Data corruption; never user facing
	ErrInvariantViolation = errors.New("bracket invariant violated")
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindNotFinal   ErrorKind = "not_final"
	KindInvariant  ErrorKind = "invariant"
	KindInternal   ErrorKind = "internal"
)

// Error carries enough structure for a caller to decide whether to retry, show the problem to an
// operator or abort.
type Error struct {
	Kind     ErrorKind
	Op       string
	EntityID uuid.UUID
	Err      error
}

func (e *Error) Error() string {
	if e.EntityID == uuid.Nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.EntityID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Retryable() bool {
	return e.Kind == KindConflict
}

// E wraps err with the operation and the entity it concerns. The kind is derived from the sentinel
// err wraps.
func E(op string, id uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Op: op, EntityID: id, Err: err}
}

func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrBracketLocked),
		errors.Is(err, ErrGenerationInProgress),
		errors.Is(err, ErrCategoryBusy):
		return KindConflict
	case errors.Is(err, ErrStandingsNotFinal):
		return KindNotFinal
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariant
	case errors.Is(err, ErrByeImmutable),
		errors.Is(err, ErrMatchNotReady),
		errors.Is(err, ErrWinnerNotInMatch),
		errors.Is(err, ErrResultAlreadyRecorded),
		errors.Is(err, ErrNotOverridable),
		errors.Is(err, ErrMatchCompleted),
		errors.Is(err, ErrEmptyCategory),
		errors.Is(err, ErrInvalidScore),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrReplaceNotConfirmed):
		return KindValidation
	}
	return KindInternal
}

func IsRetryable(err error) bool {
	return KindOf(err) == KindConflict
}

package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrContentUnavailable means the built session would contain no questions.
	ErrContentUnavailable = errors.New("no questions available for this exam")

	ErrActiveSessionExists  = errors.New("an exam session is already active")
	ErrNoActiveSession      = errors.New("no active exam session")
	ErrInvalidState         = errors.New("operation not allowed in the current session state")
	ErrUnknownQuestion      = errors.New("question does not belong to this session")
	ErrUnknownOption        = errors.New("option does not belong to this question")
	ErrAnswerLocked         = errors.New("answer is locked after checking")
	ErrCheckNotAllowed      = errors.New("answers can only be checked in practice mode")
	ErrNothingToCheck       = errors.New("select an answer before checking")
	ErrIndexOutOfRange      = errors.New("question index out of range")
	ErrSubmissionInProgress = errors.New("submission already in progress")
	ErrAlreadySubmitted     = errors.New("session already submitted")
	ErrResultNotFound       = errors.New("result not found")
)

// ContentUnavailableError lists every subject the pre-flight check found empty.
type ContentUnavailableError struct {
	Subjects []string
}

func (e *ContentUnavailableError) Error() string {
	return fmt.Sprintf("no questions available for: %s", strings.Join(e.Subjects, ", "))
}

// Is lets errors.Is(err, ErrContentUnavailable) match the per-subject variant.
func (e *ContentUnavailableError) Is(target error) bool {
	return target == ErrContentUnavailable
}

// TierFailure records one storage tier that rejected a write or delete.
type TierFailure struct {
	Tier string
	Err  error
}

// PersistenceWarning is returned by SessionStore.Save when at least one tier failed.
// The session stays usable in memory.
type PersistenceWarning struct {
	Failures []TierFailure
}

func (w *PersistenceWarning) Error() string {
	parts := make([]string, 0, len(w.Failures))
	for _, f := range w.Failures {
		parts = append(parts, f.Tier+": "+f.Err.Error())
	}
	return "session persistence degraded (" + strings.Join(parts, "; ") + ")"
}

// AllFailed reports whether no tier holds the snapshot.
func (w *PersistenceWarning) AllFailed(tiers int) bool {
	return len(w.Failures) >= tiers
}

// SubmissionError is a failed grade-and-save round trip. The session stays in
// Submitting with its answers intact, so Submit can be retried.
type SubmissionError struct {
	SessionID string
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit session %s: %v", e.SessionID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Retryable is always true; a submission never fails permanently.
func (e *SubmissionError) Retryable() bool {
	return true
}

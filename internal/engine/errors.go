// Package engine holds the pure logic of the exam session engine: the
// error taxonomy, session token generation, deterministic question
// sequencing, and grading. Nothing here touches storage.
package engine

import "errors"

var (
	// ErrAlreadyAttempted — a live session already exists for (exam, student).
	ErrAlreadyAttempted = errors.New("exam already attempted")

	// ErrOutsideExamWindow — now is before exam start or at/after exam end.
	ErrOutsideExamWindow = errors.New("outside exam window")

	// ErrInvalidToken — the token does not resolve to a live session.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrTimeExpired — the session's scheduled end time has passed. Late
	// writes are rejected, never silently accepted.
	ErrTimeExpired = errors.New("session time expired")

	// ErrAlreadyTerminal — the session reached a terminal status earlier.
	// Submit treats this as success; other operations surface it.
	ErrAlreadyTerminal = errors.New("session already terminal")

	// ErrStorageUnavailable — transient storage failure, retryable.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvariantViolation — a state the engine must never reach. Fail
	// loudly; do not repair silently.
	ErrInvariantViolation = errors.New("session invariant violated")
)

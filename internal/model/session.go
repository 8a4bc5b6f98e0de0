package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress    SessionStatus = "IN_PROGRESS"
	SessionStatusInterrupted   SessionStatus = "INTERRUPTED"
	SessionStatusSubmitted     SessionStatus = "SUBMITTED"
	SessionStatusAutoSubmitted SessionStatus = "AUTO_SUBMITTED"
)

// Terminal reports whether the status is final. A terminal session is the
// immutable audit record of the attempt and is never transitioned again.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSubmitted || s == SessionStatusAutoSubmitted
}

// ExamSession represents a student's single attempt at one exam.
// Exactly one non-superseded row exists per (exam_id, student_id).
type ExamSession struct {
	ID        int64     `json:"-"`
	UUID      uuid.UUID `json:"id"`
	ExamID    uuid.UUID `json:"exam_id"`
	StudentID int       `json:"student_id"`

	// Token is the opaque bearer credential the client uses for every
	// subsequent operation. Random, never derived from the numeric ID.
	Token string `json:"token,omitempty"`

	StartedAt      time.Time  `json:"started_at"`
	ScheduledEndAt time.Time  `json:"scheduled_end_at"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at"`

	QuestionSequence     []uuid.UUID `json:"question_sequence"`
	CurrentQuestionIndex int         `json:"current_question_index"`
	QuestionsAnswered    int         `json:"questions_answered"`
	QuestionsFlagged     []uuid.UUID `json:"questions_flagged,omitempty"`

	// FrozenQuestions captures the question definitions (correct keys,
	// points) as they were at session start. Grading reads these, never
	// the question bank, so later edits cannot affect a running attempt.
	FrozenQuestions []Question `json:"-"`

	Status SessionStatus `json:"status"`

	// RecoveryData is the last full client state pushed by the client,
	// distinct from snapshots. Opaque to the engine.
	RecoveryData json.RawMessage `json:"recovery_data,omitempty"`

	TotalScore  *float64 `json:"total_score,omitempty"`
	Percentage  *float64 `json:"percentage,omitempty"`
	Passed      *bool    `json:"passed,omitempty"`
	FullyGraded bool     `json:"fully_graded"`

	HasViolations    bool        `json:"has_violations"`
	ViolationCount   int         `json:"violation_count"`
	Violations       []Violation `json:"violations,omitempty"`
	FlaggedForReview bool        `json:"flagged_for_review"`

	// Device/network metadata captured once at creation, for audit.
	ClientIP          string `json:"client_ip,omitempty"`
	UserAgent         string `json:"user_agent,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
}

// Writable is the single predicate gating every client write: the session
// must be live and the deadline must not have passed.
func (s *ExamSession) Writable(now time.Time) bool {
	return s.Status == SessionStatusInProgress && now.Before(s.ScheduledEndAt)
}

// Resumable reports whether an interrupted session may re-enter
// IN_PROGRESS (reconnect before the time window lapses).
func (s *ExamSession) Resumable(now time.Time) bool {
	return s.Status == SessionStatusInterrupted && now.Before(s.ScheduledEndAt)
}

// Expired reports whether a non-terminal session has outlived its deadline
// and must be forced to AUTO_SUBMITTED by the sweep.
func (s *ExamSession) Expired(now time.Time) bool {
	return !s.Status.Terminal() && !now.Before(s.ScheduledEndAt)
}

// SessionRef identifies a session in audit events without carrying the
// full row.
type SessionRef struct {
	UUID      uuid.UUID
	ExamID    uuid.UUID
	StudentID int
}

// RecordAnswerRequest is the payload for pushing one answer version.
type RecordAnswerRequest struct {
	QuestionID       uuid.UUID `json:"question_id" binding:"required"`
	FreeText         *string   `json:"free_text" binding:"omitempty,max=20000"`
	SelectedOptions  []string  `json:"selected_options" binding:"omitempty,dive,max=64"`
	IsFlagged        bool      `json:"is_flagged"`
	TimeSpentSeconds int       `json:"time_spent_seconds" binding:"min=0"`
	QuestionIndex    *int      `json:"question_index" binding:"omitempty,min=0"`
}

// SnapshotRequest is the payload for a client-initiated snapshot.
type SnapshotRequest struct {
	Type    SnapshotType    `json:"type" binding:"required,oneof=PERIODIC MANUAL RECOVERY MILESTONE"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// ReportViolationRequest is the payload for reporting an integrity event.
type ReportViolationRequest struct {
	Type        ViolationType `json:"type" binding:"required,violation_type"`
	Description string        `json:"description" binding:"omitempty,max=1000"`
}

// StartSessionRequest carries the device metadata captured at creation.
type StartSessionRequest struct {
	DeviceFingerprint string `json:"device_fingerprint" binding:"omitempty,max=128"`
}

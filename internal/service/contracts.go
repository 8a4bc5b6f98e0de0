package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/repository"
)

// Storage contracts consumed by SessionService. The pgx-backed
// repositories satisfy them; tests substitute in-memory fakes.

// SessionStore is the durable record of exam attempts.
type SessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	GetByToken(ctx context.Context, token string) (*model.ExamSession, error)
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
	TouchActivity(ctx context.Context, sessionID int64, at time.Time, questionIndex *int) error
	SaveRecoveryData(ctx context.Context, sessionID int64, blob json.RawMessage, at time.Time) error
	Resume(ctx context.Context, sessionID int64, at time.Time) (bool, error)
	MarkInterrupted(ctx context.Context, now, idleBefore time.Time) ([]model.SessionRef, error)
	Finalize(ctx context.Context, sessionID int64, status model.SessionStatus, at time.Time) (bool, error)
	SaveScore(ctx context.Context, sessionID int64, total, percentage float64, passed *bool, fullyGraded bool) error
	AppendViolation(ctx context.Context, sessionID int64, v model.Violation, maxCount int) (count int, crossed bool, err error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.ExamSession, error)
	ListUnscored(ctx context.Context, limit int) ([]model.ExamSession, error)
}

// AnswerLedger is the append-only versioned answer store.
type AnswerLedger interface {
	Append(ctx context.Context, session *model.ExamSession, questionID uuid.UUID, content model.AnswerContent, questionIndex *int, at time.Time) (*repository.AppendResult, error)
	FinalVersion(ctx context.Context, sessionID int64, questionID uuid.UUID) (*model.Answer, error)
	AllFinal(ctx context.Context, sessionID int64) ([]model.Answer, error)
	History(ctx context.Context, sessionID int64, questionID uuid.UUID) ([]model.Answer, error)
	ApplyGrades(ctx context.Context, sessionID int64, grades map[uuid.UUID]repository.Grade) error
}

// SnapshotStore holds immutable session state captures.
type SnapshotStore interface {
	Capture(ctx context.Context, s *model.Snapshot) error
	Latest(ctx context.Context, sessionID int64) (*model.Snapshot, error)
	LatestOfType(ctx context.Context, sessionID int64, snapType model.SnapshotType) (*model.Snapshot, error)
}

// ExamSource and QuestionSource are the question-bank collaborator seam.
type ExamSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

type QuestionSource interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// SnapshotQueue decouples snapshot persistence from the request path.
// Enqueue must be cheap; a failed enqueue degrades to a synchronous write.
type SnapshotQueue interface {
	Enqueue(ctx context.Context, s *model.Snapshot) error
}

// AuditPublisher receives session lifecycle events, fire-and-forget.
type AuditPublisher interface {
	Publish(ctx context.Context, event AuditEvent)
}

// AuditEvent is one session lifecycle event for the audit collaborator.
type AuditEvent struct {
	Type        string    `json:"type"`
	SessionUUID uuid.UUID `json:"session_id"`
	ExamID      uuid.UUID `json:"exam_id"`
	StudentID   int       `json:"student_id"`
	At          time.Time `json:"at"`
	Detail      string    `json:"detail,omitempty"`
}

// Audit event types.
const (
	AuditSessionStarted       = "session_started"
	AuditSessionResumed       = "session_resumed"
	AuditSessionSubmitted     = "session_submitted"
	AuditSessionAutoSubmitted = "session_auto_submitted"
	AuditSessionInterrupted   = "session_interrupted"
	AuditFlaggedForReview     = "session_flagged_for_review"
)

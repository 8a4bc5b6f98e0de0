package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/examina/examina-backend/internal/clock"
	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/engine"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/repository"
)

// SessionService is the exam session lifecycle controller: it starts
// sessions, applies answer and snapshot pushes, records violations,
// finalizes attempts and computes scores. All per-session writes are
// serialized by the storage layer; this service owns the state machine.
type SessionService struct {
	sessions  SessionStore
	answers   AnswerLedger
	snapshots SnapshotStore
	exams     ExamSource
	questions QuestionSource
	queue     SnapshotQueue
	audit     AuditPublisher
	clk       clock.Clock
	cfg       *config.Config
	log       zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions SessionStore,
	answers AnswerLedger,
	snapshots SnapshotStore,
	exams ExamSource,
	questions QuestionSource,
	queue SnapshotQueue,
	audit AuditPublisher,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		answers:   answers,
		snapshots: snapshots,
		exams:     exams,
		questions: questions,
		queue:     queue,
		audit:     audit,
		clk:       clk,
		cfg:       cfg,
		log:       log.With().Str("component", "session_service").Logger(),
	}
}

// SessionMeta is the device/network metadata captured once at creation.
type SessionMeta struct {
	ClientIP          string
	UserAgent         string
	DeviceFingerprint string
}

// Start creates the session for a student's attempt at an exam. A live
// session for the pair fails with ErrAlreadyAttempted, except that an
// interrupted session inside the time window is resumed instead of
// re-created. The question order is shuffled with a seed derived from the
// fresh session token, so a reconnecting client rebuilds the same order.
func (s *SessionService) Start(ctx context.Context, examID uuid.UUID, studentID int, meta SessionMeta) (*model.ExamSession, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, engine.ErrOutsideExamWindow
		}
		return nil, fmt.Errorf("get exam: %w", storageErr(err))
	}

	now := s.clk.Now()
	if exam.Status != model.ExamStatusPublished || !exam.WindowOpen(now) {
		return nil, engine.ErrOutsideExamWindow
	}

	existing, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", storageErr(err))
	}
	if existing != nil {
		return s.restartExisting(ctx, existing, now)
	}

	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", storageErr(err))
	}

	token, err := engine.NewSessionToken()
	if err != nil {
		return nil, err
	}

	sequence := engine.BuildSequence(questions, exam.RandomizeQuestions, engine.SeedFromToken(token))
	if len(sequence) != len(questions) {
		return nil, fmt.Errorf("sequence length %d for %d questions: %w",
			len(sequence), len(questions), engine.ErrInvariantViolation)
	}

	scheduledEnd := now.Add(exam.Duration())
	if scheduledEnd.After(exam.EndTime) {
		scheduledEnd = exam.EndTime
	}

	session := &model.ExamSession{
		UUID:              uuid.New(),
		ExamID:            examID,
		StudentID:         studentID,
		Token:             token,
		StartedAt:         now,
		ScheduledEndAt:    scheduledEnd,
		LastActivityAt:    now,
		QuestionSequence:  sequence,
		FrozenQuestions:   questions,
		Status:            model.SessionStatusInProgress,
		ClientIP:          meta.ClientIP,
		UserAgent:         meta.UserAgent,
		DeviceFingerprint: meta.DeviceFingerprint,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start for the same pair; converge on the winner.
			winner, fetchErr := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start, fetch failed: %w", storageErr(fetchErr))
			}
			return s.restartExisting(ctx, winner, now)
		}
		return nil, fmt.Errorf("create session: %w", storageErr(err))
	}

	s.audit.Publish(ctx, AuditEvent{
		Type: AuditSessionStarted, SessionUUID: session.UUID,
		ExamID: examID, StudentID: studentID, At: now,
	})

	return session, nil
}

// restartExisting applies the one restart policy: an interrupted session
// inside the window re-enters IN_PROGRESS; everything else is
// AlreadyAttempted.
func (s *SessionService) restartExisting(ctx context.Context, existing *model.ExamSession, now time.Time) (*model.ExamSession, error) {
	if !existing.Resumable(now) {
		return nil, engine.ErrAlreadyAttempted
	}
	if _, err := s.sessions.Resume(ctx, existing.ID, now); err != nil {
		return nil, fmt.Errorf("resume session: %w", storageErr(err))
	}
	existing.Status = model.SessionStatusInProgress
	existing.LastActivityAt = now

	s.audit.Publish(ctx, AuditEvent{
		Type: AuditSessionResumed, SessionUUID: existing.UUID,
		ExamID: existing.ExamID, StudentID: existing.StudentID, At: now,
	})
	return existing, nil
}

// resolveWritable maps a token to a session that may accept writes now.
// Interrupted sessions inside the window are transparently resumed — a
// reconnecting client's first answer push is its resume.
func (s *SessionService) resolveWritable(ctx context.Context, token string, now time.Time) (*model.ExamSession, error) {
	session, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if session.Status.Terminal() {
		return nil, engine.ErrInvalidToken
	}

	if session.Resumable(now) {
		if _, err := s.sessions.Resume(ctx, session.ID, now); err != nil {
			return nil, fmt.Errorf("resume session: %w", storageErr(err))
		}
		session.Status = model.SessionStatusInProgress
	}

	if !session.Writable(now) {
		// Past the deadline: reject the write and push the session toward
		// its terminal state instead of leaving it dangling.
		s.forceAutoSubmit(ctx, session)
		return nil, engine.ErrTimeExpired
	}

	return session, nil
}

func (s *SessionService) resolve(ctx context.Context, token string) (*model.ExamSession, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, engine.ErrInvalidToken
		}
		return nil, fmt.Errorf("resolve token: %w", storageErr(err))
	}
	return session, nil
}

// RecordAnswer appends a new answer version for one question. This is the
// highest-frequency operation: every client auto-save lands here. The
// ledger write is atomic; retried deliveries append harmless new versions.
func (s *SessionService) RecordAnswer(ctx context.Context, token string, req model.RecordAnswerRequest) (*model.Answer, error) {
	now := s.clk.Now()
	session, err := s.resolveWritable(ctx, token, now)
	if err != nil {
		return nil, err
	}

	content := model.AnswerContent{
		FreeText:         req.FreeText,
		SelectedOptions:  req.SelectedOptions,
		IsFlagged:        req.IsFlagged,
		TimeSpentSeconds: req.TimeSpentSeconds,
	}

	result, err := s.answers.Append(ctx, session, req.QuestionID, content, req.QuestionIndex, now)
	if err != nil {
		if errors.Is(err, model.ErrAmbiguousContent) {
			return nil, err
		}
		if errors.Is(err, repository.ErrLedgerCorrupt) {
			s.log.Error().Err(err).
				Str("session", session.UUID.String()).
				Str("question", req.QuestionID.String()).
				Msg("Ledger invariant violated")
			return nil, engine.ErrInvariantViolation
		}
		return nil, fmt.Errorf("append answer: %w", storageErr(err))
	}

	return result.Answer, nil
}

// Snapshot records an immutable state capture. Persistence goes through
// the queue so a slow snapshot can never hold up answer recording; if the
// queue is down the write degrades to synchronous.
func (s *SessionService) Snapshot(ctx context.Context, token string, snapType model.SnapshotType, payload json.RawMessage) (uuid.UUID, error) {
	now := s.clk.Now()
	session, err := s.resolveWritable(ctx, token, now)
	if err != nil {
		return uuid.Nil, err
	}

	snapshot := &model.Snapshot{
		UUID:         uuid.New(),
		SessionID:    session.ID,
		SnapshotType: snapType,
		Data:         payload,
		CreatedAt:    now,
	}

	if err := s.queue.Enqueue(ctx, snapshot); err != nil {
		s.log.Warn().Err(err).Msg("Snapshot enqueue failed, writing synchronously")
		if err := s.snapshots.Capture(ctx, snapshot); err != nil {
			return uuid.Nil, fmt.Errorf("capture snapshot: %w", storageErr(err))
		}
	}

	// A recovery snapshot doubles as the session's recovery blob — the
	// last-known full client state, readable without the snapshot table.
	if snapType == model.SnapshotTypeRecovery {
		if err := s.sessions.SaveRecoveryData(ctx, session.ID, payload, now); err != nil {
			s.log.Warn().Err(err).Msg("Recovery data save failed")
		}
	} else if err := s.sessions.TouchActivity(ctx, session.ID, now, nil); err != nil {
		s.log.Warn().Err(err).Msg("Activity touch failed")
	}

	return snapshot.UUID, nil
}

// RecordViolation appends one integrity event and returns the updated
// count. Reports are accepted within a grace window past the deadline so
// late arrivals from a closing client are not lost; crossing the
// configured maximum flags the session for manual review, it never forces
// submission.
func (s *SessionService) RecordViolation(ctx context.Context, token string, vType model.ViolationType, description string) (int, error) {
	now := s.clk.Now()
	session, err := s.resolve(ctx, token)
	if err != nil {
		return 0, err
	}

	if now.After(session.ScheduledEndAt.Add(s.cfg.ViolationGrace)) {
		return 0, engine.ErrTimeExpired
	}

	maxCount := s.cfg.MaxViolationCount
	if exam, examErr := s.exams.GetByID(ctx, session.ExamID); examErr == nil && exam.MaxViolationCount > 0 {
		maxCount = exam.MaxViolationCount
	}

	count, crossed, err := s.sessions.AppendViolation(ctx, session.ID, model.Violation{
		Type:        vType,
		Description: description,
		OccurredAt:  now,
	}, maxCount)
	if err != nil {
		return 0, fmt.Errorf("append violation: %w", storageErr(err))
	}

	if crossed {
		s.log.Warn().
			Str("session", session.UUID.String()).
			Int("count", count).
			Msg("Violation threshold crossed, flagged for review")
		s.audit.Publish(ctx, AuditEvent{
			Type: AuditFlaggedForReview, SessionUUID: session.UUID,
			ExamID: session.ExamID, StudentID: session.StudentID, At: now,
			Detail: fmt.Sprintf("violation_count=%d max=%d", count, maxCount),
		})
	}

	return count, nil
}

// Submit finalizes the attempt and computes the score. Idempotent: a
// session that is already terminal returns its stored result as success.
func (s *SessionService) Submit(ctx context.Context, token string, auto bool) (*model.ExamSession, error) {
	session, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, session, auto)
}

// finalize is shared by Submit and the expiry sweep.
func (s *SessionService) finalize(ctx context.Context, session *model.ExamSession, auto bool) (*model.ExamSession, error) {
	if session.Status.Terminal() {
		// A storage failure between the status flip and the score write
		// leaves a terminal row with no score. The retried Submit lands
		// here; repair instead of short-circuiting with an empty result.
		if session.TotalScore == nil {
			if err := s.grade(ctx, session); err != nil {
				return nil, err
			}
		}
		return session, nil
	}

	now := s.clk.Now()
	status := model.SessionStatusSubmitted
	eventType := AuditSessionSubmitted
	if auto {
		status = model.SessionStatusAutoSubmitted
		eventType = AuditSessionAutoSubmitted
	}

	won, err := s.sessions.Finalize(ctx, session.ID, status, now)
	if err != nil {
		return nil, fmt.Errorf("finalize session: %w", storageErr(err))
	}
	if !won {
		// Lost the race against a concurrent Submit/sweep. Converge on
		// the terminal row that won.
		settled, err := s.sessions.GetByToken(ctx, session.Token)
		if err != nil {
			return nil, fmt.Errorf("refetch finalized session: %w", storageErr(err))
		}
		if !settled.Status.Terminal() {
			return nil, fmt.Errorf("finalize lost but session %s not terminal: %w",
				session.UUID, engine.ErrInvariantViolation)
		}
		if settled.TotalScore == nil {
			// The winner may have failed before its score write landed.
			if err := s.grade(ctx, settled); err != nil {
				return nil, err
			}
		}
		return settled, nil
	}

	session.Status = status
	session.SubmittedAt = &now

	if err := s.grade(ctx, session); err != nil {
		// The status flip is already durable; the caller retries Submit
		// and the terminal-but-unscored branch above finishes the job.
		return nil, err
	}

	s.audit.Publish(ctx, AuditEvent{
		Type: eventType, SessionUUID: session.UUID,
		ExamID: session.ExamID, StudentID: session.StudentID, At: now,
		Detail: fmt.Sprintf("score=%.2f pct=%.2f fully_graded=%t",
			*session.TotalScore, *session.Percentage, session.FullyGraded),
	})

	return session, nil
}

// grade computes and persists the score for a finalized session. Safe to
// re-run: ApplyGrades and SaveScore overwrite with the same values, so a
// session whose earlier score write failed can always be graded again.
func (s *SessionService) grade(ctx context.Context, session *model.ExamSession) error {
	exam, err := s.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return fmt.Errorf("get exam for grading: %w", storageErr(err))
	}

	finalAnswers, err := s.answers.AllFinal(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("load final answers: %w", storageErr(err))
	}
	finals := make(map[uuid.UUID]*model.Answer, len(finalAnswers))
	for i := range finalAnswers {
		finals[finalAnswers[i].QuestionID] = &finalAnswers[i]
	}

	// Grading runs against the definitions frozen at session start; the
	// question bank is never re-queried here.
	score := engine.ScoreSession(exam, session.FrozenQuestions, finals)

	grades := make(map[uuid.UUID]repository.Grade, len(score.PerQuestion))
	for qid, outcome := range score.PerQuestion {
		if outcome.ManualRequired || finals[qid] == nil {
			continue
		}
		grades[qid] = repository.Grade{
			IsCorrect:     *outcome.IsCorrect,
			PointsAwarded: *outcome.PointsAwarded,
		}
	}
	if err := s.answers.ApplyGrades(ctx, session.ID, grades); err != nil {
		return fmt.Errorf("apply grades: %w", storageErr(err))
	}
	if err := s.sessions.SaveScore(ctx, session.ID, score.TotalScore, score.Percentage, score.Passed, score.FullyGraded); err != nil {
		return fmt.Errorf("save score: %w", storageErr(err))
	}

	session.TotalScore = &score.TotalScore
	session.Percentage = &score.Percentage
	session.Passed = score.Passed
	session.FullyGraded = score.FullyGraded
	return nil
}

// forceAutoSubmit finalizes an expired session as a side effect of a
// rejected late write. Errors are logged; the sweep will retry.
func (s *SessionService) forceAutoSubmit(ctx context.Context, session *model.ExamSession) {
	if _, err := s.finalize(ctx, session, true); err != nil {
		s.log.Error().Err(err).
			Str("session", session.UUID.String()).
			Msg("Auto-submit after late write failed")
	}
}

// PaperQuestion is the client view of one question: session order applied,
// options permuted per session, correct keys stripped.
type PaperQuestion struct {
	ID           uuid.UUID          `json:"id"`
	QuestionText string             `json:"question_text"`
	QuestionType model.QuestionType `json:"question_type"`
	Options      json.RawMessage    `json:"options,omitempty"`
	Points       float64            `json:"points"`
}

// Paper returns the session's personalized question paper, built entirely
// from the frozen definitions. Question order and per-question option
// order derive from the token seed, so every call reproduces the same
// paper.
func (s *SessionService) Paper(ctx context.Context, token string) ([]PaperQuestion, error) {
	session, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	exam, err := s.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam for paper: %w", storageErr(err))
	}

	byID := make(map[uuid.UUID]*model.Question, len(session.FrozenQuestions))
	for i := range session.FrozenQuestions {
		byID[session.FrozenQuestions[i].ID] = &session.FrozenQuestions[i]
	}

	seed := engine.SeedFromToken(session.Token)
	paper := make([]PaperQuestion, 0, len(session.QuestionSequence))
	for _, qid := range session.QuestionSequence {
		q := byID[qid]
		if q == nil {
			return nil, fmt.Errorf("sequence question %s missing from frozen set: %w",
				qid, engine.ErrInvariantViolation)
		}

		options := q.Options
		if exam.RandomizeOptions && len(options) > 0 {
			if options, err = permuteOptions(options, seed, qid); err != nil {
				return nil, fmt.Errorf("permute options for %s: %w", qid, err)
			}
		}

		paper = append(paper, PaperQuestion{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Options:      options,
			Points:       q.Points,
		})
	}

	return paper, nil
}

// permuteOptions reorders a JSON option array with the session's stable
// per-question permutation.
func permuteOptions(raw json.RawMessage, seed int64, questionID uuid.UUID) (json.RawMessage, error) {
	var options []json.RawMessage
	if err := json.Unmarshal(raw, &options); err != nil {
		return nil, err
	}

	perm := engine.OptionOrder(seed, questionID, len(options))
	shuffled := make([]json.RawMessage, len(options))
	for i, from := range perm {
		shuffled[i] = options[from]
	}

	return json.Marshal(shuffled)
}

// RecoveryState is everything a reconnecting client needs to resume.
type RecoveryState struct {
	Session        *model.ExamSession `json:"session"`
	LatestSnapshot *model.Snapshot    `json:"latest_snapshot,omitempty"`

	// LatestRecoveryPoint is the newest RECOVERY snapshot when the overall
	// latest is of another type, so a client restoring from a full recovery
	// capture does not have to walk the snapshot history.
	LatestRecoveryPoint *model.Snapshot `json:"latest_recovery_point,omitempty"`

	FinalAnswers     []model.Answer `json:"final_answers"`
	RemainingSeconds float64        `json:"remaining_seconds"`
}

// Recover returns the most recent snapshot plus the current final-answer
// set. Read-only: it never mutates session state.
func (s *SessionService) Recover(ctx context.Context, token string) (*RecoveryState, error) {
	session, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.snapshots.Latest(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", storageErr(err))
	}

	var recoveryPoint *model.Snapshot
	if snapshot != nil && snapshot.SnapshotType != model.SnapshotTypeRecovery {
		recoveryPoint, err = s.snapshots.LatestOfType(ctx, session.ID, model.SnapshotTypeRecovery)
		if err != nil {
			return nil, fmt.Errorf("load latest recovery snapshot: %w", storageErr(err))
		}
	}

	finals, err := s.answers.AllFinal(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load final answers: %w", storageErr(err))
	}
	if finals == nil {
		finals = []model.Answer{}
	}

	remaining := session.ScheduledEndAt.Sub(s.clk.Now()).Seconds()
	if remaining < 0 {
		remaining = 0
	}

	return &RecoveryState{
		Session:             session,
		LatestSnapshot:      snapshot,
		LatestRecoveryPoint: recoveryPoint,
		FinalAnswers:        finals,
		RemainingSeconds:    remaining,
	}, nil
}

// History exposes the full version trail for one question, for audit.
func (s *SessionService) History(ctx context.Context, token string, questionID uuid.UUID) ([]model.Answer, error) {
	session, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	history, err := s.answers.History(ctx, session.ID, questionID)
	if err != nil {
		return nil, fmt.Errorf("load answer history: %w", storageErr(err))
	}
	return history, nil
}

// SweepExpired forces every live session past its deadline to
// AUTO_SUBMITTED and drifts idle sessions to INTERRUPTED. Individual
// failures are logged and skipped; the sweep never halts on one bad row.
// Safe to run concurrently with in-flight client requests — finalization
// is a compare-and-swap both here and there.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	now := s.clk.Now()

	if s.cfg.IdleThreshold > 0 {
		interrupted, err := s.sessions.MarkInterrupted(ctx, now, now.Add(-s.cfg.IdleThreshold))
		if err != nil {
			s.log.Warn().Err(err).Msg("Idle interruption pass failed")
		} else if len(interrupted) > 0 {
			s.log.Info().Int("count", len(interrupted)).Msg("Idle sessions marked interrupted")
			for _, ref := range interrupted {
				s.audit.Publish(ctx, AuditEvent{
					Type: AuditSessionInterrupted, SessionUUID: ref.UUID,
					ExamID: ref.ExamID, StudentID: ref.StudentID, At: now,
				})
			}
		}
	}

	expired, err := s.sessions.ListExpired(ctx, now, 200)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", storageErr(err))
	}

	submitted := 0
	for i := range expired {
		if _, err := s.finalize(ctx, &expired[i], true); err != nil {
			s.log.Error().Err(err).
				Str("session", expired[i].UUID.String()).
				Msg("Sweep auto-submit failed, will retry next pass")
			continue
		}
		submitted++
	}

	// Terminal sessions with no score are the residue of a grading
	// failure after the status flip. ListExpired no longer sees them, so
	// re-grade them here; without this pass a sweep-submitted session
	// whose score write failed would stay unscored forever.
	unscored, err := s.sessions.ListUnscored(ctx, 200)
	if err != nil {
		s.log.Warn().Err(err).Msg("Unscored session scan failed")
	} else {
		for i := range unscored {
			if err := s.grade(ctx, &unscored[i]); err != nil {
				s.log.Error().Err(err).
					Str("session", unscored[i].UUID.String()).
					Msg("Sweep re-grade failed, will retry next pass")
			}
		}
	}

	return submitted, nil
}

// storageErr tags unexpected storage failures as retryable for callers.
func storageErr(err error) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %v", engine.ErrStorageUnavailable, err)
}

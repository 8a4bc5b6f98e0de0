package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/model"
)

// SessionRepository handles exam session data access. It combines
// PostgreSQL (source of truth) with a Redis token→session-id cache so the
// hot per-answer token resolution rarely needs the token index.
type SessionRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool, rdb *redis.Client) *SessionRepository {
	return &SessionRepository{pool: pool, rdb: rdb}
}

const sessionColumns = `id, uuid, exam_id, student_id, token, started_at, scheduled_end_at,
	submitted_at, last_activity_at, question_sequence, frozen_questions,
	current_question_index, questions_answered, questions_flagged, status,
	recovery_data, total_score, percentage, passed, fully_graded,
	has_violations, violation_count, violations, flagged_for_review,
	client_ip, user_agent, device_fingerprint`

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var sequence, frozen, flagged, violations []byte
	err := row.Scan(
		&s.ID, &s.UUID, &s.ExamID, &s.StudentID, &s.Token, &s.StartedAt, &s.ScheduledEndAt,
		&s.SubmittedAt, &s.LastActivityAt, &sequence, &frozen,
		&s.CurrentQuestionIndex, &s.QuestionsAnswered, &flagged, &s.Status,
		&s.RecoveryData, &s.TotalScore, &s.Percentage, &s.Passed, &s.FullyGraded,
		&s.HasViolations, &s.ViolationCount, &violations, &s.FlaggedForReview,
		&s.ClientIP, &s.UserAgent, &s.DeviceFingerprint,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sequence, &s.QuestionSequence); err != nil {
		return nil, fmt.Errorf("decode question_sequence: %w", err)
	}
	if len(frozen) > 0 {
		if err := json.Unmarshal(frozen, &s.FrozenQuestions); err != nil {
			return nil, fmt.Errorf("decode frozen_questions: %w", err)
		}
	}
	if len(flagged) > 0 {
		if err := json.Unmarshal(flagged, &s.QuestionsFlagged); err != nil {
			return nil, fmt.Errorf("decode questions_flagged: %w", err)
		}
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &s.Violations); err != nil {
			return nil, fmt.Errorf("decode violations: %w", err)
		}
	}
	return s, nil
}

// Create inserts a new session row. The (exam_id, student_id) unique
// constraint makes creation idempotent: a concurrent duplicate insert
// returns pgx.ErrNoRows via ON CONFLICT DO NOTHING, and the caller falls
// back to fetching the existing row.
func (r *SessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	sequence, err := json.Marshal(s.QuestionSequence)
	if err != nil {
		return fmt.Errorf("encode question_sequence: %w", err)
	}
	frozen, err := json.Marshal(s.FrozenQuestions)
	if err != nil {
		return fmt.Errorf("encode frozen_questions: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions
			(uuid, exam_id, student_id, token, started_at, scheduled_end_at,
			 last_activity_at, question_sequence, frozen_questions, status,
			 client_ip, user_agent, device_fingerprint)
		 VALUES ($1, $2, $3, $4, $5, $6, $5, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id`,
		s.UUID, s.ExamID, s.StudentID, s.Token, s.StartedAt, s.ScheduledEndAt,
		sequence, frozen, s.Status, s.ClientIP, s.UserAgent, s.DeviceFingerprint,
	).Scan(&s.ID)
	if err != nil {
		return err
	}

	// Best-effort cache warm; GetByToken self-heals on a miss.
	r.cacheToken(ctx, s.Token, s.ID)
	return nil
}

// GetByToken resolves the opaque bearer token to its session. Cache miss
// (eviction, other node) falls back to the token index in PostgreSQL and
// repopulates the cache so the next call is fast.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*model.ExamSession, error) {
	if r.rdb != nil {
		if val, err := r.rdb.Get(ctx, config.CacheKey.SessionTokenKey(token)).Result(); err == nil {
			if id, perr := strconv.ParseInt(val, 10, 64); perr == nil {
				s, derr := scanSession(r.pool.QueryRow(ctx,
					`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
				if derr == nil && s.Token == token {
					return s, nil
				}
			}
		}
	}

	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE token = $1`, token))
	if err != nil {
		return nil, err
	}

	// Self-heal.
	r.cacheToken(ctx, token, s.ID)
	return s, nil
}

func (r *SessionRepository) cacheToken(ctx context.Context, token string, id int64) {
	if r.rdb == nil {
		return
	}
	_ = r.rdb.Set(ctx, config.CacheKey.SessionTokenKey(token),
		strconv.FormatInt(id, 10), 24*time.Hour).Err()
}

// GetByExamAndStudent retrieves the session for an exam-student pair.
func (r *SessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID))
}

// TouchActivity bumps last_activity_at (and optionally the current
// question index) on every client interaction.
func (r *SessionRepository) TouchActivity(ctx context.Context, sessionID int64, at time.Time, questionIndex *int) error {
	if questionIndex != nil {
		_, err := r.pool.Exec(ctx,
			`UPDATE exam_sessions
			 SET last_activity_at = $1, current_question_index = $2
			 WHERE id = $3`, at, *questionIndex, sessionID)
		return err
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET last_activity_at = $1 WHERE id = $2`, at, sessionID)
	return err
}

// SaveRecoveryData stores the client's last-known full state blob.
func (r *SessionRepository) SaveRecoveryData(ctx context.Context, sessionID int64, blob json.RawMessage, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET recovery_data = $1, last_activity_at = $2 WHERE id = $3`,
		blob, at, sessionID)
	return err
}

// Resume flips an INTERRUPTED session back to IN_PROGRESS. Returns false
// when the session was not interrupted (already live or terminal).
func (r *SessionRepository) Resume(ctx context.Context, sessionID int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, last_activity_at = $2
		 WHERE id = $3 AND status = $4`,
		model.SessionStatusInProgress, at, sessionID, model.SessionStatusInterrupted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkInterrupted drifts idle IN_PROGRESS sessions to INTERRUPTED and
// returns the affected sessions so the sweep can publish audit events.
// Used by the sweep, not by client calls. The deadline comparison uses
// the caller's clock, like every other deadline decision.
func (r *SessionRepository) MarkInterrupted(ctx context.Context, now, idleBefore time.Time) ([]model.SessionRef, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE exam_sessions
		 SET status = $1
		 WHERE status = $2 AND last_activity_at < $3 AND scheduled_end_at > $4
		 RETURNING uuid, exam_id, student_id`,
		model.SessionStatusInterrupted, model.SessionStatusInProgress, idleBefore, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []model.SessionRef
	for rows.Next() {
		var ref model.SessionRef
		if err := rows.Scan(&ref.UUID, &ref.ExamID, &ref.StudentID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Finalize transitions a live session to a terminal status exactly once.
// The WHERE clause is the compare-and-swap: a sweep and a last-second
// manual Submit racing on the same session converge — one wins the
// transition, the other sees zero rows and reads the terminal result.
func (r *SessionRepository) Finalize(ctx context.Context, sessionID int64, status model.SessionStatus, at time.Time) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finalize with non-terminal status %q", status)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, submitted_at = $2, last_activity_at = $2
		 WHERE id = $3 AND status IN ($4, $5)`,
		status, at, sessionID,
		model.SessionStatusInProgress, model.SessionStatusInterrupted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveScore persists the grading result for a finalized session.
func (r *SessionRepository) SaveScore(ctx context.Context, sessionID int64, total, percentage float64, passed *bool, fullyGraded bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET total_score = $1, percentage = $2, passed = $3, fully_graded = $4
		 WHERE id = $5`,
		total, percentage, passed, fullyGraded, sessionID)
	return err
}

// AppendViolation appends one integrity event and recomputes the
// bookkeeping in a single statement, so violation_count always equals the
// list length. flagged_for_review latches once the count crosses max.
// Returns the updated count and whether this append crossed the threshold.
func (r *SessionRepository) AppendViolation(ctx context.Context, sessionID int64, v model.Violation, maxCount int) (count int, crossed bool, err error) {
	entry, err := json.Marshal(v)
	if err != nil {
		return 0, false, fmt.Errorf("encode violation: %w", err)
	}

	var flagged, wasFlagged bool
	err = r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET violations = violations || $1::jsonb,
		     violation_count = violation_count + 1,
		     has_violations = TRUE,
		     flagged_for_review = flagged_for_review OR (violation_count + 1 > $2)
		 WHERE id = $3
		 RETURNING violation_count, flagged_for_review,
		           (violation_count - 1 > $2) AS was_flagged`,
		entry, maxCount, sessionID,
	).Scan(&count, &flagged, &wasFlagged)
	if err != nil {
		return 0, false, err
	}
	return count, flagged && !wasFlagged, nil
}

// ListUnscored returns terminal sessions with no stored score. These are
// the residue of a grading failure after the status flip; the sweep
// re-grades them.
func (r *SessionRepository) ListUnscored(ctx context.Context, limit int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE status IN ($1, $2) AND total_score IS NULL
		 ORDER BY submitted_at ASC
		 LIMIT $3`,
		model.SessionStatusSubmitted, model.SessionStatusAutoSubmitted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListExpired returns live sessions whose deadline has passed, oldest
// first. The sweep forces these to AUTO_SUBMITTED.
func (r *SessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE status IN ($1, $2) AND scheduled_end_at <= $3
		 ORDER BY scheduled_end_at ASC
		 LIMIT $4`,
		model.SessionStatusInProgress, model.SessionStatusInterrupted, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

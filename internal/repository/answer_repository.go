package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examina/examina-backend/internal/model"
)

// AnswerRepository is the append-only answer ledger. Every write produces
// a new version; exactly one row per (session, question) carries is_final.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

const answerColumns = `id, session_id, question_id, free_text, selected_options,
	is_flagged, time_spent_seconds, version, is_final, is_correct,
	points_awarded, first_answered_at, last_updated_at`

func scanAnswer(row pgx.Row) (*model.Answer, error) {
	a := &model.Answer{}
	var options []byte
	err := row.Scan(
		&a.ID, &a.SessionID, &a.QuestionID, &a.FreeText, &options,
		&a.IsFlagged, &a.TimeSpentSeconds, &a.Version, &a.IsFinal, &a.IsCorrect,
		&a.PointsAwarded, &a.FirstAnsweredAt, &a.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &a.SelectedOptions); err != nil {
			return nil, fmt.Errorf("decode selected_options: %w", err)
		}
	}
	return a, nil
}

// AppendResult reports what one ledger write did to the session.
type AppendResult struct {
	Answer        *model.Answer
	FirstForQuest bool // this question had no prior version
}

// Append writes a new answer version and flips the final flag atomically.
//
// The whole operation runs in one transaction holding the per-session
// advisory lock, which serializes all ledger writes for a session. Two
// near-simultaneous auto-saves for the same question therefore get
// consecutive versions and exactly one final row — never zero or two.
// Retried deliveries simply append another version; the invariant holds.
func (r *AnswerRepository) Append(ctx context.Context, session *model.ExamSession, questionID uuid.UUID, content model.AnswerContent, questionIndex *int, at time.Time) (*AppendResult, error) {
	if err := content.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Per-session mutual exclusion. Operations across different sessions
	// stay fully independent.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, session.ID); err != nil {
		return nil, fmt.Errorf("session lock: %w", err)
	}

	var prevVersion int
	var firstAnswered *time.Time
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0), MIN(first_answered_at)
		 FROM session_answers
		 WHERE session_id = $1 AND question_id = $2`,
		session.ID, questionID,
	).Scan(&prevVersion, &firstAnswered)
	if err != nil {
		return nil, fmt.Errorf("read prior version: %w", err)
	}

	if prevVersion > 0 {
		tag, err := tx.Exec(ctx,
			`UPDATE session_answers SET is_final = FALSE
			 WHERE session_id = $1 AND question_id = $2 AND is_final`,
			session.ID, questionID)
		if err != nil {
			return nil, fmt.Errorf("unset prior final: %w", err)
		}
		if tag.RowsAffected() != 1 {
			// More or fewer than one final row existed. Abort rather
			// than silently repairing state.
			return nil, fmt.Errorf("final rows for question %s: %d affected: %w",
				questionID, tag.RowsAffected(), ErrLedgerCorrupt)
		}
	}

	firstAt := at
	if firstAnswered != nil {
		firstAt = *firstAnswered
	}

	var options []byte
	if len(content.SelectedOptions) > 0 {
		if options, err = json.Marshal(content.SelectedOptions); err != nil {
			return nil, fmt.Errorf("encode selected_options: %w", err)
		}
	}

	answer := &model.Answer{
		SessionID:        session.ID,
		QuestionID:       questionID,
		FreeText:         content.FreeText,
		SelectedOptions:  content.SelectedOptions,
		IsFlagged:        content.IsFlagged,
		TimeSpentSeconds: content.TimeSpentSeconds,
		Version:          prevVersion + 1,
		IsFinal:          true,
		FirstAnsweredAt:  firstAt,
		LastUpdatedAt:    at,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO session_answers
			(session_id, question_id, free_text, selected_options, is_flagged,
			 time_spent_seconds, version, is_final, first_answered_at, last_updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9)
		 RETURNING id`,
		session.ID, questionID, content.FreeText, options, content.IsFlagged,
		content.TimeSpentSeconds, answer.Version, firstAt, at,
	).Scan(&answer.ID)
	if err != nil {
		return nil, fmt.Errorf("insert version %d: %w", answer.Version, err)
	}

	// Session progress counters and the flagged-question set travel in the
	// same transaction so a crash between ledger and counters can never
	// desynchronize them.
	first := prevVersion == 0
	args := []any{at, session.ID, questionID.String()}
	counterSQL := `UPDATE exam_sessions SET last_activity_at = $1`
	if first {
		counterSQL += `, questions_answered = questions_answered + 1`
	}
	if content.IsFlagged {
		counterSQL += `, questions_flagged = CASE
			WHEN questions_flagged @> to_jsonb($3::text) THEN questions_flagged
			ELSE questions_flagged || to_jsonb($3::text) END`
	} else {
		counterSQL += `, questions_flagged = questions_flagged - $3::text`
	}
	if questionIndex != nil {
		args = append(args, *questionIndex)
		counterSQL += fmt.Sprintf(`, current_question_index = $%d`, len(args))
	}
	counterSQL += ` WHERE id = $2`
	if _, err := tx.Exec(ctx, counterSQL, args...); err != nil {
		return nil, fmt.Errorf("update session counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &AppendResult{Answer: answer, FirstForQuest: first}, nil
}

// ErrLedgerCorrupt signals a broken one-final-per-question invariant.
var ErrLedgerCorrupt = errors.New("answer ledger corrupt")

// FinalVersion returns the final answer for one question, or nil when the
// question was never answered.
func (r *AnswerRepository) FinalVersion(ctx context.Context, sessionID int64, questionID uuid.UUID) (*model.Answer, error) {
	a, err := scanAnswer(r.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM session_answers
		 WHERE session_id = $1 AND question_id = $2 AND is_final`,
		sessionID, questionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// AllFinal returns the final-answer set of a session — one row per
// answered question, the graded submission.
func (r *AnswerRepository) AllFinal(ctx context.Context, sessionID int64) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM session_answers
		 WHERE session_id = $1 AND is_final
		 ORDER BY question_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// History returns every retained version for a question, ordered by
// version. Nothing is ever deleted; this is the audit/replay view.
func (r *AnswerRepository) History(ctx context.Context, sessionID int64, questionID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM session_answers
		 WHERE session_id = $1 AND question_id = $2
		 ORDER BY version ASC`, sessionID, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// ApplyGrades bulk-writes grading results onto the final rows using a
// single UNNEST update.
func (r *AnswerRepository) ApplyGrades(ctx context.Context, sessionID int64, grades map[uuid.UUID]Grade) error {
	if len(grades) == 0 {
		return nil
	}

	questionIDs := make([]uuid.UUID, 0, len(grades))
	corrects := make([]bool, 0, len(grades))
	points := make([]float64, 0, len(grades))
	for qid, g := range grades {
		questionIDs = append(questionIDs, qid)
		corrects = append(corrects, g.IsCorrect)
		points = append(points, g.PointsAwarded)
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE session_answers AS a
		 SET is_correct = t.is_correct,
		     points_awarded = t.points
		 FROM (
			SELECT u.question_id, u.is_correct, u.points
			FROM UNNEST($1::uuid[], $2::bool[], $3::float8[])
				AS u (question_id, is_correct, points)
		 ) AS t
		 WHERE a.session_id = $4
		   AND a.question_id = t.question_id
		   AND a.is_final`,
		questionIDs, corrects, points, sessionID)
	return err
}

// Grade is the graded outcome persisted onto a final answer row.
type Grade struct {
	IsCorrect     bool
	PointsAwarded float64
}

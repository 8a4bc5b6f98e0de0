package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examina/examina-backend/internal/model"
)

// QuestionRepository is the question-bank seam. The engine reads question
// definitions exactly once — when a session starts and when it grades —
// against the rows as they exist; authoring lives elsewhere.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam returns the questions assigned to an exam in authored order.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, question_type, options,
		        correct_keys, points, order_num
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var correctKeys []byte
		if err := rows.Scan(
			&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionType, &q.Options,
			&correctKeys, &q.Points, &q.OrderNum,
		); err != nil {
			return nil, err
		}
		if len(correctKeys) > 0 {
			if err := json.Unmarshal(correctKeys, &q.CorrectKeys); err != nil {
				return nil, fmt.Errorf("decode correct_keys for %s: %w", q.ID, err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

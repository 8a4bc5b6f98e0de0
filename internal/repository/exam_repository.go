package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examina/examina-backend/internal/model"
)

// ExamRepository reads exam definitions at the engine's boundary.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves one exam.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, start_time, end_time, duration_minutes, total_marks,
		        passing_marks, randomize_questions, randomize_options,
		        max_violation_count, status, created_at, updated_at
		 FROM exams
		 WHERE id = $1`, id,
	).Scan(
		&e.ID, &e.Title, &e.StartTime, &e.EndTime, &e.DurationMinutes, &e.TotalMarks,
		&e.PassingMarks, &e.RandomizeQuestions, &e.RandomizeOptions,
		&e.MaxViolationCount, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

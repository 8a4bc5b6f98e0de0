package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the session engine's view of an exam. Authoring lives in the
// question-bank service; the engine only reads the fields that govern
// session timing and grading.
type Exam struct {
	ID                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	DurationMinutes    int        `json:"duration_minutes"`
	TotalMarks         float64    `json:"total_marks"`
	PassingMarks       float64    `json:"passing_marks"`
	RandomizeQuestions bool       `json:"randomize_questions"`
	RandomizeOptions   bool       `json:"randomize_options"`
	MaxViolationCount  int        `json:"max_violation_count"`
	Status             ExamStatus `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Duration returns the exam's duration as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// WindowOpen reports whether now falls inside [StartTime, EndTime).
func (e *Exam) WindowOpen(now time.Time) bool {
	return !now.Before(e.StartTime) && now.Before(e.EndTime)
}

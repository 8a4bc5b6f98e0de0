package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionTypeTrueFalse    QuestionType = "TRUE_FALSE"
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeEssay        QuestionType = "ESSAY"
	QuestionTypeMatching     QuestionType = "MATCHING"
)

// AutoGradable reports whether the type can be graded without a human.
func (t QuestionType) AutoGradable() bool {
	switch t {
	case QuestionTypeTrueFalse, QuestionTypeSingleChoice, QuestionTypeMultiChoice:
		return true
	}
	return false
}

// Question is the engine's view of a question at session-start time.
// CorrectKeys and Points are frozen into the grading pass; later edits in
// the question bank never affect a session that already started.
type Question struct {
	ID           uuid.UUID       `json:"id"`
	ExamID       uuid.UUID       `json:"exam_id"`
	QuestionText string          `json:"question_text"`
	QuestionType QuestionType    `json:"question_type"`
	Options      json.RawMessage `json:"options"`
	CorrectKeys  []string        `json:"correct_keys,omitempty"`
	Points       float64         `json:"points"`
	OrderNum     int             `json:"order_num"`
}

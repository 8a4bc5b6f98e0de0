package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Answer is one append-only ledger entry for a (session, question) pair.
// Versions are gap-free starting at 1; at most one row per question carries
// is_final=true at any instant. Non-final versions are never deleted.
type Answer struct {
	ID         int64     `json:"-"`
	SessionID  int64     `json:"-"`
	QuestionID uuid.UUID `json:"question_id"`

	// Exactly one of FreeText / SelectedOptions is populated, matching the
	// question's type.
	FreeText        *string  `json:"free_text,omitempty"`
	SelectedOptions []string `json:"selected_options,omitempty"`

	IsFlagged        bool `json:"is_flagged"`
	TimeSpentSeconds int  `json:"time_spent_seconds"`

	Version int  `json:"version"`
	IsFinal bool `json:"is_final"`

	// Populated at grading only.
	IsCorrect     *bool    `json:"is_correct,omitempty"`
	PointsAwarded *float64 `json:"points_awarded,omitempty"`

	FirstAnsweredAt time.Time `json:"first_answered_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
}

// ErrAmbiguousContent is returned when an answer populates neither or both
// content forms.
var ErrAmbiguousContent = errors.New("answer content must be exactly one of free_text or selected_options")

// AnswerContent is the client-supplied portion of a ledger entry.
type AnswerContent struct {
	FreeText         *string
	SelectedOptions  []string
	IsFlagged        bool
	TimeSpentSeconds int
}

// Validate enforces the exclusive-content rule.
func (c *AnswerContent) Validate() error {
	hasText := c.FreeText != nil && *c.FreeText != ""
	hasOptions := len(c.SelectedOptions) > 0
	if hasText == hasOptions {
		return ErrAmbiguousContent
	}
	return nil
}

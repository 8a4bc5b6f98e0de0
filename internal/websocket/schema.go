package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Actions (Client → Server)

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionSnapshot  Action = "snapshot"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope carries every client message. One flat shape keeps the
// client simple; the handler validates the fields the action needs.
type RequestEnvelope struct {
	Action Action `json:"action"`

	// answer
	QuestionID       string   `json:"question_id,omitempty"`
	FreeText         *string  `json:"free_text,omitempty"`
	SelectedOptions  []string `json:"selected_options,omitempty"`
	IsFlagged        bool     `json:"is_flagged,omitempty"`
	TimeSpentSeconds int      `json:"time_spent_seconds,omitempty"`
	QuestionIndex    *int     `json:"question_index,omitempty"`

	// snapshot
	SnapshotType string          `json:"snapshot_type,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`

	// violation
	ViolationType string `json:"violation_type,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Events (Server → Client)

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventSnapshot  Event = "snapshot"
	EventViolation Event = "violation"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// SavedResponse acknowledges one answer version.
type SavedResponse struct {
	Event   Event  `json:"event"`
	Version int    `json:"version"`
	QID     string `json:"question_id"`
}

// SnapshotResponse acknowledges a snapshot with its assigned ID.
type SnapshotResponse struct {
	Event      Event     `json:"event"`
	SnapshotID uuid.UUID `json:"snapshot_id"`
}

// ViolationResponse returns the running violation count.
type ViolationResponse struct {
	Event Event `json:"event"`
	Count int   `json:"count"`
}

// SubmittedResponse reports the terminal state and the (possibly
// provisional) score.
type SubmittedResponse struct {
	Event       Event    `json:"event"`
	Status      string   `json:"status"`
	TotalScore  *float64 `json:"total_score,omitempty"`
	Percentage  *float64 `json:"percentage,omitempty"`
	Passed      *bool    `json:"passed,omitempty"`
	FullyGraded bool     `json:"fully_graded"`
}

// ErrorResponse carries a machine-readable error code.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// PongResponse answers a ping keepalive.
type PongResponse struct {
	Event Event `json:"event"`
}

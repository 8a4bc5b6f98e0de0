package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SnapshotType distinguishes why a snapshot was captured.
type SnapshotType string

const (
	SnapshotTypePeriodic  SnapshotType = "PERIODIC"  // debounced client auto-save
	SnapshotTypeManual    SnapshotType = "MANUAL"    // user-triggered "save my progress"
	SnapshotTypeRecovery  SnapshotType = "RECOVERY"  // system-triggered recovery point
	SnapshotTypeMilestone SnapshotType = "MILESTONE" // e.g. every N questions answered
)

// Valid reports whether t is a known snapshot type.
func (t SnapshotType) Valid() bool {
	switch t {
	case SnapshotTypePeriodic, SnapshotTypeManual, SnapshotTypeRecovery, SnapshotTypeMilestone:
		return true
	}
	return false
}

// Snapshot is an immutable full-state capture of a session: sequence
// position, per-question draft state, flags, elapsed time — everything a
// reconnecting client needs to resume. Created, never mutated.
type Snapshot struct {
	ID           int64           `json:"-"`
	UUID         uuid.UUID       `json:"id"`
	SessionID    int64           `json:"-"`
	SnapshotType SnapshotType    `json:"snapshot_type"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"created_at"`
}

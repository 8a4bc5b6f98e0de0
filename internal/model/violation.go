package model

import "time"

// ViolationType enumerates recognized integrity events.
type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "TAB_SWITCH"
	ViolationCopyPaste      ViolationType = "COPY_PASTE"
	ViolationFullscreenExit ViolationType = "FULLSCREEN_EXIT"
	ViolationDisconnect     ViolationType = "DISCONNECT"
	ViolationDevTools       ViolationType = "DEV_TOOLS"
	ViolationOther          ViolationType = "OTHER"
)

// Valid reports whether t is a recognized violation type. Clients send
// the type as a raw string, so it is checked at the binding layer.
func (t ViolationType) Valid() bool {
	switch t {
	case ViolationTabSwitch, ViolationCopyPaste, ViolationFullscreenExit,
		ViolationDisconnect, ViolationDevTools, ViolationOther:
		return true
	}
	return false
}

// Violation is one integrity event appended to the session's violation
// list. Entries are never edited or removed.
type Violation struct {
	Type        ViolationType `json:"type"`
	Description string        `json:"description,omitempty"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

package calls

import (
	"time"

	"callscope/internal/analysis"
)

// Status is the persisted lifecycle of a call.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StaleReason is logged when calls orphaned by a previous process are failed.
const StaleReason = "process exited before the call finished"

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a call may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Call is one uploaded recording.
type Call struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	FilePath        string    `json:"file_path"`
	SourceKind      string    `json:"source_kind"`
	FileName        string    `json:"file_name"`
	DisplayName     string    `json:"display_name,omitempty"`
	Status          Status    `json:"status"`
	SegmentCount    int       `json:"segment_count"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Title returns the display name, falling back to the file name.
func (c Call) Title() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.FileName
}

// Analysis is the persisted scorecard for a completed call.
type Analysis struct {
	ID         string `json:"id"`
	CallID     string `json:"call_id"`
	OwnerID    string `json:"owner_id"`
	Transcript string `json:"transcript"`
	analysis.Result
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows ListCalls.
type ListFilter struct {
	OwnerID string
	Status  []Status
	Limit   int
}

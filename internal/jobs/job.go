// Package jobs tracks transcription jobs in memory. Each started job runs on
// its own goroutine; the scheduler's map is the only shared state and every
// change to it goes through Scheduler.update. Dismissing a job hides it from
// observers without stopping it.
package jobs

import (
	"time"

	"callscope/internal/segstore"
)

// Status is the lifecycle of a tracked job.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusTranscribing Status = "transcribing"
	StatusAnalyzing    Status = "analyzing"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// FallbackError is reported when a job fails without any message.
const FallbackError = "transcription failed"

// IsTerminal reports whether the job has finished.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// CanTransition reports whether a job may move from s to next. Staying in
// the same non-terminal status is allowed so progress can advance.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusError || next == s {
		return true
	}
	switch s {
	case StatusQueued:
		return next == StatusTranscribing
	case StatusTranscribing:
		return next == StatusAnalyzing
	case StatusAnalyzing:
		return next == StatusComplete
	}
	return false
}

// Job is a snapshot of one tracked job.
type Job struct {
	ID             string    `json:"id"`
	CallID         string    `json:"call_id"`
	OwnerID        string    `json:"owner_id"`
	DisplayName    string    `json:"display_name"`
	Status         Status    `json:"status"`
	Progress       int       `json:"progress"`
	CurrentSegment int       `json:"current_segment"`
	TotalSegments  int       `json:"total_segments"`
	Error          string    `json:"error,omitempty"`
	Transcript     string    `json:"transcript,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Spec describes a job to start.
type Spec struct {
	// ID is assigned by Start when empty.
	ID          string
	CallID      string
	OwnerID     string
	DisplayName string
	Source      segstore.Source

	// OnComplete receives the transcript after the job completes.
	OnComplete func(transcript string)
	// OnError receives the failure message after the job fails.
	OnError func(message string)
}

package api

import (
	"time"

	"callscope/internal/calls"
	"callscope/internal/jobs"
)

// CallListResponse wraps GET /api/calls.
type CallListResponse struct {
	Calls []*calls.Call `json:"calls"`
}

// JobListResponse wraps GET /api/jobs.
type JobListResponse struct {
	Jobs []jobs.Job `json:"jobs"`
}

// StatusResponse summarises the running server.
type StatusResponse struct {
	Calls    map[calls.Status]int `json:"calls"`
	Jobs     map[jobs.Status]int  `json:"jobs"`
	Database string               `json:"database"`
	Storage  string               `json:"storage"`
	Started  time.Time            `json:"started"`
	Uptime   string               `json:"uptime"`
}

// StreamMessage is one websocket frame.
type StreamMessage struct {
	Type string   `json:"type"`
	Job  jobs.Job `json:"job"`
}

const (
	messageSnapshot = "snapshot"
	messageUpdate   = "update"
)

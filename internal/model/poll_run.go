package model

import "time"

// PollRun records the outcome of one executed fetch cycle.
type PollRun struct {
	ID          int64     `json:"id"`
	Domain      string    `json:"domain"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
	Changed     bool      `json:"changed"`
	Fingerprint string    `json:"fingerprint"`
	Error       string    `json:"error,omitempty"`
}

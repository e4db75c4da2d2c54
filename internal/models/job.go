package models

import (
	"time"
)

// Job states persisted in Postgres.
const (
	StatePending    = "pending"
	StateInProgress = "in_progress"
	StateRetrying   = "retrying"
	StateSucceeded  = "succeeded"
	StateFailed     = "failed"
	StateCanceled   = "canceled"
)

// displayStates maps stored states to the strings exposed by the status API.
// Retrying is internal bookkeeping; clients see it as In Progress.
var displayStates = map[string]string{
	StatePending:    "Pending",
	StateInProgress: "In Progress",
	StateRetrying:   "In Progress",
	StateSucceeded:  "Succeeded",
	StateFailed:     "Failed",
	StateCanceled:   "Canceled",
}

// DisplayState returns the client-facing name for a stored job state.
func DisplayState(state string) string {
	if s, ok := displayStates[state]; ok {
		return s
	}
	return state
}

// IsTerminalState reports whether a job state can never be left.
func IsTerminalState(state string) bool {
	switch state {
	case StateSucceeded, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Job is a unit of deferred work persisted in Postgres. A row is created when
// the API accepts a slow read and is mutated only by the executing worker
// after that.
type Job struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	Kind         string         `json:"kind"`
	Payload      map[string]any `json:"payload"`
	State        string         `json:"state"`
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"max_attempts"`
	Text         *string        `json:"text,omitempty"`
	ResultPath   *string        `json:"result_path,omitempty"`
	ResultFormat *string        `json:"result_format,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Package queue implements the durable scrape-job queue on Redis.
//
// Jobs move through five states: waiting, active, completed, failed and
// delayed. Waiting jobs are ordered by priority first and enqueue time
// second; claiming is a single Lua script so any number of worker processes
// can consume the same queue without double-dispatch. Completed and failed
// jobs are retained in bounded windows for the status endpoint.
package queue

import (
	"encoding/json"
	"time"
)

// Priority orders dispatch; a lower number dispatches earlier.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityNormal Priority = 3
	PriorityLow    Priority = 4
)

// String returns the operator-facing name used in stats and logs.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	}
	return "UNKNOWN"
}

// State is a job's queue state.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// JobData is the payload carried by a scrape job. Field names follow the
// wire format the dashboard consumes.
type JobData struct {
	URL       string `json:"url,omitempty"`
	ItemID    string `json:"itemId,omitempty"`
	ItemType  string `json:"itemType,omitempty"`
	SetNumber string `json:"setNumber,omitempty"`

	// Force marks an operator-requested job: the scrape runs even when the
	// source's circuit is open and skips the pacing gate.
	Force bool `json:"force,omitempty"`
}

// Identifier returns the natural key used for de-duplication, preferring the
// marketplace item id over the set number.
func (d JobData) Identifier() string {
	if d.ItemID != "" {
		return d.ItemID
	}
	return d.SetNumber
}

func (d JobData) marshal() string {
	b, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Job is one unit of scrape work.
type Job struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Data         JobData    `json:"data"`
	Priority     Priority   `json:"priority"`
	State        State      `json:"state"`
	AttemptsMade int        `json:"attemptsMade"`
	MaxAttempts  int        `json:"maxAttempts"`
	QueuedAt     time.Time  `json:"timestamp"`
	ProcessedOn  *time.Time `json:"processedOn,omitempty"`
	FinishedOn   *time.Time `json:"finishedOn,omitempty"`
	DelayedUntil *time.Time `json:"delayedUntil,omitempty"`
	FailedReason string     `json:"failedReason,omitempty"`
	ReturnValue  string     `json:"returnvalue,omitempty"`
}

// Counts is a per-state census of the queue.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// WorkerStatus aggregates the heartbeats of every live consumer process.
type WorkerStatus struct {
	IsAlive   bool `json:"isAlive"`
	IsPaused  bool `json:"isPaused"`
	IsRunning bool `json:"isRunning"`
}

// EnqueueOptions parameterizes one Enqueue call.
type EnqueueOptions struct {
	Name     string
	Data     JobData
	Priority Priority

	// MaxAttempts overrides Config.MaxAttempts when positive.
	MaxAttempts int

	// Delay parks the job in the delayed state until it elapses.
	Delay time.Duration
}

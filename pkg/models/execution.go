package models

import (
	"encoding/json"
	"time"
)

// Execution is a snapshot of one run of a workflow. The engine owns it; the
// bridge only reads it.
type Execution struct {
	ID         ID              `json:"id"`
	WorkflowID ID              `json:"workflowId,omitempty"`
	Finished   bool            `json:"finished"`
	Mode       string          `json:"mode,omitempty"`
	Status     string          `json:"status,omitempty"`
	RetryOf    ID              `json:"retryOf,omitempty"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	StoppedAt  *time.Time      `json:"stoppedAt,omitempty"`
	WaitTill   *time.Time      `json:"waitTill,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ExecutionList is the engine's paginated execution listing.
type ExecutionList struct {
	Data       []*Execution `json:"data"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// Terminal reports whether no further progress will happen.
func (e *Execution) Terminal() bool {
	return e.Finished || e.StoppedAt != nil
}

// Duration returns stoppedAt - startedAt when both are known.
func (e *Execution) Duration() (time.Duration, bool) {
	if e.StartedAt == nil || e.StoppedAt == nil {
		return 0, false
	}
	return e.StoppedAt.Sub(*e.StartedAt), true
}

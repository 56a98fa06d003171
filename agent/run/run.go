// Package run defines the per-request run entity and its lifecycle states.
// Runs are request-scoped: they exist for the duration of the streaming
// response and are not persisted.
package run

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AssistantID is the fixed identifier of this agent, attached to every run
// and to every message the agent persists.
const AssistantID = "lighting-agent"

// ObjectKind tags run resources on the wire.
const ObjectKind = "thread.run"

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusQueued indicates the run has been accepted but not started.
	StatusQueued Status = "queued"
	// StatusInProgress indicates the run is executing.
	StatusInProgress Status = "in_progress"
	// StatusCompleted indicates the run finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the run failed; failure is terminal and the
	// model call is not retried.
	StatusFailed Status = "failed"
)

// Run is one execution of the agent against a thread.
type Run struct {
	ID          string
	ThreadID    string
	AssistantID string
	Status      Status
	CreatedAt   time.Time
}

// New builds a queued run for the given thread.
func New(threadID string) *Run {
	return &Run{
		ID:          "run_" + uuid.NewString(),
		ThreadID:    threadID,
		AssistantID: AssistantID,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
}

// MarshalJSON renders the lifecycle event payload shape.
func (r *Run) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string `json:"id"`
		Object      string `json:"object"`
		ThreadID    string `json:"thread_id"`
		AssistantID string `json:"assistant_id"`
		Status      Status `json:"status"`
		CreatedAt   int64  `json:"created_at"`
	}{r.ID, ObjectKind, r.ThreadID, r.AssistantID, r.Status, r.CreatedAt.UnixMilli()})
}

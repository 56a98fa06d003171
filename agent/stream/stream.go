// Package stream defines the event sink capability used to report run
// progress, the fixed event name protocol, and the emitter that translates
// messages into wire-level created/delta/completed events. The sink seam
// keeps the run engine transport-agnostic: HTTP/SSE in production, an
// in-memory sink in tests.
package stream

import (
	"context"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/run"
)

// Lifecycle event names, in the order a successful run emits them. The
// message quartet repeats once per streamed result message.
const (
	EventRunCreated        = "thread.run.created"
	EventRunQueued         = "thread.run.queued"
	EventRunInProgress     = "thread.run.in_progress"
	EventStepCreated       = "thread.run.step.created"
	EventStepInProgress    = "thread.run.step.in_progress"
	EventMessageCreated    = "thread.message.created"
	EventMessageInProgress = "thread.message.in_progress"
	EventMessageDelta      = "thread.message.delta"
	EventMessageCompleted  = "thread.message.completed"
	EventRunCompleted      = "thread.run.completed"
	EventStepCompleted     = "thread.run.step.completed"
	EventError             = "error"
	EventDone              = "done"
)

// DeltaObjectKind tags message delta payloads.
const DeltaObjectKind = "thread.message.delta"

type (
	// Sink writes named events to the client connection associated with a
	// run. A write failure is fatal for the run and is not retried.
	Sink interface {
		// Send serializes payload to JSON and writes one named event frame.
		Send(ctx context.Context, name string, payload any) error
		// Close terminates the stream after a successful run.
		Close(ctx context.Context) error
		// CloseWithError terminates the stream after a failed run.
		CloseWithError(ctx context.Context, err error) error
	}

	// Raw is a payload written to the stream verbatim instead of being
	// JSON-serialized. Used for the terminal [DONE] marker.
	Raw string

	// Delta is the thread.message.delta payload.
	Delta struct {
		ID      string        `json:"id"`
		Object  string        `json:"object"`
		Content content.Items `json:"content"`
	}

	// ErrorData is the error event payload.
	ErrorData struct {
		Message string `json:"message"`
	}

	// Emitter layers the message-event protocol on top of a sink.
	Emitter struct {
		sink Sink
	}
)

// NewEmitter wraps a sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Send forwards one named event to the sink.
func (e *Emitter) Send(ctx context.Context, name string, payload any) error {
	return e.sink.Send(ctx, name, payload)
}

// MessageEvents emits the created/in_progress/delta/completed quartet for a
// persisted message. Only plain assistant text messages are streamed: tool
// call and tool result messages are persisted without message events. The
// delta payload carries the run id, matching the reference protocol.
func (e *Emitter) MessageEvents(ctx context.Context, r *run.Run, msg message.Message) error {
	if !streamable(msg) {
		return nil
	}
	delta := Delta{ID: r.ID, Object: DeltaObjectKind, Content: content.Items(msg.Items)}
	for _, ev := range []struct {
		name    string
		payload any
	}{
		{EventMessageCreated, msg},
		{EventMessageInProgress, msg},
		{EventMessageDelta, delta},
		{EventMessageCompleted, msg},
	} {
		if err := e.sink.Send(ctx, ev.name, ev.payload); err != nil {
			return err
		}
	}
	return nil
}

// Error emits the single error event that replaces the remaining lifecycle
// sequence on failure.
func (e *Emitter) Error(ctx context.Context, msg string) error {
	return e.sink.Send(ctx, EventError, ErrorData{Message: msg})
}

// Done emits the terminal done event with its literal [DONE] payload.
func (e *Emitter) Done(ctx context.Context) error {
	return e.sink.Send(ctx, EventDone, Raw("[DONE]"))
}

func streamable(msg message.Message) bool {
	if msg.Role == message.RoleTool {
		return false
	}
	for _, item := range msg.Items {
		if item.Kind() == content.KindFunctionCall {
			return false
		}
	}
	return len(msg.Items) > 0 && msg.Items[0].Text() != ""
}

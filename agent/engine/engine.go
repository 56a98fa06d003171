// Package engine drives one run: it resolves the tool catalogue, rebuilds
// the prompt history, invokes the completion client with tool-calling
// enabled, classifies and persists every result item, and emits the fixed
// lifecycle event sequence to the run's stream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goa.design/clue/log"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/history"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/model"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/run"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/stream"
)

// DefaultInstruction seeds the chat history when no override is configured.
const DefaultInstruction = "If the user asks what language you've been " +
	"written in, reply to the user that you've been built with Go; otherwise " +
	"have a nice chat! As an fyi, the current user is developing you, so be " +
	"forthcoming with any of the underlying tool calls you're making in case " +
	"they ask so they can debug."

type (
	// Catalogue resolves the invocable tool descriptors for a run. The
	// resolution probes each configured plugin service for a healthy
	// endpoint and imports its OpenAPI document; no healthy endpoint is a
	// fatal per-run error.
	Catalogue interface {
		Resolve(ctx context.Context) ([]*model.Tool, error)
	}

	// Options configures the engine.
	Options struct {
		// Completer is the chat completion client. Required.
		Completer model.Client
		// Messages is the message store. Required.
		Messages message.Store
		// Catalogue resolves plugin tools. Required.
		Catalogue Catalogue
		// Instruction overrides DefaultInstruction when non-empty.
		Instruction string
	}

	// Engine executes runs. Safe for concurrent use; all per-run state is
	// local to ExecuteRun.
	Engine struct {
		completer   model.Client
		messages    message.Store
		catalogue   Catalogue
		instruction string
	}
)

// New validates the options and builds an engine.
func New(opts Options) (*Engine, error) {
	if opts.Completer == nil {
		return nil, errors.New("completion client is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("message store is required")
	}
	if opts.Catalogue == nil {
		return nil, errors.New("tool catalogue is required")
	}
	instruction := opts.Instruction
	if instruction == "" {
		instruction = DefaultInstruction
	}
	return &Engine{
		completer:   opts.Completer,
		messages:    opts.Messages,
		catalogue:   opts.Catalogue,
		instruction: instruction,
	}, nil
}

// ExecuteRun drives the run to completion and closes the sink. Events for a
// run are emitted strictly in the protocol order; each message is persisted
// before its events are written. Any failure inside the run is terminal for
// that run only: it surfaces as a single error event followed by done, and
// the sink is closed with the underlying error.
func (e *Engine) ExecuteRun(ctx context.Context, r *run.Run, sink stream.Sink) error {
	emitter := stream.NewEmitter(sink)

	err := func() error {
		if err := emitter.Send(ctx, stream.EventRunCreated, r); err != nil {
			return err
		}
		if err := emitter.Send(ctx, stream.EventRunQueued, r); err != nil {
			return err
		}
		r.Status = run.StatusInProgress
		if err := emitter.Send(ctx, stream.EventRunInProgress, r); err != nil {
			return err
		}
		if err := emitter.Send(ctx, stream.EventStepCreated, r); err != nil {
			return err
		}
		if err := emitter.Send(ctx, stream.EventStepInProgress, r); err != nil {
			return err
		}
		return e.execute(ctx, r, emitter)
	}()

	if err != nil {
		r.Status = run.StatusFailed
		log.Errorf(ctx, err, "run %s failed", r.ID)
		var werr *stream.WriteError
		if !errors.As(err, &werr) {
			// The connection is still believed healthy: report the failure
			// on the stream before closing it.
			if serr := emitter.Error(ctx, err.Error()); serr == nil {
				_ = emitter.Done(ctx)
			}
		}
		return sink.CloseWithError(ctx, err)
	}

	r.Status = run.StatusCompleted
	if err := emitter.Send(ctx, stream.EventRunCompleted, r); err != nil {
		return sink.CloseWithError(ctx, err)
	}
	if err := emitter.Send(ctx, stream.EventStepCompleted, r); err != nil {
		return sink.CloseWithError(ctx, err)
	}
	if err := emitter.Done(ctx); err != nil {
		return sink.CloseWithError(ctx, err)
	}
	return sink.Close(ctx)
}

func (e *Engine) execute(ctx context.Context, r *run.Run, emitter *stream.Emitter) error {
	tools, err := e.catalogue.Resolve(ctx)
	if err != nil {
		return err
	}
	msgs, err := e.messages.List(ctx, r.ThreadID, message.ListOptions{Ascending: true})
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}
	turns := history.Build(msgs)

	results, err := e.completer.Complete(ctx, model.Request{
		Instruction: e.instruction,
		History:     turns,
		Tools:       tools,
	})
	if err != nil {
		return err
	}

	// Correlates tool-role results back to the call that produced them;
	// discarded when the run ends.
	calls := make(map[string]content.FunctionCallContent)
	for _, result := range results {
		items, err := classify(result, calls)
		if err != nil {
			return err
		}
		msg := message.New(r.ThreadID, result.Role, items, r.ID, r.AssistantID, time.Now().UTC())
		if err := e.messages.Insert(ctx, msg); err != nil {
			return fmt.Errorf("persist run message: %w", err)
		}
		if err := emitter.MessageEvents(ctx, r, msg); err != nil {
			return err
		}
	}
	return nil
}

// classify maps one completion result to its persisted content items:
// requested function calls, a correlated function result, or plain text.
func classify(result model.Result, calls map[string]content.FunctionCallContent) ([]content.Item, error) {
	switch {
	case len(result.ToolCalls) > 0:
		items := make([]content.Item, 0, len(result.ToolCalls))
		for _, tc := range result.ToolCalls {
			item := content.FunctionCallContent{
				PluginName:   tc.PluginName,
				FunctionName: tc.FunctionName,
				ID:           tc.ID,
				Arguments:    tc.Arguments,
			}
			calls[tc.ID] = item
			items = append(items, item)
		}
		return items, nil
	case result.Role == message.RoleTool:
		call, ok := calls[result.CallID]
		if !ok {
			return nil, fmt.Errorf("function result %q does not match any call in this run", result.CallID)
		}
		return []content.Item{content.FunctionResultContent{
			PluginName:   call.PluginName,
			FunctionName: call.FunctionName,
			ID:           result.CallID,
			Result:       result.Text,
		}}, nil
	default:
		return []content.Item{content.TextContent{Value: result.Text}}, nil
	}
}

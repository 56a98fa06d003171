// Package model defines the seam between the run engine and the chat
// completion provider: the request the engine builds, the tool descriptors it
// offers, and the ordered result items it expects back.
package model

import (
	"context"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/history"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
)

type (
	// Request carries everything needed for one completion: the system
	// instruction, the replayed prompt history, and the tool catalogue with
	// tool-calling enabled for every entry.
	Request struct {
		Instruction string
		History     []history.Turn
		Tools       []*Tool
	}

	// Tool is one invocable catalogue entry derived from a plugin's OpenAPI
	// document. Name is unique within the plugin; Parameters is a JSON
	// schema object describing the arguments.
	Tool struct {
		PluginName  string
		Name        string
		Description string
		Parameters  map[string]any
		// Invoke executes the operation against the plugin service and
		// returns the raw response body.
		Invoke func(ctx context.Context, args map[string]any) (string, error)
	}

	// Result is one content item returned by the completion, in model
	// output order. Exactly one of the three shapes applies: a text result,
	// an assistant result carrying tool calls, or a tool-role result
	// correlated to an earlier call by CallID.
	Result struct {
		Role      message.Role
		Text      string
		ToolCalls []ToolCall
		CallID    string
	}

	// ToolCall is a function invocation requested by the model.
	ToolCall struct {
		ID           string
		PluginName   string
		FunctionName string
		Arguments    *content.Arguments
	}

	// Client produces chat completions. Complete blocks until the model has
	// finished, including any tool-call round trips performed on the
	// caller's behalf, and returns every result item in order.
	Client interface {
		Complete(ctx context.Context, req Request) ([]Result, error)
	}
)

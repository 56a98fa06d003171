// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates completion requests into ChatCompletion
// calls using github.com/sashabaranov/go-openai, drives the tool-call round
// trips the model asks for, and maps the full exchange back into ordered
// result items.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/history"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/model"
)

// Deployment kinds accepted by NewFromDeployment.
const (
	KindAzureOpenAI = "AzureOpenAI"
	KindOpenAI      = "OpenAI"
	KindOther       = "Other"
)

const defaultMaxToolRounds = 8

// ChatClient captures the subset of the go-openai client used by the adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Deployment describes where completions are served from. Kind selects the
// provider flavor; the remaining fields apply depending on it.
type Deployment struct {
	Kind           string
	APIKey         string
	ModelID        string
	DeploymentName string
	Endpoint       string
	OrgID          string
}

// Options configures the OpenAI adapter.
type Options struct {
	Client ChatClient
	Model  string
	// MaxToolRounds caps how many tool-call exchanges a single completion
	// may perform before the adapter gives up.
	MaxToolRounds int
}

// Client implements model.Client via the OpenAI Chat Completions API.
type Client struct {
	chat      ChatClient
	model     string
	maxRounds int
}

var _ model.Client = (*Client)(nil)

// New builds an OpenAI-backed model client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}
	maxRounds := opts.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	return &Client{chat: opts.Client, model: opts.Model, maxRounds: maxRounds}, nil
}

// NewFromDeployment constructs a client for the given deployment kind.
func NewFromDeployment(d Deployment) (*Client, error) {
	if d.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	var cfg openai.ClientConfig
	modelID := d.ModelID
	switch d.Kind {
	case KindAzureOpenAI:
		if d.Endpoint == "" {
			return nil, errors.New("azure deployments require an endpoint")
		}
		cfg = openai.DefaultAzureConfig(d.APIKey, d.Endpoint)
		if d.DeploymentName != "" {
			modelID = d.DeploymentName
		}
	case KindOpenAI:
		cfg = openai.DefaultConfig(d.APIKey)
		if d.Endpoint != "" {
			cfg.BaseURL = d.Endpoint
		}
		cfg.OrgID = d.OrgID
	case KindOther:
		if d.Endpoint == "" {
			return nil, errors.New("other deployments require an endpoint")
		}
		cfg = openai.DefaultConfig(d.APIKey)
		cfg.BaseURL = d.Endpoint
	default:
		return nil, fmt.Errorf("unknown deployment kind %q", d.Kind)
	}
	return New(Options{Client: openai.NewClientWithConfig(cfg), Model: modelID})
}

// Complete renders a chat completion, transparently performing tool-call
// round trips, and returns every produced item in model output order.
func (c *Client) Complete(ctx context.Context, req model.Request) ([]model.Result, error) {
	messages := buildMessages(req)
	tools, index, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}
	var results []model.Result
	for round := 0; round < c.maxRounds; round++ {
		response, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return nil, fmt.Errorf("openai chat completion: %w", err)
		}
		if len(response.Choices) == 0 {
			return nil, errors.New("openai chat completion returned no choices")
		}
		msg := response.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			results = append(results, model.Result{Role: message.RoleAssistant, Text: msg.Content})
			return results, nil
		}
		assistant := model.Result{Role: message.RoleAssistant, Text: msg.Content}
		for _, call := range msg.ToolCalls {
			parsed, err := parseToolCall(call)
			if err != nil {
				return nil, err
			}
			assistant.ToolCalls = append(assistant.ToolCalls, parsed)
		}
		results = append(results, assistant)
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			tool, ok := index[call.Function.Name]
			if !ok {
				return nil, fmt.Errorf("model requested unknown tool %q", call.Function.Name)
			}
			args, err := decodeArgMap(call.Function.Arguments)
			if err != nil {
				return nil, fmt.Errorf("tool %s arguments: %w", call.Function.Name, err)
			}
			output, err := tool.Invoke(ctx, args)
			if err != nil {
				return nil, fmt.Errorf("invoke tool %s: %w", call.Function.Name, err)
			}
			results = append(results, model.Result{
				Role:   message.RoleTool,
				Text:   output,
				CallID: call.ID,
			})
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}
	return nil, fmt.Errorf("completion exceeded %d tool-call rounds", c.maxRounds)
}

func buildMessages(req model.Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	if req.Instruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instruction,
		})
	}
	for _, turn := range req.History {
		switch turn.Role {
		case message.RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    turn.Text,
				ToolCallID: turn.ResultID,
			})
		case message.RoleAssistant:
			msg := openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: encodeTurnCalls(turn.ToolCalls),
			}
			if len(msg.ToolCalls) == 0 {
				msg.Content = turn.Text
			}
			messages = append(messages, msg)
		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    string(turn.Role),
				Content: turn.Text,
			})
		}
	}
	return messages
}

func encodeTurnCalls(calls []history.ToolCall) []openai.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	encoded := make([]openai.ToolCall, 0, len(calls))
	for _, call := range calls {
		args := "{}"
		if call.Arguments != nil {
			if raw, err := json.Marshal(call.Arguments); err == nil {
				args = string(raw)
			}
		}
		encoded = append(encoded, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      wireName(call.PluginName, call.FunctionName),
				Arguments: args,
			},
		})
	}
	return encoded
}

func encodeTools(defs []*model.Tool) ([]openai.Tool, map[string]*model.Tool, error) {
	if len(defs) == 0 {
		return nil, nil, nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	index := make(map[string]*model.Tool, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		params, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal tool %s schema: %w", def.Name, err)
		}
		name := wireName(def.PluginName, def.Name)
		index[name] = def
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return tools, index, nil
}

// wireName joins the plugin and function names into the single identifier
// advertised to the model.
func wireName(plugin, function string) string {
	if plugin == "" {
		return function
	}
	return plugin + "-" + function
}

func parseToolCall(call openai.ToolCall) (model.ToolCall, error) {
	plugin, function := splitWireName(call.Function.Name)
	args := &content.Arguments{}
	if raw := call.Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), args); err != nil {
			return model.ToolCall{}, fmt.Errorf("tool %s arguments: %w", call.Function.Name, err)
		}
	}
	return model.ToolCall{
		ID:           call.ID,
		PluginName:   plugin,
		FunctionName: function,
		Arguments:    args,
	}, nil
}

func splitWireName(name string) (plugin, function string) {
	if before, after, found := strings.Cut(name, "-"); found {
		return before, after
	}
	return "", name
}

func decodeArgMap(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

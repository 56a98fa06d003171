package openai_test

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/history"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/model"
	openaimodel "github.com/matthewbolanos/sk-party-planning-committee/features/model/openai"
)

func TestCompleteText(t *testing.T) {
	mock := &mockChatClient{responses: []openai.ChatCompletionResponse{
		textResponse("The lights are all off."),
	}}
	client, err := openaimodel.New(openaimodel.Options{Client: mock, Model: "gpt-4o"})
	require.NoError(t, err)

	results, err := client.Complete(context.Background(), model.Request{
		Instruction: "You manage lights.",
		History: []history.Turn{
			{Role: message.RoleUser, Text: "Are any lights on?"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, message.RoleAssistant, results[0].Role)
	assert.Equal(t, "The lights are all off.", results[0].Text)

	require.Len(t, mock.requests, 1)
	msgs := mock.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "You manage lights.", msgs[0].Content)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "gpt-4o", mock.requests[0].Model)
}

func TestCompleteToolRoundTrip(t *testing.T) {
	mock := &mockChatClient{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call-1", "light_plugin-get_all_lights", `{}`),
		textResponse("The table lamp is on."),
	}}
	client, err := openaimodel.New(openaimodel.Options{Client: mock, Model: "gpt-4o"})
	require.NoError(t, err)

	var invoked bool
	tool := &model.Tool{
		PluginName:  "light_plugin",
		Name:        "get_all_lights",
		Description: "Retrieves all lights",
		Parameters:  map[string]any{"type": "object"},
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			invoked = true
			assert.Empty(t, args)
			return `[{"id":"1","is_on":true}]`, nil
		},
	}
	results, err := client.Complete(context.Background(), model.Request{
		History: []history.Turn{{Role: message.RoleUser, Text: "Which lights are on?"}},
		Tools:   []*model.Tool{tool},
	})
	require.NoError(t, err)
	require.True(t, invoked)
	require.Len(t, results, 3)

	assert.Equal(t, message.RoleAssistant, results[0].Role)
	require.Len(t, results[0].ToolCalls, 1)
	call := results[0].ToolCalls[0]
	assert.Equal(t, "call-1", call.ID)
	assert.Equal(t, "light_plugin", call.PluginName)
	assert.Equal(t, "get_all_lights", call.FunctionName)

	assert.Equal(t, message.RoleTool, results[1].Role)
	assert.Equal(t, "call-1", results[1].CallID)
	assert.Equal(t, `[{"id":"1","is_on":true}]`, results[1].Text)

	assert.Equal(t, message.RoleAssistant, results[2].Role)
	assert.Equal(t, "The table lamp is on.", results[2].Text)

	require.Len(t, mock.requests, 2)
	first := mock.requests[0]
	require.Len(t, first.Tools, 1)
	assert.Equal(t, "light_plugin-get_all_lights", first.Tools[0].Function.Name)

	second := mock.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, "assistant", second[1].Role)
	require.Len(t, second[1].ToolCalls, 1)
	assert.Equal(t, "tool", second[2].Role)
	assert.Equal(t, "call-1", second[2].ToolCallID)
}

func TestCompleteUnknownTool(t *testing.T) {
	mock := &mockChatClient{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call-1", "light_plugin-self_destruct", `{}`),
	}}
	client, err := openaimodel.New(openaimodel.Options{Client: mock, Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), model.Request{
		History: []history.Turn{{Role: message.RoleUser, Text: "boom"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestCompleteRoundLimit(t *testing.T) {
	loop := toolCallResponse("call-1", "light_plugin-get_all_lights", `{}`)
	mock := &mockChatClient{responses: []openai.ChatCompletionResponse{loop, loop, loop}}
	client, err := openaimodel.New(openaimodel.Options{Client: mock, Model: "gpt-4o", MaxToolRounds: 2})
	require.NoError(t, err)

	tool := &model.Tool{
		PluginName: "light_plugin",
		Name:       "get_all_lights",
		Invoke: func(context.Context, map[string]any) (string, error) {
			return "[]", nil
		},
	}
	_, err = client.Complete(context.Background(), model.Request{
		History: []history.Turn{{Role: message.RoleUser, Text: "loop"}},
		Tools:   []*model.Tool{tool},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool-call rounds")
}

func TestCompleteReplaysToolHistory(t *testing.T) {
	mock := &mockChatClient{responses: []openai.ChatCompletionResponse{
		textResponse("Done."),
	}}
	client, err := openaimodel.New(openaimodel.Options{Client: mock, Model: "gpt-4o"})
	require.NoError(t, err)

	args := &content.Arguments{}
	args.Set("id", "1")
	_, err = client.Complete(context.Background(), model.Request{
		History: []history.Turn{
			{Role: message.RoleUser, Text: "Turn on the lamp"},
			{Role: message.RoleAssistant, ToolCalls: []history.ToolCall{{
				ID:           "call-9",
				PluginName:   "light_plugin",
				FunctionName: "change_light_state",
				Arguments:    args,
			}}},
			{Role: message.RoleTool, Text: `{"id":"1","is_on":true}`, ResultID: "call-9"},
		},
	})
	require.NoError(t, err)

	msgs := mock.requests[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Empty(t, msgs[1].Content)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "call-9", msgs[1].ToolCalls[0].ID)
	assert.Equal(t, "light_plugin-change_light_state", msgs[1].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"id":"1"}`, msgs[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "call-9", msgs[2].ToolCallID)
}

func TestNewFromDeploymentUnknownKind(t *testing.T) {
	_, err := openaimodel.NewFromDeployment(openaimodel.Deployment{
		Kind:    "Gibberish",
		APIKey:  "sk-test",
		ModelID: "gpt-4o",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown deployment kind")
}

type mockChatClient struct {
	requests  []openai.ChatCompletionRequest
	responses []openai.ChatCompletionResponse
}

func (m *mockChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, req)
	idx := len(m.requests) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

func textResponse(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: "stop",
			Message: openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: text,
			},
		}},
	}
}

func toolCallResponse(id, name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: "tool_calls",
			Message: openai.ChatCompletionMessage{
				Role: "assistant",
				ToolCalls: []openai.ToolCall{{
					ID:   id,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      name,
						Arguments: args,
					},
				}},
			},
		}},
	}
}

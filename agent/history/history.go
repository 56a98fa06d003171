// Package history rebuilds the linear prompt history a completion client
// expects from the messages persisted for a thread.
package history

import (
	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
)

type (
	// Turn is one prompt-history entry. Text carries the first content
	// item's scalar value; tool calls and the result correlation id ride
	// alongside as structured metadata.
	Turn struct {
		Role      message.Role
		Text      string
		ToolCalls []ToolCall
		// ResultID is the correlation id of the function result carried by
		// the message, if any. Set on tool turns so the client can replay
		// the result against its originating call.
		ResultID string
	}

	// ToolCall is a replayed function call attached to a turn.
	ToolCall struct {
		ID           string
		PluginName   string
		FunctionName string
		Arguments    *content.Arguments
	}
)

// Build converts messages, already ordered by ascending creation time, into
// prompt turns. Each message yields exactly one turn: function call items
// accumulate into the turn's tool-call list, a function result item sets the
// turn's correlation id, and the first item's scalar value becomes the turn
// text. Only that first item's text is surfaced verbatim; the text of any
// further items is reachable through the structured metadata only.
func Build(msgs []message.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, msg := range msgs {
		turn := Turn{Role: msg.Role}
		for _, item := range msg.Items {
			switch c := item.(type) {
			case content.FunctionCallContent:
				turn.ToolCalls = append(turn.ToolCalls, ToolCall{
					ID:           c.ID,
					PluginName:   c.PluginName,
					FunctionName: c.FunctionName,
					Arguments:    c.Arguments,
				})
			case content.FunctionResultContent:
				turn.ResultID = c.ID
			}
		}
		if len(msg.Items) > 0 {
			turn.Text = msg.Items[0].Text()
		}
		turns = append(turns, turn)
	}
	return turns
}

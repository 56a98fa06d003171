// Package message defines the chat message aggregate persisted per thread,
// the author role enumeration, and the store interface the rest of the
// service consumes.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks content authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks content authored by the model.
	RoleAssistant Role = "assistant"
	// RoleSystem marks instruction content.
	RoleSystem Role = "system"
	// RoleTool marks function execution results.
	RoleTool Role = "tool"
)

// ErrNotFound reports a lookup of a message that does not exist.
var ErrNotFound = errors.New("message not found")

// ParseRole maps a persisted role string to its Role. The mapping is
// case-sensitive; any other string is a hard conversion failure rather than
// a silent default.
func ParseRole(s string) (Role, error) {
	switch s {
	case "assistant":
		return RoleAssistant, nil
	case "user":
		return RoleUser, nil
	case "system":
		return RoleSystem, nil
	case "tool":
		return RoleTool, nil
	default:
		return "", fmt.Errorf("unexpected author role %q", s)
	}
}

type (
	// Message is one persisted chat message: an ordered sequence of content
	// items plus provenance. Messages are immutable once created; the update
	// endpoint rejects modification unconditionally.
	Message struct {
		ID          string
		ThreadID    string
		RunID       string
		AssistantID string
		CreatedAt   time.Time
		Role        Role
		Items       []content.Item
	}

	// ListOptions bounds and orders a thread's message listing. After and
	// Before are accepted from the API but not applied to the query; see
	// the message list handler.
	ListOptions struct {
		Limit     int
		Ascending bool
		After     string
		Before    string
	}

	// Store persists messages. Implementations key writes on Message.ID,
	// which is assigned at construction time, making inserts idempotent.
	Store interface {
		Insert(ctx context.Context, msg Message) error
		Find(ctx context.Context, threadID, id string) (Message, error)
		List(ctx context.Context, threadID string, opts ListOptions) ([]Message, error)
		Delete(ctx context.Context, threadID, id string) (bool, error)
	}
)

// New builds a message with a freshly assigned id and the provided
// provenance. CreatedAt defaults to the current time when zero.
func New(threadID string, role Role, items []content.Item, runID, assistantID string, createdAt time.Time) Message {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return Message{
		ID:          primitive.NewObjectID().Hex(),
		ThreadID:    threadID,
		RunID:       runID,
		AssistantID: assistantID,
		CreatedAt:   createdAt,
		Role:        role,
		Items:       items,
	}
}

// MarshalJSON renders the public wire shape: snake_case provenance fields,
// created_at as Unix milliseconds and content as an array of typed items.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string        `json:"id"`
		ThreadID    string        `json:"thread_id"`
		RunID       string        `json:"run_id,omitempty"`
		AssistantID string        `json:"assistant_id,omitempty"`
		CreatedAt   int64         `json:"created_at"`
		Role        Role          `json:"role"`
		Content     content.Items `json:"content"`
	}{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		RunID:       m.RunID,
		AssistantID: m.AssistantID,
		CreatedAt:   m.CreatedAt.UnixMilli(),
		Role:        m.Role,
		Content:     content.Items(m.Items),
	})
}

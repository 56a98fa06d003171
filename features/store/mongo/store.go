// Package mongo provides MongoDB-backed implementations of the thread and
// message stores.
package mongo

import (
	"context"
	"errors"

	"goa.design/clue/health"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/thread"
	clmongo "github.com/matthewbolanos/sk-party-planning-committee/features/store/mongo/clients/mongo"
)

// ThreadStore persists threads in MongoDB.
type ThreadStore struct {
	client clmongo.Client
}

// MessageStore persists messages in MongoDB.
type MessageStore struct {
	client clmongo.Client
}

var (
	_ thread.Store  = (*ThreadStore)(nil)
	_ message.Store = (*MessageStore)(nil)
)

// NewThreadStore returns a thread store backed by the given client.
func NewThreadStore(client clmongo.Client) (*ThreadStore, error) {
	if client == nil {
		return nil, errors.New("mongo client is required")
	}
	return &ThreadStore{client: client}, nil
}

// NewMessageStore returns a message store backed by the given client.
func NewMessageStore(client clmongo.Client) (*MessageStore, error) {
	if client == nil {
		return nil, errors.New("mongo client is required")
	}
	return &MessageStore{client: client}, nil
}

func (s *ThreadStore) Insert(ctx context.Context, t thread.Thread) error {
	return s.client.InsertThread(ctx, t)
}

func (s *ThreadStore) Find(ctx context.Context, id string) (thread.Thread, error) {
	return s.client.FindThread(ctx, id)
}

func (s *ThreadStore) Exists(ctx context.Context, id string) (bool, error) {
	return s.client.ThreadExists(ctx, id)
}

func (s *ThreadStore) Delete(ctx context.Context, id string) (bool, error) {
	return s.client.DeleteThread(ctx, id)
}

// Pinger exposes the underlying client liveness check.
func (s *ThreadStore) Pinger() health.Pinger {
	return s.client
}

func (s *MessageStore) Insert(ctx context.Context, msg message.Message) error {
	return s.client.InsertMessage(ctx, msg)
}

func (s *MessageStore) Find(ctx context.Context, threadID, id string) (message.Message, error) {
	return s.client.FindMessage(ctx, threadID, id)
}

func (s *MessageStore) List(ctx context.Context, threadID string, opts message.ListOptions) ([]message.Message, error) {
	return s.client.ListMessages(ctx, threadID, opts)
}

func (s *MessageStore) Delete(ctx context.Context, threadID, id string) (bool, error) {
	return s.client.DeleteMessage(ctx, threadID, id)
}

// Package thread defines the conversation thread resource and its store
// interface. A thread owns its messages by foreign reference only.
package thread

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ObjectKind tags thread resources on the wire.
const ObjectKind = "thread"

// ErrNotFound reports a lookup of a thread that does not exist.
var ErrNotFound = errors.New("thread not found")

type (
	// Thread is a conversation container. It is immutable after creation
	// except for deletion.
	Thread struct {
		ID        string
		Object    string
		CreatedAt time.Time
	}

	// Store persists threads.
	Store interface {
		Insert(ctx context.Context, t Thread) error
		Find(ctx context.Context, id string) (Thread, error)
		Exists(ctx context.Context, id string) (bool, error)
		Delete(ctx context.Context, id string) (bool, error)
	}
)

// New builds a thread with a generated opaque id.
func New() Thread {
	return Thread{
		ID:        uuid.NewString(),
		Object:    ObjectKind,
		CreatedAt: time.Now().UTC(),
	}
}

// MarshalJSON renders the public wire shape with created_at as Unix
// milliseconds.
func (t Thread) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string `json:"id"`
		Object    string `json:"object"`
		CreatedAt int64  `json:"created_at"`
	}{t.ID, t.Object, t.CreatedAt.UnixMilli()})
}

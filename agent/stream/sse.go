package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// SSE is a Sink writing Server-Sent Events frames to an HTTP response. Each
// event is flushed immediately; a failed write means the client went away
// and aborts the run.
type SSE struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSE prepares the response for event streaming and returns the sink.
// The response writer must support flushing.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSE{w: w, flusher: flusher}, nil
}

// Send writes a single "event: <name>\ndata: <json>\n\n" frame.
func (s *SSE) Send(ctx context.Context, name string, payload any) error {
	data, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("serialize %s event: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return &WriteError{Name: name, Err: err}
	}
	s.flusher.Flush()
	return nil
}

// Close is a no-op: returning from the HTTP handler ends the stream.
func (s *SSE) Close(context.Context) error { return nil }

// CloseWithError reports the terminal error to the caller; the transport
// offers no way to signal it past the already-started response body.
func (s *SSE) CloseWithError(_ context.Context, err error) error { return err }

func encodePayload(payload any) ([]byte, error) {
	if raw, ok := payload.(Raw); ok {
		return []byte(raw), nil
	}
	return json.Marshal(payload)
}

// Package inmem provides an in-memory stream sink for tests and in-process
// consumers.
package inmem

import (
	"context"
	"sync"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/stream"
)

var _ stream.Sink = (*Sink)(nil)

// Event is one recorded sink write.
type Event struct {
	Name    string
	Payload any
}

// Sink records every event it receives. FailOn, when non-empty, makes the
// next Send of that event name fail, simulating a broken connection.
type Sink struct {
	mu       sync.Mutex
	events   []Event
	closed   bool
	closeErr error

	FailOn  string
	FailErr error
}

// New returns an empty sink.
func New() *Sink {
	return &Sink{}
}

// Send records the event, or fails if the name matches FailOn.
func (s *Sink) Send(_ context.Context, name string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOn != "" && name == s.FailOn {
		return s.FailErr
	}
	s.events = append(s.events, Event{Name: name, Payload: payload})
	return nil
}

// Close marks the sink closed.
func (s *Sink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// CloseWithError marks the sink closed and remembers the error.
func (s *Sink) CloseWithError(_ context.Context, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeErr = err
	return err
}

// Events returns a copy of the recorded events.
func (s *Sink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Names returns the recorded event names in order.
func (s *Sink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, ev := range s.events {
		names[i] = ev.Name
	}
	return names
}

// Closed reports whether the sink was closed and with which error.
func (s *Sink) Closed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeErr
}

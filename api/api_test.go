package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/engine"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/model"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/run"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/stream"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/thread"
	"github.com/matthewbolanos/sk-party-planning-committee/api"
)

func TestCreateThreadWithSeedMessages(t *testing.T) {
	svc, stores := newService(t, nil)
	body := `{"messages":[{"role":"user","content":"turn on the lights"}]}`

	rec := doRequest(t, svc, http.MethodPost, "/api/threads", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "thread", created.Object)

	msgs := stores.messages.byThread(created.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, message.RoleUser, msgs[0].Role)
	require.Len(t, msgs[0].Items, 1)
	assert.Equal(t, "turn on the lights", msgs[0].Items[0].Text())
}

func TestCreateThreadRejectsUnknownRole(t *testing.T) {
	svc, _ := newService(t, nil)
	body := `{"messages":[{"role":"User","content":"hi"}]}`

	rec := doRequest(t, svc, http.MethodPost, "/api/threads", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThreadLifecycle(t *testing.T) {
	svc, _ := newService(t, nil)

	rec := doRequest(t, svc, http.MethodPost, "/api/threads", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(t, svc, http.MethodGet, "/api/threads/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, svc, http.MethodPut, "/api/threads/"+created.ID, `{"name":"x"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(t, svc, http.MethodDelete, "/api/threads/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%q,"object":"thread.deleted","deleted":true}`, created.ID), rec.Body.String())

	rec = doRequest(t, svc, http.MethodGet, "/api/threads/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, svc, http.MethodDelete, "/api/threads/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%q,"object":"thread.deleted","deleted":false}`, created.ID), rec.Body.String())
}

func TestCreateMessage(t *testing.T) {
	svc, stores := newService(t, nil)
	th := seedThread(t, stores)

	rec := doRequest(t, svc, http.MethodPost, "/api/threads/"+th.ID+"/messages", `{"role":"user","content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/api/threads/"+th.ID+"/messages/")

	var created struct {
		ID        string            `json:"id"`
		Role      string            `json:"role"`
		CreatedAt int64             `json:"created_at"`
		Content   []json.RawMessage `json:"content"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "user", created.Role)
	assert.NotZero(t, created.CreatedAt)
	require.Len(t, created.Content, 1)
	assert.JSONEq(t, `{"type":"text","text":{"value":"hello","annotations":[]}}`, string(created.Content[0]))
}

func TestCreateMessageValidation(t *testing.T) {
	svc, stores := newService(t, nil)
	th := seedThread(t, stores)

	// Missing body.
	rec := doRequest(t, svc, http.MethodPost, "/api/threads/"+th.ID+"/messages", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing role.
	rec = doRequest(t, svc, http.MethodPost, "/api/threads/"+th.ID+"/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown thread.
	rec = doRequest(t, svc, http.MethodPost, "/api/threads/ghost/messages", `{"role":"user","content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageLifecycle(t *testing.T) {
	svc, stores := newService(t, nil)
	th := seedThread(t, stores)
	msg := message.New(th.ID, message.RoleUser, []content.Item{content.TextContent{Value: "hi"}}, "", "", time.Time{})
	require.NoError(t, stores.messages.Insert(context.Background(), msg))
	base := "/api/threads/" + th.ID + "/messages/" + msg.ID

	rec := doRequest(t, svc, http.MethodGet, base, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, svc, http.MethodPut, base, `{"content":"new"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(t, svc, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%q,"object":"message.deleted","deleted":true}`, msg.ID), rec.Body.String())

	rec = doRequest(t, svc, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, svc, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMessagesDefaults(t *testing.T) {
	svc, stores := newService(t, nil)
	th := seedThread(t, stores)
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		msg := message.New(th.ID, message.RoleUser, []content.Item{content.TextContent{Value: fmt.Sprintf("m%d", i)}}, "", "", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, stores.messages.Insert(context.Background(), msg))
	}

	rec := doRequest(t, svc, http.MethodGet, "/api/threads/"+th.ID+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []struct {
		Content []struct {
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 3)
	// Default order is newest first.
	assert.Equal(t, "m2", listed[0].Content[0].Text.Value)

	opts := stores.messages.lastListOptions()
	assert.Equal(t, 20, opts.Limit)
	assert.False(t, opts.Ascending)

	rec = doRequest(t, svc, http.MethodGet, "/api/threads/"+th.ID+"/messages?limit=2&order=asc&after=x&before=y", "")
	require.Equal(t, http.StatusOK, rec.Code)
	opts = stores.messages.lastListOptions()
	assert.Equal(t, 2, opts.Limit)
	assert.True(t, opts.Ascending)

	rec = doRequest(t, svc, http.MethodGet, "/api/threads/"+th.ID+"/messages?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunThreadMissing(t *testing.T) {
	svc, _ := newService(t, nil)

	rec := doRequest(t, svc, http.MethodPost, "/api/threads/ghost/runs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRunStreamsEvents(t *testing.T) {
	completer := completerFunc(func(ctx context.Context, req model.Request) ([]model.Result, error) {
		return []model.Result{{Role: message.RoleAssistant, Text: "The lights are now on."}}, nil
	})
	catalogue := catalogueFunc(func(ctx context.Context) ([]*model.Tool, error) {
		return nil, nil
	})
	svc, stores := newService(t, func(stores *fakeStores) api.Runner {
		eng, err := engine.New(engine.Options{
			Completer: completer,
			Messages:  stores.messages,
			Catalogue: catalogue,
		})
		require.NoError(t, err)
		return eng
	})
	th := seedThread(t, stores)
	seed := message.New(th.ID, message.RoleUser, []content.Item{content.TextContent{Value: "turn on the lights"}}, "", "", time.Time{})
	require.NoError(t, stores.messages.Insert(context.Background(), seed))

	rec := doRequest(t, svc, http.MethodPost, "/api/threads/"+th.ID+"/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body)
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.name
	}
	require.Equal(t, []string{
		stream.EventRunCreated,
		stream.EventRunQueued,
		stream.EventRunInProgress,
		stream.EventStepCreated,
		stream.EventStepInProgress,
		stream.EventMessageCreated,
		stream.EventMessageInProgress,
		stream.EventMessageDelta,
		stream.EventMessageCompleted,
		stream.EventRunCompleted,
		stream.EventStepCompleted,
		stream.EventDone,
	}, names)
	assert.Equal(t, "[DONE]", events[len(events)-1].data)

	msgs := stores.messages.byThread(th.ID)
	require.Len(t, msgs, 2)
	reply := msgs[1]
	assert.Equal(t, message.RoleAssistant, reply.Role)
	assert.Equal(t, run.AssistantID, reply.AssistantID)
	require.Len(t, reply.Items, 1)
	assert.Equal(t, "The lights are now on.", reply.Items[0].Text())
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body *bytes.Buffer) []sseEvent {
	t.Helper()
	var events []sseEvent
	scanner := bufio.NewScanner(body)
	var current sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.name != "" {
				events = append(events, current)
			}
			current = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

type fakeStores struct {
	threads  *fakeThreadStore
	messages *fakeMessageStore
}

func newService(t *testing.T, runner func(*fakeStores) api.Runner) (http.Handler, *fakeStores) {
	t.Helper()
	stores := &fakeStores{
		threads:  &fakeThreadStore{threads: map[string]thread.Thread{}},
		messages: &fakeMessageStore{},
	}
	var r api.Runner = runnerFunc(func(context.Context, *run.Run, stream.Sink) error { return nil })
	if runner != nil {
		r = runner(stores)
	}
	svc, err := api.New(api.Options{
		Threads:  stores.threads,
		Messages: stores.messages,
		Runner:   r,
	})
	require.NoError(t, err)
	return svc.Handler(), stores
}

func seedThread(t *testing.T, stores *fakeStores) thread.Thread {
	t.Helper()
	th := thread.New()
	require.NoError(t, stores.threads.Insert(context.Background(), th))
	return th
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type runnerFunc func(context.Context, *run.Run, stream.Sink) error

func (f runnerFunc) ExecuteRun(ctx context.Context, r *run.Run, sink stream.Sink) error {
	return f(ctx, r, sink)
}

type completerFunc func(context.Context, model.Request) ([]model.Result, error)

func (f completerFunc) Complete(ctx context.Context, req model.Request) ([]model.Result, error) {
	return f(ctx, req)
}

type catalogueFunc func(context.Context) ([]*model.Tool, error)

func (f catalogueFunc) Resolve(ctx context.Context) ([]*model.Tool, error) {
	return f(ctx)
}

type fakeThreadStore struct {
	mu      sync.Mutex
	threads map[string]thread.Thread
}

func (s *fakeThreadStore) Insert(_ context.Context, t thread.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID] = t
	return nil
}

func (s *fakeThreadStore) Find(_ context.Context, id string) (thread.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[id]
	if !ok {
		return thread.Thread{}, thread.ErrNotFound
	}
	return th, nil
}

func (s *fakeThreadStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.threads[id]
	return ok, nil
}

func (s *fakeThreadStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; !ok {
		return false, nil
	}
	delete(s.threads, id)
	return true, nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	msgs     []message.Message
	lastOpts message.ListOptions
}

func (s *fakeMessageStore) Insert(_ context.Context, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *fakeMessageStore) Find(_ context.Context, threadID, id string) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.msgs {
		if msg.ThreadID == threadID && msg.ID == id {
			return msg, nil
		}
	}
	return message.Message{}, message.ErrNotFound
}

func (s *fakeMessageStore) List(_ context.Context, threadID string, opts message.ListOptions) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOpts = opts
	var out []message.Message
	for _, msg := range s.msgs {
		if msg.ThreadID == threadID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if opts.Ascending {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[j].CreatedAt.Before(out[i].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *fakeMessageStore) Delete(_ context.Context, threadID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.msgs {
		if msg.ThreadID == threadID && msg.ID == id {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeMessageStore) byThread(threadID string) []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Message
	for _, msg := range s.msgs {
		if msg.ThreadID == threadID {
			out = append(out, msg)
		}
	}
	return out
}

func (s *fakeMessageStore) lastListOptions() message.ListOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpts
}

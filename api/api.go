// Package api exposes the REST surface of the lighting agent: thread and
// message CRUD under /api/threads and run creation streaming progress over
// SSE. Handlers stay thin: they validate, call the stores or the run engine,
// and map domain errors onto HTTP statuses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"goa.design/clue/log"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/run"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/stream"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/thread"
)

const defaultListLimit = 20

// Runner executes a run against an event sink. Implemented by the run
// engine.
type Runner interface {
	ExecuteRun(ctx context.Context, r *run.Run, sink stream.Sink) error
}

// Options configures the API service.
type Options struct {
	Threads  thread.Store
	Messages message.Store
	Runner   Runner
	// Middleware wraps the router, outermost first. Used to mount request
	// logging.
	Middleware []func(http.Handler) http.Handler
}

// Service holds the REST handlers and their dependencies.
type Service struct {
	threads    thread.Store
	messages   message.Store
	runner     Runner
	middleware []func(http.Handler) http.Handler
}

// New validates the options and returns the API service.
func New(opts Options) (*Service, error) {
	if opts.Threads == nil {
		return nil, errors.New("thread store is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("message store is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("runner is required")
	}
	return &Service{
		threads:    opts.Threads,
		messages:   opts.Messages,
		runner:     opts.Runner,
		middleware: opts.Middleware,
	}, nil
}

// Handler builds the router for the full REST surface.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range s.middleware {
		r.Use(mw)
	}
	r.Route("/api/threads", func(r chi.Router) {
		r.Post("/", s.createThread)
		r.Get("/{id}", s.getThread)
		r.Put("/{id}", s.methodNotAllowed)
		r.Delete("/{id}", s.deleteThread)
		r.Route("/{threadID}/messages", func(r chi.Router) {
			r.Post("/", s.createMessage)
			r.Get("/", s.listMessages)
			r.Get("/{id}", s.getMessage)
			r.Put("/{id}", s.methodNotAllowed)
			r.Delete("/{id}", s.deleteMessage)
		})
		r.Post("/{threadID}/runs", s.createRun)
	})
	return r
}

type threadInput struct {
	Messages []messageInput `json:"messages"`
}

type messageInput struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (s *Service) createThread(w http.ResponseWriter, r *http.Request) {
	var input threadInput
	if err := decodeBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	seeds := make([]message.Message, 0, len(input.Messages))
	th := thread.New()
	for i, seed := range input.Messages {
		role, err := message.ParseRole(seed.Role)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("message %d: %s", i, err))
			return
		}
		items, err := content.UnmarshalInputItems(seed.Content)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("message %d: %s", i, err))
			return
		}
		seeds = append(seeds, message.New(th.ID, role, items, "", "", time.Time{}))
	}
	ctx := r.Context()
	if err := s.threads.Insert(ctx, th); err != nil {
		s.internalError(ctx, w, "insert thread", err)
		return
	}
	for _, seed := range seeds {
		if err := s.messages.Insert(ctx, seed); err != nil {
			s.internalError(ctx, w, "insert seed message", err)
			return
		}
	}
	respondJSON(w, http.StatusCreated, th)
}

func (s *Service) getThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	th, err := s.threads.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			respondError(w, http.StatusNotFound, "thread not found")
			return
		}
		s.internalError(r.Context(), w, "find thread", err)
		return
	}
	respondJSON(w, http.StatusOK, th)
}

func (s *Service) deleteThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.threads.Delete(r.Context(), id)
	if err != nil {
		s.internalError(r.Context(), w, "delete thread", err)
		return
	}
	status := http.StatusOK
	if !deleted {
		status = http.StatusNotFound
	}
	respondJSON(w, status, deletionConfirmation{ID: id, Object: "thread.deleted", Deleted: deleted})
}

func (s *Service) createMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if threadID == "" {
		respondError(w, http.StatusBadRequest, "thread id is required")
		return
	}
	var input messageInput
	if err := decodeBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := message.ParseRole(input.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := content.UnmarshalInputItems(input.Content)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(items) == 0 {
		respondError(w, http.StatusBadRequest, "message content is required")
		return
	}
	ctx := r.Context()
	exists, err := s.threads.Exists(ctx, threadID)
	if err != nil {
		s.internalError(ctx, w, "check thread", err)
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, "thread not found")
		return
	}
	msg := message.New(threadID, role, items, "", "", time.Time{})
	if err := s.messages.Insert(ctx, msg); err != nil {
		s.internalError(ctx, w, "insert message", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/threads/%s/messages/%s", threadID, msg.ID))
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Service) getMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	id := chi.URLParam(r, "id")
	msg, err := s.messages.Find(r.Context(), threadID, id)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			respondError(w, http.StatusNotFound, "message not found")
			return
		}
		s.internalError(r.Context(), w, "find message", err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

func (s *Service) listMessages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	query := r.URL.Query()
	limit := defaultListLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	ascending := strings.EqualFold(query.Get("order"), "asc")
	// after and before are accepted for API compatibility but not applied
	// to the query.
	opts := message.ListOptions{
		Limit:     limit,
		Ascending: ascending,
		After:     query.Get("after"),
		Before:    query.Get("before"),
	}
	msgs, err := s.messages.List(r.Context(), threadID, opts)
	if err != nil {
		s.internalError(r.Context(), w, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (s *Service) deleteMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	id := chi.URLParam(r, "id")
	deleted, err := s.messages.Delete(r.Context(), threadID, id)
	if err != nil {
		s.internalError(r.Context(), w, "delete message", err)
		return
	}
	status := http.StatusOK
	if !deleted {
		status = http.StatusNotFound
	}
	respondJSON(w, status, deletionConfirmation{ID: id, Object: "message.deleted", Deleted: deleted})
}

func (s *Service) createRun(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if threadID == "" {
		respondError(w, http.StatusBadRequest, "thread id is required")
		return
	}
	ctx := r.Context()
	exists, err := s.threads.Exists(ctx, threadID)
	if err != nil {
		s.internalError(ctx, w, "check thread", err)
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, fmt.Sprintf("thread with id %q not found", threadID))
		return
	}
	sink, err := stream.NewSSE(w)
	if err != nil {
		s.internalError(ctx, w, "open event stream", err)
		return
	}
	newRun := run.New(threadID)
	if err := s.runner.ExecuteRun(ctx, newRun, sink); err != nil {
		// The stream already carried the failure to the client.
		log.Errorf(ctx, err, "run %s failed", newRun.ID)
	}
}

func (s *Service) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, "update operation is not supported")
}

func (s *Service) internalError(ctx context.Context, w http.ResponseWriter, what string, err error) {
	log.Errorf(ctx, err, "%s", what)
	respondError(w, http.StatusInternalServerError, "internal error")
}

type deletionConfirmation struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

func decodeBody(r *http.Request, target any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf(context.Background(), err, "encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

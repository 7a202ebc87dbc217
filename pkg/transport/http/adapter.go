// Package http serves the ausweis session control surface over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/storage"
	"github.com/ausweis-dev/ausweis/pkg/transport"
)

// Adapter routes session control requests to a SessionController and
// serializes session state back to the client.
type Adapter struct {
	controller transport.SessionController
	starter    transport.SessionStarter
	mux        *http.ServeMux
	config     Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20, // 1 MB
	}
}

// NewAdapter creates an HTTP adapter around the given controller.
// Middleware is applied to the start-session operation in the given order.
func NewAdapter(controller transport.SessionController, cfg Config, middlewares ...transport.Middleware) *Adapter {
	var starter transport.SessionStarter = controller
	if len(middlewares) > 0 {
		starter = transport.Chain(middlewares...)(starter)
	}

	a := &Adapter{
		controller: controller,
		starter:    starter,
		mux:        http.NewServeMux(),
		config:     cfg,
	}

	a.mux.HandleFunc("POST /v1/sessions", a.handleStartSession)
	a.mux.HandleFunc("GET /v1/sessions", a.handleListSessions)
	a.mux.HandleFunc("GET /v1/sessions/{id}", a.handleGetSession)
	a.mux.HandleFunc("POST /v1/sessions/{id}/cancel", a.handleCancelSession)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)

	return a
}

// Handler returns the http.Handler for this adapter. The returned
// handler includes HTTP-level middleware for X-Request-ID propagation.
func (a *Adapter) Handler() http.Handler {
	return requestIDMiddleware(a.mux)
}

// requestIDMiddleware propagates the client's X-Request-ID header into
// the context and echoes the effective ID on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

// startSessionRequest is the wire format for POST /v1/sessions.
type startSessionRequest struct {
	Goal string `json:"goal"`
}

func (a *Adapter) handleStartSession(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.config.MaxBodySize))
	if err != nil {
		transport.WriteError(w, api.NewValidationError("body", "reading request body: "+err.Error()))
		return
	}

	var req startSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		transport.WriteError(w, api.NewValidationError("body", "invalid JSON: "+err.Error()))
		return
	}

	id, err := a.starter.StartSession(r.Context(), req.Goal)
	if err != nil {
		transport.WriteError(w, err)
		return
	}

	sess, err := a.controller.GetSession(r.Context(), id)
	if err != nil {
		// Started but not readable back: report the ID anyway.
		writeJSON(w, http.StatusCreated, &api.Session{ID: id, Status: api.SessionStatusActive})
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (a *Adapter) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := a.controller.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *Adapter) handleListSessions(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		transport.WriteError(w, err)
		return
	}

	list, err := a.controller.ListSessions(r.Context(), opts)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *Adapter) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.controller.CancelSession(r.Context(), id); err != nil {
		transport.WriteError(w, err)
		return
	}

	// Cancellation is cooperative: the session aborts at its next phase
	// boundary, so the state returned here may still be active.
	sess, err := a.controller.GetSession(r.Context(), id)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := a.controller.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseListOptions(r *http.Request) (storage.ListOptions, error) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		After: q.Get("after"),
		Order: q.Get("order"),
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return opts, api.NewValidationError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	if v := q.Get("status"); v != "" {
		switch status := api.SessionStatus(v); status {
		case api.SessionStatusActive, api.SessionStatusCompleted, api.SessionStatusFailed, api.SessionStatusAborted:
			opts.Status = status
		default:
			return opts, api.NewValidationError("status", "unknown status "+v)
		}
	}

	switch opts.Order {
	case "", "asc", "desc":
	default:
		return opts, api.NewValidationError("order", `order must be "asc" or "desc"`)
	}

	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		return
	}
}

// Package httpapi exposes the todo operations over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"todoapi/internal/todo"
)

const maxBodyBytes = 1 << 20

// Handler handles HTTP requests for todo items.
type Handler struct {
	todos  *todo.Service
	logger *log.Logger
}

// NewHandler creates a Handler with dependencies.
func NewHandler(todos *todo.Service, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{todos: todos, logger: logger}
}

// NewRouter wires the routes and middleware. Every /todos route passes the
// authorizer before reaching its handler.
func NewRouter(h *Handler, verifier todo.Verifier) http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID, loggingMiddleware(h.logger), withRecover(h.logger), corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/todos", func(r chi.Router) {
		r.Use(authorizer(verifier, h.logger))
		r.Get("/", h.handleListTodos)
		r.Post("/", h.handleCreateTodo)
		r.Patch("/{todoId}", h.handleUpdateTodo)
		r.Delete("/{todoId}", h.handleDeleteTodo)
		r.Post("/{todoId}/attachment", h.handleUploadURL)
	})
	return r
}

// handleListTodos processes GET /todos.
func (h *Handler) handleListTodos(w http.ResponseWriter, r *http.Request) {
	items, err := h.todos.List(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeError(w, "listing todos", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleCreateTodo processes POST /todos.
func (h *Handler) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var req todo.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.todos.Create(r.Context(), r.Header.Get("Authorization"), req)
	if err != nil {
		h.writeError(w, "creating todo", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/todos/%s", item.TodoID))
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

// handleUpdateTodo processes PATCH /todos/{todoId}.
func (h *Handler) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var req todo.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.todos.Update(r.Context(), r.Header.Get("Authorization"), chi.URLParam(r, "todoId"), req)
	if err != nil {
		h.writeError(w, "updating todo", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

// handleDeleteTodo processes DELETE /todos/{todoId}.
func (h *Handler) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	if err := h.todos.Delete(r.Context(), r.Header.Get("Authorization"), chi.URLParam(r, "todoId")); err != nil {
		h.writeError(w, "deleting todo", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadURL processes POST /todos/{todoId}/attachment.
func (h *Handler) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	uploadURL, err := h.todos.RequestUploadURL(r.Context(), r.Header.Get("Authorization"), chi.URLParam(r, "todoId"))
	if err != nil {
		h.writeError(w, "issuing upload url", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uploadUrl": uploadURL})
}

// writeError maps service errors to responses. Upstream failures are logged
// and hidden behind a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, todo.ErrUnauthorized):
		h.logger.Printf("%s: %v", action, err)
		writeUnauthorized(w)
	case errors.Is(err, todo.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, todo.ErrNotFound):
		writeErr(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	default:
		h.logger.Printf("error %s: %v", action, err)
		writeErr(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request payload: %v", err)
	}
	return ensureSingleJSON(dec)
}

// ensureSingleJSON ensures only a single JSON object is in the request body.
func ensureSingleJSON(dec *json.Decoder) error {
	if t, err := dec.Token(); err != io.EOF || t != nil {
		return fmt.Errorf("request body must only contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="todoapi", error="invalid_token"`)
	writeErr(w, http.StatusUnauthorized, "unauthorized")
}

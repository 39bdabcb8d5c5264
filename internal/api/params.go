package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/tweaker/internal/param"
	"github.com/kalambet/tweaker/internal/store"
)

const maxRequestBodySize = 64 << 10 // 64KB

// Deps holds dependencies for the management API.
type Deps struct {
	Store *store.Store
	// Token enables bearer authentication when non-empty.
	Token string
	// MCP mounts the MCP endpoint at /mcp when true.
	MCP    bool
	Logger *slog.Logger
}

// FieldView is the JSON form of one parameter.
type FieldView struct {
	Name      string      `json:"name"`
	Kind      string      `json:"kind"`
	Value     param.Value `json:"value"`
	Increment param.Value `json:"increment,omitzero"`
}

// SetRequest is the body of PUT /params/{name}. Value is coerced into the
// parameter's kind the same way the terminal UI does.
type SetRequest struct {
	Value string `json:"value"`
}

func viewOf(f store.Field) FieldView {
	return FieldView{
		Name:      f.Name,
		Kind:      f.Value.Kind().String(),
		Value:     f.Value,
		Increment: f.Increment,
	}
}

// NewHandler returns the management API router.
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/params", handleListParams(deps))
		r.Get("/params/{name}", handleGetParam(deps))
		r.Put("/params/{name}", handleSetParam(deps, logger))
		r.Post("/save", handleSave(deps, logger))

		if deps.MCP {
			r.Handle("/mcp", server.NewStreamableHTTPServer(NewMCPServer(deps.Store)))
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListParams(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views := make([]FieldView, 0, deps.Store.Len())
		for f := range deps.Store.Fields() {
			views = append(views, viewOf(f))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetParam(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		f, ok := deps.Store.Field(name)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown parameter %q", name)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(f))
	}
}

func handleSetParam(deps Deps, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		name := chi.URLParam(r, "name")
		if _, err := deps.Store.Set(name, req.Value); err != nil {
			status, typ := setErrorStatus(err)
			httpError(w, status, typ, "%v", err)
			return
		}
		logger.Debug("parameter set", "name", name, "raw", req.Value)

		f, _ := deps.Store.Field(name)
		writeJSON(w, http.StatusOK, viewOf(f))
	}
}

func handleSave(deps Deps, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Save(); err != nil {
			logger.Error("saving store failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "saving: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"saved": deps.Store.Len()})
	}
}

func setErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrUnknownName):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, param.ErrCoercion):
		return http.StatusBadRequest, "invalid_value"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

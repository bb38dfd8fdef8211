// Package api exposes the search pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/kalambet/askweb/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Searches is the part of the pipeline the HTTP and MCP layers call.
type Searches interface {
	Run(ctx context.Context, query string) (storage.Record, error)
	Get(ctx context.Context, id int64) (storage.Record, error)
	Recent(ctx context.Context, limit int) ([]storage.Record, error)
}

// Deps holds the handler's collaborators.
type Deps struct {
	Searches Searches
	Logger   *slog.Logger
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string
	// Token, when set, is required as a bearer token on /api routes.
	Token string
}

// NewHandler returns the full HTTP surface: the search API, health check,
// and the middleware stack around them.
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recovery(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not_found", "no route for %s %s", r.Method, r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusMethodNotAllowed, "method_not_allowed", "%s is not allowed on %s", r.Method, r.URL.Path)
	})

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/search", handleSearch(deps.Searches, logger))
		r.Get("/searches", handleListSearches(deps.Searches, logger))
		r.Get("/searches/{id}", handleGetSearch(deps.Searches, logger))
	})

	return withCORS(r, deps.CORSOrigins)
}

func withCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	})
	return c.Handler(h)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, errorBody{
		Error:   errType,
		Message: fmt.Sprintf(format, args...),
	})
}

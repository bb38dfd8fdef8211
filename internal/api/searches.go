package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/askweb/internal/apperr"
	"github.com/kalambet/askweb/internal/pipeline"
	"github.com/kalambet/askweb/internal/storage"
)

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
}

func handleSearch(searches Searches, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, apperr.Code(apperr.Validation), "invalid request body: %v", err)
			return
		}

		rec, err := searches.Run(r.Context(), req.Query)
		if err != nil {
			writeAppError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

func handleListSearches(searches Searches, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", storage.DefaultRecentLimit, pipeline.MaxRecentLimit)

		recs, err := searches.Recent(r.Context(), limit)
		if err != nil {
			writeAppError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, recs)
	}
}

func handleGetSearch(searches Searches, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpError(w, http.StatusNotFound, "not_found", "search not found")
			return
		}

		rec, err := searches.Get(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "search not found")
			return
		}
		if err != nil {
			writeAppError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

// writeAppError maps a pipeline error onto a response. Provider details
// are logged but only a summary reaches the client.
func writeAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "kind", kind.String(), "error", err)
	}
	httpError(w, status, apperr.Code(kind), "%s", apperr.PublicMessage(err))
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

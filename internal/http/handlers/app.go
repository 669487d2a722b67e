package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"imagebatch/internal/artifact"
	"imagebatch/internal/domain"
	"imagebatch/internal/orchestrator"
	"imagebatch/internal/registry"
)

// App holds the services behind the orchestrator REST API.
type App struct {
	Batches   *orchestrator.Service
	Submitter *orchestrator.Submitter
	Registry  *registry.Service
	Artifacts *artifact.Assembler
	Logger    zerolog.Logger
	// Ping checks the database for the health probe; nil skips the check.
	Ping func(ctx context.Context) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, map[string]string{"error": kind, "message": msg})
}

// fail maps a domain error onto a status code by its category.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	cat := domain.CategoryOf(err)
	code := StatusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError && cat == domain.CategoryInternal {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	a.error(w, code, string(cat), msg)
}

// StatusFor is the HTTP status used for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTransformationUnknown):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAccountDisabled):
		return http.StatusForbidden
	}
	switch domain.CategoryOf(err) {
	case domain.CategoryValidation:
		return http.StatusBadRequest
	case domain.CategoryReference:
		return http.StatusNotFound
	case domain.CategoryConflict:
		return http.StatusConflict
	case domain.CategoryAuthorization:
		return http.StatusUnauthorized
	case domain.CategoryTransport:
		return http.StatusServiceUnavailable
	case domain.CategoryConsistency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), "invalid payload")
		return false
	}
	return true
}

// pathID reads a positive integer URL parameter.
func (a *App) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), fmt.Sprintf("%s must be a positive integer", name))
		return 0, false
	}
	return id, true
}

// queryLimit reads ?limit=, returning 0 when absent.
func (a *App) queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

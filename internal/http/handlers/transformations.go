package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"imagebatch/internal/domain"
)

func (a *App) ListTransformations(w http.ResponseWriter, r *http.Request) {
	items, err := a.Batches.ListActiveTransformations(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Transformation{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) GetTransformation(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "transformationID")
	if !ok {
		return
	}
	t, err := a.Batches.GetTransformation(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, t)
}

func (a *App) GetTransformationByName(w http.ResponseWriter, r *http.Request) {
	t, err := a.Batches.GetTransformationByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, t)
}

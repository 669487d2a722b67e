package handlers

import (
	"net/http"

	"imagebatch/internal/domain"
)

func (a *App) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "imageID")
	if !ok {
		return
	}
	img, err := a.Batches.GetImage(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, img)
}

type recordResultRequest struct {
	NodeID int64 `json:"node_id"`
	domain.ResultInput
}

func (a *App) RecordResult(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "imageID")
	if !ok {
		return
	}
	var req recordResultRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.NodeID <= 0 {
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), "node_id is required")
		return
	}
	out, err := a.Batches.RecordResult(r.Context(), id, req.NodeID, req.ResultInput)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusCreated
	if out.Duplicate {
		code = http.StatusOK
	}
	a.json(w, code, map[string]any{"result_id": out.ResultID, "duplicate": out.Duplicate, "counted": out.Counted})
}

func (a *App) MarkImageProcessed(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "imageID")
	if !ok {
		return
	}
	if err := a.Batches.MarkImageProcessed(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"image_id": id, "processed": true})
}

func (a *App) AddImageTransformation(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "imageID")
	if !ok {
		return
	}
	var req domain.TransformationRequest
	if !a.decode(w, r, &req) {
		return
	}
	att, err := a.Batches.AddTransformation(r.Context(), id, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, att)
}

func (a *App) ListImageTransformations(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "imageID")
	if !ok {
		return
	}
	items, err := a.Batches.ListImageTransformations(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.attachments(w, items)
}

func (a *App) ListBatchTransformations(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "batchID")
	if !ok {
		return
	}
	items, err := a.Batches.ListBatchTransformations(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.attachments(w, items)
}

func (a *App) attachments(w http.ResponseWriter, items []domain.ImageTransformation) {
	if items == nil {
		items = []domain.ImageTransformation{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

package handlers

import (
	"net/http"

	"imagebatch/internal/domain"
	"imagebatch/internal/middleware"
	"imagebatch/internal/orchestrator"
)

type createBatchRequest struct {
	UserID          int64  `json:"user_id"`
	BatchName       string `json:"batch_name"`
	OutputFormat    string `json:"output_format"`
	CompressionType string `json:"compression_type"`
}

func (a *App) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if !a.decode(w, r, &req) {
		return
	}
	batch, err := a.Batches.CreateBatch(r.Context(), domain.NewBatch{
		UserID:          req.UserID,
		Name:            req.BatchName,
		OutputFormat:    req.OutputFormat,
		CompressionType: req.CompressionType,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, batch)
}

func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "batchID")
	if !ok {
		return
	}
	batch, err := a.Batches.GetBatch(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, batch)
}

// UpdateBatchStatus applies a partial update; only supplied fields are written.
func (a *App) UpdateBatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "batchID")
	if !ok {
		return
	}
	var u domain.StatusUpdate
	if !a.decode(w, r, &u) {
		return
	}
	batch, err := a.Batches.AdvanceBatchStatus(r.Context(), id, u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, batch)
}

func (a *App) ListUserBatches(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}
	batches, err := a.Batches.ListUserBatches(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if batches == nil {
		batches = []domain.Batch{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": batches})
}

type registerImagesRequest struct {
	Images []domain.ImageDescriptor `json:"images"`
}

func (a *App) RegisterImages(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "batchID")
	if !ok {
		return
	}
	var req registerImagesRequest
	if !a.decode(w, r, &req) {
		return
	}
	ids, err := a.Batches.RegisterImages(r.Context(), id, req.Images)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"batch_id": id, "image_ids": ids})
}

func (a *App) ListBatchImages(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "batchID")
	if !ok {
		return
	}
	images, err := a.Batches.ListBatchImages(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if images == nil {
		images = []domain.ImageWithResult{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": images})
}

func (a *App) BatchMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "batchID")
	if !ok {
		return
	}
	m, err := a.Batches.BatchMetrics(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, m)
}

// SubmitBatch runs a whole submission for the session's user.
func (a *App) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var sub orchestrator.Submission
	if !a.decode(w, r, &sub) {
		return
	}
	sub.UserID = middleware.UserIDFromContext(r.Context())
	summary, err := a.Submitter.Submit(r.Context(), sub)
	if err != nil {
		if summary == nil {
			a.fail(w, r, err)
			return
		}
		code := StatusFor(err)
		a.json(w, code, map[string]any{
			"error":   string(domain.CategoryOf(err)),
			"message": err.Error(),
			"summary": summary,
		})
		return
	}
	a.json(w, http.StatusOK, summary)
}

// MyBatches lists the batches of the session's user.
func (a *App) MyBatches(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == 0 {
		a.fail(w, r, domain.ErrUnauthorized)
		return
	}
	batches, err := a.Batches.ListUserBatches(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if batches == nil {
		batches = []domain.Batch{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": batches})
}

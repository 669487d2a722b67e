package handlers

import (
	"net/http"

	"imagebatch/internal/domain"
)

func (a *App) CreateLog(w http.ResponseWriter, r *http.Request) {
	var e domain.LogEntry
	if !a.decode(w, r, &e) {
		return
	}
	id, err := a.Batches.Journal().Append(r.Context(), e)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"log_id": id})
}

func (a *App) BatchLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "batchID")
	if !ok {
		return
	}
	logs, err := a.Batches.Journal().ByBatch(r.Context(), id)
	a.logs(w, r, logs, err)
}

func (a *App) ImageLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "imageID")
	if !ok {
		return
	}
	logs, err := a.Batches.Journal().ByImage(r.Context(), id)
	a.logs(w, r, logs, err)
}

func (a *App) NodeLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "nodeID")
	if !ok {
		return
	}
	limit, ok := a.queryLimit(w, r)
	if !ok {
		return
	}
	logs, err := a.Batches.Journal().ByNode(r.Context(), id, limit)
	a.logs(w, r, logs, err)
}

// RecentLogs returns the newest entries; limit defaults to 100 and is capped at 500.
func (a *App) RecentLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := a.queryLimit(w, r)
	if !ok {
		return
	}
	logs, err := a.Batches.Journal().Recent(r.Context(), limit)
	a.logs(w, r, logs, err)
}

func (a *App) logs(w http.ResponseWriter, r *http.Request, logs []domain.ExecutionLog, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []domain.ExecutionLog{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": logs})
}

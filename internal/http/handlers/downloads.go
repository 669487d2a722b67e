package handlers

import (
	"fmt"
	"net/http"
	"strconv"
)

// DownloadBatch streams the zip of a batch's successful results.
func (a *App) DownloadBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "batchID")
	if !ok {
		return
	}
	archive, err := a.Artifacts.AssembleDownload(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", archive.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive.Data)))
	if len(archive.Missing) > 0 {
		w.Header().Set("X-Missing-Artifacts", strconv.Itoa(len(archive.Missing)))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive.Data)
}

// DownloadInfo describes what a download would contain without reading storage.
func (a *App) DownloadInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "batchID")
	if !ok {
		return
	}
	m, err := a.Artifacts.Manifest(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, m)
}

package handlers

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
)

//go:embed openapi.json
var openAPISpec []byte

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8" />
<title>{{.Title}} {{.Version}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1" />
<style>body{margin:0}redoc{display:block;height:100vh}</style>
</head>
<body>
<redoc spec-url="{{.SpecURL}}"></redoc>
<script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
</body>
</html>`))

var (
	specOnce sync.Once
	specETag string
	specInfo struct {
		Title   string `json:"title"`
		Version string `json:"version"`
	}
)

func loadSpecMeta() {
	sum := sha256.Sum256(openAPISpec)
	specETag = `"` + hex.EncodeToString(sum[:8]) + `"`
	var doc struct {
		Info json.RawMessage `json:"info"`
	}
	if json.Unmarshal(openAPISpec, &doc) == nil {
		_ = json.Unmarshal(doc.Info, &specInfo)
	}
}

// OpenAPIJSON serves the embedded API description. Clients revalidate with
// If-None-Match.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	specOnce.Do(loadSpecMeta)
	w.Header().Set("ETag", specETag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == specETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, r *http.Request) {
	specOnce.Do(loadSpecMeta)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	err := docsPage.Execute(w, map[string]string{
		"Title":   specInfo.Title,
		"Version": specInfo.Version,
		"SpecURL": "/v1/openapi.json",
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("render docs page")
	}
}

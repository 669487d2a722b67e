package nodeagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"imagebatch/internal/dispatch"
	"imagebatch/internal/domain"
)

// Executor runs a job's pipeline over its bytes.
type Executor interface {
	Execute(ctx context.Context, job dispatch.Job) ([]byte, error)
}

// Passthrough returns the input unchanged. It rejects steps without a name.
type Passthrough struct{}

func (Passthrough) Execute(_ context.Context, job dispatch.Job) ([]byte, error) {
	for i, t := range job.Transformations {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("transformation %d has no name", i)
		}
	}
	return job.Data, nil
}

// Processor serves dispatched jobs.
type Processor struct {
	exec   Executor
	hb     *Heartbeater
	logger zerolog.Logger
}

// NewProcessor builds a Processor; hb may be nil when load is not reported.
func NewProcessor(exec Executor, hb *Heartbeater, logger zerolog.Logger) *Processor {
	if exec == nil {
		exec = Passthrough{}
	}
	return &Processor{exec: exec, hb: hb, logger: logger}
}

// Routes mounts the job endpoint and a health probe.
func (p *Processor) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/v1/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Post(dispatch.ProcessPath, p.handleProcess)
	return r
}

func (p *Processor) handleProcess(w http.ResponseWriter, r *http.Request) {
	var job dispatch.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, "invalid job payload", http.StatusBadRequest)
		return
	}
	if job.Filename == "" || len(job.Data) == 0 {
		http.Error(w, "filename and data are required", http.StatusBadRequest)
		return
	}
	if p.hb != nil {
		p.hb.Acquire()
		defer p.hb.Release()
	}
	out := p.run(r.Context(), job)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (p *Processor) run(ctx context.Context, job dispatch.Job) dispatch.Outcome {
	started := time.Now()
	format := strings.ToLower(job.OutputFormat)
	out := dispatch.Outcome{
		ResultFilename: resultName(job.Filename, format),
		Format:         format,
	}
	data, err := p.exec.Execute(ctx, job)
	out.ProcessingTimeMS = time.Since(started).Milliseconds()
	if err != nil {
		out.Status = domain.ResultFailure
		out.ErrorMessage = err.Error()
		p.logger.Warn().Err(err).Int64("image_id", job.ImageID).Msg("nodeagent: job failed")
		return out
	}
	out.Status = domain.ResultSuccess
	out.Data = data
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		out.Width, out.Height = &cfg.Width, &cfg.Height
	}
	p.logger.Info().
		Int64("batch_id", job.BatchID).
		Int64("image_id", job.ImageID).
		Int("steps", len(job.Transformations)).
		Int64("elapsed_ms", out.ProcessingTimeMS).
		Msg("nodeagent: job done")
	return out
}

// resultName is processed_<stem>.<format>, keeping the original extension
// when no format was requested.
func resultName(filename, format string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if format == "" {
		return "processed_" + base
	}
	return "processed_" + stem + "." + format
}

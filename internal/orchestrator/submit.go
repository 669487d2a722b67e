package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"imagebatch/internal/dispatch"
	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/storage"
)

// SubmitImage is one image of a submission, with its bytes.
type SubmitImage struct {
	Filename        string                         `json:"filename"`
	Data            []byte                         `json:"image_data_base64"`
	Transformations []domain.TransformationRequest `json:"transformations"`
}

// Submission is a complete batch request from a user.
type Submission struct {
	UserID          int64         `json:"user_id"`
	BatchName       string        `json:"batch_name"`
	OutputFormat    string        `json:"output_format,omitempty"`
	CompressionType string        `json:"compression_type,omitempty"`
	Images          []SubmitImage `json:"images"`
}

// Summary reports how a submission went.
type Summary struct {
	BatchID          int64              `json:"batch_id"`
	Status           domain.BatchStatus `json:"status"`
	TotalImages      int                `json:"total_images"`
	ProcessedImages  int                `json:"processed_images"`
	FailedImages     int                `json:"failed_images"`
	ProcessingTimeMS int64              `json:"processing_time_ms"`
	DownloadURL      string             `json:"download_url"`
}

// NodeSource lists nodes eligible for dispatch.
type NodeSource interface {
	ListActiveNodes(ctx context.Context) ([]domain.Node, error)
}

// SubmitterOptions tunes dispatch.
type SubmitterOptions struct {
	Concurrency   int
	Attempts      int
	PublicBaseURL string
}

// Submitter runs a submission end to end: store inputs, register, dispatch,
// record results and close the batch.
type Submitter struct {
	svc      *Service
	nodes    NodeSource
	selector dispatch.Selector
	client   dispatch.NodeClient
	store    storage.ArtifactStore
	logger   zerolog.Logger
	opts     SubmitterOptions
}

func NewSubmitter(svc *Service, nodes NodeSource, selector dispatch.Selector, client dispatch.NodeClient, store storage.ArtifactStore, logger zerolog.Logger, opts SubmitterOptions) *Submitter {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Submitter{
		svc:      svc,
		nodes:    nodes,
		selector: selector,
		client:   client,
		store:    store,
		logger:   logger,
		opts:     opts,
	}
}

// DownloadURL is where the archive of a batch can be fetched.
func (s *Submitter) DownloadURL(batchID int64) string {
	return fmt.Sprintf("%s/api/batches/%d/download", s.opts.PublicBaseURL, batchID)
}

// Submit processes a batch synchronously. A batch that cannot be dispatched
// at all is closed as failed and the cause returned alongside its id.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (*Summary, error) {
	ctx, span := infra.StartSpan(ctx, "orchestrator.Submit", attribute.Int("images", len(sub.Images)))
	defer span.End()
	started := time.Now()

	if len(sub.Images) == 0 {
		return nil, fmt.Errorf("images: %w", domain.ErrMissingField)
	}
	for i, img := range sub.Images {
		if strings.TrimSpace(img.Filename) == "" {
			return nil, fmt.Errorf("images[%d].filename: %w", i, domain.ErrMissingField)
		}
		if len(img.Data) == 0 {
			return nil, fmt.Errorf("images[%d].image_data_base64: %w", i, domain.ErrMissingField)
		}
	}

	batch, err := s.svc.CreateBatch(ctx, domain.NewBatch{
		UserID:          sub.UserID,
		Name:            sub.BatchName,
		OutputFormat:    sub.OutputFormat,
		CompressionType: sub.CompressionType,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("batch_id", batch.ID))
	refs := Refs{Batch: batch.ID}

	descriptors := make([]domain.ImageDescriptor, len(sub.Images))
	stored := make([]string, 0, len(sub.Images))
	for i, img := range sub.Images {
		key, err := s.store.Write(ctx, storage.InputKey(batch.ID, i, img.Filename), img.Data)
		if err != nil {
			s.discardInputs(ctx, batch.ID, stored)
			return s.abort(ctx, batch, started, fmt.Errorf("store input %s: %w", img.Filename, err))
		}
		stored = append(stored, key)
		size := int64(len(img.Data))
		descriptors[i] = domain.ImageDescriptor{
			OriginalFilename: img.Filename,
			StoragePath:      key,
			FileSize:         &size,
			Format:           formatOf(img.Filename),
			Transformations:  img.Transformations,
		}
	}
	imageIDs, err := s.svc.RegisterImages(ctx, batch.ID, descriptors)
	if err != nil {
		s.discardInputs(ctx, batch.ID, stored)
		return s.abort(ctx, batch, started, err)
	}

	nodes, err := s.nodes.ListActiveNodes(ctx)
	if err != nil {
		return s.abort(ctx, batch, started, err)
	}
	if len(nodes) == 0 {
		return s.abort(ctx, batch, started, domain.ErrNoActiveNodes)
	}

	if _, err := s.svc.AdvanceBatchStatus(ctx, batch.ID, domain.StatusTo(domain.BatchProcessing)); err != nil {
		return nil, err
	}
	s.journal().Info(ctx, refs, "dispatching %d images to %d nodes", len(imageIDs), len(nodes))

	var succeeded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, imageID := range imageIDs {
		job := dispatch.Job{
			BatchID:         batch.ID,
			ImageID:         imageID,
			Filename:        sub.Images[i].Filename,
			OutputFormat:    batch.OutputFormat,
			Data:            sub.Images[i].Data,
			Transformations: sub.Images[i].Transformations,
		}
		g.Go(func() error {
			ok, err := s.runJob(gctx, nodes, job)
			if err != nil {
				return err
			}
			if ok {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		s.journal().Error(ctx, refs, "dispatch aborted: %v", err)
		return s.finish(ctx, batch.ID, domain.BatchFailed, started, int(failed.Load()), err)
	}

	final := domain.BatchFailed
	if succeeded.Load() > 0 {
		final = domain.BatchCompleted
	}
	return s.finish(ctx, batch.ID, final, started, int(failed.Load()), nil)
}

// runJob sends one image to a node, moving to another node on transport
// failures, and records the outcome. It reports whether the image succeeded.
func (s *Submitter) runJob(ctx context.Context, nodes []domain.Node, job dispatch.Job) (bool, error) {
	refs := Refs{Batch: job.BatchID, Image: job.ImageID}
	var (
		lastNode domain.Node
		lastErr  error
		ran      int
	)
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		node, err := s.selector.Pick(nodes)
		if err != nil {
			return false, err
		}
		lastNode, ran = node, attempt
		outcome, err := s.client.Process(ctx, node, job)
		s.selector.Release(node.ID)
		if err != nil {
			lastErr = err
			s.journal().Warn(ctx, Refs{Batch: job.BatchID, Image: job.ImageID, Node: node.ID}, "attempt %d failed: %v", attempt, err)
			if errors.Is(err, domain.ErrTransport) {
				continue
			}
			break
		}
		return s.recordOutcome(ctx, node, job, attempt, outcome)
	}

	msg := "dispatch failed"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	s.logger.Warn().Int64("batch_id", job.BatchID).Int64("image_id", job.ImageID).Str("error", msg).Msg("orchestrator: image not processed")
	_, err := s.svc.RecordResult(ctx, job.ImageID, lastNode.ID, domain.ResultInput{
		Attempt:        ran,
		ResultFilename: job.Filename,
		Status:         domain.ResultFailure,
		ErrorMessage:   msg,
	})
	if err != nil && !errors.Is(err, domain.ErrNodeNotFound) {
		return false, err
	}
	s.journal().Error(ctx, refs, "image %s failed: %s", job.Filename, msg)
	return false, nil
}

func (s *Submitter) recordOutcome(ctx context.Context, node domain.Node, job dispatch.Job, attempt int, outcome *dispatch.Outcome) (bool, error) {
	in := domain.ResultInput{
		Attempt:          attempt,
		ResultFilename:   outcome.ResultFilename,
		Width:            outcome.Width,
		Height:           outcome.Height,
		ProcessingTimeMS: &outcome.ProcessingTimeMS,
		Status:           outcome.Status,
		ErrorMessage:     outcome.ErrorMessage,
	}
	if in.ResultFilename == "" {
		in.ResultFilename = job.Filename
	}
	if outcome.Format != "" {
		in.Format = &outcome.Format
	}
	if in.Status == domain.ResultSuccess {
		key, err := s.store.Write(ctx, storage.OutputKey(job.BatchID, job.ImageID, in.ResultFilename), outcome.Data)
		if err != nil {
			return false, fmt.Errorf("store output for image %d: %w", job.ImageID, err)
		}
		size := int64(len(outcome.Data))
		in.StoragePath = key
		in.FileSize = &size
	}
	if _, err := s.svc.RecordResult(ctx, job.ImageID, node.ID, in); err != nil {
		return false, err
	}
	return in.Status == domain.ResultSuccess, nil
}

func (s *Submitter) abort(ctx context.Context, batch *domain.Batch, started time.Time, cause error) (*Summary, error) {
	s.journal().Error(ctx, Refs{Batch: batch.ID}, "submission aborted: %v", cause)
	return s.finish(ctx, batch.ID, domain.BatchFailed, started, 0, cause)
}

// discardInputs removes input files that no image row refers to.
func (s *Submitter) discardInputs(ctx context.Context, batchID int64, keys []string) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.store.Delete(cleanupCtx, key); err != nil {
			s.logger.Warn().Err(err).Int64("batch_id", batchID).Str("key", key).Msg("orchestrator: discard input failed")
		}
	}
}

func (s *Submitter) finish(ctx context.Context, batchID int64, status domain.BatchStatus, started time.Time, failed int, cause error) (*Summary, error) {
	// The caller's context may already be cancelled; closing the batch must still happen.
	closeCtx := context.WithoutCancel(ctx)
	batch, err := s.svc.AdvanceBatchStatus(closeCtx, batchID, domain.StatusTo(status))
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	summary := &Summary{
		BatchID:          batch.ID,
		Status:           batch.Status,
		TotalImages:      batch.TotalImages,
		ProcessedImages:  batch.ProcessedImages,
		FailedImages:     failed,
		ProcessingTimeMS: time.Since(started).Milliseconds(),
		DownloadURL:      s.DownloadURL(batch.ID),
	}
	s.logger.Info().
		Int64("batch_id", batch.ID).
		Str("status", string(batch.Status)).
		Int("processed", batch.ProcessedImages).
		Int("failed", failed).
		Int64("elapsed_ms", summary.ProcessingTimeMS).
		Msg("orchestrator: batch finished")
	return summary, cause
}

func (s *Submitter) journal() *Journal { return s.svc.journal }

func formatOf(filename string) *string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		return nil
	}
	return &ext
}

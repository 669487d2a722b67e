// Package orchestrator owns the batch lifecycle: creation, image
// registration, result recording and status transitions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"imagebatch/internal/domain"
)

// Repositories groups the stores the orchestrator writes through.
type Repositories struct {
	Batches         domain.BatchRepository
	Images          domain.ImageRepository
	Results         domain.ResultRepository
	Transformations domain.TransformationRepository
}

// Service implements the batch operations.
type Service struct {
	batches         domain.BatchRepository
	images          domain.ImageRepository
	results         domain.ResultRepository
	transformations domain.TransformationRepository
	journal         *Journal
	logger          zerolog.Logger
}

func NewService(repos Repositories, journal *Journal, logger zerolog.Logger) *Service {
	return &Service{
		batches:         repos.Batches,
		images:          repos.Images,
		results:         repos.Results,
		transformations: repos.Transformations,
		journal:         journal,
		logger:          logger,
	}
}

// Journal returns the execution journal the service writes to.
func (s *Service) Journal() *Journal { return s.journal }

// CreateBatch creates a pending batch with default formats filled in.
func (s *Service) CreateBatch(ctx context.Context, nb domain.NewBatch) (*domain.Batch, error) {
	if nb.UserID <= 0 {
		return nil, fmt.Errorf("user_id: %w", domain.ErrMissingField)
	}
	nb.Name = strings.TrimSpace(nb.Name)
	if nb.Name == "" {
		return nil, fmt.Errorf("batch_name: %w", domain.ErrMissingField)
	}
	nb.OutputFormat = strings.ToLower(strings.TrimSpace(nb.OutputFormat))
	if nb.OutputFormat == "" {
		nb.OutputFormat = domain.DefaultOutputFormat
	}
	nb.CompressionType = strings.ToLower(strings.TrimSpace(nb.CompressionType))
	if nb.CompressionType == "" {
		nb.CompressionType = domain.DefaultCompressionType
	}
	batch, err := s.batches.Create(ctx, nb)
	if err != nil {
		return nil, err
	}
	s.journal.Info(ctx, Refs{Batch: batch.ID}, "batch %q created", batch.Name)
	return batch, nil
}

// RegisterImages adds images with their pipelines to a batch. Either every
// image is registered or none is.
func (s *Service) RegisterImages(ctx context.Context, batchID int64, images []domain.ImageDescriptor) ([]int64, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("images: %w", domain.ErrMissingField)
	}
	for i, img := range images {
		if strings.TrimSpace(img.OriginalFilename) == "" {
			return nil, fmt.Errorf("images[%d].original_filename: %w", i, domain.ErrMissingField)
		}
		if strings.TrimSpace(img.StoragePath) == "" {
			return nil, fmt.Errorf("images[%d].storage_path: %w", i, domain.ErrMissingField)
		}
		for k, t := range img.Transformations {
			if strings.TrimSpace(t.Name) == "" {
				return nil, fmt.Errorf("images[%d].transformations[%d].name: %w", i, k, domain.ErrMissingField)
			}
			if t.ExecutionOrder < 0 {
				return nil, fmt.Errorf("images[%d].transformations[%d].execution_order: %w", i, k, domain.ErrInvalidField)
			}
		}
	}
	ids, err := s.images.Register(ctx, batchID, images)
	if err != nil {
		if errors.Is(err, domain.ErrTransformationUnknown) {
			s.journal.Warn(ctx, Refs{Batch: batchID}, "image registration rejected: %v", err)
		}
		return nil, err
	}
	s.journal.Info(ctx, Refs{Batch: batchID}, "%d images registered", len(ids))
	return ids, nil
}

// RecordResult stores a node's outcome for an image.
func (s *Service) RecordResult(ctx context.Context, imageID, nodeID int64, in domain.ResultInput) (domain.RecordOutcome, error) {
	if in.Status != "" && !in.Status.Valid() {
		return domain.RecordOutcome{}, fmt.Errorf("status %q: %w", in.Status, domain.ErrInvalidField)
	}
	if in.Attempt < 0 {
		return domain.RecordOutcome{}, fmt.Errorf("attempt: %w", domain.ErrInvalidField)
	}
	if in.Status != domain.ResultFailure {
		if strings.TrimSpace(in.ResultFilename) == "" {
			return domain.RecordOutcome{}, fmt.Errorf("result_filename: %w", domain.ErrMissingField)
		}
		if strings.TrimSpace(in.StoragePath) == "" {
			return domain.RecordOutcome{}, fmt.Errorf("storage_path: %w", domain.ErrMissingField)
		}
	}
	out, err := s.results.Record(ctx, imageID, nodeID, in)
	if err != nil {
		return domain.RecordOutcome{}, err
	}
	refs := Refs{Image: imageID, Node: nodeID}
	switch {
	case out.Duplicate:
		s.logger.Debug().Int64("image_id", imageID).Int64("node_id", nodeID).Msg("orchestrator: duplicate result ignored")
	case in.Status == domain.ResultFailure:
		s.journal.Warn(ctx, refs, "processing failed: %s", in.ErrorMessage)
	default:
		s.journal.Info(ctx, refs, "result %s recorded", in.ResultFilename)
	}
	return out, nil
}

// AdvanceBatchStatus applies a partial status update.
func (s *Service) AdvanceBatchStatus(ctx context.Context, batchID int64, u domain.StatusUpdate) (*domain.Batch, error) {
	if u.IsEmpty() {
		return nil, fmt.Errorf("status update carries no field: %w", domain.ErrMissingField)
	}
	if u.Status != nil && !u.Status.Valid() {
		return nil, fmt.Errorf("status %q: %w", *u.Status, domain.ErrInvalidField)
	}
	if u.ProcessedImages != nil && *u.ProcessedImages < 0 {
		return nil, fmt.Errorf("processed_images: %w", domain.ErrInvalidField)
	}
	batch, err := s.batches.ApplyStatus(ctx, batchID, u)
	if err != nil {
		return nil, err
	}
	if u.Status != nil {
		s.journal.Info(ctx, Refs{Batch: batchID}, "batch status is %s", batch.Status)
	}
	return batch, nil
}

func (s *Service) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	return s.batches.GetByID(ctx, id)
}

func (s *Service) ListUserBatches(ctx context.Context, userID int64) ([]domain.Batch, error) {
	return s.batches.ListByUser(ctx, userID)
}

func (s *Service) GetImage(ctx context.Context, id int64) (*domain.Image, error) {
	return s.images.GetByID(ctx, id)
}

// ListBatchImages returns a batch's images with their latest result.
func (s *Service) ListBatchImages(ctx context.Context, batchID int64) ([]domain.ImageWithResult, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.images.ListByBatch(ctx, batchID)
}

func (s *Service) MarkImageProcessed(ctx context.Context, imageID int64) error {
	return s.images.MarkProcessed(ctx, imageID)
}

// AddTransformation attaches one more pipeline step to an image.
func (s *Service) AddTransformation(ctx context.Context, imageID int64, req domain.TransformationRequest) (*domain.ImageTransformation, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("name: %w", domain.ErrMissingField)
	}
	if req.ExecutionOrder < 0 {
		return nil, fmt.Errorf("execution_order: %w", domain.ErrInvalidField)
	}
	return s.images.AddTransformation(ctx, imageID, req)
}

func (s *Service) ListImageTransformations(ctx context.Context, imageID int64) ([]domain.ImageTransformation, error) {
	return s.images.ListTransformations(ctx, imageID)
}

func (s *Service) ListBatchTransformations(ctx context.Context, batchID int64) ([]domain.ImageTransformation, error) {
	return s.images.ListBatchTransformations(ctx, batchID)
}

func (s *Service) ListActiveTransformations(ctx context.Context) ([]domain.Transformation, error) {
	return s.transformations.ListActive(ctx)
}

func (s *Service) GetTransformation(ctx context.Context, id int64) (*domain.Transformation, error) {
	return s.transformations.GetByID(ctx, id)
}

func (s *Service) GetTransformationByName(ctx context.Context, name string) (*domain.Transformation, error) {
	return s.transformations.GetActiveByName(ctx, name)
}

// BatchMetrics combines the batch record, its manifest and per-node stats.
// A batch without results has no manifest.
func (s *Service) BatchMetrics(ctx context.Context, batchID int64) (*domain.BatchMetrics, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	rows, err := s.results.ListRows(ctx, batchID, false)
	if err != nil {
		return nil, err
	}
	nodes, err := s.results.NodeBreakdown(ctx, batchID)
	if err != nil {
		return nil, err
	}
	out := &domain.BatchMetrics{Batch: *batch, Nodes: nodes}
	if out.Nodes == nil {
		out.Nodes = []domain.NodeBatchStats{}
	}
	if len(rows) > 0 {
		m := domain.BuildManifest(batchID, rows)
		out.Manifest = &m
	}
	return out, nil
}

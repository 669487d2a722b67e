// Package memrepo holds in-memory repositories with the same semantics as the
// PostgreSQL ones. Services are tested against it.
package memrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"imagebatch/internal/domain"
)

// Store is the shared state behind every repository view. A single mutex
// stands in for row locks and transactions.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	seq map[string]int64

	batches         map[int64]*domain.Batch
	images          map[int64]*domain.Image
	attachments     []domain.ImageTransformation
	transformations map[int64]*domain.Transformation
	results         []domain.ProcessedResult
	nodes           map[int64]*domain.Node
	logs            []domain.ExecutionLog
	users           map[int64]*domain.User
	sessions        map[string]*domain.Session
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:             func() time.Time { return time.Now().UTC() },
		seq:             map[string]int64{},
		batches:         map[int64]*domain.Batch{},
		images:          map[int64]*domain.Image{},
		transformations: map[int64]*domain.Transformation{},
		nodes:           map[int64]*domain.Node{},
		users:           map[int64]*domain.User{},
		sessions:        map[string]*domain.Session{},
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) next(kind string) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

func (s *Store) Batches() *BatchRepo { return &BatchRepo{s} }
func (s *Store) Images() *ImageRepo { return &ImageRepo{s} }
func (s *Store) Results() *ResultRepo { return &ResultRepo{s} }
func (s *Store) Nodes() *NodeRepo { return &NodeRepo{s} }
func (s *Store) Transformations() *TransformationRepo { return &TransformationRepo{s} }
func (s *Store) Logs() *LogRepo { return &LogRepo{s} }
func (s *Store) Users() *UserRepo { return &UserRepo{s} }
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s} }

// BatchRepo implements domain.BatchRepository.
type BatchRepo struct{ s *Store }

func (r *BatchRepo) Create(_ context.Context, b domain.NewBatch) (*domain.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	batch := &domain.Batch{
		ID:              r.s.next("batch"),
		UserID:          b.UserID,
		Name:            b.Name,
		Status:          domain.BatchPending,
		OutputFormat:    b.OutputFormat,
		CompressionType: b.CompressionType,
		CreatedAt:       r.s.now(),
	}
	r.s.batches[batch.ID] = batch
	out := *batch
	return &out, nil
}

func (r *BatchRepo) GetByID(_ context.Context, id int64) (*domain.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	out := *b
	return &out, nil
}

func (r *BatchRepo) ListByUser(_ context.Context, userID int64) ([]domain.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Batch
	for _, b := range r.s.batches {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *BatchRepo) ApplyStatus(_ context.Context, id int64, u domain.StatusUpdate) (*domain.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	if u.Status != nil && !domain.CanTransition(b.Status, *u.Status) {
		return nil, fmt.Errorf("batch %d is %s: %w", id, b.Status, domain.ErrInvalidTransition)
	}
	next := *b
	if u.ProcessedImages != nil && *u.ProcessedImages > next.ProcessedImages {
		next.ProcessedImages = *u.ProcessedImages
	}
	if next.ProcessedImages > next.TotalImages {
		return nil, fmt.Errorf("processed_images exceeds total_images: %w", domain.ErrInvalidField)
	}
	now := r.s.now()
	if u.Status != nil {
		next.Status = *u.Status
	}
	switch {
	case u.StartedAt != nil:
		t := *u.StartedAt
		next.StartedAt = &t
	case u.Status != nil && *u.Status == domain.BatchProcessing && next.StartedAt == nil:
		next.StartedAt = &now
	}
	switch {
	case u.CompletedAt != nil:
		t := *u.CompletedAt
		next.CompletedAt = &t
	case u.Status != nil && u.Status.Terminal() && next.CompletedAt == nil:
		next.CompletedAt = &now
	}
	*b = next
	return &next, nil
}

// ImageRepo implements domain.ImageRepository.
type ImageRepo struct{ s *Store }

func (r *ImageRepo) Register(_ context.Context, batchID int64, images []domain.ImageDescriptor) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[batchID]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	for _, img := range images {
		for _, t := range img.Transformations {
			if _, ok := r.s.activeByName(t.Name); !ok {
				return nil, fmt.Errorf("%q: %w", domain.NormalizeTransformationName(t.Name), domain.ErrTransformationUnknown)
			}
		}
	}
	ids := make([]int64, 0, len(images))
	now := r.s.now()
	for _, d := range images {
		img := &domain.Image{
			ID:               r.s.next("image"),
			BatchID:          batchID,
			OriginalFilename: d.OriginalFilename,
			StoragePath:      d.StoragePath,
			FileSize:         d.FileSize,
			Width:            d.Width,
			Height:           d.Height,
			Format:           d.Format,
			CreatedAt:        now,
		}
		r.s.images[img.ID] = img
		for _, t := range d.Transformations {
			tr, _ := r.s.activeByName(t.Name)
			if _, err := r.s.attach(img.ID, tr, t); err != nil {
				return nil, err
			}
		}
		ids = append(ids, img.ID)
	}
	b.TotalImages += len(images)
	return ids, nil
}

func (r *ImageRepo) GetByID(_ context.Context, id int64) (*domain.Image, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	img, ok := r.s.images[id]
	if !ok {
		return nil, domain.ErrImageNotFound
	}
	out := *img
	return &out, nil
}

func (r *ImageRepo) ListByBatch(_ context.Context, batchID int64) ([]domain.ImageWithResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ImageWithResult
	for _, id := range r.s.imageIDs(batchID) {
		item := domain.ImageWithResult{Image: *r.s.images[id]}
		for i := len(r.s.results) - 1; i >= 0; i-- {
			if r.s.results[i].ImageID == id {
				res := r.s.results[i]
				item.Result = &res
				break
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *ImageRepo) MarkProcessed(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	img, ok := r.s.images[id]
	if !ok {
		return domain.ErrImageNotFound
	}
	if img.ProcessedAt == nil {
		now := r.s.now()
		img.ProcessedAt = &now
	}
	return nil
}

func (r *ImageRepo) AddTransformation(_ context.Context, imageID int64, req domain.TransformationRequest) (*domain.ImageTransformation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.images[imageID]; !ok {
		return nil, domain.ErrImageNotFound
	}
	tr, ok := r.s.activeByName(req.Name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", domain.NormalizeTransformationName(req.Name), domain.ErrTransformationUnknown)
	}
	return r.s.attach(imageID, tr, req)
}

func (r *ImageRepo) ListTransformations(_ context.Context, imageID int64) ([]domain.ImageTransformation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ImageTransformation
	for _, a := range r.s.attachments {
		if a.ImageID == imageID {
			out = append(out, a)
		}
	}
	sortAttachments(out)
	return out, nil
}

func (r *ImageRepo) ListBatchTransformations(_ context.Context, batchID int64) ([]domain.ImageTransformation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ImageTransformation
	for _, a := range r.s.attachments {
		if img, ok := r.s.images[a.ImageID]; ok && img.BatchID == batchID {
			out = append(out, a)
		}
	}
	sortAttachments(out)
	return out, nil
}

func sortAttachments(a []domain.ImageTransformation) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].ImageID != a[j].ImageID {
			return a[i].ImageID < a[j].ImageID
		}
		if a[i].ExecutionOrder != a[j].ExecutionOrder {
			return a[i].ExecutionOrder < a[j].ExecutionOrder
		}
		return a[i].ID < a[j].ID
	})
}

func (s *Store) attach(imageID int64, tr *domain.Transformation, req domain.TransformationRequest) (*domain.ImageTransformation, error) {
	params := req.Parameters
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	order := req.ExecutionOrder
	if order == 0 {
		order = 1
	}
	a := domain.ImageTransformation{
		ID:               s.next("attachment"),
		ImageID:          imageID,
		TransformationID: tr.ID,
		Name:             tr.Name,
		Parameters:       raw,
		ExecutionOrder:   order,
		Status:           "pending",
		CreatedAt:        s.now(),
	}
	s.attachments = append(s.attachments, a)
	return &a, nil
}

func (s *Store) activeByName(name string) (*domain.Transformation, bool) {
	folded := domain.NormalizeTransformationName(name)
	for _, t := range s.transformations {
		if t.IsActive && strings.ToLower(t.Name) == folded {
			return t, true
		}
	}
	return nil, false
}

func (s *Store) imageIDs(batchID int64) []int64 {
	var ids []int64
	for id, img := range s.images {
		if img.BatchID == batchID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

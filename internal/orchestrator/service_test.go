package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"imagebatch/internal/adapter/memrepo"
	"imagebatch/internal/domain"
)

func newTestService(t *testing.T, catalog ...string) (*Service, *memrepo.Store) {
	t.Helper()
	store := memrepo.New()
	for _, name := range catalog {
		if _, err := store.Transformations().Upsert(context.Background(), domain.Transformation{Name: name, Version: "1.0", IsActive: true}); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	svc := NewService(Repositories{
		Batches:         store.Batches(),
		Images:          store.Images(),
		Results:         store.Results(),
		Transformations: store.Transformations(),
	}, NewJournal(store.Logs(), zerolog.Nop()), zerolog.Nop())
	return svc, store
}

func descriptors(n int, pipeline ...string) []domain.ImageDescriptor {
	out := make([]domain.ImageDescriptor, n)
	for i := range out {
		out[i] = domain.ImageDescriptor{OriginalFilename: "img.jpg", StoragePath: "in/img.jpg"}
		for k, name := range pipeline {
			out[i].Transformations = append(out[i].Transformations, domain.TransformationRequest{Name: name, ExecutionOrder: k + 1})
		}
	}
	return out
}

func TestCreateBatchDefaultsAndValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.CreateBatch(ctx, domain.NewBatch{UserID: 1, Name: " holiday "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != domain.BatchPending || b.OutputFormat != "jpg" || b.CompressionType != "zip" || b.Name != "holiday" {
		t.Fatalf("unexpected batch %+v", b)
	}
	if _, err := svc.CreateBatch(ctx, domain.NewBatch{UserID: 1}); domain.CategoryOf(err) != domain.CategoryValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.CreateBatch(ctx, domain.NewBatch{Name: "x"}); domain.CategoryOf(err) != domain.CategoryValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterImagesAttachesEveryStep(t *testing.T) {
	svc, _ := newTestService(t, "resize", "grayscale", "blur")
	ctx := context.Background()
	b, _ := svc.CreateBatch(ctx, domain.NewBatch{UserID: 1, Name: "n"})

	ids, err := svc.RegisterImages(ctx, b.ID, descriptors(4, "Resize", "GRAYSCALE", "blur"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("expected 4 images, got %d", len(ids))
	}
	attachments, _ := svc.ListBatchTransformations(ctx, b.ID)
	if len(attachments) != 12 {
		t.Fatalf("expected 12 attachments, got %d", len(attachments))
	}
	got, _ := svc.GetBatch(ctx, b.ID)
	if got.TotalImages != 4 {
		t.Fatalf("expected total 4, got %d", got.TotalImages)
	}
	steps, _ := svc.ListImageTransformations(ctx, ids[0])
	if steps[0].Name != "resize" || steps[2].Name != "blur" {
		t.Fatalf("steps out of order: %+v", steps)
	}
}

func TestRegisterImagesUnknownNameWritesNothing(t *testing.T) {
	svc, _ := newTestService(t, "resize")
	ctx := context.Background()
	b, _ := svc.CreateBatch(ctx, domain.NewBatch{UserID: 1, Name: "n"})

	_, err := svc.RegisterImages(ctx, b.ID, descriptors(3, "resize", "sepia"))
	if !errors.Is(err, domain.ErrTransformationUnknown) {
		t.Fatalf("expected ErrTransformationUnknown, got %v", err)
	}
	images, _ := svc.ListBatchImages(ctx, b.ID)
	if len(images) != 0 {
		t.Fatalf("expected no images, got %d", len(images))
	}
	got, _ := svc.GetBatch(ctx, b.ID)
	if got.TotalImages != 0 {
		t.Fatalf("expected total 0, got %d", got.TotalImages)
	}
}

func TestTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b, _ := svc.CreateBatch(ctx, domain.NewBatch{UserID: 1, Name: "n"})

	p, err := svc.AdvanceBatchStatus(ctx, b.ID, domain.StatusTo(domain.BatchProcessing))
	if err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if p.StartedAt == nil {
		t.Fatalf("started_at must be stamped")
	}
	again, err := svc.AdvanceBatchStatus(ctx, b.ID, domain.StatusTo(domain.BatchProcessing))
	if err != nil {
		t.Fatalf("same status: %v", err)
	}
	if !again.StartedAt.Equal(*p.StartedAt) {
		t.Fatalf("started_at must not move on a repeated update")
	}
	c, err := svc.AdvanceBatchStatus(ctx, b.ID, domain.StatusTo(domain.BatchCompleted))
	if err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if c.CompletedAt == nil {
		t.Fatalf("completed_at must be stamped")
	}
	if _, err := svc.AdvanceBatchStatus(ctx, b.ID, domain.StatusTo(domain.BatchProcessing)); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.AdvanceBatchStatus(ctx, b.ID, domain.StatusUpdate{}); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("expected ErrMissingField for empty update, got %v", err)
	}
	bogus := domain.BatchStatus("archived")
	if _, err := svc.AdvanceBatchStatus(ctx, b.ID, domain.StatusUpdate{Status: &bogus}); !errors.Is(err, domain.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
}

func TestConcurrentResultsNeverExceedTotal(t *testing.T) {
	svc, store := newTestService(t, "grayscale")
	ctx := context.Background()
	b, _ := svc.CreateBatch(ctx, domain.NewBatch{UserID: 1, Name: "load"})
	ids, err := svc.RegisterImages(ctx, b.ID, descriptors(20, "grayscale"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	const nodes = 5
	for n := int64(1); n <= nodes; n++ {
		if _, err := store.Nodes().Heartbeat(ctx, domain.Heartbeat{NodeID: n}); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
	}

	var wg sync.WaitGroup
	for n := int64(1); n <= nodes; n++ {
		for _, imageID := range ids {
			wg.Add(1)
			go func(node, image int64) {
				defer wg.Done()
				_, err := svc.RecordResult(ctx, image, node, domain.ResultInput{ResultFilename: "out.jpg", StoragePath: "out/x.jpg"})
				if err != nil {
					t.Errorf("record: %v", err)
				}
			}(n, imageID)
		}
	}
	wg.Wait()

	got, _ := svc.GetBatch(ctx, b.ID)
	if got.ProcessedImages != len(ids) {
		t.Fatalf("expected processed %d, got %d", len(ids), got.ProcessedImages)
	}
	if got.ProcessedImages > got.TotalImages {
		t.Fatalf("processed %d exceeds total %d", got.ProcessedImages, got.TotalImages)
	}
}

func TestRecordResultReferences(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b, _ := svc.CreateBatch(ctx, domain.NewBatch{UserID: 1, Name: "n"})
	ids, _ := svc.RegisterImages(ctx, b.ID, descriptors(1))
	_, _ = store.Nodes().Heartbeat(ctx, domain.Heartbeat{NodeID: 1})

	in := domain.ResultInput{ResultFilename: "o.jpg", StoragePath: "o.jpg"}
	if _, err := svc.RecordResult(ctx, 999, 1, in); !errors.Is(err, domain.ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
	if _, err := svc.RecordResult(ctx, ids[0], 42, in); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	first, err := svc.RecordResult(ctx, ids[0], 1, in)
	if err != nil || !first.Counted {
		t.Fatalf("first record: %+v %v", first, err)
	}
	replay, err := svc.RecordResult(ctx, ids[0], 1, in)
	if err != nil || !replay.Duplicate || replay.ResultID != first.ResultID {
		t.Fatalf("replay: %+v %v", replay, err)
	}
	if _, err := svc.RecordResult(ctx, ids[0], 1, domain.ResultInput{Attempt: 2}); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

type failingLogs struct{ domain.LogRepository }

func (failingLogs) Append(context.Context, domain.LogEntry) (int64, error) {
	return 0, errors.New("disk full")
}

func TestJournalFailuresDoNotFailOperations(t *testing.T) {
	store := memrepo.New()
	svc := NewService(Repositories{
		Batches:         store.Batches(),
		Images:          store.Images(),
		Results:         store.Results(),
		Transformations: store.Transformations(),
	}, NewJournal(failingLogs{}, zerolog.Nop()), zerolog.Nop())

	if _, err := svc.CreateBatch(context.Background(), domain.NewBatch{UserID: 1, Name: "n"}); err != nil {
		t.Fatalf("journal failure leaked: %v", err)
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"imagebatch/internal/adapter/memrepo"
	"imagebatch/internal/artifact"
	"imagebatch/internal/dispatch"
	"imagebatch/internal/domain"
	"imagebatch/internal/storage"
)

type staticNodes []domain.Node

func (s staticNodes) ListActiveNodes(context.Context) ([]domain.Node, error) { return s, nil }

// fakeNode echoes the input bytes back, failing with a transport error for
// the node ids listed in down and with a plain error for those in reject.
type fakeNode struct {
	mu     sync.Mutex
	down   map[int64]bool
	reject map[int64]bool
	calls  []int64
}

func (f *fakeNode) Process(_ context.Context, node domain.Node, job dispatch.Job) (*dispatch.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, node.ID)
	f.mu.Unlock()
	if f.down[node.ID] {
		return nil, fmt.Errorf("dial %s: %w", node.Address(), domain.ErrTransport)
	}
	if f.reject[node.ID] {
		return nil, errors.New("unsupported image")
	}
	return &dispatch.Outcome{
		Status:           domain.ResultSuccess,
		ResultFilename:   "processed_" + job.Filename,
		Format:           job.OutputFormat,
		ProcessingTimeMS: 12,
		Data:             append([]byte("out:"), job.Data...),
	}, nil
}

type submitFixture struct {
	store  *memrepo.Store
	svc    *Service
	files  *storage.FileStore
	client *fakeNode
	sub    *Submitter
}

func newSubmitFixture(t *testing.T, nodeIDs []int64, attempts int) *submitFixture {
	t.Helper()
	svc, store := newTestService(t, "grayscale")
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	var nodes staticNodes
	for _, id := range nodeIDs {
		if _, err := store.Nodes().Heartbeat(context.Background(), domain.Heartbeat{NodeID: id}); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
		n, _ := store.Nodes().GetByID(context.Background(), id)
		nodes = append(nodes, *n)
	}
	client := &fakeNode{down: map[int64]bool{}, reject: map[int64]bool{}}
	sub := NewSubmitter(svc, nodes, &dispatch.RoundRobin{}, client, files, zerolog.Nop(), SubmitterOptions{
		Concurrency:   1,
		Attempts:      attempts,
		PublicBaseURL: "http://localhost:8080/",
	})
	return &submitFixture{store: store, svc: svc, files: files, client: client, sub: sub}
}

func demoSubmission() Submission {
	gray := []domain.TransformationRequest{{Name: "grayscale"}}
	return Submission{
		UserID:    1,
		BatchName: "demo",
		Images: []SubmitImage{
			{Filename: "a.jpg", Data: []byte("AAAA"), Transformations: gray},
			{Filename: "b.jpg", Data: []byte("BBBB"), Transformations: gray},
		},
	}
}

func TestSubmitDemoBatch(t *testing.T) {
	f := newSubmitFixture(t, []int64{1, 2}, 1)
	ctx := context.Background()

	summary, err := f.sub.Submit(ctx, demoSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Status != domain.BatchCompleted || summary.ProcessedImages != 2 || summary.TotalImages != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.DownloadURL != fmt.Sprintf("http://localhost:8080/api/batches/%d/download", summary.BatchID) {
		t.Fatalf("unexpected download url %q", summary.DownloadURL)
	}

	assembler := artifact.NewAssembler(f.store.Results(), f.files, zerolog.Nop())
	manifest, err := assembler.Manifest(ctx, summary.BatchID)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if manifest.TotalImages != 2 || manifest.Successful != 2 || manifest.Failed != 0 {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	archive, err := assembler.AssembleDownload(ctx, summary.BatchID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if archive.Included != 2 || len(archive.Missing) != 0 {
		t.Fatalf("unexpected archive contents %+v", archive)
	}

	batch, _ := f.svc.GetBatch(ctx, summary.BatchID)
	if batch.StartedAt == nil || batch.CompletedAt == nil {
		t.Fatalf("batch timestamps not stamped: %+v", batch)
	}
	logs, _ := f.store.Logs().ListByBatch(ctx, summary.BatchID)
	if len(logs) == 0 {
		t.Fatalf("expected journal entries")
	}
}

func TestSubmitRetriesOnAnotherNode(t *testing.T) {
	f := newSubmitFixture(t, []int64{1, 2}, 2)
	f.client.down[1] = true
	sub := demoSubmission()
	sub.Images = sub.Images[:1]

	summary, err := f.sub.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Status != domain.BatchCompleted || summary.ProcessedImages != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(f.client.calls) != 2 || f.client.calls[0] != 1 || f.client.calls[1] != 2 {
		t.Fatalf("expected node 1 then node 2, got %v", f.client.calls)
	}
}

func TestSubmitRecordsTheAttemptThatFailed(t *testing.T) {
	f := newSubmitFixture(t, []int64{1, 2}, 3)
	f.client.reject[1] = true
	sub := demoSubmission()
	sub.Images = sub.Images[:1]

	summary, err := f.sub.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Status != domain.BatchFailed || summary.FailedImages != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(f.client.calls) != 1 {
		t.Fatalf("a rejected image must not be retried, got calls %v", f.client.calls)
	}
	rows, _ := f.store.Results().ListRows(context.Background(), summary.BatchID, false)
	if len(rows) != 1 {
		t.Fatalf("expected one failure row, got %d", len(rows))
	}
	replay, err := f.svc.RecordResult(context.Background(), rows[0].ImageID, 1, domain.ResultInput{Attempt: 1, Status: domain.ResultFailure})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Duplicate {
		t.Fatalf("failure should be stored under attempt 1")
	}
}

func TestSubmitAllNodesDownFailsBatch(t *testing.T) {
	f := newSubmitFixture(t, []int64{1}, 1)
	f.client.down[1] = true

	summary, err := f.sub.Submit(context.Background(), demoSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Status != domain.BatchFailed || summary.FailedImages != 2 || summary.ProcessedImages != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	rows, _ := f.store.Results().ListRows(context.Background(), summary.BatchID, false)
	if len(rows) != 2 {
		t.Fatalf("expected a failure row per image, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Status != domain.ResultFailure {
			t.Fatalf("expected failure rows, got %+v", r)
		}
	}
}

func TestSubmitWithoutNodesClosesBatchAsFailed(t *testing.T) {
	f := newSubmitFixture(t, nil, 1)

	summary, err := f.sub.Submit(context.Background(), demoSubmission())
	if !errors.Is(err, domain.ErrNoActiveNodes) {
		t.Fatalf("expected ErrNoActiveNodes, got %v", err)
	}
	if summary == nil || summary.Status != domain.BatchFailed {
		t.Fatalf("expected failed batch summary, got %+v", summary)
	}
	if len(f.client.calls) != 0 {
		t.Fatalf("no node should be contacted")
	}
}

func TestSubmitUnknownTransformationFailsBatch(t *testing.T) {
	f := newSubmitFixture(t, []int64{1}, 1)
	sub := demoSubmission()
	sub.Images[1].Transformations = []domain.TransformationRequest{{Name: "sepia"}}

	summary, err := f.sub.Submit(context.Background(), sub)
	if !errors.Is(err, domain.ErrTransformationUnknown) {
		t.Fatalf("expected ErrTransformationUnknown, got %v", err)
	}
	if summary.Status != domain.BatchFailed || summary.TotalImages != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for i, img := range sub.Images {
		key := storage.InputKey(summary.BatchID, i, img.Filename)
		if _, err := f.files.Open(context.Background(), key); !errors.Is(err, storage.ErrObjectNotFound) {
			t.Fatalf("input %s left in storage after abort: %v", key, err)
		}
	}
}

func TestSubmitValidatesImages(t *testing.T) {
	f := newSubmitFixture(t, []int64{1}, 1)
	sub := demoSubmission()
	sub.Images[0].Data = nil

	if _, err := f.sub.Submit(context.Background(), sub); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := f.sub.Submit(context.Background(), Submission{UserID: 1, BatchName: "x"}); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

package nodeagent

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imagebatch/internal/bridge"
	"imagebatch/internal/dispatch"
	"imagebatch/internal/domain"
)

func nodeFor(t *testing.T, srv *httptest.Server) domain.Node {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split %s: %v", srv.URL, err)
	}
	p, _ := strconv.Atoi(port)
	return domain.Node{ID: 1, IPAddress: host, Port: p, Status: domain.NodeActive}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestProcessorServesDispatchClient(t *testing.T) {
	srv := httptest.NewServer(NewProcessor(nil, nil, zerolog.Nop()).Routes())
	defer srv.Close()
	data := pngBytes(t, 4, 3)

	out, err := dispatch.NewHTTPNodeClient(time.Second).Process(context.Background(), nodeFor(t, srv), dispatch.Job{
		BatchID:         1,
		ImageID:         2,
		Filename:        "photo.png",
		OutputFormat:    "PNG",
		Data:            data,
		Transformations: []domain.TransformationRequest{{Name: "grayscale"}},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != domain.ResultSuccess || out.ResultFilename != "processed_photo.png" || out.Format != "png" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !bytes.Equal(out.Data, data) {
		t.Fatalf("pass-through must return the input bytes")
	}
	if out.Width == nil || *out.Width != 4 || *out.Height != 3 {
		t.Fatalf("expected 4x3 dimensions, got %v x %v", out.Width, out.Height)
	}
}

func TestProcessorReportsPipelineFailure(t *testing.T) {
	srv := httptest.NewServer(NewProcessor(nil, nil, zerolog.Nop()).Routes())
	defer srv.Close()

	out, err := dispatch.NewHTTPNodeClient(time.Second).Process(context.Background(), nodeFor(t, srv), dispatch.Job{
		Filename:        "a.jpg",
		Data:            []byte("raw"),
		Transformations: []domain.TransformationRequest{{Name: " "}},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != domain.ResultFailure || out.ErrorMessage == "" || len(out.Data) != 0 {
		t.Fatalf("expected failure outcome, got %+v", out)
	}
}

func TestProcessorRejectsEmptyJob(t *testing.T) {
	srv := httptest.NewServer(NewProcessor(nil, nil, zerolog.Nop()).Routes())
	defer srv.Close()

	_, err := dispatch.NewHTTPNodeClient(time.Second).Process(context.Background(), nodeFor(t, srv), dispatch.Job{Filename: "a.jpg"})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error for a rejected job, got %v", err)
	}
}

func TestResultName(t *testing.T) {
	cases := map[[2]string]string{
		{"a.jpg", "png"}:          "processed_a.png",
		{"dir/b.tar.gz", ""}:      "processed_b.tar.gz",
		{`c:\x\photo.JPG`, "jpg"}: "processed_photo.jpg",
	}
	for in, want := range cases {
		if got := resultName(in[0], in[1]); got != want {
			t.Fatalf("resultName(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []domain.Heartbeat
	fail bool
}

func (r *recordingSender) SendHeartbeat(_ context.Context, hb domain.Heartbeat) (*bridge.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, hb)
	if r.fail {
		return &bridge.Result{Category: domain.CategoryTransport, Message: "Error HTTP: 502"}, nil
	}
	return &bridge.Result{Success: true}, nil
}

func TestHeartbeatReportsLoad(t *testing.T) {
	sender := &recordingSender{}
	hb := NewHeartbeater(sender, 3, "10.0.0.3", 50053, time.Minute, zerolog.Nop())
	hb.Acquire()
	hb.Acquire()
	hb.Release()

	if err := hb.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := sender.sent[0]
	if got.NodeID != 3 || *got.Port != 50053 || *got.IPAddress != "10.0.0.3" || *got.CurrentLoad != 1 {
		t.Fatalf("unexpected heartbeat %+v", got)
	}
	if got.CPUCores == nil || *got.CPUCores < 1 {
		t.Fatalf("cpu cores must be reported")
	}

	sender.fail = true
	if err := hb.Send(context.Background()); err == nil || err.Error() != "Error HTTP: 502" {
		t.Fatalf("expected failed result surfaced as error, got %v", err)
	}
}

func TestHeartbeatRunStopsOnCancel(t *testing.T) {
	sender := &recordingSender{}
	hb := NewHeartbeater(sender, 1, "localhost", 50051, 10*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()
	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) < 2 {
		t.Fatalf("expected repeated heartbeats, got %d", len(sender.sent))
	}
}

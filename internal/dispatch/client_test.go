package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"imagebatch/internal/domain"
)

func nodeFor(t *testing.T, srv *httptest.Server) domain.Node {
	t.Helper()
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	p, _ := strconv.Atoi(port)
	return domain.Node{ID: 1, IPAddress: host, Port: p}
}

func TestHTTPNodeClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ProcessPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var job Job
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Outcome{ResultFilename: "out_" + job.Filename, Data: job.Data, ProcessingTimeMS: 12})
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(time.Second)
	out, err := c.Process(context.Background(), nodeFor(t, srv), Job{Filename: "a.jpg", Data: []byte{0, 1, 2, 255}})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != domain.ResultSuccess || out.ResultFilename != "out_a.jpg" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if string(out.Data) != string([]byte{0, 1, 2, 255}) {
		t.Fatalf("payload not preserved: %v", out.Data)
	}
}

func TestHTTPNodeClientNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPNodeClient(time.Second).Process(context.Background(), nodeFor(t, srv), Job{})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

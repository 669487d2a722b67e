package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imagebatch/internal/bridge"
	"imagebatch/internal/domain"
)

type fakeBridge struct {
	users      map[string]string
	gotToken   string
	gotBatch   bridge.BatchRequest
	batchFails *bridge.Result
}

func (f *fakeBridge) RegisterUser(_ context.Context, in domain.NewUser) (*bridge.RegisterResult, error) {
	if in.Username == "" {
		return nil, fmt.Errorf("username: %w", domain.ErrMissingField)
	}
	if _, ok := f.users[in.Username]; ok {
		return &bridge.RegisterResult{Result: bridge.Result{Message: "username taken", Category: domain.CategoryConflict}}, nil
	}
	f.users[in.Username] = in.Password
	return &bridge.RegisterResult{Result: bridge.Result{Success: true, Message: "registered"}, UserID: int64(len(f.users))}, nil
}

func (f *fakeBridge) Login(_ context.Context, username, password string) (*bridge.LoginResult, error) {
	if pw, ok := f.users[username]; !ok || pw != password {
		return &bridge.LoginResult{Result: bridge.Result{Message: "invalid credentials", Category: domain.CategoryAuthorization}}, nil
	}
	return &bridge.LoginResult{Result: bridge.Result{Success: true}, Token: "tok-" + username, UserID: 1}, nil
}

func (f *fakeBridge) Logout(_ context.Context, token string) (*bridge.Result, error) {
	f.gotToken = token
	return &bridge.Result{Success: true, Message: "logged out"}, nil
}

func (f *fakeBridge) SubmitBatch(_ context.Context, token string, in bridge.BatchRequest) (*bridge.BatchResult, error) {
	f.gotToken = token
	f.gotBatch = in
	if f.batchFails != nil {
		return &bridge.BatchResult{Result: *f.batchFails}, nil
	}
	return &bridge.BatchResult{
		Result:          bridge.Result{Success: true},
		BatchID:         9,
		BatchStatus:     string(domain.BatchCompleted),
		TotalImages:     len(in.Images),
		ProcessedImages: len(in.Images),
	}, nil
}

func (f *fakeBridge) FetchNodeMetrics(context.Context) (*bridge.NodesResult, error) {
	return &bridge.NodesResult{Result: bridge.Result{Success: true}, Nodes: []domain.NodeMetric{{Node: domain.Node{ID: 1}, Alive: true}}}, nil
}

func (f *fakeBridge) FetchBatchMetrics(_ context.Context, batchID int64) (*bridge.BatchMetricsResult, error) {
	if batchID != 9 {
		return &bridge.BatchMetricsResult{Result: bridge.Result{Message: "batch not found", Category: domain.CategoryReference}}, nil
	}
	return &bridge.BatchMetricsResult{Result: bridge.Result{Success: true}, Metrics: &domain.BatchMetrics{Batch: domain.Batch{ID: 9}}}, nil
}

func newTestGateway(b Bridge) http.Handler {
	opts := Options{Logger: zerolog.Nop()}
	return NewRouter(New(b, opts), opts)
}

func call(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLogin(t *testing.T) {
	h := newTestGateway(&fakeBridge{users: map[string]string{}})
	user := map[string]any{"username": "ana", "password": "secret1", "email": "ana@example.com"}

	if rec := call(t, h, http.MethodPost, "/api/register", user); rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(t, h, http.MethodPost, "/api/register", user); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
	if rec := call(t, h, http.MethodPost, "/api/register", map[string]any{"password": "x"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing username, got %d", rec.Code)
	}

	rec := call(t, h, http.MethodPost, "/api/login", map[string]any{"username": "ana", "password": "secret1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	var login bridge.LoginResult
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if login.Token != "tok-ana" {
		t.Fatalf("unexpected token %q", login.Token)
	}
	if rec := call(t, h, http.MethodPost, "/api/login", map[string]any{"username": "ana", "password": "nope"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogoutAcceptsBearerHeader(t *testing.T) {
	fb := &fakeBridge{users: map[string]string{}}
	h := newTestGateway(fb)
	if rec := call(t, h, http.MethodPost, "/api/logout", map[string]any{}, "Authorization", "Bearer abc"); rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	if fb.gotToken != "abc" {
		t.Fatalf("expected header token, got %q", fb.gotToken)
	}
	call(t, h, http.MethodPost, "/api/logout", map[string]any{"token": "body"}, "Authorization", "Bearer abc")
	if fb.gotToken != "body" {
		t.Fatalf("expected body token to win, got %q", fb.gotToken)
	}
}

func TestProcessBatch(t *testing.T) {
	fb := &fakeBridge{users: map[string]string{}}
	h := newTestGateway(fb)
	body := map[string]any{
		"token":      "tok",
		"batch_name": "demo",
		"images": []map[string]any{{
			"filename":          "a.jpg",
			"image_data_base64": "AAEC/w==",
			"transformations":   []map[string]any{{"name": "grayscale"}},
		}},
	}
	rec := call(t, h, http.MethodPost, "/api/process-batch", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("process: %d %s", rec.Code, rec.Body.String())
	}
	if len(fb.gotBatch.Images) != 1 || !bytes.Equal(fb.gotBatch.Images[0].Data, []byte{0, 1, 2, 255}) {
		t.Fatalf("image bytes not forwarded: %+v", fb.gotBatch.Images)
	}
	if fb.gotBatch.Images[0].Transformations[0].Name != "grayscale" {
		t.Fatalf("pipeline not forwarded")
	}

	delete(body, "token")
	if rec := call(t, h, http.MethodPost, "/api/process-batch", body); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", rec.Code)
	}

	fb.batchFails = &bridge.Result{Message: "invalid session", Category: domain.CategoryAuthorization}
	if rec := call(t, h, http.MethodPost, "/api/process-batch", body, "Authorization", "Bearer stale"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMetricsRoutes(t *testing.T) {
	h := newTestGateway(&fakeBridge{users: map[string]string{}})
	rec := call(t, h, http.MethodGet, "/api/metrics/nodes", nil)
	var nodes []domain.NodeMetric
	if err := json.Unmarshal(rec.Body.Bytes(), &nodes); err != nil || len(nodes) != 1 {
		t.Fatalf("unexpected nodes body %q (%v)", rec.Body.String(), err)
	}
	if rec := call(t, h, http.MethodGet, "/api/metrics/batches/9", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := call(t, h, http.MethodGet, "/api/metrics/batches/4", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := call(t, h, http.MethodGet, "/api/metrics/batches/x", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTransportFailures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	h := newTestGateway(bridge.NewClient(failing.URL, time.Second, zerolog.Nop()))
	if rec := call(t, h, http.MethodGet, "/api/metrics/nodes", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for orchestrator error, got %d", rec.Code)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	h = newTestGateway(bridge.NewClient(url, time.Second, zerolog.Nop()))
	rec := call(t, h, http.MethodPost, "/api/login", map[string]any{"username": "ana", "password": "secret1"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for unreachable orchestrator, got %d", rec.Code)
	}
	var res bridge.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Success || res.Category != domain.CategoryTransport {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHealthAndUnknownRoute(t *testing.T) {
	h := newTestGateway(&fakeBridge{users: map[string]string{}})
	if rec := call(t, h, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if rec := call(t, h, http.MethodGet, "/api/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

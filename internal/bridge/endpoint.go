package bridge

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"imagebatch/internal/auth"
	"imagebatch/internal/domain"
	"imagebatch/internal/orchestrator"
)

// Backend executes the operations carried by envelopes.
type Backend interface {
	Register(ctx context.Context, in domain.NewUser) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, token string) error
	ProcessBatch(ctx context.Context, token string, in BatchRequest) (*orchestrator.Summary, error)
	NodeMetrics(ctx context.Context) ([]domain.NodeMetric, error)
	BatchMetrics(ctx context.Context, batchID int64) (*domain.BatchMetrics, error)
	Heartbeat(ctx context.Context, hb domain.Heartbeat) (bool, error)
}

// Endpoint serves envelope requests over HTTP.
type Endpoint struct {
	backend Backend
	logger  zerolog.Logger
}

func NewEndpoint(backend Backend, logger zerolog.Logger) *Endpoint {
	return &Endpoint{backend: backend, logger: logger}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		e.fault(w, "soap:Client", "envelope must be POSTed")
		return
	}
	name, inner, err := decodeEnvelope(r.Body)
	if err != nil {
		e.logger.Warn().Err(err).Msg("bridge: malformed envelope")
		e.fault(w, "soap:Client", err.Error())
		return
	}
	if name.Space != Namespace {
		e.fault(w, "soap:Client", "unknown namespace "+name.Space)
		return
	}
	ctx := r.Context()
	var resp any
	switch name.Local {
	case "RegisterRequest":
		var req RegisterRequest
		if e.decode(w, inner, &req) {
			resp = e.register(ctx, req)
		}
	case "LoginRequest":
		var req LoginRequest
		if e.decode(w, inner, &req) {
			resp = e.login(ctx, req)
		}
	case "LogoutRequest":
		var req LogoutRequest
		if e.decode(w, inner, &req) {
			resp = LogoutResponse{status: outcome(e.backend.Logout(ctx, req.SessionToken), "logged out")}
		}
	case "ProcessBatchRequest":
		var req ProcessBatchRequest
		if e.decode(w, inner, &req) {
			resp = e.processBatch(ctx, req)
		}
	case "GetNodesMetricsRequest":
		resp = e.nodesMetrics(ctx)
	case "GetBatchMetricsRequest":
		var req GetBatchMetricsRequest
		if e.decode(w, inner, &req) {
			resp = e.batchMetrics(ctx, req)
		}
	case "NodeHeartbeatRequest":
		var req NodeHeartbeatRequest
		if e.decode(w, inner, &req) {
			resp = e.heartbeat(ctx, req)
		}
	default:
		e.fault(w, "soap:Client", "unknown operation "+name.Local)
		return
	}
	if resp == nil {
		return
	}
	e.reply(w, http.StatusOK, resp)
}

func (e *Endpoint) decode(w http.ResponseWriter, inner []byte, v any) bool {
	if err := xml.Unmarshal(inner, v); err != nil {
		e.logger.Warn().Err(err).Msg("bridge: undecodable operation")
		e.fault(w, "soap:Client", err.Error())
		return false
	}
	return true
}

func (e *Endpoint) register(ctx context.Context, req RegisterRequest) RegisterResponse {
	in := domain.NewUser{Username: req.Username, Password: req.Password, Email: req.Email}
	if req.FirstName != "" {
		in.FirstName = &req.FirstName
	}
	if req.LastName != "" {
		in.LastName = &req.LastName
	}
	user, err := e.backend.Register(ctx, in)
	if err != nil {
		return RegisterResponse{status: outcome(err, "")}
	}
	return RegisterResponse{status: outcome(nil, "user registered"), UserID: &user.ID}
}

func (e *Endpoint) login(ctx context.Context, req LoginRequest) LoginResponse {
	res, err := e.backend.Login(ctx, req.Username, req.Password)
	if err != nil {
		return LoginResponse{status: outcome(err, "")}
	}
	return LoginResponse{status: outcome(nil, "login successful"), SessionToken: &res.Token, UserID: &res.User.ID}
}

func (e *Endpoint) processBatch(ctx context.Context, req ProcessBatchRequest) ProcessBatchResponse {
	images, err := DecodeImages(req.ImagesJSON)
	if err != nil {
		return ProcessBatchResponse{status: outcome(err, "")}
	}
	summary, err := e.backend.ProcessBatch(ctx, req.SessionToken, BatchRequest{
		BatchName:       req.BatchName,
		OutputFormat:    req.OutputFormat,
		CompressionType: req.CompressionType,
		Images:          images,
	})
	resp := ProcessBatchResponse{status: outcome(err, "batch processed")}
	if summary != nil {
		st := string(summary.Status)
		resp.BatchID = &summary.BatchID
		resp.BatchStatus = &st
		resp.TotalImages = &summary.TotalImages
		resp.ProcessedImages = &summary.ProcessedImages
		resp.FailedImages = &summary.FailedImages
		resp.ProcessingTimeMS = &summary.ProcessingTimeMS
		resp.DownloadURL = &summary.DownloadURL
	}
	return resp
}

func (e *Endpoint) nodesMetrics(ctx context.Context) GetNodesMetricsResponse {
	nodes, err := e.backend.NodeMetrics(ctx)
	if err != nil {
		return GetNodesMetricsResponse{status: outcome(err, "")}
	}
	if nodes == nil {
		nodes = []domain.NodeMetric{}
	}
	raw, err := json.Marshal(nodes)
	if err != nil {
		return GetNodesMetricsResponse{status: outcome(err, "")}
	}
	s := string(raw)
	return GetNodesMetricsResponse{status: outcome(nil, "ok"), NodesJSON: &s}
}

func (e *Endpoint) batchMetrics(ctx context.Context, req GetBatchMetricsRequest) GetBatchMetricsResponse {
	metrics, err := e.backend.BatchMetrics(ctx, req.BatchID)
	if err != nil {
		return GetBatchMetricsResponse{status: outcome(err, "")}
	}
	raw, err := json.Marshal(metrics)
	if err != nil {
		return GetBatchMetricsResponse{status: outcome(err, "")}
	}
	s := string(raw)
	return GetBatchMetricsResponse{status: outcome(nil, "ok"), MetricsJSON: &s}
}

func (e *Endpoint) heartbeat(ctx context.Context, req NodeHeartbeatRequest) NodeHeartbeatResponse {
	created, err := e.backend.Heartbeat(ctx, domain.Heartbeat{
		NodeID:      req.NodeID,
		IPAddress:   req.IPAddress,
		Port:        req.Port,
		CPUCores:    req.CPUCores,
		RAMGB:       req.RAMGB,
		CurrentLoad: req.CurrentLoad,
	})
	if err != nil {
		return NodeHeartbeatResponse{status: outcome(err, "")}
	}
	return NodeHeartbeatResponse{status: outcome(nil, "heartbeat received"), Created: &created}
}

func (e *Endpoint) reply(w http.ResponseWriter, code int, v any) {
	body, err := encodeEnvelope(v)
	if err != nil {
		e.logger.Error().Err(err).Msg("bridge: encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (e *Endpoint) fault(w http.ResponseWriter, code, msg string) {
	e.reply(w, http.StatusInternalServerError, Fault{Code: code, String: msg})
}

// outcome builds the status block for err. Internal errors are not echoed
// back to the caller.
func outcome(err error, okMessage string) status {
	success := err == nil
	st := status{Success: &success}
	if success {
		st.Message = &okMessage
		return st
	}
	cat := domain.CategoryOf(err)
	msg := err.Error()
	if cat == domain.CategoryInternal && !errors.Is(err, domain.ErrTranslation) {
		msg = "internal error"
	}
	st.Message = &msg
	st.ErrorCategory = string(cat)
	return st
}

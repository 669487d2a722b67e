package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/orchestrator"
)

// Result is the normalized outcome of every bridge call. Transport failures
// are reported here with Category transport and never as an error.
type Result struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message,omitempty"`
	Category        domain.Category `json:"error_category,omitempty"`
	TransportStatus int             `json:"transport_status,omitempty"`
}

type RegisterResult struct {
	Result
	UserID int64 `json:"user_id,omitempty"`
}

type LoginResult struct {
	Result
	Token  string `json:"token,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
}

// BatchRequest is a submission as the edge receives it.
type BatchRequest struct {
	BatchName       string                     `json:"batch_name"`
	OutputFormat    string                     `json:"output_format,omitempty"`
	CompressionType string                     `json:"compression_type,omitempty"`
	Images          []orchestrator.SubmitImage `json:"images"`
}

type BatchResult struct {
	Result
	BatchID          int64  `json:"batch_id,omitempty"`
	BatchStatus      string `json:"status,omitempty"`
	TotalImages      int    `json:"total_images"`
	ProcessedImages  int    `json:"processed_images"`
	FailedImages     int    `json:"failed_images"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	DownloadURL      string `json:"download_url,omitempty"`
}

type NodesResult struct {
	Result
	Nodes []domain.NodeMetric `json:"nodes"`
}

type BatchMetricsResult struct {
	Result
	Metrics *domain.BatchMetrics `json:"metrics,omitempty"`
}

// Client speaks the envelope protocol to the orchestrator.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func NewClient(url string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		url:     url,
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

func (c *Client) RegisterUser(ctx context.Context, in domain.NewUser) (*RegisterResult, error) {
	if err := require(map[string]string{"username": in.Username, "password": in.Password, "email": in.Email}); err != nil {
		return nil, err
	}
	req := RegisterRequest{Username: in.Username, Password: in.Password, Email: in.Email}
	if in.FirstName != nil {
		req.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		req.LastName = *in.LastName
	}
	var resp RegisterResponse
	res, err := c.call(ctx, "Register", req, &resp, &resp.status)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return &RegisterResult{Result: *res}, nil
	}
	if resp.UserID == nil {
		return nil, missing("RegisterResponse", "user_id")
	}
	return &RegisterResult{Result: *res, UserID: *resp.UserID}, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if err := require(map[string]string{"username": username, "password": password}); err != nil {
		return nil, err
	}
	var resp LoginResponse
	res, err := c.call(ctx, "Login", LoginRequest{Username: username, Password: password}, &resp, &resp.status)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return &LoginResult{Result: *res}, nil
	}
	if resp.SessionToken == nil {
		return nil, missing("LoginResponse", "session_token")
	}
	if resp.UserID == nil {
		return nil, missing("LoginResponse", "user_id")
	}
	return &LoginResult{Result: *res, Token: *resp.SessionToken, UserID: *resp.UserID}, nil
}

func (c *Client) Logout(ctx context.Context, token string) (*Result, error) {
	if err := require(map[string]string{"session_token": token}); err != nil {
		return nil, err
	}
	var resp LogoutResponse
	return c.call(ctx, "Logout", LogoutRequest{SessionToken: token}, &resp, &resp.status)
}

// SubmitBatch sends a whole batch and waits for it to finish processing.
func (c *Client) SubmitBatch(ctx context.Context, token string, in BatchRequest) (*BatchResult, error) {
	if err := require(map[string]string{"session_token": token, "batch_name": in.BatchName}); err != nil {
		return nil, err
	}
	if len(in.Images) == 0 {
		return nil, fmt.Errorf("images: %w", domain.ErrMissingField)
	}
	encoded, err := EncodeImages(in.Images)
	if err != nil {
		return nil, err
	}
	req := ProcessBatchRequest{
		SessionToken:    token,
		BatchName:       in.BatchName,
		OutputFormat:    in.OutputFormat,
		CompressionType: in.CompressionType,
		ImagesJSON:      encoded,
	}
	var resp ProcessBatchResponse
	res, err := c.call(ctx, "ProcessBatch", req, &resp, &resp.status)
	if err != nil {
		return nil, err
	}
	out := &BatchResult{Result: *res}
	if resp.BatchID != nil {
		out.BatchID = *resp.BatchID
	}
	if !res.Success {
		return out, nil
	}
	switch {
	case resp.BatchID == nil:
		return nil, missing("ProcessBatchResponse", "batch_id")
	case resp.TotalImages == nil:
		return nil, missing("ProcessBatchResponse", "total_images")
	case resp.ProcessedImages == nil:
		return nil, missing("ProcessBatchResponse", "processed_images")
	case resp.FailedImages == nil:
		return nil, missing("ProcessBatchResponse", "failed_images")
	case resp.ProcessingTimeMS == nil:
		return nil, missing("ProcessBatchResponse", "processing_time_ms")
	case resp.DownloadURL == nil:
		return nil, missing("ProcessBatchResponse", "download_url")
	}
	out.TotalImages = *resp.TotalImages
	out.ProcessedImages = *resp.ProcessedImages
	out.FailedImages = *resp.FailedImages
	out.ProcessingTimeMS = *resp.ProcessingTimeMS
	out.DownloadURL = *resp.DownloadURL
	if resp.BatchStatus != nil {
		out.BatchStatus = *resp.BatchStatus
	}
	return out, nil
}

func (c *Client) FetchNodeMetrics(ctx context.Context) (*NodesResult, error) {
	var resp GetNodesMetricsResponse
	res, err := c.call(ctx, "GetNodesMetrics", GetNodesMetricsRequest{}, &resp, &resp.status)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return &NodesResult{Result: *res, Nodes: []domain.NodeMetric{}}, nil
	}
	if resp.NodesJSON == nil {
		return nil, missing("GetNodesMetricsResponse", "nodes_json")
	}
	out := &NodesResult{Result: *res}
	if err := json.Unmarshal([]byte(*resp.NodesJSON), &out.Nodes); err != nil {
		return nil, fmt.Errorf("nodes_json: %v: %w", err, domain.ErrTranslation)
	}
	if out.Nodes == nil {
		out.Nodes = []domain.NodeMetric{}
	}
	return out, nil
}

func (c *Client) FetchBatchMetrics(ctx context.Context, batchID int64) (*BatchMetricsResult, error) {
	if batchID <= 0 {
		return nil, fmt.Errorf("batch_id: %w", domain.ErrMissingField)
	}
	var resp GetBatchMetricsResponse
	res, err := c.call(ctx, "GetBatchMetrics", GetBatchMetricsRequest{BatchID: batchID}, &resp, &resp.status)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return &BatchMetricsResult{Result: *res}, nil
	}
	if resp.MetricsJSON == nil {
		return nil, missing("GetBatchMetricsResponse", "metrics_json")
	}
	var metrics domain.BatchMetrics
	if err := json.Unmarshal([]byte(*resp.MetricsJSON), &metrics); err != nil {
		return nil, fmt.Errorf("metrics_json: %v: %w", err, domain.ErrTranslation)
	}
	return &BatchMetricsResult{Result: *res, Metrics: &metrics}, nil
}

// SendHeartbeat reports a node's liveness on its behalf.
func (c *Client) SendHeartbeat(ctx context.Context, hb domain.Heartbeat) (*Result, error) {
	if hb.NodeID <= 0 {
		return nil, fmt.Errorf("node_id: %w", domain.ErrMissingField)
	}
	req := NodeHeartbeatRequest{
		NodeID:      hb.NodeID,
		IPAddress:   hb.IPAddress,
		Port:        hb.Port,
		CPUCores:    hb.CPUCores,
		RAMGB:       hb.RAMGB,
		CurrentLoad: hb.CurrentLoad,
	}
	var resp NodeHeartbeatResponse
	return c.call(ctx, "NodeHeartbeat", req, &resp, &resp.status)
}

// call posts one envelope and decodes the reply into resp. A transport
// failure yields a failed Result and a nil error.
func (c *Client) call(ctx context.Context, op string, req, resp any, st *status) (*Result, error) {
	ctx, span := infra.StartSpan(ctx, "bridge."+op, attribute.String("bridge.url", c.url))
	defer span.End()

	body, err := encodeEnvelope(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %v: %w", op, err, domain.ErrTranslation)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("SOAPAction", `"`+op+`"`)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn().Err(err).Str("op", op).Msg("bridge: transport failure")
		return &Result{Category: domain.CategoryTransport, Message: fmt.Sprintf("communication error: %v", err)}, nil
	}
	defer httpResp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		c.logger.Warn().Int("status", httpResp.StatusCode).Str("op", op).Msg("bridge: non-success reply")
		return &Result{
			Category:        domain.CategoryTransport,
			TransportStatus: httpResp.StatusCode,
			Message:         fmt.Sprintf("Error HTTP: %d", httpResp.StatusCode),
		}, nil
	}

	name, inner, err := decodeEnvelope(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, domain.ErrTranslation)
	}
	if want := op + "Response"; name.Local != want {
		return nil, fmt.Errorf("expected %s, got %s: %w", want, name.Local, domain.ErrTranslation)
	}
	if err := xml.Unmarshal(inner, resp); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, domain.ErrTranslation)
	}
	if st.Success == nil {
		return nil, missing(op+"Response", "success")
	}
	if st.Message == nil {
		return nil, missing(op+"Response", "message")
	}
	res := &Result{Success: *st.Success, Message: *st.Message, TransportStatus: httpResp.StatusCode}
	if !res.Success {
		res.Category = domain.Category(st.ErrorCategory)
		if res.Category == "" {
			res.Category = domain.CategoryInternal
		}
	}
	return res, nil
}

func require(fields map[string]string) error {
	var absent []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			absent = append(absent, name)
		}
	}
	if len(absent) == 0 {
		return nil
	}
	slices.Sort(absent)
	return fmt.Errorf("%s: %w", strings.Join(absent, ", "), domain.ErrMissingField)
}

func missing(element, field string) error {
	return fmt.Errorf("%s lacks %s: %w", element, field, domain.ErrTranslation)
}

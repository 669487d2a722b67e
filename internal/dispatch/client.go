package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"imagebatch/internal/domain"
)

// ProcessPath is the route a node agent serves jobs on.
const ProcessPath = "/v1/process"

// Job is one image with its pipeline, as sent to a node.
type Job struct {
	BatchID         int64                          `json:"batch_id"`
	ImageID         int64                          `json:"image_id"`
	Filename        string                         `json:"filename"`
	OutputFormat    string                         `json:"output_format"`
	Data            []byte                         `json:"data"`
	Transformations []domain.TransformationRequest `json:"transformations"`
}

// Outcome is a node's answer for one job.
type Outcome struct {
	Status           domain.ResultStatus `json:"status"`
	ResultFilename   string              `json:"result_filename"`
	Format           string              `json:"format,omitempty"`
	Width            *int                `json:"width,omitempty"`
	Height           *int                `json:"height,omitempty"`
	ProcessingTimeMS int64               `json:"processing_time_ms"`
	ErrorMessage     string              `json:"error_message,omitempty"`
	Data             []byte              `json:"data,omitempty"`
}

// NodeClient carries a job to a node. Errors wrapping domain.ErrTransport
// mean the node was not reached and another node may be tried.
type NodeClient interface {
	Process(ctx context.Context, node domain.Node, job Job) (*Outcome, error)
}

// HTTPNodeClient posts jobs as JSON to the node agent.
type HTTPNodeClient struct {
	httpClient *http.Client
}

// NewHTTPNodeClient builds a client whose requests time out after timeout.
func NewHTTPNodeClient(timeout time.Duration) *HTTPNodeClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPNodeClient{httpClient: &http.Client{Timeout: timeout}}
}

func (c *HTTPNodeClient) Process(ctx context.Context, node domain.Node, job Job) (*Outcome, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	url := "http://" + node.Address() + ProcessPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("node %d: %v: %w", node.ID, err, domain.ErrTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("node %d: Error HTTP: %d %s: %w", node.ID, resp.StatusCode, bytes.TrimSpace(snippet), domain.ErrTransport)
	}
	var out Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("node %d: decode outcome: %w", node.ID, err)
	}
	if out.Status == "" {
		out.Status = domain.ResultSuccess
	}
	return &out, nil
}

package bridge

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

const (
	// Namespace qualifies every operation element.
	Namespace     = "http://example.org/ImageProcessingService.wsdl"
	soapNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
	contentType   = "text/xml; charset=utf-8"
)

var errEmptyBody = errors.New("envelope body is empty")

type outEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SOAP    string   `xml:"xmlns:soap,attr"`
	Body    outBody  `xml:"soap:Body"`
}

type outBody struct {
	Content any
}

type inEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    inBody   `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type inBody struct {
	Inner []byte `xml:",innerxml"`
}

// Fault is a SOAP 1.1 fault, returned for envelopes that cannot be read.
type Fault struct {
	XMLName xml.Name `xml:"soap:Fault"`
	Code    string   `xml:"faultcode"`
	String  string   `xml:"faultstring"`
}

func encodeEnvelope(content any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(outEnvelope{SOAP: soapNamespace, Body: outBody{Content: content}}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEnvelope returns the operation element of an envelope and its raw XML.
func decodeEnvelope(r io.Reader) (xml.Name, []byte, error) {
	var env inEnvelope
	if err := xml.NewDecoder(r).Decode(&env); err != nil {
		return xml.Name{}, nil, fmt.Errorf("read envelope: %w", err)
	}
	dec := xml.NewDecoder(bytes.NewReader(env.Body.Inner))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return xml.Name{}, nil, errEmptyBody
		}
		if err != nil {
			return xml.Name{}, nil, fmt.Errorf("read body: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name, env.Body.Inner, nil
		}
	}
}

// status is shared by every response element.
type status struct {
	Success       *bool   `xml:"success"`
	Message       *string `xml:"message"`
	ErrorCategory string  `xml:"error_category,omitempty"`
}

type RegisterRequest struct {
	XMLName   xml.Name `xml:"http://example.org/ImageProcessingService.wsdl RegisterRequest"`
	Username  string   `xml:"username"`
	Password  string   `xml:"password"`
	Email     string   `xml:"email"`
	FirstName string   `xml:"first_name,omitempty"`
	LastName  string   `xml:"last_name,omitempty"`
}

type RegisterResponse struct {
	XMLName xml.Name `xml:"http://example.org/ImageProcessingService.wsdl RegisterResponse"`
	status
	UserID *int64 `xml:"user_id"`
}

type LoginRequest struct {
	XMLName  xml.Name `xml:"http://example.org/ImageProcessingService.wsdl LoginRequest"`
	Username string   `xml:"username"`
	Password string   `xml:"password"`
}

type LoginResponse struct {
	XMLName xml.Name `xml:"http://example.org/ImageProcessingService.wsdl LoginResponse"`
	status
	SessionToken *string `xml:"session_token"`
	UserID       *int64  `xml:"user_id"`
}

type LogoutRequest struct {
	XMLName      xml.Name `xml:"http://example.org/ImageProcessingService.wsdl LogoutRequest"`
	SessionToken string   `xml:"session_token"`
}

type LogoutResponse struct {
	XMLName xml.Name `xml:"http://example.org/ImageProcessingService.wsdl LogoutResponse"`
	status
}

// ProcessBatchRequest carries the whole submission; ImagesJSON is the
// output of EncodeImages.
type ProcessBatchRequest struct {
	XMLName         xml.Name `xml:"http://example.org/ImageProcessingService.wsdl ProcessBatchRequest"`
	SessionToken    string   `xml:"session_token"`
	BatchName       string   `xml:"batch_name"`
	OutputFormat    string   `xml:"output_format,omitempty"`
	CompressionType string   `xml:"compression_type,omitempty"`
	ImagesJSON      string   `xml:"images_json"`
}

type ProcessBatchResponse struct {
	XMLName xml.Name `xml:"http://example.org/ImageProcessingService.wsdl ProcessBatchResponse"`
	status
	BatchID          *int64  `xml:"batch_id"`
	BatchStatus      *string `xml:"batch_status"`
	TotalImages      *int    `xml:"total_images"`
	ProcessedImages  *int    `xml:"processed_images"`
	FailedImages     *int    `xml:"failed_images"`
	ProcessingTimeMS *int64  `xml:"processing_time_ms"`
	DownloadURL      *string `xml:"download_url"`
}

type GetNodesMetricsRequest struct {
	XMLName xml.Name `xml:"http://example.org/ImageProcessingService.wsdl GetNodesMetricsRequest"`
}

type GetNodesMetricsResponse struct {
	XMLName xml.Name `xml:"http://example.org/ImageProcessingService.wsdl GetNodesMetricsResponse"`
	status
	NodesJSON *string `xml:"nodes_json"`
}

type GetBatchMetricsRequest struct {
	XMLName xml.Name `xml:"http://example.org/ImageProcessingService.wsdl GetBatchMetricsRequest"`
	BatchID int64    `xml:"batch_id"`
}

type GetBatchMetricsResponse struct {
	XMLName xml.Name `xml:"http://example.org/ImageProcessingService.wsdl GetBatchMetricsResponse"`
	status
	MetricsJSON *string `xml:"metrics_json"`
}

type NodeHeartbeatRequest struct {
	XMLName     xml.Name `xml:"http://example.org/ImageProcessingService.wsdl NodeHeartbeatRequest"`
	NodeID      int64    `xml:"node_id"`
	IPAddress   *string  `xml:"ip_address,omitempty"`
	Port        *int     `xml:"port,omitempty"`
	CPUCores    *int     `xml:"cpu_cores,omitempty"`
	RAMGB       *float64 `xml:"ram_gb,omitempty"`
	CurrentLoad *int     `xml:"current_load,omitempty"`
}

type NodeHeartbeatResponse struct {
	XMLName xml.Name `xml:"http://example.org/ImageProcessingService.wsdl NodeHeartbeatResponse"`
	status
	Created *bool `xml:"created"`
}

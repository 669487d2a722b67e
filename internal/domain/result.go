package domain

import "time"

// ResultStatus is the outcome of running an image pipeline on a node.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
)

// Valid reports whether s is a known result status.
func (s ResultStatus) Valid() bool {
	return s == ResultSuccess || s == ResultFailure
}

// ResultInput carries a node's report for one attempt on an image.
// Attempt defaults to 1; Status defaults to success.
type ResultInput struct {
	Attempt          int          `json:"attempt,omitempty"`
	ResultFilename   string       `json:"result_filename"`
	StoragePath      string       `json:"storage_path"`
	FileSize         *int64       `json:"file_size,omitempty"`
	Width            *int         `json:"width,omitempty"`
	Height           *int         `json:"height,omitempty"`
	Format           *string      `json:"format,omitempty"`
	ProcessingTimeMS *int64       `json:"processing_time_ms,omitempty"`
	Status           ResultStatus `json:"status,omitempty"`
	ErrorMessage     string       `json:"error_message,omitempty"`
}

// ProcessedResult is the recorded outcome of one attempt.
type ProcessedResult struct {
	ID               int64        `json:"result_id"`
	ImageID          int64        `json:"image_id"`
	NodeID           *int64       `json:"node_id,omitempty"`
	Attempt          int          `json:"attempt"`
	ResultFilename   string       `json:"result_filename"`
	StoragePath      string       `json:"storage_path"`
	FileSize         *int64       `json:"file_size,omitempty"`
	Width            *int         `json:"width,omitempty"`
	Height           *int         `json:"height,omitempty"`
	Format           *string      `json:"format,omitempty"`
	ProcessingTimeMS *int64       `json:"processing_time_ms,omitempty"`
	Status           ResultStatus `json:"status"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// RecordOutcome reports what RecordResult did.
type RecordOutcome struct {
	ResultID  int64
	Duplicate bool
	Counted   bool
}

package domain

import "time"

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

const (
	DefaultOutputFormat    = "jpg"
	DefaultCompressionType = "zip"
)

// predecessors lists, per target status, the states a batch may leave to reach it.
// pending may fail directly when a submission is aborted before dispatch.
var predecessors = map[BatchStatus][]BatchStatus{
	BatchProcessing: {BatchPending},
	BatchCompleted:  {BatchProcessing},
	BatchFailed:     {BatchPending, BatchProcessing},
}

// Valid reports whether s is a known status.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchPending, BatchProcessing, BatchCompleted, BatchFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// CanTransition reports whether a batch in from may move to to. Re-applying
// the current status is accepted as a no-op.
func CanTransition(from, to BatchStatus) bool {
	if from == to {
		return to.Valid()
	}
	for _, p := range predecessors[to] {
		if p == from {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses that may precede to, including to itself.
func AllowedFrom(to BatchStatus) []string {
	out := []string{string(to)}
	for _, p := range predecessors[to] {
		out = append(out, string(p))
	}
	return out
}

// Batch is a user-submitted unit of work.
type Batch struct {
	ID              int64       `json:"batch_id"`
	UserID          int64       `json:"user_id"`
	Name            string      `json:"batch_name"`
	Status          BatchStatus `json:"status"`
	TotalImages     int         `json:"total_images"`
	ProcessedImages int         `json:"processed_images"`
	OutputFormat    string      `json:"output_format"`
	CompressionType string      `json:"compression_type"`
	CreatedAt       time.Time   `json:"created_at"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// NewBatch holds the fields accepted when creating a batch.
type NewBatch struct {
	UserID          int64
	Name            string
	OutputFormat    string
	CompressionType string
}

// StatusUpdate is a partial batch update; nil fields are left untouched.
type StatusUpdate struct {
	Status          *BatchStatus `json:"status,omitempty"`
	ProcessedImages *int         `json:"processed_images,omitempty"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// IsEmpty reports whether the update carries no field.
func (u StatusUpdate) IsEmpty() bool {
	return u.Status == nil && u.ProcessedImages == nil && u.StartedAt == nil && u.CompletedAt == nil
}

// StatusTo is shorthand for an update that only changes status.
func StatusTo(s BatchStatus) StatusUpdate {
	return StatusUpdate{Status: &s}
}

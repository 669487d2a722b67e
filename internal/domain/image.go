package domain

import (
	"encoding/json"
	"time"
)

// Image belongs to exactly one batch.
type Image struct {
	ID               int64      `json:"image_id"`
	BatchID          int64      `json:"batch_id"`
	OriginalFilename string     `json:"original_filename"`
	StoragePath      string     `json:"storage_path"`
	FileSize         *int64     `json:"file_size,omitempty"`
	Width            *int       `json:"width,omitempty"`
	Height           *int       `json:"height,omitempty"`
	Format           *string    `json:"format,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// ImageDescriptor describes an image to register together with its pipeline.
type ImageDescriptor struct {
	OriginalFilename string                  `json:"original_filename"`
	StoragePath      string                  `json:"storage_path"`
	FileSize         *int64                  `json:"file_size,omitempty"`
	Width            *int                    `json:"width,omitempty"`
	Height           *int                    `json:"height,omitempty"`
	Format           *string                 `json:"format,omitempty"`
	Transformations  []TransformationRequest `json:"transformations"`
}

// TransformationRequest names a catalog transformation with concrete parameters.
// ExecutionOrder defaults to 1 when zero.
type TransformationRequest struct {
	Name           string         `json:"name"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	ExecutionOrder int            `json:"execution_order,omitempty"`
}

// ImageTransformation is a requested pipeline step attached to an image.
type ImageTransformation struct {
	ID               int64           `json:"id"`
	ImageID          int64           `json:"image_id"`
	TransformationID int64           `json:"transformation_id"`
	Name             string          `json:"name"`
	Parameters       json.RawMessage `json:"parameters"`
	ExecutionOrder   int             `json:"execution_order"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ImageWithResult pairs an image with its most recent result, if any.
type ImageWithResult struct {
	Image
	Result *ProcessedResult `json:"result,omitempty"`
}

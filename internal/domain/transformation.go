package domain

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Transformation is a versioned catalog entry.
type Transformation struct {
	ID               int64           `json:"transformation_id"`
	Name             string          `json:"name"`
	Version          string          `json:"version"`
	Description      string          `json:"description,omitempty"`
	ParametersSchema json.RawMessage `json:"parameters_schema,omitempty"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
}

var nameFolder = cases.Fold()

// NormalizeTransformationName folds a catalog name so lookups ignore case
// and surrounding whitespace.
func NormalizeTransformationName(name string) string {
	return nameFolder.String(strings.TrimSpace(name))
}

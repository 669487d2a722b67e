// Package catalog seeds the transformation catalog from YAML.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"imagebatch/internal/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

// Entry is one catalog definition as written in the seed file.
type Entry struct {
	Name             string         `yaml:"name"`
	Version          string         `yaml:"version"`
	Description      string         `yaml:"description"`
	ParametersSchema map[string]any `yaml:"parameters_schema"`
	Inactive         bool           `yaml:"inactive"`
}

// File is the seed document layout.
type File struct {
	Transformations []Entry `yaml:"transformations"`
}

// Load reads entries from path, or the built-in catalog when path is empty.
func Load(path string) ([]Entry, error) {
	raw := defaultCatalog
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read catalog file: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

// Parse decodes a seed document and rejects entries without a name or
// duplicated (name, version) pairs.
func Parse(raw []byte) ([]Entry, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	seen := map[string]struct{}{}
	out := make([]Entry, 0, len(f.Transformations))
	for i, e := range f.Transformations {
		e.Name = domain.NormalizeTransformationName(e.Name)
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d: name: %w", i, domain.ErrMissingField)
		}
		e.Version = strings.TrimSpace(e.Version)
		if e.Version == "" {
			e.Version = "1.0"
		}
		key := e.Name + "@" + e.Version
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("entry %d: %s: %w", i, key, domain.ErrDuplicate)
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// Transformation converts the entry into its catalog record.
func (e Entry) Transformation() (domain.Transformation, error) {
	schema := e.ParametersSchema
	if schema == nil {
		schema = map[string]any{}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return domain.Transformation{}, fmt.Errorf("encode schema for %s: %w", e.Name, err)
	}
	return domain.Transformation{
		Name:             e.Name,
		Version:          e.Version,
		Description:      e.Description,
		ParametersSchema: raw,
		IsActive:         !e.Inactive,
	}, nil
}

// Seeder is the part of the catalog repository Seed needs.
type Seeder interface {
	Upsert(ctx context.Context, t domain.Transformation) (*domain.Transformation, error)
}

// Report summarizes a seed run.
type Report struct {
	Applied int
	InUse   int
}

// Seed upserts every entry. Entries already referenced by an attachment are
// left as they are and counted in Report.InUse.
func Seed(ctx context.Context, repo Seeder, entries []Entry, logger zerolog.Logger) (Report, error) {
	var rep Report
	for _, e := range entries {
		t, err := e.Transformation()
		if err != nil {
			return rep, err
		}
		if _, err := repo.Upsert(ctx, t); err != nil {
			if errors.Is(err, domain.ErrTransformationInUse) {
				rep.InUse++
				logger.Debug().Str("name", t.Name).Str("version", t.Version).Msg("catalog entry in use, skipped")
				continue
			}
			return rep, fmt.Errorf("seed %s %s: %w", t.Name, t.Version, err)
		}
		rep.Applied++
	}
	logger.Info().Int("applied", rep.Applied).Int("in_use", rep.InUse).Msg("transformation catalog seeded")
	return rep, nil
}

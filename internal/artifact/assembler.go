// Package artifact reconciles stored results with the artifact store.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/storage"
	"imagebatch/pkg/zip"
)

// Archive is an assembled download.
type Archive struct {
	Filename string
	Data     []byte
	Included int
	Missing  []string
}

// ResultReader is the part of the result repository the assembler reads.
type ResultReader interface {
	ListRows(ctx context.Context, batchID int64, successOnly bool) ([]domain.ResultRow, error)
}

// Assembler builds downloads and manifests for batches.
type Assembler struct {
	results ResultReader
	store   storage.ArtifactStore
	logger  zerolog.Logger
}

func NewAssembler(results ResultReader, store storage.ArtifactStore, logger zerolog.Logger) *Assembler {
	return &Assembler{results: results, store: store, logger: logger}
}

// ArchiveName is the download filename for a batch.
func ArchiveName(batchID int64) string {
	return fmt.Sprintf("batch_%d.zip", batchID)
}

// AssembleDownload zips every successful result whose file is present.
// Missing files are skipped and reported in Archive.Missing.
func (a *Assembler) AssembleDownload(ctx context.Context, batchID int64) (*Archive, error) {
	ctx, span := infra.StartSpan(ctx, "artifact.AssembleDownload", attribute.Int64("batch_id", batchID))
	defer span.End()

	rows, err := a.results.ListRows(ctx, batchID, true)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("batch %d: %w", batchID, domain.ErrNothingToDownload)
	}

	archive := &Archive{Filename: ArchiveName(batchID)}
	assets := make([]zip.Asset, 0, len(rows))
	for _, row := range rows {
		data, err := a.read(ctx, row.StoragePath)
		if err != nil {
			if !errors.Is(err, storage.ErrObjectNotFound) {
				a.logger.Error().Err(err).Int64("batch_id", batchID).Int64("image_id", row.ImageID).Msg("artifact: read failed")
			} else {
				a.logger.Warn().Int64("batch_id", batchID).Int64("image_id", row.ImageID).Str("path", row.StoragePath).Msg("artifact: result file missing")
			}
			archive.Missing = append(archive.Missing, row.ResultFilename)
			continue
		}
		name := row.ResultFilename
		if name == "" {
			name = row.OriginalFilename
		}
		assets = append(assets, zip.Asset{Filename: name, Data: data})
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("batch %d: %w", batchID, domain.ErrNoPhysicalArtifacts)
	}
	archive.Data, err = zip.Archive(assets)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	archive.Included = len(assets)
	span.SetAttributes(attribute.Int("included", archive.Included), attribute.Int("missing", len(archive.Missing)))
	return archive, nil
}

// Manifest describes every result of a batch without touching storage.
func (a *Assembler) Manifest(ctx context.Context, batchID int64) (*domain.Manifest, error) {
	rows, err := a.results.ListRows(ctx, batchID, false)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("batch %d: %w", batchID, domain.ErrNothingToDownload)
	}
	m := domain.BuildManifest(batchID, rows)
	return &m, nil
}

func (a *Assembler) read(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrObjectNotFound
	}
	rc, err := a.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

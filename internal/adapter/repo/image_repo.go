package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// ImageRepositoryPG implements domain.ImageRepository.
type ImageRepositoryPG struct {
	db infra.SQLDB
}

// NewImageRepository creates an image repository backed by PostgreSQL.
func NewImageRepository(db infra.SQLDB) *ImageRepositoryPG {
	return &ImageRepositoryPG{db: db}
}

// Register inserts images and their transformation attachments, then bumps
// the batch total, all in one transaction. The batch row is locked for the
// duration so concurrent registrations serialize on the counter.
func (r *ImageRepositoryPG) Register(ctx context.Context, batchID int64, images []domain.ImageDescriptor) ([]int64, error) {
	names := foldedNames(images)
	ids := make([]int64, 0, len(images))
	err := r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		var locked int64
		if err := tx.QueryRow(ctx, sqlinline.QBatchLockForUpdate, batchID).Scan(&locked); err != nil {
			if infra.IsNoRows(err) {
				return fmt.Errorf("batch %d: %w", batchID, domain.ErrBatchNotFound)
			}
			return err
		}
		catalog, err := resolveTransformations(ctx, tx, names)
		if err != nil {
			return err
		}
		for _, name := range names {
			if _, ok := catalog[name]; !ok {
				return fmt.Errorf("%q: %w", name, domain.ErrTransformationUnknown)
			}
		}
		for _, img := range images {
			var imageID int64
			if err := tx.QueryRow(ctx, sqlinline.QImageInsert,
				batchID,
				img.OriginalFilename,
				img.StoragePath,
				img.FileSize,
				img.Width,
				img.Height,
				img.Format,
			).Scan(&imageID); err != nil {
				return fmt.Errorf("insert image %q: %w", img.OriginalFilename, err)
			}
			for _, t := range img.Transformations {
				transformationID := catalog[domain.NormalizeTransformationName(t.Name)]
				if _, err := insertAttachment(ctx, tx, imageID, transformationID, t); err != nil {
					return err
				}
			}
			ids = append(ids, imageID)
		}
		if _, err := tx.Exec(ctx, sqlinline.QBatchBumpTotal, batchID, len(images)); err != nil {
			return fmt.Errorf("bump batch total: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetByID fetches an image by its identifier.
func (r *ImageRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Image, error) {
	var img domain.Image
	if err := r.db.QueryRow(ctx, sqlinline.QImageGet, id).Scan(
		&img.ID,
		&img.BatchID,
		&img.OriginalFilename,
		&img.StoragePath,
		&img.FileSize,
		&img.Width,
		&img.Height,
		&img.Format,
		&img.CreatedAt,
		&img.ProcessedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrImageNotFound
		}
		return nil, err
	}
	return &img, nil
}

// ListByBatch returns the images of a batch with their latest result.
func (r *ImageRepositoryPG) ListByBatch(ctx context.Context, batchID int64) ([]domain.ImageWithResult, error) {
	rows, err := r.db.Query(ctx, sqlinline.QImagesByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ImageWithResult
	for rows.Next() {
		var (
			item     domain.ImageWithResult
			resultID *int64
			res      domain.ProcessedResult
			attempt  *int
			filename *string
			path     *string
			status   *string
			errMsg   *string
			created  *time.Time
		)
		if err := rows.Scan(
			&item.ID,
			&item.BatchID,
			&item.OriginalFilename,
			&item.StoragePath,
			&item.FileSize,
			&item.Width,
			&item.Height,
			&item.Format,
			&item.CreatedAt,
			&item.ProcessedAt,
			&resultID,
			&res.NodeID,
			&attempt,
			&filename,
			&path,
			&res.FileSize,
			&res.Width,
			&res.Height,
			&res.Format,
			&res.ProcessingTimeMS,
			&status,
			&errMsg,
			&created,
		); err != nil {
			return nil, err
		}
		if resultID != nil {
			res.ID = *resultID
			res.ImageID = item.ID
			res.Attempt = deref(attempt)
			res.ResultFilename = deref(filename)
			res.StoragePath = deref(path)
			res.Status = domain.ResultStatus(deref(status))
			res.ErrorMessage = deref(errMsg)
			if created != nil {
				res.CreatedAt = *created
			}
			item.Result = &res
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkProcessed stamps processed_at the first time it is called.
func (r *ImageRepositoryPG) MarkProcessed(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, sqlinline.QImageMarkProcessed, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrImageNotFound
	}
	return nil
}

// AddTransformation attaches one catalog transformation, resolved by name, to an image.
func (r *ImageRepositoryPG) AddTransformation(ctx context.Context, imageID int64, req domain.TransformationRequest) (*domain.ImageTransformation, error) {
	name := domain.NormalizeTransformationName(req.Name)
	var out *domain.ImageTransformation
	err := r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		var batchID int64
		if err := tx.QueryRow(ctx, sqlinline.QImageBatchID, imageID).Scan(&batchID); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrImageNotFound
			}
			return err
		}
		catalog, err := resolveTransformations(ctx, tx, []string{name})
		if err != nil {
			return err
		}
		transformationID, ok := catalog[name]
		if !ok {
			return fmt.Errorf("%q: %w", name, domain.ErrTransformationUnknown)
		}
		out, err = insertAttachment(ctx, tx, imageID, transformationID, req)
		if err != nil {
			return err
		}
		out.Name = name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListTransformations returns an image's pipeline in execution order.
func (r *ImageRepositoryPG) ListTransformations(ctx context.Context, imageID int64) ([]domain.ImageTransformation, error) {
	return r.listAttachments(ctx, sqlinline.QImageTransformationsByImage, imageID)
}

// ListBatchTransformations returns every attachment of a batch, grouped by image.
func (r *ImageRepositoryPG) ListBatchTransformations(ctx context.Context, batchID int64) ([]domain.ImageTransformation, error) {
	return r.listAttachments(ctx, sqlinline.QImageTransformationsByBatch, batchID)
}

func (r *ImageRepositoryPG) listAttachments(ctx context.Context, query string, id int64) ([]domain.ImageTransformation, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ImageTransformation
	for rows.Next() {
		var it domain.ImageTransformation
		if err := rows.Scan(
			&it.ID,
			&it.ImageID,
			&it.TransformationID,
			&it.Name,
			&it.Parameters,
			&it.ExecutionOrder,
			&it.Status,
			&it.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func insertAttachment(ctx context.Context, tx infra.SQLExecutor, imageID, transformationID int64, t domain.TransformationRequest) (*domain.ImageTransformation, error) {
	params := t.Parameters
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters for %q: %w", t.Name, err)
	}
	order := t.ExecutionOrder
	if order == 0 {
		order = 1
	}
	it := &domain.ImageTransformation{
		ImageID:          imageID,
		TransformationID: transformationID,
		Name:             t.Name,
		Parameters:       raw,
		ExecutionOrder:   order,
	}
	if err := tx.QueryRow(ctx, sqlinline.QImageTransformationInsert, imageID, transformationID, raw, order).
		Scan(&it.ID, &it.Status, &it.CreatedAt); err != nil {
		return nil, fmt.Errorf("attach %q: %w", t.Name, err)
	}
	return it, nil
}

// resolveTransformations maps folded names to active catalog ids.
func resolveTransformations(ctx context.Context, q infra.SQLExecutor, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, sqlinline.QTransformationsResolve, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			id   int64
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}

func foldedNames(images []domain.ImageDescriptor) []string {
	seen := map[string]struct{}{}
	for _, img := range images {
		for _, t := range img.Transformations {
			seen[domain.NormalizeTransformationName(t.Name)] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

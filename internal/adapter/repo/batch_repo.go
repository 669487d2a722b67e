package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// BatchRepositoryPG implements domain.BatchRepository.
type BatchRepositoryPG struct {
	db infra.SQLDB
}

// NewBatchRepository creates a batch repository backed by PostgreSQL.
func NewBatchRepository(db infra.SQLDB) *BatchRepositoryPG {
	return &BatchRepositoryPG{db: db}
}

// Create inserts a pending batch.
func (r *BatchRepositoryPG) Create(ctx context.Context, b domain.NewBatch) (*domain.Batch, error) {
	row := r.db.QueryRow(ctx, sqlinline.QBatchCreate, b.UserID, b.Name, b.OutputFormat, b.CompressionType)
	return scanBatch(row)
}

// GetByID fetches a batch by its identifier.
func (r *BatchRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Batch, error) {
	batch, err := scanBatch(r.db.QueryRow(ctx, sqlinline.QBatchGet, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, err
	}
	return batch, nil
}

// ListByUser returns a user's batches, newest first.
func (r *BatchRepositoryPG) ListByUser(ctx context.Context, userID int64) ([]domain.Batch, error) {
	rows, err := r.db.Query(ctx, sqlinline.QBatchListByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ApplyStatus writes a partial update guarded by the transition table.
func (r *BatchRepositoryPG) ApplyStatus(ctx context.Context, id int64, u domain.StatusUpdate) (*domain.Batch, error) {
	var (
		status  *string
		allowed []string
	)
	if u.Status != nil {
		s := string(*u.Status)
		status = &s
		allowed = domain.AllowedFrom(*u.Status)
	}
	row := r.db.QueryRow(ctx, sqlinline.QBatchApplyStatus, id, status, u.ProcessedImages, u.StartedAt, u.CompletedAt, allowed)
	batch, err := scanBatch(row)
	if err == nil {
		return batch, nil
	}
	if infra.IsCheckViolation(err) {
		return nil, fmt.Errorf("processed_images exceeds total_images: %w", domain.ErrInvalidField)
	}
	if !infra.IsNoRows(err) {
		return nil, err
	}
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("batch %d is %s: %w", id, current.Status, domain.ErrInvalidTransition)
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var (
		b      domain.Batch
		status string
	)
	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.Name,
		&status,
		&b.TotalImages,
		&b.ProcessedImages,
		&b.OutputFormat,
		&b.CompressionType,
		&b.CreatedAt,
		&b.StartedAt,
		&b.CompletedAt,
	); err != nil {
		return nil, err
	}
	b.Status = domain.BatchStatus(status)
	return &b, nil
}

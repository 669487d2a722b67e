package repo

import (
	"context"
	"fmt"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// ResultRepositoryPG implements domain.ResultRepository.
type ResultRepositoryPG struct {
	db infra.SQLDB
}

// NewResultRepository creates a result repository backed by PostgreSQL.
func NewResultRepository(db infra.SQLDB) *ResultRepositoryPG {
	return &ResultRepositoryPG{db: db}
}

// Record stores one attempt's outcome. A replay of an (image, node, attempt)
// already stored returns the existing id with Duplicate set and changes nothing.
// A success increments the batch counter only the first time the image succeeds.
func (r *ResultRepositoryPG) Record(ctx context.Context, imageID, nodeID int64, in domain.ResultInput) (domain.RecordOutcome, error) {
	if in.Attempt <= 0 {
		in.Attempt = 1
	}
	if in.Status == "" {
		in.Status = domain.ResultSuccess
	}
	if !in.Status.Valid() {
		return domain.RecordOutcome{}, fmt.Errorf("status %q: %w", in.Status, domain.ErrInvalidField)
	}

	var out domain.RecordOutcome
	err := r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		var batchID int64
		if err := tx.QueryRow(ctx, sqlinline.QImageLockForResult, imageID).Scan(&batchID); err != nil {
			if infra.IsNoRows(err) {
				return fmt.Errorf("image %d: %w", imageID, domain.ErrImageNotFound)
			}
			return err
		}
		var exists bool
		if err := tx.QueryRow(ctx, sqlinline.QNodeExists, nodeID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("node %d: %w", nodeID, domain.ErrNodeNotFound)
		}

		err := tx.QueryRow(ctx, sqlinline.QResultInsert,
			imageID,
			nodeID,
			in.Attempt,
			in.ResultFilename,
			in.StoragePath,
			in.FileSize,
			in.Width,
			in.Height,
			in.Format,
			in.ProcessingTimeMS,
			string(in.Status),
			in.ErrorMessage,
		).Scan(&out.ResultID)
		if infra.IsNoRows(err) {
			out.Duplicate = true
			return tx.QueryRow(ctx, sqlinline.QResultByAttempt, imageID, nodeID, in.Attempt).Scan(&out.ResultID)
		}
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
		if in.Status != domain.ResultSuccess {
			return nil
		}
		tag, err := tx.Exec(ctx, sqlinline.QBatchIncrementProcessed, imageID, out.ResultID)
		if err != nil {
			return fmt.Errorf("advance batch %d: %w", batchID, err)
		}
		out.Counted = tag.RowsAffected() > 0
		if _, err := tx.Exec(ctx, sqlinline.QImageMarkProcessed, imageID); err != nil {
			return fmt.Errorf("mark image %d processed: %w", imageID, err)
		}
		return nil
	})
	if err != nil {
		return domain.RecordOutcome{}, err
	}
	return out, nil
}

// ListRows joins a batch's images with their results, optionally successes only.
func (r *ResultRepositoryPG) ListRows(ctx context.Context, batchID int64, successOnly bool) ([]domain.ResultRow, error) {
	rows, err := r.db.Query(ctx, sqlinline.QResultRows, batchID, successOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ResultRow
	for rows.Next() {
		var (
			row    domain.ResultRow
			status string
		)
		if err := rows.Scan(
			&row.ImageID,
			&row.OriginalFilename,
			&row.ResultFilename,
			&row.StoragePath,
			&status,
			&row.ProcessingTimeMS,
			&row.NodeID,
		); err != nil {
			return nil, err
		}
		row.Status = domain.ResultStatus(status)
		out = append(out, row)
	}
	return out, rows.Err()
}

// NodeBreakdown aggregates a batch's results per node.
func (r *ResultRepositoryPG) NodeBreakdown(ctx context.Context, batchID int64) ([]domain.NodeBatchStats, error) {
	rows, err := r.db.Query(ctx, sqlinline.QResultNodeBreakdown, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.NodeBatchStats
	for rows.Next() {
		var s domain.NodeBatchStats
		if err := rows.Scan(&s.NodeID, &s.NodeName, &s.Results, &s.Successful, &s.AvgProcessingTimeMS); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

package repo

import (
	"context"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// LogRepositoryPG implements domain.LogRepository.
type LogRepositoryPG struct {
	db infra.SQLDB
}

// NewLogRepository creates an execution log repository backed by PostgreSQL.
func NewLogRepository(db infra.SQLDB) *LogRepositoryPG {
	return &LogRepositoryPG{db: db}
}

// Append stores one entry. Dangling references are stored as null.
func (r *LogRepositoryPG) Append(ctx context.Context, e domain.LogEntry) (int64, error) {
	level := domain.ParseLogLevel(string(e.Level))
	var id int64
	err := r.db.QueryRow(ctx, sqlinline.QLogAppend, e.NodeID, e.BatchID, e.ImageID, string(level), e.Message).Scan(&id)
	return id, err
}

func (r *LogRepositoryPG) ListByBatch(ctx context.Context, batchID int64) ([]domain.ExecutionLog, error) {
	return r.list(ctx, sqlinline.QLogsByBatch, batchID)
}

func (r *LogRepositoryPG) ListByImage(ctx context.Context, imageID int64) ([]domain.ExecutionLog, error) {
	return r.list(ctx, sqlinline.QLogsByImage, imageID)
}

// ListByNode returns a node's newest entries, capped at limit.
func (r *LogRepositoryPG) ListByNode(ctx context.Context, nodeID int64, limit int) ([]domain.ExecutionLog, error) {
	if limit <= 0 {
		limit = domain.NodeLogLimit
	}
	return r.list(ctx, sqlinline.QLogsByNode, nodeID, limit)
}

// ListRecent returns the newest entries across the system.
func (r *LogRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionLog, error) {
	if limit <= 0 {
		limit = domain.RecentLogLimit
	}
	if limit > domain.MaxRecentLogLimit {
		limit = domain.MaxRecentLogLimit
	}
	return r.list(ctx, sqlinline.QLogsRecent, limit)
}

func (r *LogRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.ExecutionLog, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ExecutionLog
	for rows.Next() {
		var (
			l     domain.ExecutionLog
			level string
		)
		if err := rows.Scan(&l.ID, &l.NodeID, &l.BatchID, &l.ImageID, &level, &l.Message, &l.Timestamp); err != nil {
			return nil, err
		}
		l.Level = domain.LogLevel(level)
		out = append(out, l)
	}
	return out, rows.Err()
}

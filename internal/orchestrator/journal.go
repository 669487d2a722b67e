package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"imagebatch/internal/domain"
)

// Refs names the entities an execution log entry is about. Zero means none.
type Refs struct {
	Batch int64
	Image int64
	Node  int64
}

func (r Refs) entry(level domain.LogLevel, msg string) domain.LogEntry {
	e := domain.LogEntry{Level: level, Message: msg}
	if r.Batch > 0 {
		e.BatchID = &r.Batch
	}
	if r.Image > 0 {
		e.ImageID = &r.Image
	}
	if r.Node > 0 {
		e.NodeID = &r.Node
	}
	return e
}

// Journal writes the execution log. Recording never fails the caller.
type Journal struct {
	logs   domain.LogRepository
	logger zerolog.Logger
}

func NewJournal(logs domain.LogRepository, logger zerolog.Logger) *Journal {
	return &Journal{logs: logs, logger: logger}
}

// Record appends an entry; a write failure is logged and dropped.
func (j *Journal) Record(ctx context.Context, level domain.LogLevel, refs Refs, format string, args ...any) {
	if j == nil || j.logs == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if _, err := j.logs.Append(ctx, refs.entry(level, msg)); err != nil {
		j.logger.Warn().Err(err).Str("message", msg).Msg("journal: append failed")
	}
}

func (j *Journal) Info(ctx context.Context, refs Refs, format string, args ...any) {
	j.Record(ctx, domain.LogInfo, refs, format, args...)
}

func (j *Journal) Warn(ctx context.Context, refs Refs, format string, args ...any) {
	j.Record(ctx, domain.LogWarning, refs, format, args...)
}

func (j *Journal) Error(ctx context.Context, refs Refs, format string, args ...any) {
	j.Record(ctx, domain.LogError, refs, format, args...)
}

// Append stores an entry supplied by a client and reports failures.
func (j *Journal) Append(ctx context.Context, e domain.LogEntry) (int64, error) {
	if e.Message == "" {
		return 0, fmt.Errorf("message: %w", domain.ErrMissingField)
	}
	e.Level = domain.ParseLogLevel(string(e.Level))
	return j.logs.Append(ctx, e)
}

func (j *Journal) ByBatch(ctx context.Context, batchID int64) ([]domain.ExecutionLog, error) {
	return j.logs.ListByBatch(ctx, batchID)
}

func (j *Journal) ByImage(ctx context.Context, imageID int64) ([]domain.ExecutionLog, error) {
	return j.logs.ListByImage(ctx, imageID)
}

func (j *Journal) ByNode(ctx context.Context, nodeID int64, limit int) ([]domain.ExecutionLog, error) {
	return j.logs.ListByNode(ctx, nodeID, limit)
}

func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.ExecutionLog, error) {
	return j.logs.ListRecent(ctx, limit)
}

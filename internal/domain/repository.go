package domain

import (
	"context"
	"time"
)

// BatchRepository persists batches.
type BatchRepository interface {
	Create(ctx context.Context, b NewBatch) (*Batch, error)
	GetByID(ctx context.Context, id int64) (*Batch, error)
	ListByUser(ctx context.Context, userID int64) ([]Batch, error)
	// ApplyStatus writes the supplied fields in one statement. It fails with
	// ErrInvalidTransition when the stored status cannot move to u.Status.
	ApplyStatus(ctx context.Context, id int64, u StatusUpdate) (*Batch, error)
}

// ImageRepository persists images and their transformation attachments.
type ImageRepository interface {
	// Register inserts images with their attachments and bumps the batch
	// total in one transaction. Nothing is written when any name is unknown.
	Register(ctx context.Context, batchID int64, images []ImageDescriptor) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*Image, error)
	ListByBatch(ctx context.Context, batchID int64) ([]ImageWithResult, error)
	MarkProcessed(ctx context.Context, id int64) error
	AddTransformation(ctx context.Context, imageID int64, req TransformationRequest) (*ImageTransformation, error)
	ListTransformations(ctx context.Context, imageID int64) ([]ImageTransformation, error)
	ListBatchTransformations(ctx context.Context, batchID int64) ([]ImageTransformation, error)
}

// ResultRepository persists processed results.
type ResultRepository interface {
	// Record stores a result and, for successes, advances the owning batch's
	// processed counter atomically. Replays of the same attempt are not re-counted.
	Record(ctx context.Context, imageID, nodeID int64, in ResultInput) (RecordOutcome, error)
	ListRows(ctx context.Context, batchID int64, successOnly bool) ([]ResultRow, error)
	NodeBreakdown(ctx context.Context, batchID int64) ([]NodeBatchStats, error)
}

// NodeRepository persists worker nodes.
type NodeRepository interface {
	// Heartbeat upserts the node and reports whether it was created.
	Heartbeat(ctx context.Context, hb Heartbeat) (bool, error)
	Register(ctx context.Context, n NewNode) (*Node, error)
	GetByID(ctx context.Context, id int64) (*Node, error)
	List(ctx context.Context) ([]Node, error)
	ListActive(ctx context.Context, seenSince time.Time) ([]Node, error)
	// DemoteStale marks active nodes unseen since before as inactive.
	DemoteStale(ctx context.Context, before time.Time) ([]int64, error)
	ResultCounts(ctx context.Context) (map[int64][2]int, error)
}

// TransformationRepository reads and seeds the transformation catalog.
type TransformationRepository interface {
	ListActive(ctx context.Context) ([]Transformation, error)
	GetByID(ctx context.Context, id int64) (*Transformation, error)
	GetActiveByName(ctx context.Context, name string) (*Transformation, error)
	// Upsert inserts or updates an entry by (name, version). Entries already
	// referenced by an attachment are left untouched and ErrTransformationInUse is returned.
	Upsert(ctx context.Context, t Transformation) (*Transformation, error)
}

// LogRepository appends and reads execution logs.
type LogRepository interface {
	Append(ctx context.Context, e LogEntry) (int64, error)
	ListByBatch(ctx context.Context, batchID int64) ([]ExecutionLog, error)
	ListByImage(ctx context.Context, imageID int64) ([]ExecutionLog, error)
	ListByNode(ctx context.Context, nodeID int64, limit int) ([]ExecutionLog, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionLog, error)
}

// UserRepository persists accounts.
type UserRepository interface {
	Create(ctx context.Context, u NewUser, passwordHash string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	TouchLastLogin(ctx context.Context, id int64) error
}

// SessionRepository tracks issued session tokens.
type SessionRepository interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, tokenID string) (*Session, error)
	Revoke(ctx context.Context, tokenID string) (bool, error)
}

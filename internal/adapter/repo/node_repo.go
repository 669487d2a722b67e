package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// NodeRepositoryPG implements domain.NodeRepository.
type NodeRepositoryPG struct {
	db infra.SQLDB
}

// NewNodeRepository creates a node repository backed by PostgreSQL.
func NewNodeRepository(db infra.SQLDB) *NodeRepositoryPG {
	return &NodeRepositoryPG{db: db}
}

// Heartbeat upserts the node and reports whether this call created it.
func (r *NodeRepositoryPG) Heartbeat(ctx context.Context, hb domain.Heartbeat) (bool, error) {
	at := hb.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var created bool
	err := r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		if err := tx.QueryRow(ctx, sqlinline.QNodeHeartbeat,
			hb.NodeID,
			hb.IPAddress,
			hb.Port,
			hb.CPUCores,
			hb.RAMGB,
			hb.CurrentLoad,
			at,
		).Scan(&created); err != nil {
			return fmt.Errorf("heartbeat node %d: %w", hb.NodeID, err)
		}
		if !created {
			return nil
		}
		_, err := tx.Exec(ctx, sqlinline.QNodeSyncSequence)
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Register inserts a node explicitly. With an ID the node is upserted under it.
func (r *NodeRepositoryPG) Register(ctx context.Context, n domain.NewNode) (*domain.Node, error) {
	if n.MaxConcurrentJobs <= 0 {
		n.MaxConcurrentJobs = domain.DefaultMaxConcurrentJobs
	}
	if n.Weight <= 0 {
		n.Weight = domain.DefaultNodeWeight
	}
	if strings.TrimSpace(n.IPAddress) == "" {
		n.IPAddress = domain.DefaultNodeHost
	}
	if n.ID == 0 {
		if strings.TrimSpace(n.Name) == "" {
			return nil, fmt.Errorf("node_name: %w", domain.ErrMissingField)
		}
		row := r.db.QueryRow(ctx, sqlinline.QNodeRegister,
			n.Name, n.IPAddress, n.Port, n.CPUCores, n.RAMGB, n.MaxConcurrentJobs, n.Weight)
		return scanNode(row)
	}

	if strings.TrimSpace(n.Name) == "" {
		n.Name = domain.DefaultNodeName(n.ID)
	}
	if n.Port == 0 {
		n.Port = domain.DefaultNodePort(n.ID)
	}
	var node *domain.Node
	err := r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		var err error
		node, err = scanNode(tx.QueryRow(ctx, sqlinline.QNodeRegisterWithID,
			n.ID, n.Name, n.IPAddress, n.Port, n.CPUCores, n.RAMGB, n.MaxConcurrentJobs, n.Weight))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sqlinline.QNodeSyncSequence)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// GetByID fetches a node by its identifier.
func (r *NodeRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Node, error) {
	node, err := scanNode(r.db.QueryRow(ctx, sqlinline.QNodeGet, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNodeNotFound
		}
		return nil, err
	}
	return node, nil
}

// List returns every node ever seen.
func (r *NodeRepositoryPG) List(ctx context.Context) ([]domain.Node, error) {
	return r.list(ctx, sqlinline.QNodeList)
}

// ListActive returns active nodes whose last heartbeat is not before seenSince.
func (r *NodeRepositoryPG) ListActive(ctx context.Context, seenSince time.Time) ([]domain.Node, error) {
	return r.list(ctx, sqlinline.QNodeListActive, seenSince)
}

// DemoteStale flips active nodes unseen since before to inactive.
func (r *NodeRepositoryPG) DemoteStale(ctx context.Context, before time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, sqlinline.QNodeDemoteStale, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResultCounts returns per-node [total, failed] result counts.
func (r *NodeRepositoryPG) ResultCounts(ctx context.Context) (map[int64][2]int, error) {
	rows, err := r.db.Query(ctx, sqlinline.QNodeResultCounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64][2]int{}
	for rows.Next() {
		var (
			id            int64
			total, failed int
		)
		if err := rows.Scan(&id, &total, &failed); err != nil {
			return nil, err
		}
		out[id] = [2]int{total, failed}
	}
	return out, rows.Err()
}

func (r *NodeRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.Node, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func scanNode(row pgx.Row) (*domain.Node, error) {
	var (
		n      domain.Node
		status string
	)
	if err := row.Scan(
		&n.ID,
		&n.Name,
		&n.IPAddress,
		&n.Port,
		&status,
		&n.CPUCores,
		&n.RAMGB,
		&n.CurrentLoad,
		&n.MaxConcurrentJobs,
		&n.Weight,
		&n.LastHeartbeat,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.Status = domain.NodeStatus(status)
	return &n, nil
}

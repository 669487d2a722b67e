package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// TransformationRepositoryPG implements domain.TransformationRepository.
type TransformationRepositoryPG struct {
	db infra.SQLDB
}

// NewTransformationRepository creates a catalog repository backed by PostgreSQL.
func NewTransformationRepository(db infra.SQLDB) *TransformationRepositoryPG {
	return &TransformationRepositoryPG{db: db}
}

func (r *TransformationRepositoryPG) ListActive(ctx context.Context) ([]domain.Transformation, error) {
	rows, err := r.db.Query(ctx, sqlinline.QTransformationListActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Transformation
	for rows.Next() {
		t, err := scanTransformation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TransformationRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Transformation, error) {
	t, err := scanTransformation(r.db.QueryRow(ctx, sqlinline.QTransformationGet, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetActiveByName looks up the active entry for a name, ignoring case.
func (r *TransformationRepositoryPG) GetActiveByName(ctx context.Context, name string) (*domain.Transformation, error) {
	folded := domain.NormalizeTransformationName(name)
	t, err := scanTransformation(r.db.QueryRow(ctx, sqlinline.QTransformationActiveByName, folded))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("%q: %w", folded, domain.ErrTransformationUnknown)
		}
		return nil, err
	}
	return t, nil
}

// Upsert seeds or refreshes a catalog entry keyed by (name, version).
func (r *TransformationRepositoryPG) Upsert(ctx context.Context, t domain.Transformation) (*domain.Transformation, error) {
	schema := t.ParametersSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{}`)
	}
	if t.Version == "" {
		t.Version = "1.0"
	}
	row := r.db.QueryRow(ctx, sqlinline.QTransformationUpsert, t.Name, t.Version, t.Description, string(schema), t.IsActive)
	out, err := scanTransformation(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("%s %s: %w", t.Name, t.Version, domain.ErrTransformationInUse)
		}
		if infra.IsUniqueViolation(err) {
			return nil, fmt.Errorf("another active %q exists: %w", t.Name, domain.ErrDuplicate)
		}
		return nil, err
	}
	return out, nil
}

func scanTransformation(row pgx.Row) (*domain.Transformation, error) {
	var (
		t      domain.Transformation
		schema []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Version, &t.Description, &schema, &t.IsActive, &t.CreatedAt); err != nil {
		return nil, err
	}
	if len(schema) > 0 {
		t.ParametersSchema = json.RawMessage(schema)
	}
	return &t, nil
}

package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	db infra.SQLDB
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(db infra.SQLDB) *UserRepositoryPG {
	return &UserRepositoryPG{db: db}
}

// Create inserts an account with an already hashed password.
func (r *UserRepositoryPG) Create(ctx context.Context, u domain.NewUser, passwordHash string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, sqlinline.QUserCreate, u.Username, u.Email, passwordHash, u.FirstName, u.LastName)
	user, err := scanUser(row)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return nil, fmt.Errorf("username or email taken: %w", domain.ErrDuplicate)
		}
		return nil, err
	}
	return user, nil
}

// GetByUsername fetches a user by login name.
func (r *UserRepositoryPG) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.get(ctx, sqlinline.QUserByUsername, username)
}

// GetByID fetches a user by identifier.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.get(ctx, sqlinline.QUserByID, id)
}

// TouchLastLogin stamps the login time.
func (r *UserRepositoryPG) TouchLastLogin(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, sqlinline.QUserTouchLogin, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepositoryPG) get(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.IsActive,
		&u.CreatedAt,
		&u.LastLogin,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// SessionRepositoryPG implements domain.SessionRepository.
type SessionRepositoryPG struct {
	db infra.SQLDB
}

// NewSessionRepository creates a session repository backed by PostgreSQL.
func NewSessionRepository(db infra.SQLDB) *SessionRepositoryPG {
	return &SessionRepositoryPG{db: db}
}

func (r *SessionRepositoryPG) Create(ctx context.Context, s domain.Session) error {
	_, err := r.db.Exec(ctx, sqlinline.QSessionCreate, s.TokenID, s.UserID, s.ExpiresAt.UTC())
	if infra.IsUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (r *SessionRepositoryPG) Get(ctx context.Context, tokenID string) (*domain.Session, error) {
	var (
		s         domain.Session
		revokedAt *time.Time
	)
	if err := r.db.QueryRow(ctx, sqlinline.QSessionGet, tokenID).Scan(&s.TokenID, &s.UserID, &s.ExpiresAt, &revokedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	s.RevokedAt = revokedAt
	return &s, nil
}

// Revoke marks a session revoked and reports whether it was still live.
func (r *SessionRepositoryPG) Revoke(ctx context.Context, tokenID string) (bool, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QSessionRevoke, tokenID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

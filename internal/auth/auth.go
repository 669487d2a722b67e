package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"imagebatch/internal/domain"
)

const defaultSessionTTL = 24 * time.Hour

// Options configures an Authenticator.
type Options struct {
	Secret     string
	SessionTTL time.Duration
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost   int
	Logger zerolog.Logger
	Now    func() time.Time
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string      `json:"token"`
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Authenticator hashes credentials and issues revocable session tokens.
type Authenticator struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	opts     Options
}

func New(users domain.UserRepository, sessions domain.SessionRepository, opts Options) (*Authenticator, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, fmt.Errorf("auth: secret is required")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Authenticator{users: users, sessions: sessions, opts: opts}, nil
}

// Register creates an account.
func (a *Authenticator) Register(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.Username == "":
		return nil, fmt.Errorf("username: %w", domain.ErrMissingField)
	case in.Password == "":
		return nil, fmt.Errorf("password: %w", domain.ErrMissingField)
	case in.Email == "":
		return nil, fmt.Errorf("email: %w", domain.ErrMissingField)
	case len(in.Username) < domain.MinUsernameLength:
		return nil, fmt.Errorf("username must have at least %d characters: %w", domain.MinUsernameLength, domain.ErrInvalidField)
	case len(in.Password) < domain.MinPasswordLength:
		return nil, fmt.Errorf("password must have at least %d characters: %w", domain.MinPasswordLength, domain.ErrInvalidField)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("email: %w", domain.ErrInvalidField)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.opts.Cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.users.Create(ctx, in, string(hash))
	if err != nil {
		return nil, err
	}
	a.opts.Logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("auth: user registered")
	return user, nil
}

// Login checks credentials and opens a session.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username: %w", domain.ErrMissingField)
	}
	if password == "" {
		return nil, fmt.Errorf("password: %w", domain.ErrMissingField)
	}
	user, err := a.users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	now := a.opts.Now().UTC()
	claims := Claims{
		ID:       uuid.NewString(),
		Sub:      user.ID,
		Username: user.Username,
		Exp:      now.Add(a.opts.SessionTTL).Unix(),
		Issuer:   tokenIssuer,
		Audience: tokenAudience,
	}
	token, err := SignToken(a.opts.Secret, claims)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	expires := time.Unix(claims.Exp, 0).UTC()
	if err := a.sessions.Create(ctx, domain.Session{TokenID: claims.ID, UserID: user.ID, ExpiresAt: expires}); err != nil {
		return nil, err
	}
	if err := a.users.TouchLastLogin(ctx, user.ID); err != nil {
		a.opts.Logger.Warn().Err(err).Int64("user_id", user.ID).Msg("auth: last_login not updated")
	}
	a.opts.Logger.Info().Int64("user_id", user.ID).Msg("auth: login")
	return &LoginResult{Token: token, User: *user, ExpiresAt: expires}, nil
}

// Verify resolves a token to its user id. Expired, forged and revoked
// tokens all yield ErrUnauthorized.
func (a *Authenticator) Verify(ctx context.Context, token string) (int64, error) {
	if strings.TrimSpace(token) == "" {
		return 0, fmt.Errorf("token: %w", domain.ErrMissingField)
	}
	claims, err := ParseToken(a.opts.Secret, token, a.opts.Now())
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, domain.ErrUnauthorized)
	}
	session, err := a.sessions.Get(ctx, claims.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, domain.ErrUnauthorized
	}
	if err != nil {
		return 0, err
	}
	if session.RevokedAt != nil || a.opts.Now().After(session.ExpiresAt) {
		return 0, domain.ErrUnauthorized
	}
	return session.UserID, nil
}

// Logout revokes the session behind token. Revoking twice is not an error.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token: %w", domain.ErrMissingField)
	}
	claims, err := ParseToken(a.opts.Secret, token, a.opts.Now())
	if err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrUnauthorized)
	}
	if _, err := a.sessions.Revoke(ctx, claims.ID); err != nil {
		return err
	}
	a.opts.Logger.Info().Int64("user_id", claims.Sub).Msg("auth: logout")
	return nil
}

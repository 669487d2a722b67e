package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"imagebatch/internal/adapter/memrepo"
	"imagebatch/internal/domain"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newAuth(t *testing.T) (*Authenticator, *memrepo.Store, *clock) {
	t.Helper()
	store := memrepo.New()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	a, err := New(store.Users(), store.Sessions(), Options{
		Secret:     "test-secret",
		SessionTTL: time.Hour,
		Cost:       bcrypt.MinCost,
		Logger:     zerolog.Nop(),
		Now:        c.now,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return a, store, c
}

func TestRegisterValidation(t *testing.T) {
	a, _, _ := newAuth(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   domain.NewUser
		want error
	}{
		{"missing username", domain.NewUser{Password: "secret1", Email: "a@b.c"}, domain.ErrMissingField},
		{"short username", domain.NewUser{Username: "ab", Password: "secret1", Email: "a@b.c"}, domain.ErrInvalidField},
		{"short password", domain.NewUser{Username: "alice", Password: "123", Email: "a@b.c"}, domain.ErrInvalidField},
		{"bad email", domain.NewUser{Username: "alice", Password: "secret1", Email: "nope"}, domain.ErrInvalidField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.Register(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterStoresHashAndRejectsDuplicates(t *testing.T) {
	a, store, _ := newAuth(t)
	ctx := context.Background()
	in := domain.NewUser{Username: "alice", Password: "secret1", Email: "alice@example.com"}

	u, err := a.Register(ctx, in)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	stored, _ := store.Users().GetByID(ctx, u.ID)
	if stored.PasswordHash == "" || stored.PasswordHash == in.Password {
		t.Fatalf("password must be stored hashed")
	}
	if _, err := a.Register(ctx, in); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestLoginVerifyLogout(t *testing.T) {
	a, _, _ := newAuth(t)
	ctx := context.Background()
	u, _ := a.Register(ctx, domain.NewUser{Username: "alice", Password: "secret1", Email: "alice@example.com"})

	res, err := a.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if strings.Count(res.Token, ".") != 2 {
		t.Fatalf("expected a JWT, got %q", res.Token)
	}
	id, err := a.Verify(ctx, res.Token)
	if err != nil || id != u.ID {
		t.Fatalf("verify: id=%d err=%v", id, err)
	}
	if err := a.Logout(ctx, res.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := a.Verify(ctx, res.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
	if err := a.Logout(ctx, res.Token); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	a, store, _ := newAuth(t)
	ctx := context.Background()
	u, _ := a.Register(ctx, domain.NewUser{Username: "alice", Password: "secret1", Email: "alice@example.com"})

	if _, err := a.Login(ctx, "alice", "wrong-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := a.Login(ctx, "bob", "secret1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	store.Users().SetActive(u.ID, false)
	if _, err := a.Login(ctx, "alice", "secret1"); !errors.Is(err, domain.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestVerifyRejectsExpiredAndForgedTokens(t *testing.T) {
	a, _, c := newAuth(t)
	ctx := context.Background()
	_, _ = a.Register(ctx, domain.NewUser{Username: "alice", Password: "secret1", Email: "alice@example.com"})
	res, _ := a.Login(ctx, "alice", "secret1")

	forged := res.Token[:strings.LastIndex(res.Token, ".")] + ".AAAA"
	if _, err := a.Verify(ctx, forged); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected forged token to be rejected, got %v", err)
	}
	c.t = c.t.Add(2 * time.Hour)
	if _, err := a.Verify(ctx, res.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, err := SignToken("k", Claims{ID: "abc", Sub: 7, Exp: now.Add(time.Minute).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := ParseToken("k", tok, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ID != "abc" || claims.Sub != 7 {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := ParseToken("other", tok, now); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

package domain

import "time"

const (
	MinUsernameLength = 3
	MinPasswordLength = 6
)

// User is an account allowed to submit batches.
type User struct {
	ID           int64      `json:"user_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    *string    `json:"first_name,omitempty"`
	LastName     *string    `json:"last_name,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// NewUser holds registration input.
type NewUser struct {
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	Email     string  `json:"email"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// Session is an issued login token tracked for revocation.
type Session struct {
	TokenID   string
	UserID    int64
	ExpiresAt time.Time
	RevokedAt *time.Time
}

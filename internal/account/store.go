package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("email or username already exists")
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Subscribed   bool
	MessageCount int
	CreatedAt    time.Time
}

type Quota struct {
	MessageCount int
	Subscribed   bool
}

// ConsumeResult is the outcome of one atomic free-tier admission check.
type ConsumeResult int

const (
	// ConsumeSubscribed: subscribed user, allowed, counter untouched.
	ConsumeSubscribed ConsumeResult = iota
	// ConsumeCounted: free-tier user admitted; counter incremented by one.
	ConsumeCounted
	// ConsumeDenied: free-tier cap reached; counter untouched.
	ConsumeDenied
)

// Store is the user-account collaborator. ConsumeFreeMessage must be atomic
// with respect to concurrent calls for the same user: the limit check and
// the increment happen as one operation, never as a read followed by a
// separate write.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, userID string) (User, error)
	GetQuota(ctx context.Context, userID string) (Quota, error)
	ConsumeFreeMessage(ctx context.Context, userID string, limit int) (ConsumeResult, error)
	SetSubscribed(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

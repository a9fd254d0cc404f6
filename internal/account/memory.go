package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development
// without a database. The store mutex makes ConsumeFreeMessage atomic.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (s *MemoryStore) CreateUser(_ context.Context, username, email, passwordHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, email) || strings.EqualFold(existing.Username, username) {
			return User{}, ErrDuplicate
		}
	}
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[user.ID] = user
	return *user, nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return *user, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) UserByID(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return *user, nil
}

func (s *MemoryStore) GetQuota(_ context.Context, userID string) (Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return Quota{}, ErrNotFound
	}
	return Quota{MessageCount: user.MessageCount, Subscribed: user.Subscribed}, nil
}

func (s *MemoryStore) ConsumeFreeMessage(_ context.Context, userID string, limit int) (ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ConsumeDenied, ErrNotFound
	}
	if user.Subscribed {
		return ConsumeSubscribed, nil
	}
	if user.MessageCount >= limit {
		return ConsumeDenied, nil
	}
	user.MessageCount++
	return ConsumeCounted, nil
}

func (s *MemoryStore) SetSubscribed(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.Subscribed = true
	return nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

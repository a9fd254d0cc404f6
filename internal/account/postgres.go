package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the users table when absent. Idempotent, run once at
// process start.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(
		ctx,
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			username VARCHAR(100) UNIQUE NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			password VARCHAR(255) NOT NULL,
			subscribed BOOLEAN NOT NULL DEFAULT FALSE,
			subscription_start TIMESTAMP,
			message_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	)
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, email, passwordHash string) (User, error) {
	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}
	err := s.db.QueryRow(
		ctx,
		`INSERT INTO users (id, username, email, password)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		user.ID,
		username,
		email,
		passwordHash,
	).Scan(&user.CreatedAt)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRow(
		ctx,
		`SELECT id, username, email, password, subscribed, message_count, created_at
		 FROM users WHERE email = $1`,
		email,
	))
}

func (s *PostgresStore) UserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRow(
		ctx,
		`SELECT id, username, email, password, subscribed, message_count, created_at
		 FROM users WHERE id = $1`,
		userID,
	))
}

func (s *PostgresStore) GetQuota(ctx context.Context, userID string) (Quota, error) {
	quota := Quota{}
	err := s.db.QueryRow(
		ctx,
		`SELECT message_count, subscribed FROM users WHERE id = $1`,
		userID,
	).Scan(&quota.MessageCount, &quota.Subscribed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quota{}, ErrNotFound
	}
	if err != nil {
		return Quota{}, err
	}
	return quota, nil
}

// ConsumeFreeMessage performs the admission check and the increment in a
// single conditional UPDATE, so concurrent duplicate requests cannot double
// count or slip past the cap.
func (s *PostgresStore) ConsumeFreeMessage(ctx context.Context, userID string, limit int) (ConsumeResult, error) {
	var subscribed bool
	err := s.db.QueryRow(
		ctx,
		`UPDATE users
		 SET message_count = message_count + CASE WHEN subscribed THEN 0 ELSE 1 END
		 WHERE id = $1 AND (subscribed OR message_count < $2)
		 RETURNING subscribed`,
		userID,
		limit,
	).Scan(&subscribed)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the cap is hit or the user does not exist.
		var exists bool
		if err := s.db.QueryRow(
			ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
			userID,
		).Scan(&exists); err != nil {
			return ConsumeDenied, err
		}
		if !exists {
			return ConsumeDenied, ErrNotFound
		}
		return ConsumeDenied, nil
	}
	if err != nil {
		return ConsumeDenied, err
	}
	if subscribed {
		return ConsumeSubscribed, nil
	}
	return ConsumeCounted, nil
}

func (s *PostgresStore) SetSubscribed(ctx context.Context, userID string) error {
	tag, err := s.db.Exec(
		ctx,
		`UPDATE users
		 SET subscribed = TRUE,
		     subscription_start = COALESCE(subscription_start, NOW())
		 WHERE id = $1`,
		userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := s.db.Exec(
		ctx,
		`UPDATE users SET password = $2 WHERE id = $1`,
		userID,
		passwordHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) scanUser(row pgx.Row) (User, error) {
	user := User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Subscribed,
		&user.MessageCount,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

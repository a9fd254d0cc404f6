package db

import (
	"context"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, rawURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(normalizeDatabaseURL(rawURL))
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// normalizeDatabaseURL rewrites scheme aliases emitted by hosting providers
// and defaults sslmode=require for non-local hosts, matching how the
// production database expects to be reached.
func normalizeDatabaseURL(rawURL string) string {
	normalized := strings.TrimSpace(rawURL)
	if strings.HasPrefix(normalized, "postgresql+psycopg://") {
		normalized = strings.Replace(normalized, "postgresql+psycopg://", "postgres://", 1)
	}
	if strings.HasPrefix(normalized, "postgresql://") {
		normalized = strings.Replace(normalized, "postgresql://", "postgres://", 1)
	}

	parsed, err := url.Parse(normalized)
	if err != nil || parsed.Scheme != "postgres" {
		return normalized
	}

	queries := parsed.Query()
	host := parsed.Hostname()
	if queries.Get("sslmode") == "" && host != "localhost" && host != "127.0.0.1" {
		queries.Set("sslmode", "require")
	}
	parsed.RawQuery = queries.Encode()
	return parsed.String()
}

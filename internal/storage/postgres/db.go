package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type DB struct {
	Pool Pool
}

// Connect builds a pool for dsn. serviceKey, when set, overrides the password.
// The pool dials lazily, so Connect succeeds while the database is down.
func Connect(ctx context.Context, dsn, serviceKey string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if serviceKey != "" {
		cfg.ConnConfig.Password = serviceKey
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

var (
	sharedOnce sync.Once
	sharedDB   *DB
	sharedErr  error
)

// Shared returns the process-wide DB, creating it on first use.
// Later calls ignore their arguments.
func Shared(ctx context.Context, dsn, serviceKey string) (*DB, error) {
	sharedOnce.Do(func() {
		sharedDB, sharedErr = Connect(ctx, dsn, serviceKey)
	})
	return sharedDB, sharedErr
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Ready(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

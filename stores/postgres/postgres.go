package pgstore

import (
	"context"
	"fmt"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	slogctx "github.com/veqryn/slog-context"
	"log/slog"
	"time"
)

// The forecast log is written at most once per request, so a small pool is enough.
const (
	defaultMaxConns     = 4
	defaultConnLifetime = 30 * time.Minute
)

type PostgresStore struct {
	DB *pgxpool.Pool
}

// New sets up a connection pool. connString is a libpq keyword/value string
// or a postgres:// URL. The pool never exceeds defaultMaxConns.
func New(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("pg cannot parse connection string: %w", err)
	}
	if cfg.MaxConns > defaultMaxConns {
		cfg.MaxConns = defaultMaxConns
	}
	cfg.MaxConnLifetime = defaultConnLifetime

	db, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg cannot set up db: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

func (p *PostgresStore) Close() {
	p.DB.Close()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	log := slogctx.FromCtx(ctx)
	var pgVersion string
	err := p.DB.QueryRow(ctx, "select version()").Scan(&pgVersion)
	if err != nil {
		return fmt.Errorf("pg cannot ping db: %w", err)
	}
	log.Info("pg Ping ok", slog.String("version", pgVersion))
	return nil
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// EnsureSchema runs idempotent DDL for one table.
func EnsureSchema(ctx context.Context, db Execer, table string, ddl string) error {
	log := slogctx.FromCtx(ctx)
	t1 := time.Now()
	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pg cannot migrate %s: %w", table, err)
	}
	log.Info("pg schema ready",
		slog.String("table", table),
		slog.Int64("duration_ms", time.Since(t1).Milliseconds()),
	)
	return nil
}

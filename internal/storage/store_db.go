package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second

	collectionsTable = "market_collections"
	connectBackoff   = 200 * time.Millisecond
)

const createCollectionsTable = `
	CREATE TABLE IF NOT EXISTS market_collections (
		name       TEXT PRIMARY KEY,
		body       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore keeps each collection as a single JSONB row keyed by name.
type PostgresStore struct {
	db DB
	sb squirrel.StatementBuilderType
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ConnectPostgres opens a pool and waits until the server answers a ping,
// giving up after attempts retries.
func ConnectPostgres(ctx context.Context, dsn string, attempts uint64, log *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(connectBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := withTimeout(ctx, pingTimeout, pool.Ping); err != nil {
			log.Warn("postgres not ready", zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, createCollectionsTable)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, s.db.Ping)
}

func (s *PostgresStore) Save(ctx context.Context, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	query, args, err := s.sb.Insert(collectionsTable).
		Columns("name", "body", "updated_at").
		Values(name, string(raw), squirrel.Expr("now()")).
		Suffix("ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build save %s: %w", name, err)
	}

	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		if _, err := s.db.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		return nil
	})
}

func (s *PostgresStore) Load(ctx context.Context, name string, v any) error {
	query, args, err := s.sb.Select("body").
		From(collectionsTable).
		Where(squirrel.Eq{"name": name}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build load %s: %w", name, err)
	}

	var raw []byte
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, query, args...).Scan(&raw)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s does not exist", ErrNotAvailable, name)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return decodeCollection(name, raw, v)
}

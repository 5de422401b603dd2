package store

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/db"
	"github.com/sells-group/valuation-cli/internal/model"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	*sqlStore
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool, pool.Close), nil
}

func newPostgresWithPool(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{
		sqlStore: &sqlStore{q: pgxQueryer{pool: pool}, name: "postgres"},
		pool:     pool,
		closeFn:  closeFn,
	}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, postgresMigrations, "migrations/postgres"), "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.InTx(ctx, s.pool, fn)
}

// ReplaceMultiples swaps the whole multiples table for ms in one
// transaction, bulk-loading the new rows with COPY.
func (s *PostgresStore) ReplaceMultiples(ctx context.Context, ms []model.IndustryMultiple) error {
	rows := make([][]any, 0, len(ms))
	for i := range ms {
		if err := prepareMultiple(&ms[i]); err != nil {
			return err
		}
		rows = append(rows, multipleRow(&ms[i]))
	}

	return s.InTx(ctx, func(ctx context.Context) error {
		if err := s.deleteAllMultiples(ctx); err != nil {
			return err
		}
		tx, _ := db.TxFrom(ctx)
		if _, err := db.CopyFrom(ctx, tx, "industry_multiples", multipleCopyColumns, rows); err != nil {
			return eris.Wrap(err, "postgres: copy multiples")
		}
		return nil
	})
}

// UpsertMultiples inserts or updates multiples by ID through a temp table.
func (s *PostgresStore) UpsertMultiples(ctx context.Context, ms []model.IndustryMultiple) (int64, error) {
	rows := make([][]any, 0, len(ms))
	for i := range ms {
		if err := prepareMultiple(&ms[i]); err != nil {
			return 0, err
		}
		rows = append(rows, multipleRow(&ms[i]))
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "industry_multiples",
		Columns:      multipleCopyColumns,
		ConflictKeys: []string{"id"},
	}, rows)
}

// pgxQueryer runs shared SQL on the pool or the transaction in ctx.
type pgxQueryer struct {
	pool db.Pool
}

func (p pgxQueryer) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := db.Conn(ctx, p.pool).Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p pgxQueryer) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return pgxRow{row: db.Conn(ctx, p.pool).QueryRow(ctx, rebind(query), args...)}
}

func (p pgxQueryer) query(ctx context.Context, query string, args ...any) (rowsIter, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type pgxRow struct {
	row pgx.Row
}

func (r pgxRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

var _ Store = (*PostgresStore)(nil)

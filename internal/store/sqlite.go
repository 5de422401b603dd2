package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/valuation-cli/internal/db"
	"github.com/sells-group/valuation-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	*sqlStore
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{
		sqlStore: &sqlStore{q: sqliteQueryer{db: db}, name: "sqlite"},
		db:       db,
	}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	industry          TEXT NOT NULL DEFAULT '',
	super_sector      TEXT NOT NULL DEFAULT '',
	sector            TEXT NOT NULL DEFAULT '',
	sub_sector        TEXT NOT NULL DEFAULT '',
	annual_revenue    TEXT NOT NULL DEFAULT '0',
	revenue_model     TEXT NOT NULL DEFAULT '',
	gross_margin      TEXT NOT NULL DEFAULT '',
	labor_intensity   TEXT NOT NULL DEFAULT '',
	asset_intensity   TEXT NOT NULL DEFAULT '',
	owner_involvement TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS financial_periods (
	company_id      TEXT NOT NULL REFERENCES companies(id),
	period_end      DATETIME NOT NULL,
	adjusted_ebitda TEXT,
	free_cash_flow  TEXT,
	PRIMARY KEY (company_id, period_end)
);

CREATE TABLE IF NOT EXISTS questions (
	id                TEXT PRIMARY KEY,
	category          TEXT NOT NULL,
	prompt            TEXT NOT NULL,
	max_impact_points TEXT NOT NULL,
	is_active         BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS question_options (
	id            TEXT PRIMARY KEY,
	question_id   TEXT NOT NULL REFERENCES questions(id),
	label         TEXT NOT NULL,
	score_value   TEXT NOT NULL,
	display_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS assessment_responses (
	id                  TEXT PRIMARY KEY,
	company_id          TEXT NOT NULL REFERENCES companies(id),
	question_id         TEXT NOT NULL REFERENCES questions(id),
	selected_option_id  TEXT NOT NULL REFERENCES question_options(id),
	effective_option_id TEXT NOT NULL REFERENCES question_options(id),
	updated_at          DATETIME NOT NULL,
	UNIQUE (company_id, question_id)
);

CREATE TABLE IF NOT EXISTS industry_multiples (
	id             TEXT PRIMARY KEY,
	industry       TEXT NOT NULL DEFAULT '',
	super_sector   TEXT NOT NULL DEFAULT '',
	sector         TEXT NOT NULL DEFAULT '',
	sub_sector     TEXT NOT NULL DEFAULT '',
	effective_date DATETIME NOT NULL,
	revenue_low    TEXT NOT NULL,
	revenue_high   TEXT NOT NULL,
	ebitda_low     TEXT NOT NULL,
	ebitda_high    TEXT NOT NULL,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS valuation_snapshots (
	id                    TEXT PRIMARY KEY,
	company_id            TEXT NOT NULL REFERENCES companies(id),
	created_at            DATETIME NOT NULL,
	snapshot_reason       TEXT NOT NULL,
	actor_user_id         TEXT,
	adjusted_ebitda       TEXT NOT NULL,
	ebitda_estimated      BOOLEAN NOT NULL DEFAULT 0,
	industry_multiple_id  TEXT NOT NULL,
	multiple_low          TEXT NOT NULL,
	multiple_high         TEXT NOT NULL,
	core_score            TEXT NOT NULL,
	score_financial       TEXT,
	score_transferability TEXT,
	score_operational     TEXT,
	score_market          TEXT,
	score_legal_tax       TEXT,
	score_personal        TEXT,
	bri_score             TEXT NOT NULL,
	alpha                 TEXT NOT NULL,
	base_multiple         TEXT NOT NULL,
	discount_fraction     TEXT NOT NULL,
	final_multiple        TEXT NOT NULL,
	current_value         TEXT NOT NULL,
	potential_value       TEXT NOT NULL,
	value_gap             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                      TEXT PRIMARY KEY,
	company_id              TEXT NOT NULL REFERENCES companies(id),
	title                   TEXT NOT NULL,
	status                  TEXT NOT NULL DEFAULT 'PENDING',
	linked_question_id      TEXT,
	upgrades_from_option_id TEXT,
	upgrades_to_option_id   TEXT,
	raw_impact              TEXT NOT NULL DEFAULT '0',
	normalized_value        TEXT NOT NULL DEFAULT '0',
	template_key            TEXT,
	created_at              DATETIME NOT NULL,
	completed_at            DATETIME,
	UNIQUE (company_id, template_key)
);

CREATE TABLE IF NOT EXISTS signals (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL REFERENCES companies(id),
	kind       TEXT NOT NULL,
	severity   TEXT NOT NULL,
	title      TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS drift_reports (
	id                    TEXT PRIMARY KEY,
	company_id            TEXT NOT NULL REFERENCES companies(id),
	period_start          DATETIME NOT NULL,
	period_end            DATETIME NOT NULL,
	start_snapshot_id     TEXT NOT NULL,
	end_snapshot_id       TEXT NOT NULL,
	bri_start             TEXT NOT NULL,
	bri_end               TEXT NOT NULL,
	bri_delta             TEXT NOT NULL,
	valuation_start       TEXT NOT NULL,
	valuation_end         TEXT NOT NULL,
	valuation_delta       TEXT NOT NULL,
	category_deltas       TEXT NOT NULL DEFAULT '[]',
	signals_count         INTEGER NOT NULL DEFAULT 0,
	tasks_completed_count INTEGER NOT NULL DEFAULT 0,
	tasks_added_count     INTEGER NOT NULL DEFAULT 0,
	severity              TEXT NOT NULL,
	signal_id             TEXT,
	created_at            DATETIME NOT NULL,
	viewed_at             DATETIME
);

CREATE INDEX IF NOT EXISTS idx_companies_sub_sector ON companies(sub_sector);
CREATE INDEX IF NOT EXISTS idx_companies_sector ON companies(sector);
CREATE INDEX IF NOT EXISTS idx_companies_super_sector ON companies(super_sector);
CREATE INDEX IF NOT EXISTS idx_companies_industry ON companies(industry);
CREATE INDEX IF NOT EXISTS idx_industry_multiples_key ON industry_multiples(industry, super_sector, sector, sub_sector, effective_date);
CREATE INDEX IF NOT EXISTS idx_valuation_snapshots_company_created ON valuation_snapshots(company_id, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_company_status ON tasks(company_id, status);
CREATE INDEX IF NOT EXISTS idx_signals_company_created ON signals(company_id, created_at);
CREATE INDEX IF NOT EXISTS idx_drift_reports_company ON drift_reports(company_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTxKey struct{}

// InTransaction reports whether ctx carries a transaction opened by either
// store's InTx.
func InTransaction(ctx context.Context) bool {
	if _, ok := db.TxFrom(ctx); ok {
		return true
	}
	_, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx)
	return ok
}

// InTx runs fn inside a transaction carried by ctx. Nested calls join the
// outer transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(context.WithValue(ctx, sqliteTxKey{}, tx)); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// ReplaceMultiples swaps the whole multiples table for ms in one transaction.
func (s *SQLiteStore) ReplaceMultiples(ctx context.Context, ms []model.IndustryMultiple) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		if err := s.deleteAllMultiples(ctx); err != nil {
			return err
		}
		for i := range ms {
			if err := s.InsertMultiple(ctx, &ms[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertMultiples inserts or updates multiples by ID in one transaction.
// Every row is validated before anything is written.
func (s *SQLiteStore) UpsertMultiples(ctx context.Context, ms []model.IndustryMultiple) (int64, error) {
	for i := range ms {
		if err := prepareMultiple(&ms[i]); err != nil {
			return 0, err
		}
	}
	var affected int64
	err := s.InTx(ctx, func(ctx context.Context) error {
		for i := range ms {
			n, err := s.q.exec(ctx, upsertMultipleSQL, multipleRow(&ms[i])...)
			if err != nil {
				return s.wrap(err, "upsert multiple "+ms[i].ID)
			}
			affected += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteQueryer struct {
	db *sql.DB
}

func (q sqliteQueryer) conn(ctx context.Context) sqlQuerier {
	if tx, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx); ok {
		return tx
	}
	return q.db
}

func (q sqliteQueryer) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q sqliteQueryer) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return sqlRow{row: q.conn(ctx).QueryRowContext(ctx, query, args...)}
}

func (q sqliteQueryer) query(ctx context.Context, query string, args ...any) (rowsIter, error) {
	rows, err := q.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{Rows: rows}, nil
}

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

var _ Store = (*SQLiteStore)(nil)

package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQL dialects supported by SQLStore.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

const createQuotaSchemaSQL = `
CREATE TABLE IF NOT EXISTS daily_quota (
    ip_address VARCHAR(255) NOT NULL,
    day CHAR(10) NOT NULL,
    click_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (ip_address, day)
)`

// SQLStore keeps quota records in a SQL table, one row per (identity, day).
// Rows are never deleted. Concurrency is handled by the database: the
// increment is a single conditional upsert.
type SQLStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

// NormalizeDialect maps driver names to a supported dialect.
func NormalizeDialect(dialect string) (string, error) {
	switch dialect {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}
}

// NewSQLStore creates the store and its table if missing.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}

	d, err := NormalizeDialect(dialect)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, dialect: d, now: time.Now}
	if _, err := db.ExecContext(ctx, createQuotaSchemaSQL); err != nil {
		return nil, fmt.Errorf("create daily_quota table: %w", err)
	}
	return s, nil
}

// Count returns the recorded count for (identity, day), or 0 if absent.
func (s *SQLStore) Count(ctx context.Context, identity, day string) (int, error) {
	return s.count(ctx, s.db, identity, day)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) count(ctx context.Context, q queryer, identity, day string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, s.countQuery(), identity, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select daily_quota: %w", err)
	}
	return count, nil
}

// IncrementIfBelow performs the conditional upsert and reads back the count
// inside one transaction, so the returned count is the one this call wrote.
func (s *SQLStore) IncrementIfBelow(ctx context.Context, identity, day string, max int) (int, bool, error) {
	if max <= 0 {
		count, err := s.Count(ctx, identity, day)
		return count, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args := s.incrementQuery(identity, day, max, s.now().UTC())
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, false, fmt.Errorf("upsert daily_quota: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}

	count, err := s.count(ctx, tx, identity, day)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}

	return count, affected > 0, nil
}

// SQL Query Builders (dialect-specific)

func (s *SQLStore) countQuery() string {
	if s.dialect == DialectPostgres {
		return `SELECT click_count FROM daily_quota WHERE ip_address = $1 AND day = $2`
	}
	return `SELECT click_count FROM daily_quota WHERE ip_address = ? AND day = ?`
}

// incrementQuery inserts the row with count 1, or increments an existing row
// only while it is below max. Affected rows is 0 when the limit blocked the
// increment.
func (s *SQLStore) incrementQuery(identity, day string, max int, now time.Time) (string, []any) {
	switch s.dialect {
	case DialectPostgres:
		return `INSERT INTO daily_quota (ip_address, day, click_count, created_at, updated_at)
                VALUES ($1, $2, 1, $3, $3)
                ON CONFLICT (ip_address, day) DO UPDATE
                SET click_count = daily_quota.click_count + 1, updated_at = excluded.updated_at
                WHERE daily_quota.click_count < $4`,
			[]any{identity, day, now, max}
	case DialectMySQL:
		// Assignments run left to right, so updated_at is evaluated against
		// the old click_count.
		return `INSERT INTO daily_quota (ip_address, day, click_count, created_at, updated_at)
                VALUES (?, ?, 1, ?, ?)
                ON DUPLICATE KEY UPDATE
                updated_at = IF(click_count < ?, VALUES(updated_at), updated_at),
                click_count = IF(click_count < ?, click_count + 1, click_count)`,
			[]any{identity, day, now, now, max, max}
	default:
		return `INSERT INTO daily_quota (ip_address, day, click_count, created_at, updated_at)
                VALUES (?, ?, 1, ?, ?)
                ON CONFLICT (ip_address, day) DO UPDATE
                SET click_count = daily_quota.click_count + 1, updated_at = excluded.updated_at
                WHERE daily_quota.click_count < ?`,
			[]any{identity, day, now, now, max}
	}
}

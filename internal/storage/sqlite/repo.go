// Package sqlite implements the embedded-engine backend on modernc.org/sqlite
// via database/sql. SQLite has no bulk-load wire protocol; the fast path is
// prepared-statement execution inside a transaction, in sub-batches small
// enough that the single writer's lock is never held long.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/metrics"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/retry"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg, nil)
	})
}

// defaultBatchSize keeps sub-batches in the hundreds: the single writer
// serializes everything, so smaller transactions mean shorter lock windows
// for sibling workers. Config.BatchSize overrides it.
const defaultBatchSize = 500

// busyTimeout bounds how long a connection waits on the write lock before
// the driver reports SQLITE_BUSY and our own backoff takes over.
const busyTimeout = 30 * time.Second

// Repository is the embedded-engine storage.Repository.
type Repository struct {
	db    *sql.DB
	batch int
	log   *zap.Logger
}

// NewRepository opens the database file and applies the bulk-load pragmas:
// synchronous writes off (acceptable for reloadable bulk data), a 64MB page
// cache, and WAL journaling so readers are not blocked during the load.
func NewRepository(ctx context.Context, cfg storage.Config, log *zap.Logger) (*Repository, error) {
	dsn := cfg.DSN
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer per Repository; connection churn re-runs pragmas otherwise.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA synchronous = OFF",
		"PRAGMA cache_size = -64000",
		"PRAGMA journal_mode = WAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			log.Warn("pragma failed", zap.String("pragma", p), zap.Error(err))
		}
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Repository{db: db, batch: batch, log: log}, nil
}

// Dialect implements storage.Repository.
func (r *Repository) Dialect() schema.Dialect { return schema.DialectSQLite }

// Close implements storage.Repository.
func (r *Repository) Close() error { return r.db.Close() }

// isBusy classifies write-lock contention, the only transient error class
// for this engine.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database table is locked")
}

// isConstraint classifies unique/NOT NULL violations; these rows are the
// store constraint doing its backstop job and are skipped, not retried.
func isConstraint(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}

// retryCounter wraps the busy classifier so retried attempts can be counted.
// retry.Do consults the predicate only when another attempt will follow, so
// the count equals the number of re-executions.
type retryCounter struct {
	n int64
}

func (c *retryCounter) busy(err error) bool {
	if !isBusy(err) {
		return false
	}
	c.n++
	return true
}

// bindValue maps canonical values to SQLite's storage types: dates become
// "YYYY-MM-DD" text (the date columns are string-typed in this engine) and
// booleans become 0/1.
func bindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

// CopyFrom inserts rows in sub-batches. Each sub-batch runs in its own
// transaction and retries with exponential backoff on lock contention; a
// sub-batch that still cannot commit degrades to row-by-row inserts so one
// bad row cannot block its siblings. Only a row that fails even standalone,
// for a non-constraint reason, escalates to a BackendError.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, &storage.BackendError{Backend: "sqlite", Table: table, Err: errors.New("no columns")}
	}

	rc := &retryCounter{}
	defer func() {
		if rc.n > 0 {
			metrics.RecordRetries(table, rc.n)
		}
	}()

	placeholders := strings.Repeat("?, ", len(columns))
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders[:len(placeholders)-2],
	)

	var inserted int64
	for start := 0; start < len(rows); start += r.batch {
		end := start + r.batch
		if end > len(rows) {
			end = len(rows)
		}
		sub := rows[start:end]

		err := retry.Do(ctx, retry.DefaultPolicy, rc.busy, func() error {
			return r.insertTx(ctx, insertSQL, sub)
		})
		if err == nil {
			inserted += int64(len(sub))
			continue
		}
		if !isBusy(err) && !isConstraint(err) {
			return inserted, &storage.BackendError{Backend: "sqlite", Table: table, Err: err}
		}

		// Degraded path: the sub-batch as a whole would not commit; insert
		// its rows one at a time so duplicates or one poisoned row only cost
		// themselves.
		r.log.Warn("sub-batch insert degraded to row-by-row",
			zap.String("table", table), zap.Int("rows", len(sub)), zap.Error(err))
		n, err := r.insertRowwise(ctx, table, insertSQL, sub, rc)
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// insertTx writes one sub-batch inside a transaction using a prepared
// statement. Any row error aborts and rolls back the whole sub-batch.
func (r *Repository) insertTx(ctx context.Context, insertSQL string, rows [][]any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	args := make([]any, 0, 16)
	for _, row := range rows {
		args = args[:0]
		for _, v := range row {
			args = append(args, bindValue(v))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// insertRowwise inserts rows individually, each with its own busy retry.
// Constraint violations are counted and skipped; a persistent non-constraint
// failure is fatal for the sub-batch and reported with the row's leading
// value (the natural key position in every canonical layout).
func (r *Repository) insertRowwise(ctx context.Context, table, insertSQL string, rows [][]any, rc *retryCounter) (int64, error) {
	var inserted int64
	var skipped int
	for _, row := range rows {
		args := make([]any, 0, len(row))
		for _, v := range row {
			args = append(args, bindValue(v))
		}
		err := retry.Do(ctx, retry.DefaultPolicy, rc.busy, func() error {
			_, execErr := r.db.ExecContext(ctx, insertSQL, args...)
			return execErr
		})
		switch {
		case err == nil:
			inserted++
		case isConstraint(err):
			skipped++
		default:
			r.log.Error("row insert failed after degradation",
				zap.String("table", table), zap.Any("key", row[0]), zap.Error(err))
			return inserted, &storage.BackendError{Backend: "sqlite", Table: table, Err: err}
		}
	}
	if skipped > 0 {
		r.log.Info("rows rejected by unique constraint",
			zap.String("table", table), zap.Int("skipped", skipped))
	}
	return inserted, nil
}

// Exec implements storage.Repository.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// Count implements storage.Repository.
func (r *Repository) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count %s: %w", table, err)
	}
	return n, nil
}

// IndexExists implements storage.Repository.
func (r *Repository) IndexExists(ctx context.Context, name string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?", name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: index lookup: %w", err)
	}
	return true, nil
}

// DeleteAll implements storage.Repository. The delete runs in its own
// transaction so an interrupted force reload is re-runnable.
func (r *Repository) DeleteAll(ctx context.Context, table string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: delete %s: %w", table, err)
	}
	return tx.Commit()
}

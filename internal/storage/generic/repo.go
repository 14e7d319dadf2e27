// Package generic implements the fallback backend for any engine reachable
// through database/sql with '?' placeholders. It trades bulk-load speed for
// portability: batched multi-row INSERTs, no engine-specific pragmas or
// protocols.
package generic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage"
)

func init() {
	storage.Register("generic", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg, nil)
	})
}

// defaultBatchSize sizes the multi-row INSERT statements; Config.BatchSize
// overrides it.
const defaultBatchSize = 500

// Repository is the portable storage.Repository. The DSN selects a
// registered database/sql driver with "driver://" or the driver's own DSN
// syntax; MySQL is linked in by default.
type Repository struct {
	db    *sql.DB
	batch int
	log   *zap.Logger
}

// NewRepository opens a connection for the given DSN. The driver name is
// split off a "driver:dsn" prefix, defaulting to mysql.
func NewRepository(ctx context.Context, cfg storage.Config, log *zap.Logger) (*Repository, error) {
	dsn := cfg.DSN
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("generic: DSN must not be empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	driver := "mysql"
	if i := strings.Index(dsn, "://"); i > 0 {
		driver, dsn = dsn[:i], dsn[i+3:]
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("generic: open %s: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("generic: ping: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Repository{db: db, batch: batch, log: log}, nil
}

// Dialect implements storage.Repository.
func (r *Repository) Dialect() schema.Dialect { return schema.DialectGeneric }

// Close implements storage.Repository.
func (r *Repository) Close() error { return r.db.Close() }

// CopyFrom implements storage.Repository with batched multi-row INSERTs
// inside a transaction per batch.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	rowTmpl := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	var inserted int64
	for start := 0; start < len(rows); start += r.batch {
		end := start + r.batch
		if end > len(rows) {
			end = len(rows)
		}
		sub := rows[start:end]

		values := make([]string, len(sub))
		args := make([]any, 0, len(sub)*len(columns))
		for i, row := range sub {
			values[i] = rowTmpl
			args = append(args, row...)
		}

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return inserted, &storage.BackendError{Backend: "generic", Table: table, Err: err}
		}
		res, err := tx.ExecContext(ctx, prefix+strings.Join(values, ", "), args...)
		if err != nil {
			tx.Rollback()
			return inserted, &storage.BackendError{Backend: "generic", Table: table, Err: err}
		}
		if err := tx.Commit(); err != nil {
			return inserted, &storage.BackendError{Backend: "generic", Table: table, Err: err}
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		} else {
			inserted += int64(len(sub))
		}
	}
	return inserted, nil
}

// Exec implements storage.Repository.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("generic: exec: %w", err)
	}
	return nil
}

// Count implements storage.Repository.
func (r *Repository) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("generic: count %s: %w", table, err)
	}
	return n, nil
}

// IndexExists implements storage.Repository via information_schema, which
// MySQL and most compatible engines expose.
func (r *Repository) IndexExists(ctx context.Context, name string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx,
		"SELECT index_name FROM information_schema.statistics WHERE index_name = ? LIMIT 1", name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("generic: index lookup: %w", err)
	}
	return true, nil
}

// DeleteAll implements storage.Repository.
func (r *Repository) DeleteAll(ctx context.Context, table string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("generic: delete %s: %w", table, err)
	}
	return nil
}

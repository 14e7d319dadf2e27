// Package postgres implements the server-engine backend on pgx. The fast
// path is the COPY protocol; when COPY fails mid-stream the chunk falls back
// to batched multi-row INSERTs, which localize the failure to one statement.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg, nil)
	})
}

// defaultBatchSize bounds the multi-row INSERT fallback; Postgres caps bind
// parameters at 65535 per statement and the widest table binds 16 columns.
// Config.BatchSize overrides it.
const defaultBatchSize = 1000

// Repository is the server-engine storage.Repository.
type Repository struct {
	pool  *pgxpool.Pool
	batch int
	log   *zap.Logger
}

// NewRepository connects a pool to the given DSN. Pool sizing is left to the
// caller's DSN; each load worker holds its own Repository.
func NewRepository(ctx context.Context, storeCfg storage.Config, log *zap.Logger) (*Repository, error) {
	dsn := storeCfg.DSN
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	batch := storeCfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Repository{pool: pool, batch: batch, log: log}, nil
}

// Dialect implements storage.Repository.
func (r *Repository) Dialect() schema.Dialect { return schema.DialectPostgres }

// Close implements storage.Repository.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// CopyFrom streams rows over the COPY protocol. On failure the whole chunk
// is retried as multi-row INSERTs; COPY is all-or-nothing within its
// transaction, so no rows from the failed attempt persist.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err == nil {
		return n, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		r.log.Warn("copy failed, falling back to batched inserts",
			zap.String("table", table),
			zap.String("code", pgErr.Code),
			zap.String("detail", pgErr.Message))
	} else {
		r.log.Warn("copy failed, falling back to batched inserts",
			zap.String("table", table), zap.Error(err))
	}

	return r.insertBatched(ctx, table, columns, rows)
}

// insertBatched writes rows with multi-row INSERT statements. A failed
// statement aborts the load for this chunk; the error carries the Postgres
// detail so the offending extract rows can be found.
func (r *Repository) insertBatched(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	var inserted int64
	for start := 0; start < len(rows); start += r.batch {
		end := start + r.batch
		if end > len(rows) {
			end = len(rows)
		}
		sub := rows[start:end]

		sqlText, args := buildInsert(table, columns, sub)
		tag, err := r.pool.Exec(ctx, sqlText, args...)
		if err != nil {
			return inserted, &storage.BackendError{Backend: "postgres", Table: table, Err: err}
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// buildInsert renders one multi-row INSERT with positional placeholders.
func buildInsert(table string, columns []string, rows [][]any) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", p)
			p++
			args = append(args, v)
		}
		sb.WriteByte(')')
	}
	return sb.String(), args
}

// Exec implements storage.Repository.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, sqlText); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

// Count implements storage.Repository.
func (r *Repository) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count %s: %w", table, err)
	}
	return n, nil
}

// IndexExists implements storage.Repository.
func (r *Repository) IndexExists(ctx context.Context, name string) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = $1)", name,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("postgres: index lookup: %w", err)
	}
	return found, nil
}

// DeleteAll implements storage.Repository.
func (r *Repository) DeleteAll(ctx context.Context, table string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", table, err)
	}
	return nil
}

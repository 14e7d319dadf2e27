// Package storage contains the backend-agnostic store contract and
// utilities shared by all insert strategies: the Repository interface, the
// backend factory registry, table bootstrap, and the index lifecycle
// manager. Concrete backends live in subpackages and register themselves at
// init time; importing storage/all enables every built-in backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
)

// Repository is a handle to one store connection (or pool). The pipeline
// constructs one Repository per partition worker; a Repository is never
// shared across workers.
type Repository interface {
	// CopyFrom bulk-inserts rows (aligned to columns order) into table using
	// the fastest strategy the backend supports, and returns the number of
	// rows actually persisted. Rows rejected by the table's unique natural
	// key are skipped, not errors: the constraint is the cross-run dedup
	// backstop.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Exec runs a statement (DDL, DELETE) without results.
	Exec(ctx context.Context, sql string) error

	// Count returns the table's row count.
	Count(ctx context.Context, table string) (int64, error)

	// IndexExists reports whether a named index is present.
	IndexExists(ctx context.Context, name string) (bool, error)

	// DeleteAll empties the table inside a transaction; used only for
	// explicit force reloads.
	DeleteAll(ctx context.Context, table string) error

	// Dialect selects the DDL rendering for this backend.
	Dialect() schema.Dialect

	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Kind is a registered backend name: "sqlite", "postgres", "generic".
	Kind string
	// DSN is the backend connection string (file path or URL).
	DSN string
	// BatchSize overrides the backend's insert sub-batch size when > 0;
	// each backend keeps its own default otherwise.
	BatchSize int
}

// Factory opens a Repository for a Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register installs a backend factory under kind. Backends call Register
// from init; a duplicate kind panics, as that is a wiring bug.
func Register(kind string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("storage: duplicate backend " + kind)
	}
	factories[kind] = f
}

// Open constructs a Repository for cfg using the registered factory.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	factoriesMu.RLock()
	f, ok := factories[strings.ToLower(cfg.Kind)]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown backend %q (registered: %s)", cfg.Kind, strings.Join(registered(), ", "))
	}
	return f(ctx, cfg)
}

func registered() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// EnsureTables creates all target tables if absent.
func EnsureTables(ctx context.Context, repo Repository) error {
	for _, t := range schema.All() {
		if err := repo.Exec(ctx, schema.CreateTableSQL(t, repo.Dialect())); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// ResetTables drops and recreates all target tables (administrative reset).
func ResetTables(ctx context.Context, repo Repository) error {
	for _, t := range schema.All() {
		if err := repo.Exec(ctx, schema.DropTableSQL(t)); err != nil {
			return fmt.Errorf("drop table %s: %w", t.Name, err)
		}
	}
	return EnsureTables(ctx, repo)
}

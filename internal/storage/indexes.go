package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
)

// Execer is the slice of Repository the index lifecycle needs.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// IndexManager drops a table's named secondary indexes before a bulk load
// and rebuilds them afterward; at tens of millions of rows, index
// maintenance dominates insert cost.
//
// Both operations are idempotent and deliberately soft-fail: a load with
// missing non-unique indexes is still correct, only slower to query, so a
// structural error is a warning, never an abort. Callers on failure paths
// always run Create again; a crash between Drop and Create is recovered by
// re-running Create alone.
type IndexManager struct {
	exec    Execer
	dialect schema.Dialect
	log     *zap.Logger
}

// NewIndexManager wires a manager to a store handle. The dialect selects the
// index DDL rendering, which differs across engines.
func NewIndexManager(exec Execer, dialect schema.Dialect, log *zap.Logger) *IndexManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &IndexManager{exec: exec, dialect: dialect, log: log}
}

// Drop removes the table's named secondary indexes. Absent indexes are
// no-ops.
func (m *IndexManager) Drop(ctx context.Context, table string) {
	indexes := schema.SecondaryIndexes(table)
	if len(indexes) == 0 {
		return
	}
	m.log.Info("dropping secondary indexes before bulk load",
		zap.String("table", table), zap.Int("indexes", len(indexes)))
	for _, ix := range indexes {
		if err := m.exec.Exec(ctx, ix.DropSQL(m.dialect)); err != nil {
			m.log.Warn("drop index failed, continuing",
				zap.String("index", ix.Name), zap.Error(err))
		}
	}
}

// Create rebuilds the table's named secondary indexes. Existing indexes are
// no-ops where the dialect has IF NOT EXISTS and a logged skip elsewhere;
// failures never abort the remaining statements.
func (m *IndexManager) Create(ctx context.Context, table string) {
	indexes := schema.SecondaryIndexes(table)
	if len(indexes) == 0 {
		return
	}
	start := time.Now()
	m.log.Info("rebuilding secondary indexes",
		zap.String("table", table), zap.Int("indexes", len(indexes)))
	for _, ix := range indexes {
		if err := m.exec.Exec(ctx, ix.CreateSQL(m.dialect)); err != nil {
			m.log.Warn("create index failed, continuing",
				zap.String("index", ix.Name), zap.Error(err))
		}
	}
	m.log.Info("index rebuild finished",
		zap.String("table", table), zap.Duration("elapsed", time.Since(start)))
}

// Package pipeline orchestrates one load run: per table it checks existing
// data, drops secondary indexes, streams the extract through transformation
// and dedup into the store, and rebuilds the indexes. The stages are wired
// from the other internal packages; this package owns only sequencing and
// reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/dedup"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/metrics"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/parser/csv"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/partition"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/transform"
)

// Source binds one target table to its extract file.
type Source struct {
	Table schema.Table
	// Path is the extract file for this table.
	Path string
	// Agency tags violation rows ("osha", "msha"); unused for other tables.
	Agency string
	// InspectionsPath, when set for the violations table, names the
	// inspection extract used to build the enrichment lookup.
	InspectionsPath string
}

// Report summarizes one table's load.
type Report struct {
	Table string
	// Loaded counts rows persisted to the store.
	Loaded int64
	// Dropped counts rows the transformer rejected (missing natural key or
	// unresolvable year).
	Dropped int64
	// Duplicates counts rows rejected by the run-scoped dedup filter.
	Duplicates uint64
	// Existing is the table's row count before the load. When
	// SkippedExisting is true, nothing was loaded because of it.
	Existing        int64
	SkippedExisting bool
	Elapsed         time.Duration
}

// Loader runs table loads against one configured store.
type Loader struct {
	// Store selects the backend; every worker opens its own connection
	// through storage.Open.
	Store storage.Config
	Log   *zap.Logger

	// ChunkSize overrides the streaming window. 0 uses the reader default.
	ChunkSize int
	// Workers overrides the partition worker count. 0 derives it from the
	// engine.
	Workers int
	// NRows caps the rows read per extract (sampling); 0 loads everything.
	// A capped load is never partitioned.
	NRows int
	// ForceReload empties a non-empty table before loading instead of
	// skipping it.
	ForceReload bool

	// openRepo is swappable for tests.
	openRepo func(ctx context.Context) (storage.Repository, error)
}

// New constructs a Loader for the given store.
func New(store storage.Config, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		Store: store,
		Log:   log,
		openRepo: func(ctx context.Context) (storage.Repository, error) {
			return storage.Open(ctx, store)
		},
	}
}

func (l *Loader) open(ctx context.Context) (storage.Repository, error) {
	if l.openRepo != nil {
		return l.openRepo(ctx)
	}
	return storage.Open(ctx, l.Store)
}

// LoadTable runs one table's load end to end. The returned Report is valid
// even on error; partial loads report what actually landed.
func (l *Loader) LoadTable(ctx context.Context, src Source) (Report, error) {
	start := time.Now()
	rep := Report{Table: src.Table.Name}
	log := l.Log.With(zap.String("table", src.Table.Name))

	repo, err := l.open(ctx)
	if err != nil {
		return rep, err
	}
	defer repo.Close()

	if err := repo.Exec(ctx, schema.CreateTableSQL(src.Table, repo.Dialect())); err != nil {
		return rep, fmt.Errorf("ensure table %s: %w", src.Table.Name, err)
	}

	existing, err := repo.Count(ctx, src.Table.Name)
	if err != nil {
		return rep, err
	}
	rep.Existing = existing
	if existing > 0 && !l.ForceReload {
		rep.SkippedExisting = true
		rep.Elapsed = time.Since(start)
		log.Info("table already loaded, skipping",
			zap.Int64("existing_rows", existing))
		return rep, nil
	}
	if existing > 0 {
		log.Info("force reload, emptying table", zap.Int64("existing_rows", existing))
		if err := repo.DeleteAll(ctx, src.Table.Name); err != nil {
			return rep, err
		}
	}

	// Secondary indexes come off for the duration of the load and are
	// rebuilt on every exit path, including failures and interrupts, so the
	// table is never left unindexed. The rebuild runs on a detached context:
	// a cancelled run context would otherwise fail every rebuild statement
	// at exactly the moment the rebuild matters most.
	im := storage.NewIndexManager(repo, repo.Dialect(), log)
	im.Drop(ctx, src.Table.Name)
	defer im.Create(context.WithoutCancel(ctx), src.Table.Name)

	lookup, err := l.buildLookup(ctx, src, log)
	if err != nil {
		return rep, err
	}

	tasks, total, err := l.plan(src, repo.Dialect())
	if err != nil {
		return rep, err
	}

	filter := dedup.NewFilter(total)

	var loadErr error
	if len(tasks) == 1 {
		res := l.loadRange(ctx, repo, src, lookup, filter, tasks[0], log)
		rep.Loaded, rep.Dropped, loadErr = res.Loaded, res.Skipped, res.Err
	} else {
		log.Info("partitioned load",
			zap.Int("partitions", len(tasks)),
			zap.Int("total_rows", total))
		results := partition.Run(ctx, tasks, l.workers(repo.Dialect()), func(ctx context.Context, t partition.Task) partition.Result {
			wrepo, err := l.open(ctx)
			if err != nil {
				return partition.Result{Err: err}
			}
			defer wrepo.Close()
			return l.loadRange(ctx, wrepo, src, lookup, filter, t, log)
		}, log)

		var errs []error
		for _, r := range results {
			rep.Loaded += r.Loaded
			rep.Dropped += r.Skipped
			if r.Err != nil {
				errs = append(errs, fmt.Errorf("partition %d: %w", r.Task.ID, r.Err))
			}
		}
		loadErr = errors.Join(errs...)
	}
	rep.Duplicates = filter.Duplicates()
	rep.Elapsed = time.Since(start)

	metrics.RecordRows(src.Table.Name, "loaded", rep.Loaded)
	metrics.RecordRows(src.Table.Name, "skipped", rep.Dropped)
	metrics.RecordRows(src.Table.Name, "duplicates", int64(rep.Duplicates))
	metrics.RecordTableLoad(src.Table.Name, loadErr, rep.Elapsed)

	log.Info("table load finished",
		zap.Int64("loaded", rep.Loaded),
		zap.Int64("dropped", rep.Dropped),
		zap.Uint64("duplicates", rep.Duplicates),
		zap.Duration("elapsed", rep.Elapsed),
		zap.Float64("rows_per_sec", rate(rep.Loaded, rep.Elapsed)))

	return rep, loadErr
}

// buildLookup streams the inspection extract into an activity_nr keyed map
// for violation enrichment. Only the violations table uses it.
func (l *Loader) buildLookup(ctx context.Context, src Source, log *zap.Logger) (map[string]transform.InspectionRef, error) {
	if src.Table.Name != schema.Violations.Name || src.InspectionsPath == "" {
		return nil, nil
	}
	lookup := make(map[string]transform.InspectionRef, 1<<16)
	opt := csv.Options{ChunkSize: l.ChunkSize}
	err := csv.Stream(ctx, src.InspectionsPath, opt, func(c *csv.Chunk) error {
		transform.InspectionRefs(c, lookup)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inspection lookup: %w", err)
	}
	log.Info("inspection lookup built", zap.Int("entries", len(lookup)))
	return lookup, nil
}

// plan decides how to split the extract. Sampled loads (NRows > 0) and small
// files stay on a single range; everything else is partitioned by the
// physical row count.
func (l *Loader) plan(src Source, d schema.Dialect) ([]partition.Task, int, error) {
	if l.NRows > 0 {
		return []partition.Task{{NRows: int64(l.NRows)}}, l.NRows, nil
	}
	total, err := csv.CountRows(src.Path)
	if err != nil {
		return nil, 0, err
	}
	return partition.Plan(int64(total), l.workers(d)), total, nil
}

func (l *Loader) workers(d schema.Dialect) int {
	if l.Workers > 0 {
		return l.Workers
	}
	return partition.WorkerCap(d)
}

// loadRange streams one row range of the extract into the store. The dedup
// filter is shared across ranges; natural keys are claimed in arrival order
// across all workers.
func (l *Loader) loadRange(ctx context.Context, repo storage.Repository, src Source, lookup map[string]transform.InspectionRef, filter *dedup.Filter, task partition.Task, log *zap.Logger) partition.Result {
	res := partition.Result{Task: task}
	columns := src.Table.ColumnNames()

	opt := csv.Options{
		ChunkSize: l.ChunkSize,
		Offset:    int(task.Offset),
		NRows:     int(task.NRows),
		OnRowErr: func(line int, err error) {
			log.Warn("malformed row skipped", zap.Int("line", line), zap.Error(err))
		},
	}

	var batches int64
	err := csv.Stream(ctx, src.Path, opt, func(c *csv.Chunk) error {
		tr := l.transformChunk(src, c, lookup)
		res.Skipped += int64(tr.Dropped)

		rows := tr.Rows
		if hasKeys(tr.Keys) {
			rows = rows[:0:0]
			for i, row := range tr.Rows {
				if tr.Keys[i] != "" && !filter.Accept(tr.Keys[i]) {
					continue
				}
				rows = append(rows, row)
			}
		}
		if len(rows) == 0 {
			return nil
		}

		n, err := repo.CopyFrom(ctx, src.Table.Name, columns, rows)
		res.Loaded += n
		if err != nil {
			return err
		}
		batches++
		if batches%10 == 0 {
			log.Info("load progress",
				zap.Int("partition", task.ID),
				zap.Int64("loaded", res.Loaded))
		}
		return nil
	})
	res.Err = err
	metrics.RecordBatches(src.Table.Name, batches)
	return res
}

// transformChunk dispatches a chunk to the table's transformer.
func (l *Loader) transformChunk(src Source, c *csv.Chunk, lookup map[string]transform.InspectionRef) transform.Result {
	switch src.Table.Name {
	case schema.Inspections.Name:
		return transform.Inspections(c)
	case schema.Violations.Name:
		return transform.Violations(c, src.Agency, lookup)
	case schema.Accidents.Name:
		return transform.Accidents(c)
	default:
		return transform.Result{}
	}
}

func hasKeys(keys []string) bool {
	for _, k := range keys {
		if k != "" {
			return true
		}
	}
	return false
}

func rate(rows int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(rows) / d.Seconds()
}

// TableStatus is one table's externally observable load state: its row
// count and the presence of each named secondary index. A populated table
// with missing indexes signals an interrupted run whose rebuild never
// finished.
type TableStatus struct {
	Rows    int64
	Indexes map[string]bool
}

// Status reports the current state per target table.
func (l *Loader) Status(ctx context.Context) (map[string]TableStatus, error) {
	repo, err := l.open(ctx)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	if err := storage.EnsureTables(ctx, repo); err != nil {
		return nil, err
	}
	statuses := make(map[string]TableStatus, len(schema.All()))
	for _, t := range schema.All() {
		n, err := repo.Count(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		st := TableStatus{Rows: n}
		if indexes := schema.SecondaryIndexes(t.Name); len(indexes) > 0 {
			st.Indexes = make(map[string]bool, len(indexes))
			for _, ix := range indexes {
				present, err := repo.IndexExists(ctx, ix.Name)
				if err != nil {
					return nil, err
				}
				st.Indexes[ix.Name] = present
			}
		}
		statuses[t.Name] = st
	}
	return statuses, nil
}

// Reset drops and recreates every target table.
func (l *Loader) Reset(ctx context.Context) error {
	repo, err := l.open(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()
	return storage.ResetTables(ctx, repo)
}

// Package partition plans and runs parallel range loads over a single
// extract. Planning splits the record count into contiguous ranges; running
// fans the ranges out over a bounded worker pool where each worker owns its
// own store connection.
package partition

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
)

// minPartitionRows is the floor below which splitting a file costs more in
// per-worker setup than the parallelism returns.
const minPartitionRows = 10_000

// Task is one contiguous range of an extract assigned to a worker.
type Task struct {
	ID     int
	Offset int64
	NRows  int64
}

// Result reports what one task's worker accomplished. A failed task carries
// its error here rather than aborting siblings; the caller decides whether a
// partial load is acceptable.
type Result struct {
	Task    Task
	Loaded  int64
	Skipped int64
	Err     error
}

// WorkerCap bounds the pool per engine. The embedded engine serializes all
// writes behind one lock, so extra workers only contend; server engines
// scale with cores up to a ceiling that keeps connection counts sane.
func WorkerCap(d schema.Dialect) int {
	if d == schema.DialectSQLite {
		return 4
	}
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Plan splits total records into at most workers contiguous ranges, each at
// least minPartitionRows. Small files come back as a single task. The last
// task reads to the end of the file, so a total that overcounts records
// (physical lines inside quoted fields) only pads the final range.
func Plan(total int64, workers int) []Task {
	if workers < 1 {
		workers = 1
	}
	if total <= 0 {
		return []Task{{ID: 0, Offset: 0, NRows: 0}}
	}

	n := int64(workers)
	if total/n < minPartitionRows {
		n = total / minPartitionRows
	}
	if n <= 1 {
		return []Task{{ID: 0, Offset: 0, NRows: 0}}
	}

	per := total / n
	tasks := make([]Task, 0, n)
	var off int64
	for i := int64(0); i < n; i++ {
		t := Task{ID: int(i), Offset: off, NRows: per}
		if i == n-1 {
			t.NRows = 0 // read to EOF
		}
		tasks = append(tasks, t)
		off += per
	}
	return tasks
}

// LoadFunc executes one task end to end: open a store connection, stream the
// range, transform, insert, close. Each invocation runs on its own
// goroutine and must not share connections with siblings.
type LoadFunc func(ctx context.Context, t Task) Result

// Run executes tasks across at most workers goroutines and collects every
// result in task order. A panic-free failed task contributes zero loaded
// rows and its error; cancellation of ctx stops scheduling new tasks.
func Run(ctx context.Context, tasks []Task, workers int, load LoadFunc, log *zap.Logger) []Result {
	if log == nil {
		log = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Task: t, Err: err}
				return nil
			}
			res := load(ctx, t)
			res.Task = t
			if res.Err != nil {
				log.Error("partition failed",
					zap.Int("partition", t.ID),
					zap.Int64("offset", t.Offset),
					zap.Error(res.Err))
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()
	return results
}

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage"
)

// fakeRepo records every store interaction in memory.
type fakeRepo struct {
	mu sync.Mutex

	existing int64 // reported by Count before any inserts
	copyErr  error
	indexes  map[string]bool // reported by IndexExists

	rows      [][]any
	execSQL   []string
	deletes   []string
	closed    bool
	copyCalls int
}

func (f *fakeRepo) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyCalls++
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.rows = append(f.rows, rows...)
	return int64(len(rows)), nil
}

func (f *fakeRepo) Exec(ctx context.Context, sql string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execSQL = append(f.execSQL, sql)
	return nil
}

func (f *fakeRepo) Count(ctx context.Context, table string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing + int64(len(f.rows)), nil
}

func (f *fakeRepo) IndexExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexes[name], nil
}

func (f *fakeRepo) DeleteAll(ctx context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, table)
	f.existing = 0
	return nil
}

func (f *fakeRepo) Dialect() schema.Dialect { return schema.DialectSQLite }

func (f *fakeRepo) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRepo) execContaining(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.execSQL {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func newTestLoader(repo *fakeRepo) *Loader {
	l := New(storage.Config{Kind: "fake", DSN: "mem"}, nil)
	l.openRepo = func(ctx context.Context) (storage.Repository, error) { return repo, nil }
	return l
}

func TestLoadTable_DedupAcrossChunks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Three rows, chunked in twos: the duplicate activity number spans a
	// chunk boundary and must still be caught.
	path := writeFile(t, dir, "insp.csv",
		"ACTIVITY_NR,ESTAB_NAME,OPEN_DATE,YEAR\n"+
			"A1,Acme,2019-05-01,2019\n"+
			"A1,Acme,2019-05-01,2019\n"+
			"A2,Zenith,2020-02-02,2020\n")

	repo := &fakeRepo{}
	l := newTestLoader(repo)
	l.ChunkSize = 2

	rep, err := l.LoadTable(context.Background(), Source{Table: schema.Inspections, Path: path})
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if rep.Loaded != 2 {
		t.Errorf("loaded = %d, want 2", rep.Loaded)
	}
	if rep.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", rep.Duplicates)
	}
	if rep.Dropped != 0 {
		t.Errorf("dropped = %d, want 0", rep.Dropped)
	}
	if len(repo.rows) != 2 {
		t.Fatalf("persisted rows = %d, want 2", len(repo.rows))
	}
	if repo.rows[0][0] != "A1" || repo.rows[1][0] != "A2" {
		t.Errorf("persisted keys = %v, %v; want A1, A2", repo.rows[0][0], repo.rows[1][0])
	}
}

func TestLoadTable_SkipsNonEmptyTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "insp.csv",
		"ACTIVITY_NR,YEAR\nA1,2019\n")

	repo := &fakeRepo{existing: 1234}
	l := newTestLoader(repo)

	rep, err := l.LoadTable(context.Background(), Source{Table: schema.Inspections, Path: path})
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if !rep.SkippedExisting {
		t.Error("expected SkippedExisting")
	}
	if rep.Existing != 1234 {
		t.Errorf("existing = %d, want 1234", rep.Existing)
	}
	if repo.copyCalls != 0 {
		t.Errorf("copyCalls = %d, want 0", repo.copyCalls)
	}
	if len(repo.deletes) != 0 {
		t.Errorf("deletes = %v, want none", repo.deletes)
	}
}

func TestLoadTable_ForceReloadEmptiesFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "insp.csv",
		"ACTIVITY_NR,YEAR\nA1,2019\n")

	repo := &fakeRepo{existing: 10}
	l := newTestLoader(repo)
	l.ForceReload = true

	rep, err := l.LoadTable(context.Background(), Source{Table: schema.Inspections, Path: path})
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if rep.SkippedExisting {
		t.Error("force reload must not skip")
	}
	if len(repo.deletes) != 1 || repo.deletes[0] != "inspections" {
		t.Errorf("deletes = %v, want [inspections]", repo.deletes)
	}
	if rep.Loaded != 1 {
		t.Errorf("loaded = %d, want 1", rep.Loaded)
	}
}

func TestLoadTable_IndexesRebuiltOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "viol.csv",
		"ACTIVITY_NR,STANDARD,ISSUANCE_DATE,YEAR\nA1,1910.1200,2019-05-01,2019\n")

	repo := &fakeRepo{copyErr: errors.New("disk full")}
	l := newTestLoader(repo)

	_, err := l.LoadTable(context.Background(), Source{
		Table: schema.Violations, Path: path, Agency: "osha",
	})
	if err == nil {
		t.Fatal("expected load error")
	}

	drops := repo.execContaining("DROP INDEX IF EXISTS idx_violation_")
	creates := repo.execContaining("CREATE INDEX IF NOT EXISTS idx_violation_")
	if want := len(schema.SecondaryIndexes("violations")); drops != want || creates != want {
		t.Errorf("index drops = %d, creates = %d, want %d each", drops, creates, want)
	}
}

// cancelRepo cancels the run context from inside CopyFrom, the way an
// interrupt signal lands mid-load.
type cancelRepo struct {
	*fakeRepo
	cancel context.CancelFunc
}

func (c *cancelRepo) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	c.cancel()
	return 0, ctx.Err()
}

func TestLoadTable_IndexesRebuiltAfterInterrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "insp.csv",
		"ACTIVITY_NR,YEAR\nA1,2019\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &fakeRepo{}
	l := newTestLoader(repo)
	l.openRepo = func(ctx context.Context) (storage.Repository, error) {
		return &cancelRepo{fakeRepo: repo, cancel: cancel}, nil
	}

	_, err := l.LoadTable(ctx, Source{Table: schema.Inspections, Path: path})
	if err == nil {
		t.Fatal("expected load error")
	}

	// The rebuild must survive the cancelled run context; the fake refuses
	// statements on a dead context, so these only record if the rebuild ran
	// detached.
	creates := repo.execContaining("CREATE INDEX IF NOT EXISTS idx_inspection_")
	if want := len(schema.SecondaryIndexes("inspections")); creates != want {
		t.Errorf("index creates after interrupt = %d, want %d", creates, want)
	}
}

func TestLoadTable_ViolationEnrichment(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	insp := writeFile(t, dir, "insp.csv",
		"ACTIVITY_NR,ESTAB_NAME,SITE_STATE,NAICS_CODE,OPEN_DATE,YEAR\n"+
			"A1,Acme Manufacturing Inc,tx,333514,2019-05-01,2019\n")
	viol := writeFile(t, dir, "viol.csv",
		"ACTIVITY_NR,STANDARD,INITIAL_PENALTY\n"+
			"A1,1910.1200,4900.50\n")

	repo := &fakeRepo{}
	l := newTestLoader(repo)

	rep, err := l.LoadTable(context.Background(), Source{
		Table:           schema.Violations,
		Path:            viol,
		Agency:          "osha",
		InspectionsPath: insp,
	})
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if rep.Loaded != 1 {
		t.Fatalf("loaded = %d, want 1", rep.Loaded)
	}

	row := repo.rows[0]
	cols := schema.Violations
	got := func(name string) any { return row[cols.ColumnIndex(name)] }

	if got("agency") != "osha" {
		t.Errorf("agency = %v", got("agency"))
	}
	if got("company_name") != "Acme Manufacturing Inc" {
		t.Errorf("company_name = %v", got("company_name"))
	}
	if got("company_name_normalized") != "ACME MANUFACTURING" {
		t.Errorf("company_name_normalized = %v", got("company_name_normalized"))
	}
	if got("site_state") != "TX" {
		t.Errorf("site_state = %v", got("site_state"))
	}
	if got("initial_penalty") != 4900.50 {
		t.Errorf("initial_penalty = %v", got("initial_penalty"))
	}
	// Year flows from the linked inspection; the violation row has none of
	// its own.
	if got("year") != int64(2019) {
		t.Errorf("year = %v", got("year"))
	}
}

func TestLoadTable_SampleLoadCapsRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "insp.csv",
		"ACTIVITY_NR,YEAR\nA1,2019\nA2,2019\nA3,2019\nA4,2019\n")

	repo := &fakeRepo{}
	l := newTestLoader(repo)
	l.NRows = 2

	rep, err := l.LoadTable(context.Background(), Source{Table: schema.Inspections, Path: path})
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if rep.Loaded != 2 {
		t.Errorf("loaded = %d, want 2", rep.Loaded)
	}
}

func TestStatusAndReset(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{
		existing: 7,
		indexes:  map[string]bool{"idx_inspection_state_year": true},
	}
	l := newTestLoader(repo)

	statuses, err := l.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	for _, tab := range schema.All() {
		st := statuses[tab.Name]
		if st.Rows != 7 {
			t.Errorf("rows[%s] = %d, want 7", tab.Name, st.Rows)
		}
		if got, want := len(st.Indexes), len(schema.SecondaryIndexes(tab.Name)); got != want {
			t.Errorf("indexes[%s] reports %d entries, want %d", tab.Name, got, want)
		}
	}
	insp := statuses["inspections"].Indexes
	if !insp["idx_inspection_state_year"] {
		t.Error("idx_inspection_state_year should report present")
	}
	if insp["idx_inspection_naics"] {
		t.Error("idx_inspection_naics should report missing")
	}

	if err := l.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if repo.execContaining("DROP TABLE IF EXISTS") != len(schema.All()) {
		t.Errorf("expected a DROP TABLE per target table, got %v", repo.execSQL)
	}
}

package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
)

type recordingExecer struct {
	stmts []string
	fail  func(sql string) error
}

func (r *recordingExecer) Exec(_ context.Context, sql string) error {
	r.stmts = append(r.stmts, sql)
	if r.fail != nil {
		return r.fail(sql)
	}
	return nil
}

func TestIndexManagerDropAndCreate(t *testing.T) {
	t.Parallel()

	ex := &recordingExecer{}
	m := NewIndexManager(ex, schema.DialectSQLite, nil)
	ctx := context.Background()

	m.Drop(ctx, "violations")
	m.Create(ctx, "violations")

	var drops, creates int
	for _, s := range ex.stmts {
		switch {
		case strings.HasPrefix(s, "DROP INDEX IF EXISTS idx_violation_"):
			drops++
		case strings.HasPrefix(s, "CREATE INDEX IF NOT EXISTS idx_violation_"):
			creates++
		default:
			t.Errorf("unexpected statement %q", s)
		}
	}
	if drops != 7 || creates != 7 {
		t.Fatalf("drops=%d creates=%d, want 7/7", drops, creates)
	}
}

// MySQL has no IF [NOT] EXISTS for indexes and scopes drops to the table;
// the generic dialect must render accordingly.
func TestIndexManagerGenericDialect(t *testing.T) {
	t.Parallel()

	ex := &recordingExecer{}
	m := NewIndexManager(ex, schema.DialectGeneric, nil)
	ctx := context.Background()

	m.Drop(ctx, "inspections")
	m.Create(ctx, "inspections")

	want := []string{
		"DROP INDEX idx_inspection_state_year ON inspections",
		"DROP INDEX idx_inspection_naics ON inspections",
		"CREATE INDEX idx_inspection_state_year ON inspections (site_state, year)",
		"CREATE INDEX idx_inspection_naics ON inspections (naics_code, year)",
	}
	if len(ex.stmts) != len(want) {
		t.Fatalf("statements = %v, want %v", ex.stmts, want)
	}
	for i, s := range ex.stmts {
		if s != want[i] {
			t.Errorf("statement[%d] = %q, want %q", i, s, want[i])
		}
		if strings.Contains(s, "EXISTS") {
			t.Errorf("generic statement carries an EXISTS clause: %q", s)
		}
	}
}

// A failed index statement must not abort the remaining ones.
func TestIndexManagerContinuesOnFailure(t *testing.T) {
	t.Parallel()

	ex := &recordingExecer{fail: func(sql string) error {
		if strings.Contains(sql, "idx_violation_penalty") {
			return errors.New("disk full")
		}
		return nil
	}}
	m := NewIndexManager(ex, schema.DialectSQLite, nil)
	m.Create(context.Background(), "violations")
	if len(ex.stmts) != 7 {
		t.Fatalf("statements = %d, want all 7 attempted", len(ex.stmts))
	}
}

// Tables without named secondary indexes are a registered no-op.
func TestIndexManagerNoIndexTables(t *testing.T) {
	t.Parallel()

	ex := &recordingExecer{}
	m := NewIndexManager(ex, schema.DialectSQLite, nil)
	m.Drop(context.Background(), "accidents")
	m.Create(context.Background(), "accidents")
	if len(ex.stmts) != 0 {
		t.Fatalf("statements = %v, want none", ex.stmts)
	}
}

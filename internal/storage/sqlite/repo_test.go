package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/retry"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage"
)

func TestNewRepositoryBatchSize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, err := NewRepository(ctx, storage.Config{DSN: ":memory:", BatchSize: 7}, nil)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer r.Close()
	if r.batch != 7 {
		t.Errorf("batch = %d, want configured 7", r.batch)
	}

	r2, err := NewRepository(ctx, storage.Config{DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer r2.Close()
	if r2.batch != defaultBatchSize {
		t.Errorf("batch = %d, want default %d", r2.batch, defaultBatchSize)
	}
}

func TestIsBusy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("database table is locked"), true},
		{errors.New("UNIQUE constraint failed: inspections.activity_nr"), false},
		{errors.New("no such table: accidents"), false},
	}
	for _, c := range cases {
		if got := isBusy(c.err); got != c.want {
			t.Errorf("isBusy(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestIsConstraint(t *testing.T) {
	t.Parallel()

	if !isConstraint(errors.New("UNIQUE constraint failed: accidents.accident_key")) {
		t.Error("unique violation not classified as constraint")
	}
	if !isConstraint(errors.New("NOT NULL constraint failed: violations.agency")) {
		t.Error("not-null violation not classified as constraint")
	}
	if isConstraint(errors.New("database is locked")) {
		t.Error("busy error classified as constraint")
	}
	if isConstraint(nil) {
		t.Error("nil classified as constraint")
	}
}

func TestRetryCounterCountsBusyRetries(t *testing.T) {
	t.Parallel()

	rc := &retryCounter{}
	attempts := 0
	err := retry.Do(context.Background(),
		retry.Policy{MaxAttempts: 5, BaseDelay: time.Microsecond},
		rc.busy,
		func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("retry.Do: %v", err)
	}
	// Two attempts failed and were re-executed.
	if rc.n != 2 {
		t.Errorf("counted retries = %d, want 2", rc.n)
	}

	rc = &retryCounter{}
	if rc.busy(errors.New("UNIQUE constraint failed")) {
		t.Error("constraint error classified as busy")
	}
	if rc.n != 0 {
		t.Errorf("non-busy error counted, n = %d", rc.n)
	}
}

func TestBindValue(t *testing.T) {
	t.Parallel()

	d := time.Date(2019, 7, 4, 13, 30, 0, 0, time.UTC)
	if got := bindValue(d); got != "2019-07-04" {
		t.Errorf("date bound as %v, want 2019-07-04", got)
	}
	if got := bindValue(true); got != int64(1) {
		t.Errorf("true bound as %v, want 1", got)
	}
	if got := bindValue(false); got != int64(0) {
		t.Errorf("false bound as %v, want 0", got)
	}
	if got := bindValue("ACME CO"); got != "ACME CO" {
		t.Errorf("string changed to %v", got)
	}
	if got := bindValue(nil); got != nil {
		t.Errorf("nil changed to %v", got)
	}
	if got := bindValue(4900.50); got != 4900.50 {
		t.Errorf("float changed to %v", got)
	}
}

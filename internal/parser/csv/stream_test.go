package csv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

const sample = "activity_nr,estab_name,open_date\n" +
	"A1,Acme Inc,2007-03-01\n" +
	"A2,Widget Co,2008-05-09\n" +
	"A3,Gadget LLC,2009-01-15\n" +
	"A4,Bolt Corp,2010-07-22\n" +
	"A5,Nut Ltd,2011-11-30\n"

func TestStreamChunksBounded(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "s.csv", sample)
	var sizes []int
	var starts []int
	err := Stream(context.Background(), p, Options{ChunkSize: 2}, func(c *Chunk) error {
		sizes = append(sizes, len(c.Rows))
		starts = append(starts, c.Start)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	wantSizes := []int{2, 2, 1}
	wantStarts := []int{0, 2, 4}
	if len(sizes) != len(wantSizes) {
		t.Fatalf("chunks = %v, want sizes %v", sizes, wantSizes)
	}
	for i := range wantSizes {
		if sizes[i] != wantSizes[i] || starts[i] != wantStarts[i] {
			t.Fatalf("chunk %d: size=%d start=%d, want size=%d start=%d",
				i, sizes[i], starts[i], wantSizes[i], wantStarts[i])
		}
	}
}

func TestStreamOffsetAndNRows(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "s.csv", sample)
	var keys []string
	err := Stream(context.Background(), p, Options{ChunkSize: 10, Offset: 1, NRows: 2}, func(c *Chunk) error {
		for _, row := range c.Rows {
			keys = append(keys, c.Field(row, "activity_nr"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(keys) != 2 || keys[0] != "A2" || keys[1] != "A3" {
		t.Fatalf("keys = %v, want [A2 A3]", keys)
	}
}

func TestStreamMissingColumnDegrades(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "s.csv", sample)
	err := Stream(context.Background(), p, Options{}, func(c *Chunk) error {
		if c.HasColumn("naics_code") {
			t.Error("naics_code should be absent")
		}
		for _, row := range c.Rows {
			if got := c.Field(row, "naics_code"); got != "" {
				t.Errorf("Field(naics_code) = %q, want empty", got)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
}

func TestStreamHeaderCanonicalization(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "s.csv", "\uFEFFActivity Nr,Estab Náme\nA1,Acme\n")
	err := Stream(context.Background(), p, Options{}, func(c *Chunk) error {
		if !c.HasColumn("activity_nr") {
			t.Errorf("BOM/space header not canonicalized: %v", c.Col)
		}
		if !c.HasColumn("estab_name") {
			t.Errorf("diacritic header not folded: %v", c.Col)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
}

func TestStreamMissingFileFatal(t *testing.T) {
	t.Parallel()

	err := Stream(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), Options{}, func(*Chunk) error {
		t.Fatal("fn called for missing file")
		return nil
	})
	if err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestCountRows(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "s.csv", sample)
	n, err := CountRows(p)
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 5 {
		t.Fatalf("CountRows = %d, want 5", n)
	}

	empty := writeFile(t, "e.csv", "")
	if n, err = CountRows(empty); err != nil || n != 0 {
		t.Fatalf("CountRows(empty) = %d, %v; want 0, nil", n, err)
	}
}

package postgres

import (
	"testing"
)

func TestBuildInsert(t *testing.T) {
	t.Parallel()

	sqlText, args := buildInsert("accidents",
		[]string{"accident_key", "year"},
		[][]any{
			{"123_001", 2019},
			{"123_002", 2020},
		})

	want := "INSERT INTO accidents (accident_key, year) VALUES ($1, $2), ($3, $4)"
	if sqlText != want {
		t.Errorf("sql = %q, want %q", sqlText, want)
	}
	if len(args) != 4 {
		t.Fatalf("args = %d, want 4", len(args))
	}
	if args[0] != "123_001" || args[3] != 2020 {
		t.Errorf("args out of order: %v", args)
	}
}

func TestBuildInsertSingleRow(t *testing.T) {
	t.Parallel()

	sqlText, args := buildInsert("inspections", []string{"activity_nr"}, [][]any{{"100123"}})
	want := "INSERT INTO inspections (activity_nr) VALUES ($1)"
	if sqlText != want {
		t.Errorf("sql = %q, want %q", sqlText, want)
	}
	if len(args) != 1 || args[0] != "100123" {
		t.Errorf("args = %v", args)
	}
}

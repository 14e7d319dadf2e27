// Package schema declares the canonical relational model for enforcement
// data: the three target tables, their columns, widths, and the named
// secondary indexes maintained around bulk loads.
//
// Everything downstream (transformers, storage backends, the index lifecycle
// manager) is driven by these declarations, so the column order here is the
// positional order of canonical rows throughout the pipeline.
package schema

import "strings"

// ColumnKind is the logical type of a canonical column. Backends map kinds to
// their own SQL types (e.g. dates are TEXT in SQLite, DATE in Postgres).
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindDate
	KindInt
	KindReal
	KindBool
)

// Column describes one canonical column.
type Column struct {
	Name    string
	Kind    ColumnKind
	Width   int // max characters for text columns; 0 = unbounded
	NotNull bool
	Unique  bool
}

// Table describes one target table. NaturalKey names the column whose value
// must be unique per logical record; it is also the dedup key.
type Table struct {
	Name       string
	NaturalKey string
	Columns    []Column
}

// ColumnNames returns the canonical column names in positional order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnIndex returns the position of name in the canonical order, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Inspections holds OSHA inspection records keyed by activity number.
var Inspections = Table{
	Name:       "inspections",
	NaturalKey: "activity_nr",
	Columns: []Column{
		{Name: "activity_nr", Kind: KindText, Width: 50, NotNull: true, Unique: true},
		{Name: "estab_name", Kind: KindText, Width: 500},
		{Name: "site_state", Kind: KindText, Width: 2},
		{Name: "naics_code", Kind: KindText, Width: 10},
		{Name: "open_date", Kind: KindDate},
		{Name: "close_case_date", Kind: KindDate},
		{Name: "year", Kind: KindInt},
		{Name: "inspection_type", Kind: KindText, Width: 100},
	},
}

// Violations holds violation records from all agencies. The activity_nr is a
// soft reference to inspections: violation and inspection loads are
// independent streams, so no foreign key is declared.
var Violations = Table{
	Name:       "violations",
	NaturalKey: "",
	Columns: []Column{
		{Name: "agency", Kind: KindText, Width: 50, NotNull: true},
		{Name: "company_name", Kind: KindText, Width: 500},
		{Name: "company_name_normalized", Kind: KindText, Width: 500},
		{Name: "activity_nr", Kind: KindText, Width: 50},
		{Name: "standard", Kind: KindText, Width: 50},
		{Name: "viol_type", Kind: KindText, Width: 50},
		{Name: "description", Kind: KindText},
		{Name: "initial_penalty", Kind: KindReal},
		{Name: "current_penalty", Kind: KindReal},
		{Name: "fta_penalty", Kind: KindReal},
		{Name: "site_state", Kind: KindText, Width: 2},
		{Name: "site_city", Kind: KindText, Width: 100},
		{Name: "naics_code", Kind: KindText, Width: 10},
		{Name: "sic_code", Kind: KindText, Width: 10},
		{Name: "violation_date", Kind: KindDate},
		{Name: "year", Kind: KindInt},
	},
}

// Accidents holds accident records keyed by accident_key. For source formats
// without a native key, the transformer derives one from source identifiers.
var Accidents = Table{
	Name:       "accidents",
	NaturalKey: "accident_key",
	Columns: []Column{
		{Name: "accident_key", Kind: KindText, Width: 50, NotNull: true, Unique: true},
		{Name: "activity_nr", Kind: KindText, Width: 50},
		{Name: "estab_name", Kind: KindText, Width: 500},
		{Name: "site_state", Kind: KindText, Width: 2},
		{Name: "naics_code", Kind: KindText, Width: 10},
		{Name: "accident_date", Kind: KindDate},
		{Name: "year", Kind: KindInt},
		{Name: "description", Kind: KindText},
		{Name: "fatality", Kind: KindBool},
		{Name: "injury_type", Kind: KindText, Width: 100},
	},
}

// All returns the target tables in load order.
func All() []Table {
	return []Table{Inspections, Violations, Accidents}
}

// ByName resolves a table by name (case-insensitive).
func ByName(name string) (Table, bool) {
	for _, t := range All() {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

package schema

import (
	"fmt"
	"strings"
)

// Index is one named secondary index. These are the non-unique indexes the
// index lifecycle manager drops before a bulk load and recreates afterward;
// unique constraints stay in the table DDL and are never dropped.
type Index struct {
	Name    string
	Table   string
	Columns []string
}

// CreateSQL renders the index DDL. IF NOT EXISTS makes recreation after a
// partially failed run a safe no-op in SQLite and Postgres; MySQL has no
// such clause, so the generic rendering relies on the lifecycle manager's
// soft-fail for an index that already exists.
func (ix Index) CreateSQL(d Dialect) string {
	if d == DialectGeneric {
		return fmt.Sprintf(
			"CREATE INDEX %s ON %s (%s)",
			ix.Name, ix.Table, strings.Join(ix.Columns, ", "),
		)
	}
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		ix.Name, ix.Table, strings.Join(ix.Columns, ", "),
	)
}

// DropSQL renders the drop statement. MySQL scopes index names to their
// table and takes no IF EXISTS.
func (ix Index) DropSQL(d Dialect) string {
	if d == DialectGeneric {
		return fmt.Sprintf("DROP INDEX %s ON %s", ix.Name, ix.Table)
	}
	return "DROP INDEX IF EXISTS " + ix.Name
}

var secondaryIndexes = map[string][]Index{
	Inspections.Name: {
		{Name: "idx_inspection_state_year", Table: "inspections", Columns: []string{"site_state", "year"}},
		{Name: "idx_inspection_naics", Table: "inspections", Columns: []string{"naics_code", "year"}},
	},
	Violations.Name: {
		{Name: "idx_violation_agency_company", Table: "violations", Columns: []string{"agency", "company_name_normalized"}},
		{Name: "idx_violation_company_year", Table: "violations", Columns: []string{"company_name_normalized", "year"}},
		{Name: "idx_violation_state_year", Table: "violations", Columns: []string{"site_state", "year"}},
		{Name: "idx_violation_agency_year", Table: "violations", Columns: []string{"agency", "year"}},
		{Name: "idx_violation_penalty", Table: "violations", Columns: []string{"current_penalty"}},
		{Name: "idx_violation_standard_agency", Table: "violations", Columns: []string{"standard", "agency"}},
		{Name: "idx_violation_naics_year", Table: "violations", Columns: []string{"naics_code", "year"}},
	},
	// Accidents carry only single-column indexes, created with the table.
	Accidents.Name: nil,
}

// SecondaryIndexes returns the named secondary indexes for a table. The
// returned slice must not be mutated.
func SecondaryIndexes(table string) []Index {
	return secondaryIndexes[table]
}

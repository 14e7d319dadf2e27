package schema

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL rendering for a backend family.
type Dialect int

const (
	// DialectSQLite targets the embedded engine. Dates are stored as TEXT
	// ("YYYY-MM-DD") and booleans as INTEGER 0/1.
	DialectSQLite Dialect = iota
	// DialectPostgres targets the client/server engine with native types.
	DialectPostgres
	// DialectGeneric targets the database/sql fallback path. The rendering is
	// conservative ANSI-ish SQL that the registered MySQL driver accepts.
	DialectGeneric
)

func sqlType(c Column, d Dialect) string {
	switch c.Kind {
	case KindDate:
		if d == DialectSQLite {
			return "TEXT"
		}
		return "DATE"
	case KindInt:
		return "INTEGER"
	case KindReal:
		switch d {
		case DialectPostgres:
			return "DOUBLE PRECISION"
		case DialectGeneric:
			return "DOUBLE"
		default:
			return "REAL"
		}
	case KindBool:
		if d == DialectSQLite {
			return "INTEGER"
		}
		return "BOOLEAN"
	default:
		if c.Width > 0 && d != DialectSQLite {
			return fmt.Sprintf("VARCHAR(%d)", c.Width)
		}
		return "TEXT"
	}
}

func surrogateKey(d Dialect) string {
	switch d {
	case DialectPostgres:
		return "id BIGSERIAL PRIMARY KEY"
	case DialectGeneric:
		return "id BIGINT PRIMARY KEY AUTO_INCREMENT"
	default:
		return "id INTEGER PRIMARY KEY"
	}
}

// CreateTableSQL renders the CREATE TABLE statement for a table. The
// statement includes a store-assigned surrogate id plus the canonical columns
// with their NOT NULL and UNIQUE constraints; the unique natural key is the
// cross-run dedup backstop and is never dropped by the index lifecycle.
func CreateTableSQL(t Table, d Dialect) string {
	cols := make([]string, 0, len(t.Columns)+1)
	cols = append(cols, surrogateKey(d))
	for _, c := range t.Columns {
		var sb strings.Builder
		sb.WriteString(c.Name)
		sb.WriteByte(' ')
		sb.WriteString(sqlType(c, d))
		if c.NotNull {
			sb.WriteString(" NOT NULL")
		}
		if c.Unique {
			sb.WriteString(" UNIQUE")
		}
		cols = append(cols, sb.String())
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		t.Name,
		strings.Join(cols, ",\n  "),
	)
}

// DropTableSQL renders the drop statement used by the administrative reset.
func DropTableSQL(t Table) string {
	return "DROP TABLE IF EXISTS " + t.Name
}

package transform

import (
	"time"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/parser/csv"
)

// Inspections maps one raw chunk to canonical inspection rows, positional
// order matching schema.Inspections: activity_nr, estab_name, site_state,
// naics_code, open_date, close_case_date, year, inspection_type.
func Inspections(c *csv.Chunk) Result {
	var (
		iActivity = colIdx(c, "activity_nr")
		iEstab    = colIdx(c, "estab_name")
		iState    = colIdx(c, "site_state")
		iNaics    = colIdx(c, "naics_code")
		iOpen     = colIdx(c, "open_date")
		iClose    = colIdx(c, "close_case_date")
		iYear     = colIdx(c, "year")
		iType     = colIdx(c, "inspection_type")
	)

	res := Result{
		Rows: make([][]any, 0, len(c.Rows)),
		Keys: make([]string, 0, len(c.Rows)),
	}
	for _, row := range c.Rows {
		key := get(row, iActivity)
		if key == "" {
			res.Dropped++
			continue
		}

		openDate, haveOpen := parseDate(get(row, iOpen))
		year, ok := resolveYear(get(row, iYear), openDate, haveOpen)
		if !ok {
			res.Dropped++
			continue
		}

		var openVal, closeVal any
		if haveOpen {
			openVal = openDate
		}
		if d, have := parseDate(get(row, iClose)); have {
			closeVal = d
		}

		res.Rows = append(res.Rows, []any{
			truncate(key, 50),
			textVal(get(row, iEstab), 500),
			stateVal(get(row, iState)),
			textVal(get(row, iNaics), 10),
			openVal,
			closeVal,
			int64(year),
			textVal(get(row, iType), 100),
		})
		res.Keys = append(res.Keys, key)
	}
	return res
}

// stateVal uppercases and clamps a state code to two characters.
func stateVal(s string) any {
	if s == "" {
		return nil
	}
	return truncate(upper(s), 2)
}

func upper(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if 'a' <= ch && ch <= 'z' {
			b[i] = ch - 'a' + 'A'
		}
	}
	return string(b)
}

// InspectionRef carries the inspection fields denormalized onto linked
// violation rows during the violation load.
type InspectionRef struct {
	EstabName string
	SiteState string
	NaicsCode string
	OpenDate  time.Time
	HaveDate  bool
	Year      int
}

// InspectionRefs collects lookup entries from one raw inspection chunk into
// dst, keyed by activity_nr. Rows without a key are skipped. The violation
// load streams the whole inspection extract through this before its own
// pass.
func InspectionRefs(c *csv.Chunk, dst map[string]InspectionRef) {
	var (
		iActivity = colIdx(c, "activity_nr")
		iEstab    = colIdx(c, "estab_name")
		iState    = colIdx(c, "site_state")
		iNaics    = colIdx(c, "naics_code")
		iOpen     = colIdx(c, "open_date")
		iYear     = colIdx(c, "year")
	)

	for _, row := range c.Rows {
		key := get(row, iActivity)
		if key == "" {
			continue
		}
		openDate, haveOpen := parseDate(get(row, iOpen))
		year, _ := resolveYear(get(row, iYear), openDate, haveOpen)
		dst[key] = InspectionRef{
			EstabName: get(row, iEstab),
			SiteState: get(row, iState),
			NaicsCode: get(row, iNaics),
			OpenDate:  openDate,
			HaveDate:  haveOpen,
			Year:      year,
		}
	}
}

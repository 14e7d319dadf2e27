package transform

import (
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/normalize"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/parser/csv"
)

// Violations maps one raw chunk to canonical violation rows, positional
// order matching schema.Violations. lookup links violations to inspections
// by activity number; the link is soft (the streams are independent and may
// race), so a missing entry degrades to NULL enrichment fields, and the row
// survives as long as it can satisfy the year invariant on its own.
//
// company_name_normalized is produced by normalize.CompanyName, the same
// function the query path applies, so stored keys match later searches
// byte-for-byte.
func Violations(c *csv.Chunk, agency string, lookup map[string]InspectionRef) Result {
	var (
		iActivity = colIdx(c, "activity_nr")
		iStandard = colIdx(c, "standard")
		iViolType = colIdx(c, "viol_type")
		iDesc     = colIdx(c, "description")
		iInitial  = colIdx(c, "initial_penalty")
		iCurrent  = colIdx(c, "current_penalty")
		iFta      = colIdx(c, "fta_penalty")
		iCity     = colIdx(c, "site_city")
		iSic      = colIdx(c, "sic_code")
		iState    = colIdx(c, "site_state")
		iNaics    = colIdx(c, "naics_code")
		iIssuance = colIdx(c, "issuance_date")
		iYear     = colIdx(c, "year")
	)

	res := Result{
		Rows: make([][]any, 0, len(c.Rows)),
		Keys: make([]string, 0, len(c.Rows)),
	}
	for _, row := range c.Rows {
		activity := get(row, iActivity)
		ref, linked := lookup[activity]

		// The violation date prefers the linked inspection's open date and
		// falls back to the extract's own issuance date.
		date := ref.OpenDate
		haveDate := linked && ref.HaveDate
		if !haveDate {
			date, haveDate = parseDate(get(row, iIssuance))
		}

		year := 0
		switch {
		case linked && ref.Year > 0:
			year = ref.Year
		default:
			var ok bool
			if year, ok = resolveYear(get(row, iYear), date, haveDate); !ok {
				res.Dropped++
				continue
			}
		}

		var companyName, companyKey any
		if linked && ref.EstabName != "" {
			companyName = truncate(ref.EstabName, 500)
			if key := normalize.CompanyName(ref.EstabName); key != "" {
				companyKey = truncate(key, 500)
			}
		}

		siteState := get(row, iState)
		if siteState == "" && linked {
			siteState = ref.SiteState
		}
		naics := get(row, iNaics)
		if naics == "" && linked {
			naics = ref.NaicsCode
		}

		var dateVal any
		if haveDate {
			dateVal = date
		}

		res.Rows = append(res.Rows, []any{
			truncate(agency, 50),
			companyName,
			companyKey,
			textVal(activity, 50),
			textVal(get(row, iStandard), 50),
			textVal(get(row, iViolType), 50),
			textVal(get(row, iDesc), 10000),
			floatVal(get(row, iInitial)),
			floatVal(get(row, iCurrent)),
			floatVal(get(row, iFta)),
			stateVal(siteState),
			textVal(get(row, iCity), 100),
			textVal(naics, 10),
			textVal(get(row, iSic), 10),
			dateVal,
			int64(year),
		})
		// Violations have no natural key; dedup does not apply.
		res.Keys = append(res.Keys, "")
	}
	return res
}

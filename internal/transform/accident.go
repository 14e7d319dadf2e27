package transform

import (
	"strings"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/parser/csv"
)

// Accident extracts arrive in one of three layouts. The variant is detected
// once per chunk from format-distinguishing columns; unrecognized extra
// columns are ignored. Positional output order matches schema.Accidents:
// accident_key, activity_nr, estab_name, site_state, naics_code,
// accident_date, year, description, fatality, injury_type.
type accidentVariant struct {
	name   string
	detect func(*csv.Chunk) bool
	mapper func(*csv.Chunk) rowMapper
}

// rowMapper maps one raw row to (canonical values, natural key). ok is false
// when the row must be dropped (missing key or year invariant).
type rowMapper func(row []string) (vals []any, key string, ok bool)

// Detection order matters: the standard layout is the catch-all.
var accidentVariants = []accidentVariant{
	{
		name:   "msha",
		detect: func(c *csv.Chunk) bool { return c.HasColumn("mine_id") && c.HasColumn("ai_dt") },
		mapper: mshaMapper,
	},
	{
		name:   "osha_fatality",
		detect: func(c *csv.Chunk) bool { return c.HasColumn("summary_nr") && c.HasColumn("event_date") },
		mapper: fatalityReportMapper,
	},
	{
		name:   "osha_standard",
		detect: func(*csv.Chunk) bool { return true },
		mapper: standardMapper,
	},
}

// AccidentFormat reports which layout a chunk will be mapped with. Exposed
// for logging; Accidents performs the same detection internally.
func AccidentFormat(c *csv.Chunk) string {
	for _, v := range accidentVariants {
		if v.detect(c) {
			return v.name
		}
	}
	return "osha_standard"
}

// Accidents maps one raw chunk to canonical accident rows.
func Accidents(c *csv.Chunk) Result {
	var mapRow rowMapper
	for _, v := range accidentVariants {
		if v.detect(c) {
			mapRow = v.mapper(c)
			break
		}
	}

	res := Result{
		Rows: make([][]any, 0, len(c.Rows)),
		Keys: make([]string, 0, len(c.Rows)),
	}
	for _, row := range c.Rows {
		vals, key, ok := mapRow(row)
		if !ok {
			res.Dropped++
			continue
		}
		res.Rows = append(res.Rows, vals)
		res.Keys = append(res.Keys, key)
	}
	return res
}

// standardMapper handles the native OSHA accident layout, which carries an
// accident_key of its own.
func standardMapper(c *csv.Chunk) rowMapper {
	var (
		iKey      = colIdx(c, "accident_key")
		iActivity = colIdx(c, "activity_nr")
		iEstab    = colIdx(c, "estab_name")
		iState    = colIdx(c, "site_state")
		iNaics    = colIdx(c, "naics_code")
		iDate     = colIdx(c, "accident_date")
		iYear     = colIdx(c, "year")
		iDesc     = colIdx(c, "description")
		iFatal    = colIdx(c, "fatality")
		iInjury   = colIdx(c, "injury_type")
	)
	return func(row []string) ([]any, string, bool) {
		key := get(row, iKey)
		if key == "" {
			return nil, "", false
		}
		date, haveDate := parseDate(get(row, iDate))
		year, ok := resolveYear(get(row, iYear), date, haveDate)
		if !ok {
			return nil, "", false
		}
		var dateVal any
		if haveDate {
			dateVal = date
		}
		fatal := false
		if f, ok := parseFloat(get(row, iFatal)); ok && f != 0 {
			fatal = true
		}
		return []any{
			truncate(key, 50),
			textVal(get(row, iActivity), 50),
			textVal(get(row, iEstab), 500),
			stateVal(get(row, iState)),
			textVal(get(row, iNaics), 10),
			dateVal,
			int64(year),
			textVal(get(row, iDesc), 10000),
			fatal,
			textVal(get(row, iInjury), 100),
		}, key, true
	}
}

// fatalityReportMapper handles the OSHA fatality-report layout. It has no
// inspection link or establishment fields; summary_nr serves as the key.
func fatalityReportMapper(c *csv.Chunk) rowMapper {
	var (
		iSummary  = colIdx(c, "summary_nr")
		iState    = colIdx(c, "state_flag")
		iDate     = colIdx(c, "event_date")
		iDesc     = colIdx(c, "event_desc")
		iAbstract = colIdx(c, "abstract_text")
		iFatal    = colIdx(c, "fatality")
		iKeyword  = colIdx(c, "event_keyword")
	)
	return func(row []string) ([]any, string, bool) {
		key := get(row, iSummary)
		if key == "" {
			return nil, "", false
		}
		date, haveDate := parseDate(get(row, iDate))
		if !haveDate {
			// This layout has no year column; the event date is the only
			// source for the year invariant.
			return nil, "", false
		}
		desc := get(row, iDesc)
		if abstract := get(row, iAbstract); abstract != "" {
			if desc != "" {
				desc += " | " + abstract
			} else {
				desc = abstract
			}
		}
		fatal := strings.EqualFold(get(row, iFatal), "X")
		return []any{
			truncate(key, 50),
			nil,
			nil,
			stateVal(get(row, iState)),
			nil,
			date,
			int64(date.Year()),
			textVal(desc, 10000),
			fatal,
			textVal(get(row, iKeyword), 100),
		}, key, true
	}
}

// mshaMapper handles mine-safety extracts. The source has no single natural
// key, so one is derived from mine_id and document_no.
func mshaMapper(c *csv.Chunk) rowMapper {
	var (
		iMine     = colIdx(c, "mine_id")
		iDoc      = colIdx(c, "document_no")
		iOperator = colIdx(c, "operator_name")
		iFips     = colIdx(c, "fips_state_cd")
		iDate     = colIdx(c, "ai_dt")
		iAiYear   = colIdx(c, "ai_year")
		iCalYear  = colIdx(c, "cal_yr")
		iNarr     = colIdx(c, "ai_narr")
		iDegDesc  = colIdx(c, "inj_degr_desc")
		iDegCode  = colIdx(c, "degree_injury_cd")
		iNature   = colIdx(c, "nature_injury")
	)
	return func(row []string) ([]any, string, bool) {
		mine := get(row, iMine)
		if mine == "" {
			return nil, "", false
		}
		key := mine
		if doc := get(row, iDoc); doc != "" {
			key = mine + "_" + doc
		}

		date, haveDate := parseDate(get(row, iDate))
		yearField := get(row, iAiYear)
		if yearField == "" {
			yearField = get(row, iCalYear)
		}
		year, ok := resolveYear(yearField, date, haveDate)
		if !ok {
			return nil, "", false
		}
		var dateVal any
		if haveDate {
			dateVal = date
		}

		fatal := false
		if deg := get(row, iDegDesc); deg != "" {
			fatal = strings.Contains(strings.ToUpper(deg), "FATAL")
		} else if code, ok := parseFloat(get(row, iDegCode)); ok {
			fatal = code == 1
		}

		injury := get(row, iNature)
		if injury == "" {
			injury = get(row, iDegDesc)
		}

		return []any{
			truncate(key, 50),
			nil, // mine-safety records do not link to inspections
			textVal(get(row, iOperator), 500),
			stateVal(get(row, iFips)),
			nil,
			dateVal,
			int64(year),
			textVal(get(row, iNarr), 10000),
			fatal,
			textVal(injury, 100),
		}, key, true
	}
}

// Package normalize implements the deterministic company-name normalization
// shared by the ingestion pipeline and the query path. Stored normalized keys
// must match keys computed later for the same raw input, so the algorithm is
// fixed: any change here invalidates every company_name_normalized column.
package normalize

import (
	"strings"
	"unicode"
)

// legalSuffixes are stripped from the end of a name only, longest forms
// listed explicitly rather than inferred. Order is not significant because
// stripping repeats until no suffix matches.
var legalSuffixes = []string{
	" INC", " LLC", " CORP", " CORPORATION", " LP", " LTD",
	" COMPANY", " CO", " L.L.C.", " INC.", " CORP.", " CO.",
	" PLC", " PLLC", " LLP", " PA", " PC", " P.C.",
	" LLC.", " INCORPORATED", " LIMITED", " ASSOCIATES",
	" ASSOCIATION", " GROUP", " HOLDINGS", " HOLDING",
}

var stopwords = map[string]struct{}{
	"THE": {},
	"A":   {},
	"AN":  {},
}

// stripSuffixes removes legal-entity suffixes from the end of s until none
// match, so stacked suffixes ("X HOLDINGS LLC") reduce in one call.
func stripSuffixes(s string) string {
	for {
		stripped := false
		for _, suf := range legalSuffixes {
			if strings.HasSuffix(s, suf) {
				s = strings.TrimSpace(s[:len(s)-len(suf)])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

// CompanyName maps a raw establishment name to its canonical matching key.
// The function is idempotent: CompanyName(CompanyName(s)) == CompanyName(s).
func CompanyName(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	if s == "" {
		return ""
	}

	s = stripSuffixes(s)

	// Punctuation and other non-word runes become spaces.
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	// Collapse whitespace and drop stopword tokens.
	fields := strings.Fields(b.String())
	out := fields[:0]
	for _, w := range fields {
		if _, skip := stopwords[w]; skip {
			continue
		}
		out = append(out, w)
	}

	// A suffix hidden behind punctuation ("ACME-CO") only becomes a trailing
	// token after the strip above, so suffix removal runs once more. This
	// second pass is what makes the function a fixpoint of itself.
	return stripSuffixes(strings.Join(out, " "))
}

// CompanyNames normalizes a batch in place-compatible fashion: element i of
// the result is CompanyName(names[i]). Batch and single-value application are
// byte-identical by construction.
func CompanyNames(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = CompanyName(n)
	}
	return out
}

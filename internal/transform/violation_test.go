package transform

import (
	"testing"
	"time"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/normalize"
)

func TestViolationsLinkedEnrichment(t *testing.T) {
	t.Parallel()

	open := time.Date(2012, 6, 1, 0, 0, 0, 0, time.UTC)
	lookup := map[string]InspectionRef{
		"A1": {EstabName: "Acme Inc", SiteState: "TX", NaicsCode: "238160", OpenDate: open, HaveDate: true, Year: 2012},
	}
	c := chunkOf(
		[]string{"activity_nr", "standard", "viol_type", "initial_penalty", "current_penalty", "fta_penalty"},
		[]string{"A1", "19260501 B01", "S", "7000", "4900.50", ""},
	)
	res := Violations(c, "OSHA", lookup)
	if len(res.Rows) != 1 || res.Dropped != 0 {
		t.Fatalf("rows=%d dropped=%d, want 1/0", len(res.Rows), res.Dropped)
	}
	row := res.Rows[0]
	if row[0] != "OSHA" {
		t.Errorf("agency = %v", row[0])
	}
	if row[1] != "Acme Inc" {
		t.Errorf("company_name = %v", row[1])
	}
	if want := normalize.CompanyName("Acme Inc"); row[2] != want {
		t.Errorf("company_name_normalized = %v, want %q", row[2], want)
	}
	if row[10] != "TX" || row[12] != "238160" {
		t.Errorf("enrichment = state %v naics %v", row[10], row[12])
	}
	if d, ok := row[14].(time.Time); !ok || !d.Equal(open) {
		t.Errorf("violation_date = %v, want %v", row[14], open)
	}
	if row[15] != int64(2012) {
		t.Errorf("year = %v", row[15])
	}
	if row[8] != 4900.50 {
		t.Errorf("current_penalty = %v", row[8])
	}
	if row[9] != nil {
		t.Errorf("fta_penalty = %v, want nil", row[9])
	}
}

func TestViolationsUnlinkedFallsBackToIssuanceDate(t *testing.T) {
	t.Parallel()

	c := chunkOf(
		[]string{"activity_nr", "issuance_date"},
		[]string{"Z9", "2015-02-10"},
	)
	res := Violations(c, "OSHA", nil)
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d", len(res.Rows))
	}
	row := res.Rows[0]
	if row[1] != nil || row[2] != nil {
		t.Errorf("company fields = %v/%v, want nil (no inspection link)", row[1], row[2])
	}
	if row[15] != int64(2015) {
		t.Errorf("year = %v, want 2015 from issuance_date", row[15])
	}
}

func TestViolationsYearInvariantDrop(t *testing.T) {
	t.Parallel()

	c := chunkOf(
		[]string{"activity_nr", "standard"},
		[]string{"Z9", "19260501 B01"}, // no link, no date, no year
	)
	res := Violations(c, "OSHA", nil)
	if len(res.Rows) != 0 || res.Dropped != 1 {
		t.Fatalf("rows=%d dropped=%d, want 0/1", len(res.Rows), res.Dropped)
	}
}

func TestViolationsHaveNoDedupKey(t *testing.T) {
	t.Parallel()

	c := chunkOf(
		[]string{"activity_nr", "issuance_date"},
		[]string{"A1", "2015-02-10"},
		[]string{"A1", "2015-02-10"},
	)
	res := Violations(c, "OSHA", nil)
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2 (one inspection has many violations)", len(res.Rows))
	}
	for _, k := range res.Keys {
		if k != "" {
			t.Errorf("key = %q, want empty", k)
		}
	}
}

package matcher

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
)

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entry(id int64, d int, net, narration string) models.LedgerEntry {
	e := models.LedgerEntry{ID: id, Date: day(d), Account: "Bank", Narration: narration}
	if n := amt(net); n.IsNegative() {
		e.Credit = n.Neg()
	} else {
		e.Debit = n
	}
	return e
}

func line(id int64, d int, amount, desc string) models.StatementLine {
	return models.StatementLine{ID: id, Date: day(d), Amount: amt(amount), Description: desc}
}

func createTestMatchingData() ([]models.LedgerEntry, []models.StatementLine) {
	entries := []models.LedgerEntry{
		entry(1, 12, "150.00", "ABC Supplies"),
		entry(2, 10, "-250.00", "Office rent January"),
		entry(3, 20, "99.99", "Stationery"),
	}
	lines := []models.StatementLine{
		line(10, 10, "150.00", "ABC SUPPLIES PTY"),
		line(11, 11, "-250.00", "OFFICE RENT"),
		line(12, 14, "500.00", "Unknown deposit"),
	}
	return entries, lines
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"ABC", "abc", 1},
		{"abcd", "abce", 0.75},
		{"ABC SUPPLIES PTY", "ABC Supplies", 24.0 / 28.0},
		{"xyz", "abc", 0},
		{"SALARY JAN", "January salaries", 10.0 / 26.0},
		{"OFFICE RENT", "Office rent January", 22.0 / 30.0},
		{"", "abc", 0},
		{"", "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAutoMatch(t *testing.T) {
	entries, lines := createTestMatchingData()
	engine := NewMatchingEngine(nil)
	engine.LoadLedger(entries)

	proposals := engine.AutoMatch(lines)
	if len(proposals) != 2 {
		t.Fatalf("AutoMatch() returned %d proposals, want 2: %+v", len(proposals), proposals)
	}

	first := proposals[0]
	if first.Line.ID != 10 || first.Entry.ID != 1 {
		t.Errorf("first proposal = line %d / entry %d, want 10 / 1", first.Line.ID, first.Entry.ID)
	}
	if first.Score <= 0.4 {
		t.Errorf("first proposal score = %f, want > 0.4", first.Score)
	}
	if first.DayDifference != 2 {
		t.Errorf("DayDifference = %d, want 2", first.DayDifference)
	}

	if proposals[1].Line.ID != 11 || proposals[1].Entry.ID != 2 {
		t.Errorf("second proposal = line %d / entry %d, want 11 / 2", proposals[1].Line.ID, proposals[1].Entry.ID)
	}
}

func TestAutoMatchBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		entry  models.LedgerEntry
		line   models.StatementLine
		config *MatchingConfig
		want   bool
	}{
		{"three days apart", entry(1, 13, "150.00", "ABC Supplies"), line(1, 10, "150.00", "ABC SUPPLIES PTY"), nil, true},
		{"four days apart", entry(1, 14, "150.00", "ABC Supplies"), line(1, 10, "150.00", "ABC SUPPLIES PTY"), nil, false},
		{"four days before", entry(1, 6, "150.00", "ABC Supplies"), line(1, 10, "150.00", "ABC SUPPLIES PTY"), nil, false},
		{"one cent off", entry(1, 10, "150.01", "ABC Supplies"), line(1, 10, "150.00", "ABC SUPPLIES PTY"), nil, true},
		{"two cents off", entry(1, 10, "150.02", "ABC Supplies"), line(1, 10, "150.00", "ABC SUPPLIES PTY"), nil, false},
		{"opposite sign", entry(1, 10, "-150.00", "ABC Supplies"), line(1, 10, "150.00", "ABC SUPPLIES PTY"), nil, false},
		{"dissimilar description", entry(1, 10, "150.00", "xyz"), line(1, 10, "150.00", "ABC"), nil, false},
		{"reordered words below threshold", entry(1, 10, "150.00", "January salaries"), line(1, 10, "150.00", "SALARY JAN"), nil, false},
		{"strict rejects one cent", entry(1, 10, "150.01", "ABC Supplies"), line(1, 10, "150.00", "ABC Supplies"), StrictMatchingConfig(), false},
		{"relaxed accepts five days", entry(1, 15, "150.05", "ABC Supplies"), line(1, 10, "150.00", "ABC Supplies"), RelaxedMatchingConfig(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMatchingEngine(tt.config)
			engine.LoadLedger([]models.LedgerEntry{tt.entry})
			got := len(engine.AutoMatch([]models.StatementLine{tt.line})) == 1
			if got != tt.want {
				t.Errorf("proposed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAutoMatchClaimsEntryOnce(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadLedger([]models.LedgerEntry{entry(5, 10, "40.00", "Coffee shop")})

	lines := []models.StatementLine{
		line(21, 10, "40.00", "COFFEE SHOP"),
		line(20, 10, "40.00", "COFFEE SHOP"),
	}
	proposals := engine.AutoMatch(lines)
	if len(proposals) != 1 {
		t.Fatalf("AutoMatch() returned %d proposals, want 1", len(proposals))
	}
	if proposals[0].Line.ID != 20 {
		t.Errorf("entry claimed by line %d, want the lowest id 20", proposals[0].Line.ID)
	}
}

func TestAutoMatchPrefersBestCandidate(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadLedger([]models.LedgerEntry{
		entry(1, 10, "80.00", "Fuel station"),
		entry(2, 11, "80.00", "Grocer Market"),
		entry(3, 12, "80.00", "Grocer Market"),
	})

	proposals := engine.AutoMatch([]models.StatementLine{line(1, 10, "80.00", "GROCER MARKET 123")})
	if len(proposals) != 1 {
		t.Fatalf("AutoMatch() returned %d proposals, want 1", len(proposals))
	}
	if proposals[0].Entry.ID != 2 {
		t.Errorf("picked entry %d, want 2 (best score, closest date)", proposals[0].Entry.ID)
	}
}

func TestAutoMatchSkipsMatchedAndReconciled(t *testing.T) {
	reconciled := entry(1, 10, "10.00", "Fee")
	reconciled.Reconciled = true
	matchedID := int64(99)
	matched := line(2, 10, "10.00", "Fee")
	matched.MatchedEntryID = &matchedID

	engine := NewMatchingEngine(nil)
	engine.LoadLedger([]models.LedgerEntry{reconciled, entry(3, 10, "10.00", "Fee")})

	proposals := engine.AutoMatch([]models.StatementLine{matched, line(4, 10, "10.00", "Fee")})
	if len(proposals) != 1 || proposals[0].Line.ID != 4 || proposals[0].Entry.ID != 3 {
		t.Errorf("AutoMatch() = %+v, want line 4 / entry 3", proposals)
	}
}

func TestAutoMatchEmpty(t *testing.T) {
	engine := NewMatchingEngine(nil)
	if got := engine.AutoMatch(nil); len(got) != 0 {
		t.Errorf("AutoMatch() without ledger = %v, want none", got)
	}
	engine.LoadLedger(nil)
	if got := engine.AutoMatch([]models.StatementLine{line(1, 1, "1.00", "x")}); len(got) != 0 {
		t.Errorf("AutoMatch() with empty ledger = %v, want none", got)
	}
}

func TestSummarizeAndClassify(t *testing.T) {
	entries, lines := createTestMatchingData()
	engine := NewMatchingEngine(nil)
	engine.LoadLedger(entries)
	proposals := engine.AutoMatch(lines)

	summary := Summarize(lines, proposals)
	if summary.Lines != 3 || summary.Proposed != 2 || summary.Unmatched != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if !summary.AmountProposed.Equal(amt("400")) {
		t.Errorf("AmountProposed = %s, want 400", summary.AmountProposed)
	}

	exact := models.ProposedMatch{Line: line(1, 10, "5.00", "a"), Entry: entry(1, 10, "5.00", "b"), Score: 0.5}
	if Classify(exact) != MatchExact {
		t.Errorf("Classify() = %s, want Exact", Classify(exact))
	}
	exact.DayDifference = 1
	if Classify(exact) != MatchFuzzy {
		t.Errorf("Classify() = %s, want Fuzzy", Classify(exact))
	}
	exact.Score = 0.9
	if Classify(exact) != MatchClose {
		t.Errorf("Classify() = %s, want Close", Classify(exact))
	}
}

func TestMatchingConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *MatchingConfig
		wantErr bool
	}{
		{"default", DefaultMatchingConfig(), false},
		{"strict", StrictMatchingConfig(), false},
		{"relaxed", RelaxedMatchingConfig(), false},
		{"negative tolerance", &MatchingConfig{AmountTolerance: amt("-0.01"), DateWindowDays: 3, MinScore: 0.4}, true},
		{"negative window", &MatchingConfig{DateWindowDays: -1, MinScore: 0.4}, true},
		{"score of one", &MatchingConfig{DateWindowDays: 3, MinScore: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	for _, name := range []string{"", "default", "Strict", "relaxed"} {
		if _, err := Preset(name); err != nil {
			t.Errorf("Preset(%q) error: %v", name, err)
		}
	}
	if _, err := Preset("lenient"); err == nil {
		t.Error("Preset(\"lenient\") expected error")
	}

	clone := DefaultMatchingConfig().Clone()
	clone.DateWindowDays = 9
	if DefaultMatchingConfig().DateWindowDays != 3 {
		t.Error("Clone() shares state with the original")
	}
}

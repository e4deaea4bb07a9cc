package matcher

import (
	"testing"

	"nexledger-reconciler/internal/models"
)

func TestLedgerIndex(t *testing.T) {
	reconciled := entry(4, 10, "10.00", "done")
	reconciled.Reconciled = true
	index := NewLedgerIndex([]models.LedgerEntry{
		entry(1, 10, "10.00", "a"),
		entry(2, 11, "10.00", "b"),
		entry(3, 12, "-20.00", "c"),
		reconciled,
		entry(5, 20, "10.004", "d"),
	})

	stats := index.GetIndexStats()
	if stats.TotalEntries != 4 || stats.UniqueAmounts != 2 {
		t.Errorf("stats = %+v, want 4 entries over 2 amounts", stats)
	}

	if got := index.GetByExactAmount(amt("10")); len(got) != 3 {
		t.Errorf("GetByExactAmount(10) returned %d entries, want 3", len(got))
	}

	tests := []struct {
		name     string
		min, max string
		want     int
	}{
		{"all", "-100", "100", 4},
		{"negative only", "-25", "-15", 1},
		{"inclusive bounds", "9.99", "10.00", 3},
		{"empty", "11", "19", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := index.GetByAmountRange(amt(tt.min), amt(tt.max)); len(got) != tt.want {
				t.Errorf("GetByAmountRange(%s, %s) returned %d entries, want %d", tt.min, tt.max, len(got), tt.want)
			}
		})
	}
}

func TestLedgerIndexGetCandidates(t *testing.T) {
	index := NewLedgerIndex([]models.LedgerEntry{
		entry(1, 10, "10.00", "a"),
		entry(2, 15, "10.00", "b"),
		entry(3, 10, "10.01", "c"),
		entry(4, 10, "10.02", "d"),
	})

	l := line(1, 11, "10.00", "x")
	got := index.GetCandidates(&l, DefaultMatchingConfig())
	ids := map[int64]bool{}
	for _, e := range got {
		ids[e.ID] = true
	}
	if len(got) != 2 || !ids[1] || !ids[3] {
		t.Errorf("GetCandidates() = %v, want entries 1 and 3", ids)
	}

	strict := index.GetCandidates(&l, StrictMatchingConfig())
	if len(strict) != 1 || strict[0].ID != 1 {
		t.Errorf("strict GetCandidates() returned %d entries, want entry 1", len(strict))
	}
}

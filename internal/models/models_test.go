package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDirectionOf(t *testing.T) {
	tests := []struct {
		amount   string
		expected Direction
	}{
		{"150.00", DirectionIncome},
		{"0.01", DirectionIncome},
		{"0", DirectionExpense},
		{"-42.10", DirectionExpense},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			if got := DirectionOf(decimal.RequireFromString(tt.amount)); got != tt.expected {
				t.Errorf("DirectionOf(%s) = %v, want %v", tt.amount, got, tt.expected)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		input    string
		expected Direction
		wantErr  bool
	}{
		{"Income", DirectionIncome, false},
		{" CR ", DirectionIncome, false},
		{"expense", DirectionExpense, false},
		{"DR", DirectionExpense, false},
		{"transfer", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDirection(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDirection(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseDirection(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	jan10 := time.Date(2025, 1, 10, 23, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		b    time.Time
		want int
	}{
		{"same day", time.Date(2025, 1, 10, 1, 0, 0, 0, time.UTC), 0},
		{"two later", time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC), 2},
		{"four earlier", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), -4},
		{"across month", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), 22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(jan10, tt.b); got != tt.want {
				t.Errorf("DaysBetween() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLedgerEntry(t *testing.T) {
	entry := LedgerEntry{
		Date:      time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC),
		Account:   "Bank",
		Narration: "ABC Supplies",
		Debit:     decimal.RequireFromString("150.00"),
		Credit:    decimal.Zero,
	}

	if err := entry.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if !entry.Net().Equal(decimal.RequireFromString("150")) {
		t.Errorf("Net() = %s, want 150", entry.Net())
	}
	if w := entry.Warnings(); len(w) != 0 {
		t.Errorf("Warnings() = %v, want none", w)
	}

	entry.Credit = decimal.RequireFromString("10")
	if w := entry.Warnings(); len(w) != 1 {
		t.Errorf("Warnings() = %v, want one warning", w)
	}

	entry.Debit = decimal.RequireFromString("-1")
	if err := entry.Validate(); err == nil {
		t.Error("Validate() expected error for negative debit")
	}
}

func TestStatementLineState(t *testing.T) {
	line := StatementLine{ID: 1}
	if line.State() != LineUnmatched {
		t.Errorf("State() = %s, want %s", line.State(), LineUnmatched)
	}

	id := int64(7)
	line.MatchedEntryID = &id
	if line.State() != LineReconciled {
		t.Errorf("State() = %s, want %s", line.State(), LineReconciled)
	}
}

func TestTransactionFromRaw(t *testing.T) {
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	raw := RawTransaction{
		Date:         time.Date(2025, 1, 31, 15, 4, 5, 0, time.UTC),
		Description:  "Card purchase",
		Amount:       decimal.RequireFromString("-99.95"),
		SourceFormat: FormatCSV,
	}

	tx := TransactionFromRaw(raw, "import", now)

	if tx.Type != DirectionExpense {
		t.Errorf("Type = %s, want %s", tx.Type, DirectionExpense)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("99.95")) {
		t.Errorf("Amount = %s, want 99.95", tx.Amount)
	}
	if tx.Date.Hour() != 0 {
		t.Errorf("Date not truncated: %s", tx.Date)
	}
}

func TestRawTransactionMarshalJSON(t *testing.T) {
	raw := &RawTransaction{
		Date:         time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Description:  "Salary",
		Amount:       decimal.RequireFromString("1234.5"),
		Currency:     DefaultCurrency,
		SourceFormat: FormatOFX,
	}

	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"date":"2025-01-31"`) || !strings.Contains(out, `"amount":"1234.50"`) {
		t.Errorf("unexpected JSON: %s", out)
	}
}

func TestUndoKindAndDecode(t *testing.T) {
	if !UndoConfirmMatches.IsValid() || UndoKind("drop_table").IsValid() {
		t.Fatal("UndoKind.IsValid() misclassified kinds")
	}

	action := UndoAction{Kind: UndoManualMatch, Payload: json.RawMessage(`{"line_id":3}`)}
	var payload struct {
		LineID int64 `json:"line_id"`
	}
	if err := action.Decode(&payload); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if payload.LineID != 3 {
		t.Errorf("LineID = %d, want 3", payload.LineID)
	}

	action.Payload = json.RawMessage(`not json`)
	if err := action.Decode(&payload); err == nil {
		t.Error("Decode() expected error for invalid payload")
	}
}

func TestStoredValues(t *testing.T) {
	d, err := ParseStoredAmount(FormatAmount(decimal.RequireFromString("-12.3")))
	if err != nil || !d.Equal(decimal.RequireFromString("-12.30")) {
		t.Errorf("ParseStoredAmount() = %s, %v", d, err)
	}
	if _, err := ParseStoredAmount("12,30"); err == nil {
		t.Error("ParseStoredAmount() expected error for comma decimal")
	}
	if _, err := ParseStoredDate("31/01/2025"); err == nil {
		t.Error("ParseStoredDate() expected error for non-ISO date")
	}
}

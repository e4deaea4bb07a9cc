package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar date layout used in storage and reports.
const DateLayout = "2006-01-02"

// DefaultCurrency is applied when a statement does not name one.
const DefaultCurrency = "ZAR"

// SourceFormat identifies the statement format a transaction came from
type SourceFormat string

const (
	FormatCSV SourceFormat = "csv"
	FormatOFX SourceFormat = "ofx"
	FormatPDF SourceFormat = "pdf"
)

// String returns the string representation of SourceFormat
func (f SourceFormat) String() string {
	return string(f)
}

// IsValid checks if the format is one of the supported formats
func (f SourceFormat) IsValid() bool {
	return f == FormatCSV || f == FormatOFX || f == FormatPDF
}

// Direction classifies a signed amount
type Direction string

const (
	DirectionIncome  Direction = "Income"
	DirectionExpense Direction = "Expense"
)

// DirectionOf returns Income for positive amounts and Expense otherwise.
func DirectionOf(amount decimal.Decimal) Direction {
	if amount.IsPositive() {
		return DirectionIncome
	}
	return DirectionExpense
}

// ParseDirection parses and validates a direction from string
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "credit", "cr":
		return DirectionIncome, nil
	case "expense", "debit", "dr":
		return DirectionExpense, nil
	default:
		return "", fmt.Errorf("invalid direction '%s': must be Income or Expense", s)
	}
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// RawTransaction is a parsed statement row before it is accepted into the store.
type RawTransaction struct {
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	SourceFormat SourceFormat    `json:"source_format"`
	FITID        string          `json:"fitid,omitempty"`
	Reference    string          `json:"reference,omitempty"`
	RuleAction   string          `json:"rule_action,omitempty"`
	SourceFile   string          `json:"source_file,omitempty"`
	Line         int             `json:"line,omitempty"`
}

// Direction returns the Income/Expense classification of the amount
func (r *RawTransaction) Direction() Direction {
	return DirectionOf(r.Amount)
}

// Validate performs basic validation on the RawTransaction
func (r *RawTransaction) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("transaction description cannot be empty")
	}
	if !r.SourceFormat.IsValid() {
		return fmt.Errorf("invalid source format: %s", r.SourceFormat)
	}
	return nil
}

// String returns a string representation of the RawTransaction
func (r *RawTransaction) String() string {
	return fmt.Sprintf("RawTransaction{Date: %s, Amount: %s %s, Description: %q}",
		r.Date.Format(DateLayout), r.Amount.StringFixed(2), r.Currency, r.Description)
}

// MarshalJSON renders the date as a calendar date and the amount as a string
func (r *RawTransaction) MarshalJSON() ([]byte, error) {
	type Alias RawTransaction
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Date:   r.Date.Format(DateLayout),
		Amount: r.Amount.StringFixed(2),
		Alias:  (*Alias)(r),
	})
}

// LedgerEntry is a cash book row.
type LedgerEntry struct {
	ID         int64           `json:"id"`
	Date       time.Time       `json:"date"`
	Account    string          `json:"account"`
	Narration  string          `json:"narration"`
	Reference  string          `json:"reference,omitempty"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	Reconciled bool            `json:"reconciled"`
	BatchNo    string          `json:"batch_no,omitempty"`
	EntryType  string          `json:"entry_type,omitempty"`
}

// Net returns debit minus credit
func (e *LedgerEntry) Net() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}

// Validate rejects entries that cannot be stored.
func (e *LedgerEntry) Validate() error {
	if e.Date.IsZero() {
		return fmt.Errorf("ledger entry date cannot be zero")
	}
	if strings.TrimSpace(e.Account) == "" {
		return fmt.Errorf("ledger entry account cannot be empty")
	}
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		return fmt.Errorf("ledger entry debit and credit must not be negative")
	}
	return nil
}

// Warnings reports double-entry irregularities that are accepted but suspicious.
func (e *LedgerEntry) Warnings() []string {
	var warnings []string
	switch {
	case e.Debit.IsZero() && e.Credit.IsZero():
		warnings = append(warnings, "both debit and credit are zero")
	case !e.Debit.IsZero() && !e.Credit.IsZero():
		warnings = append(warnings, "both debit and credit are non-zero")
	}
	return warnings
}

// String returns a string representation of the LedgerEntry
func (e *LedgerEntry) String() string {
	return fmt.Sprintf("LedgerEntry{ID: %d, Date: %s, Net: %s, Narration: %q, Reconciled: %t}",
		e.ID, e.Date.Format(DateLayout), e.Net().StringFixed(2), e.Narration, e.Reconciled)
}

// LineState is the reconciliation state of a statement line
type LineState string

const (
	LineUnmatched  LineState = "unmatched"
	LineProposed   LineState = "proposed"
	LineReconciled LineState = "reconciled"
)

// StatementLine is an imported bank statement row.
type StatementLine struct {
	ID               int64           `json:"id"`
	ReconciliationID string          `json:"reconciliation_id"`
	FITID            string          `json:"fitid,omitempty"`
	Date             time.Time       `json:"date"`
	Description      string          `json:"description"`
	Amount           decimal.Decimal `json:"amount"`
	Source           SourceFormat    `json:"source"`
	MatchedEntryID   *int64          `json:"matched_entry_id,omitempty"`
	Cleared          bool            `json:"cleared"`
}

// State reports the persisted state; Proposed only exists in memory.
func (l *StatementLine) State() LineState {
	if l.MatchedEntryID != nil {
		return LineReconciled
	}
	return LineUnmatched
}

// IsMatched returns true if the line points at a ledger entry
func (l *StatementLine) IsMatched() bool {
	return l.MatchedEntryID != nil
}

// String returns a string representation of the StatementLine
func (l *StatementLine) String() string {
	return fmt.Sprintf("StatementLine{ID: %d, Date: %s, Amount: %s, Description: %q, State: %s}",
		l.ID, l.Date.Format(DateLayout), l.Amount.StringFixed(2), l.Description, l.State())
}

// MatchRecord is the audit trail of a confirmed match.
type MatchRecord struct {
	ID               int64     `json:"id"`
	ReconciliationID string    `json:"reconciliation_id"`
	StatementLineID  int64     `json:"statement_line_id"`
	LedgerEntryID    int64     `json:"ledger_entry_id"`
	Score            float64   `json:"match_score"`
	MatchedOn        time.Time `json:"matched_on"`
}

// ProposedMatch pairs a statement line with its best ledger candidate.
type ProposedMatch struct {
	Line          StatementLine `json:"statement_line"`
	Entry         LedgerEntry   `json:"ledger_entry"`
	Score         float64       `json:"score"`
	DayDifference int           `json:"day_difference"`
}

// Transaction is a row of the flat transactions table used for duplicate lookups.
type Transaction struct {
	ID             int64           `json:"id"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Type           Direction       `json:"type"`
	CategoryID     *int64          `json:"category_id,omitempty"`
	AuditUser      string          `json:"audit_user,omitempty"`
	AuditTimestamp time.Time       `json:"audit_timestamp"`
}

// TransactionFromRaw builds the flat transaction for an accepted raw row.
// The amount is stored unsigned; the sign lives in Type.
func TransactionFromRaw(r RawTransaction, user string, now time.Time) Transaction {
	return Transaction{
		Date:           DateOnly(r.Date),
		Description:    r.Description,
		Amount:         r.Amount.Abs(),
		Type:           r.Direction(),
		AuditUser:      user,
		AuditTimestamp: now,
	}
}

// RawFeed is a staged bank feed row.
type RawFeed struct {
	ID                   int64           `json:"id"`
	SourceFile           string          `json:"source_file"`
	ImportedAt           time.Time       `json:"imported_at"`
	BankDate             time.Time       `json:"bank_date"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Payee                string          `json:"payee"`
	Reference            string          `json:"reference,omitempty"`
	Metadata             json.RawMessage `json:"metadata,omitempty"`
	Posted               bool            `json:"posted"`
	MatchedTransactionID *int64          `json:"matched_transaction_id,omitempty"`
}

// AuditEntry is one line of the audit log
type AuditEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
}

// BankRule maps a description pattern to an action label.
type BankRule struct {
	ID      int64  `json:"id"`
	Pattern string `json:"pattern"`
	Action  string `json:"action"`
	Enabled bool   `json:"enabled"`
}

// Validate performs basic validation on the BankRule
func (r *BankRule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("rule pattern cannot be empty")
	}
	if strings.TrimSpace(r.Action) == "" {
		return fmt.Errorf("rule action cannot be empty")
	}
	return nil
}

// UndoKind names the operation an undo descriptor reverses
type UndoKind string

const (
	UndoConfirmMatches UndoKind = "confirm_matches"
	UndoManualMatch    UndoKind = "manual_match"
	UndoImportBatch    UndoKind = "import_batch"
	UndoInsertCashbook UndoKind = "insert_cashbook"
	UndoEditCashbook   UndoKind = "edit_cashbook"
)

// IsValid checks if the kind is known
func (k UndoKind) IsValid() bool {
	switch k {
	case UndoConfirmMatches, UndoManualMatch, UndoImportBatch, UndoInsertCashbook, UndoEditCashbook:
		return true
	}
	return false
}

// UndoAction is a command log entry.
type UndoAction struct {
	ID        int64           `json:"id"`
	Kind      UndoKind        `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the payload into v
func (u *UndoAction) Decode(v interface{}) error {
	if err := json.Unmarshal(u.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", u.Kind, err)
	}
	return nil
}

// FormatAmount renders a decimal with two fractional digits
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseStoredAmount parses an amount written by FormatAmount
func ParseStoredAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}

// ParseStoredDate parses a date written with DateLayout
func ParseStoredDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date '%s': %w", s, err)
	}
	return t, nil
}

// FoldDescription is the case-insensitive identity of a description used for
// duplicate detection. Folding is Unicode aware, unlike SQLite NOCASE.
func FoldDescription(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

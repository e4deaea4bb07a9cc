package reporter

import (
	"strconv"
	"strings"
	"time"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/reconciler"
)

// Flat row types for CSV and XLSX output.

type importRow struct {
	File       string `csv:"file"`
	Format     string `csv:"format"`
	BatchID    string `csv:"batch_id"`
	Parsed     int    `csv:"parsed"`
	Imported   int    `csv:"imported"`
	Duplicates int    `csv:"duplicates"`
	RuleTagged int    `csv:"rule_tagged"`
	StageOnly  bool   `csv:"stage_only"`
	Warnings   string `csv:"warnings"`
	DurationMS int64  `csv:"duration_ms"`
}

func newImportRow(r *reconciler.ImportResult) importRow {
	return importRow{
		File:       r.File,
		Format:     string(r.Format),
		BatchID:    r.BatchID,
		Parsed:     r.Parsed,
		Imported:   r.Imported,
		Duplicates: r.Duplicates,
		RuleTagged: r.RuleTagged,
		StageOnly:  r.StageOnly,
		Warnings:   strings.Join(r.Warnings, "; "),
		DurationMS: r.Duration.Milliseconds(),
	}
}

type proposalRow struct {
	LineID          int64   `csv:"line_id"`
	LineDate        string  `csv:"line_date"`
	LineDescription string  `csv:"line_description"`
	LineAmount      string  `csv:"line_amount"`
	EntryID         int64   `csv:"entry_id"`
	EntryDate       string  `csv:"entry_date"`
	EntryNarration  string  `csv:"entry_narration"`
	EntryNet        string  `csv:"entry_net"`
	Score           float64 `csv:"score"`
	DayDifference   int     `csv:"day_difference"`
}

func newProposalRow(p models.ProposedMatch) proposalRow {
	return proposalRow{
		LineID:          p.Line.ID,
		LineDate:        p.Line.Date.Format(models.DateLayout),
		LineDescription: p.Line.Description,
		LineAmount:      models.FormatAmount(p.Line.Amount),
		EntryID:         p.Entry.ID,
		EntryDate:       p.Entry.Date.Format(models.DateLayout),
		EntryNarration:  p.Entry.Narration,
		EntryNet:        models.FormatAmount(p.Entry.Net()),
		Score:           roundScore(p.Score),
		DayDifference:   p.DayDifference,
	}
}

type ledgerRow struct {
	ID         int64  `csv:"id"`
	Date       string `csv:"date"`
	Account    string `csv:"account"`
	Narration  string `csv:"narration"`
	Reference  string `csv:"reference"`
	Debit      string `csv:"debit"`
	Credit     string `csv:"credit"`
	Reconciled bool   `csv:"reconciled"`
	BatchNo    string `csv:"batch_no"`
	EntryType  string `csv:"entry_type"`
}

func newLedgerRow(e models.LedgerEntry) ledgerRow {
	return ledgerRow{
		ID:         e.ID,
		Date:       e.Date.Format(models.DateLayout),
		Account:    e.Account,
		Narration:  e.Narration,
		Reference:  e.Reference,
		Debit:      models.FormatAmount(e.Debit),
		Credit:     models.FormatAmount(e.Credit),
		Reconciled: e.Reconciled,
		BatchNo:    e.BatchNo,
		EntryType:  e.EntryType,
	}
}

type lineRow struct {
	ID               int64  `csv:"id"`
	ReconciliationID string `csv:"reconciliation_id"`
	FITID            string `csv:"fitid"`
	Date             string `csv:"date"`
	Description      string `csv:"description"`
	Amount           string `csv:"amount"`
	Source           string `csv:"source"`
	MatchedEntryID   string `csv:"matched_entry_id"`
	State            string `csv:"state"`
}

func newLineRow(l models.StatementLine) lineRow {
	row := lineRow{
		ID:               l.ID,
		ReconciliationID: l.ReconciliationID,
		FITID:            l.FITID,
		Date:             l.Date.Format(models.DateLayout),
		Description:      l.Description,
		Amount:           models.FormatAmount(l.Amount),
		Source:           string(l.Source),
		State:            string(l.State()),
	}
	if l.MatchedEntryID != nil {
		row.MatchedEntryID = strconv.FormatInt(*l.MatchedEntryID, 10)
	}
	return row
}

type matchRow struct {
	ID               int64   `csv:"id"`
	ReconciliationID string  `csv:"reconciliation_id"`
	StatementLineID  int64   `csv:"statement_line_id"`
	LedgerEntryID    int64   `csv:"ledger_entry_id"`
	Score            float64 `csv:"match_score"`
	MatchedOn        string  `csv:"matched_on"`
}

func newMatchRow(m models.MatchRecord) matchRow {
	return matchRow{
		ID:               m.ID,
		ReconciliationID: m.ReconciliationID,
		StatementLineID:  m.StatementLineID,
		LedgerEntryID:    m.LedgerEntryID,
		Score:            roundScore(m.Score),
		MatchedOn:        m.MatchedOn.Format(time.RFC3339),
	}
}

type undoRow struct {
	ID        int64  `csv:"id"`
	Kind      string `csv:"kind"`
	CreatedAt string `csv:"created_at"`
	Payload   string `csv:"payload"`
}

func newUndoRow(a models.UndoAction) undoRow {
	return undoRow{
		ID:        a.ID,
		Kind:      string(a.Kind),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
		Payload:   string(a.Payload),
	}
}

// ruleRow has the same layout as models.BankRule so it converts directly.
type ruleRow struct {
	ID      int64  `csv:"id"`
	Pattern string `csv:"pattern"`
	Action  string `csv:"action"`
	Enabled bool   `csv:"enabled"`
}

func roundScore(s float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(s, 'f', 4, 64), 64)
	return v
}

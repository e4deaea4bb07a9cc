package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/matcher"
	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/reconciler"
)

// displayAmount formats amount in the report currency, e.g. "R150.00".
func (rg *ReportGenerator) displayAmount(amount decimal.Decimal) string {
	code := strings.ToUpper(rg.config.Currency)
	currency := money.GetCurrency(code)
	if currency == nil {
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(currency.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// limit returns how many of n items to print.
func (rg *ReportGenerator) limit(n int) int {
	if rg.config.MaxItems > 0 && n > rg.config.MaxItems {
		return rg.config.MaxItems
	}
	return n
}

func (rg *ReportGenerator) more(w io.Writer, p *palette, shown, total int) {
	if shown < total {
		p.muted.Fprintf(w, "  ... and %d more\n", total-shown)
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// descWidth gives descriptions whatever the fixed columns leave over.
func (rg *ReportGenerator) descWidth(fixed int) int {
	w := rg.config.TableMaxWidth - fixed
	if w < 20 {
		w = 20
	}
	return w
}

func (rg *ReportGenerator) consoleImports(results []*reconciler.ImportResult, w io.Writer, p *palette) {
	p.header.Fprintf(w, "=== IMPORT SUMMARY ===\n")
	if len(results) == 0 {
		fmt.Fprintf(w, "No files imported\n")
		return
	}

	var parsed, imported, dups int
	for _, r := range results {
		parsed += r.Parsed
		imported += r.Imported
		dups += r.Duplicates

		mode := "imported"
		if r.StageOnly {
			mode = "staged"
		}
		fmt.Fprintf(w, "%s (%s, %s)\n", r.File, r.Format, mode)
		fmt.Fprintf(w, "  Parsed:     %d\n", r.Parsed)
		if !r.StageOnly {
			p.good.Fprintf(w, "  Imported:   %d\n", r.Imported)
			if r.Duplicates > 0 {
				p.warn.Fprintf(w, "  Duplicates: %d\n", r.Duplicates)
			} else {
				fmt.Fprintf(w, "  Duplicates: 0\n")
			}
			if r.RuleTagged > 0 {
				fmt.Fprintf(w, "  Rule tagged: %d\n", r.RuleTagged)
			}
			if r.BatchID != "" {
				p.muted.Fprintf(w, "  Batch:      %s\n", r.BatchID)
			}
		}
		for _, warning := range r.Warnings {
			p.warn.Fprintf(w, "  ! %s\n", warning)
		}
		if len(r.Preview) > 0 {
			fmt.Fprintf(w, "  Preview:\n")
			for _, tx := range r.Preview {
				fmt.Fprintf(w, "    %s  %14s  %s\n", tx.Date.Format(models.DateLayout),
					rg.displayAmount(tx.Amount), truncate(tx.Description, rg.descWidth(36)))
			}
		}
	}

	if len(results) > 1 {
		fmt.Fprintf(w, "\nTotal: %d parsed, %d imported, %d duplicates\n", parsed, imported, dups)
	}
}

func (rg *ReportGenerator) consoleProposals(proposals []models.ProposedMatch, w io.Writer, p *palette) {
	p.header.Fprintf(w, "=== PROPOSED MATCHES ===\n")
	if len(proposals) == 0 {
		fmt.Fprintf(w, "No matches proposed\n")
		return
	}

	total := decimal.Zero
	n := rg.limit(len(proposals))
	for i, m := range proposals[:n] {
		total = total.Add(m.Line.Amount)
		quality := matcher.Classify(m)
		scoreColor := p.good
		if quality == matcher.MatchFuzzy {
			scoreColor = p.warn
		}

		fmt.Fprintf(w, "%3d. line #%d  %s  %14s  %s\n", i+1, m.Line.ID,
			m.Line.Date.Format(models.DateLayout), rg.displayAmount(m.Line.Amount),
			truncate(m.Line.Description, rg.descWidth(50)))
		fmt.Fprintf(w, "     entry #%d %s  %14s  %s\n", m.Entry.ID,
			m.Entry.Date.Format(models.DateLayout), rg.displayAmount(m.Entry.Net()),
			truncate(m.Entry.Narration, rg.descWidth(50)))
		fmt.Fprintf(w, "     ")
		scoreColor.Fprintf(w, "score %.2f (%s)", m.Score, quality)
		fmt.Fprintf(w, ", %d day(s) apart\n", m.DayDifference)
	}
	rg.more(w, p, n, len(proposals))

	fmt.Fprintf(w, "\n%d proposal(s)", len(proposals))
	if n == len(proposals) {
		fmt.Fprintf(w, ", statement total %s", rg.displayAmount(total))
	}
	fmt.Fprintf(w, "\n")
}

func (rg *ReportGenerator) consoleLedger(entries []models.LedgerEntry, w io.Writer, p *palette) {
	p.header.Fprintf(w, "=== CASH BOOK ===\n")
	if len(entries) == 0 {
		fmt.Fprintf(w, "No entries\n")
		return
	}

	var debits, credits decimal.Decimal
	n := rg.limit(len(entries))
	for _, e := range entries[:n] {
		status := p.warn.Sprint("open")
		if e.Reconciled {
			status = p.good.Sprint("rec ")
		}
		fmt.Fprintf(w, "%6d  %s  %s  %14s %14s  %-12s %s\n", e.ID, e.Date.Format(models.DateLayout), status,
			rg.displayAmount(e.Debit), rg.displayAmount(e.Credit),
			truncate(e.Account, 12), truncate(e.Narration, rg.descWidth(70)))
	}
	for _, e := range entries {
		debits = debits.Add(e.Debit)
		credits = credits.Add(e.Credit)
	}
	rg.more(w, p, n, len(entries))
	fmt.Fprintf(w, "\nDebits: %s  Credits: %s  Net: %s\n",
		rg.displayAmount(debits), rg.displayAmount(credits), rg.displayAmount(debits.Sub(credits)))
}

func (rg *ReportGenerator) consoleLines(lines []models.StatementLine, w io.Writer, p *palette) {
	p.header.Fprintf(w, "=== STATEMENT LINES ===\n")
	if len(lines) == 0 {
		fmt.Fprintf(w, "No statement lines\n")
		return
	}

	unmatched := 0
	for _, l := range lines {
		if !l.IsMatched() {
			unmatched++
		}
	}

	n := rg.limit(len(lines))
	for _, l := range lines[:n] {
		state := p.warn.Sprintf("%-10s", l.State())
		if l.IsMatched() {
			state = p.good.Sprintf("%-10s", l.State())
		}
		fmt.Fprintf(w, "%6d  %s  %s  %14s  %-4s %s\n", l.ID, l.Date.Format(models.DateLayout), state,
			rg.displayAmount(l.Amount), l.Source, truncate(l.Description, rg.descWidth(50)))
	}
	rg.more(w, p, n, len(lines))
	fmt.Fprintf(w, "\n%d line(s), %d unmatched\n", len(lines), unmatched)
}

func (rg *ReportGenerator) consoleMatches(matches []models.MatchRecord, w io.Writer, p *palette) {
	p.header.Fprintf(w, "=== MATCHES ===\n")
	if len(matches) == 0 {
		fmt.Fprintf(w, "No matches recorded\n")
		return
	}

	n := rg.limit(len(matches))
	for _, m := range matches[:n] {
		fmt.Fprintf(w, "%6d  line #%-6d entry #%-6d score %.2f  %s\n", m.ID, m.StatementLineID,
			m.LedgerEntryID, m.Score, m.MatchedOn.Format("2006-01-02 15:04"))
	}
	rg.more(w, p, n, len(matches))
}

func (rg *ReportGenerator) consoleUndo(actions []models.UndoAction, w io.Writer, p *palette) {
	p.header.Fprintf(w, "=== UNDO LOG ===\n")
	if len(actions) == 0 {
		fmt.Fprintf(w, "Nothing to undo\n")
		return
	}

	n := rg.limit(len(actions))
	for i, a := range actions[:n] {
		marker := "  "
		if i == 0 {
			marker = p.warn.Sprint("> ")
		}
		fmt.Fprintf(w, "%s%6d  %-16s %s\n", marker, a.ID, a.Kind, a.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	rg.more(w, p, n, len(actions))
}

func (rg *ReportGenerator) consoleRules(rules []models.BankRule, w io.Writer, p *palette) {
	p.header.Fprintf(w, "=== BANK RULES ===\n")
	if len(rules) == 0 {
		fmt.Fprintf(w, "No bank rules\n")
		return
	}

	n := rg.limit(len(rules))
	for _, r := range rules[:n] {
		state := p.good.Sprint("on ")
		if !r.Enabled {
			state = p.muted.Sprint("off")
		}
		fmt.Fprintf(w, "%6d  %s  %-30s -> %s\n", r.ID, state, truncate(r.Pattern, 30), r.Action)
	}
	rg.more(w, p, n, len(rules))
}

// Package fixtures generates synthetic bank statements together with the
// cash book entries that should reconcile against them.
package fixtures

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
)

// Dialect selects the CSV layout written by WriteCSV.
type Dialect string

const (
	// DialectSigned writes Date,Description,Amount with ISO dates.
	DialectSigned Dialect = "signed"
	// DialectSplit writes Date,Description,Debit,Credit with DD/MM/YYYY dates.
	DialectSplit Dialect = "split"
)

// StatementRow is one generated bank statement line.
type StatementRow struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	// Matched is true when a cash book entry was generated for this row.
	Matched bool
}

// Generator creates statements where a share of the rows have a cash book
// counterpart within the default matching thresholds.
type Generator struct {
	Count      int
	StartDate  time.Time
	Days       int
	MaxAmount  decimal.Decimal
	MatchRatio float64
	Seed       uint64
	Account    string
}

// NewGenerator returns a generator for count rows in January 2025.
func NewGenerator(count int, seed uint64) *Generator {
	return &Generator{
		Count:      count,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:       28,
		MaxAmount:  decimal.NewFromInt(5000),
		MatchRatio: 0.8,
		Seed:       seed,
		Account:    "Bank",
	}
}

var payees = []string{
	"Acme Hardware", "Blue Crane Logistics", "Karoo Fresh Produce", "Table Bay Printers",
	"Highveld Electrical", "Protea Office Supplies", "Sunbird Travel", "Jacaranda Catering",
	"Baobab Consulting", "Fynbos Landscaping", "Springbok Couriers", "Umhlanga Plumbing",
}

var noise = []string{
	"Service fee", "ATM withdrawal", "Interest earned", "Card purchase",
	"Cash deposit", "Debit order", "Transfer in", "Bank charges",
}

// Generate returns the statement rows and the cash book entries for the
// matched share. Matched entries carry the same amount, a date at most one
// day away and the payee name as narration.
func (g *Generator) Generate() ([]StatementRow, []models.LedgerEntry) {
	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))
	matchCount := int(float64(g.Count) * g.MatchRatio)
	used := make(map[string]bool)

	rows := make([]StatementRow, 0, g.Count)
	entries := make([]models.LedgerEntry, 0, matchCount)

	for i := 0; i < g.Count; i++ {
		date := g.StartDate.AddDate(0, 0, rng.IntN(max(g.Days, 1)))
		ref := 1001 + i

		if i < matchCount {
			amount := g.uniqueAmount(rng, used, decimal.Zero)
			if rng.Float64() < 0.4 {
				amount = amount.Neg()
			}
			payee := payees[rng.IntN(len(payees))]
			rows = append(rows, StatementRow{
				Date:        date,
				Description: fmt.Sprintf("%s PTY INV%d", strings.ToUpper(payee), ref),
				Amount:      amount,
				Matched:     true,
			})

			entry := models.LedgerEntry{
				Date:      date.AddDate(0, 0, rng.IntN(3)-1),
				Account:   g.Account,
				Narration: fmt.Sprintf("%s inv%d", payee, ref),
				Reference: fmt.Sprintf("INV%d", ref),
				EntryType: "manual",
			}
			if amount.IsNegative() {
				entry.Credit = amount.Neg()
			} else {
				entry.Debit = amount
			}
			entries = append(entries, entry)
			continue
		}

		// Unmatched rows sit at least one unit above MaxAmount, out of reach of any tolerance.
		amount := g.uniqueAmount(rng, used, g.MaxAmount.Add(decimal.NewFromInt(1)))
		if rng.Float64() < 0.5 {
			amount = amount.Neg()
		}
		rows = append(rows, StatementRow{
			Date:        date,
			Description: fmt.Sprintf("%s %d", noise[rng.IntN(len(noise))], ref),
			Amount:      amount,
		})
	}

	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	return rows, entries
}

// uniqueAmount draws a positive two-decimal amount in (offset, offset+MaxAmount]
// that has not been used yet.
func (g *Generator) uniqueAmount(rng *rand.Rand, used map[string]bool, offset decimal.Decimal) decimal.Decimal {
	maxCents := g.MaxAmount.Shift(2).IntPart()
	if maxCents < 1 {
		maxCents = 1
	}
	for {
		cents := rng.Int64N(maxCents) + 1
		amount := decimal.New(cents, -2).Add(offset)
		key := amount.StringFixed(2)
		if !used[key] {
			used[key] = true
			return amount
		}
	}
}

type signedRow struct {
	Date        string `csv:"Date"`
	Description string `csv:"Description"`
	Amount      string `csv:"Amount"`
}

type splitRow struct {
	Date        string `csv:"Date"`
	Description string `csv:"Description"`
	Debit       string `csv:"Debit"`
	Credit      string `csv:"Credit"`
}

// WriteCSV writes rows as a bank CSV export in the given dialect. In the
// split dialect money leaving the account is a Debit column value.
func WriteCSV(w io.Writer, rows []StatementRow, dialect Dialect) error {
	switch dialect {
	case DialectSigned, "":
		out := make([]signedRow, 0, len(rows))
		for _, r := range rows {
			out = append(out, signedRow{
				Date:        r.Date.Format(models.DateLayout),
				Description: r.Description,
				Amount:      r.Amount.StringFixed(2),
			})
		}
		return gocsv.Marshal(out, w)

	case DialectSplit:
		out := make([]splitRow, 0, len(rows))
		for _, r := range rows {
			row := splitRow{Date: r.Date.Format("02/01/2006"), Description: r.Description}
			if r.Amount.IsNegative() {
				row.Debit = r.Amount.Neg().StringFixed(2)
			} else {
				row.Credit = r.Amount.StringFixed(2)
			}
			out = append(out, row)
		}
		return gocsv.Marshal(out, w)
	}
	return fmt.Errorf("unsupported dialect: %s", dialect)
}

// Package dedup drops statement rows that were already imported.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
)

// KeyMode selects which fields make two transactions the same
type KeyMode string

const (
	// KeyDateDescription compares the date and the case-folded description
	KeyDateDescription KeyMode = "date_description"
	// KeyDateDescriptionAmount also compares the signed amount
	KeyDateDescriptionAmount KeyMode = "date_description_amount"
)

// ParseKeyMode converts a configuration value into a KeyMode
func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeyDateDescription:
		return KeyDateDescription, nil
	case KeyDateDescriptionAmount:
		return KeyDateDescriptionAmount, nil
	}
	return "", fmt.Errorf("invalid dedup key '%s': must be %s or %s", s, KeyDateDescription, KeyDateDescriptionAmount)
}

// Lookup reports whether a transaction with the given key is already stored.
// amount is nil when the key mode ignores it.
type Lookup interface {
	TransactionExists(ctx context.Context, date time.Time, description string, amount *decimal.Decimal) (bool, error)
}

// Filter applies the duplicate key to batches against a Lookup
type Filter struct {
	lookup Lookup
	mode   KeyMode
}

// New creates a Filter; a nil lookup only removes in-batch repeats.
func New(lookup Lookup, mode KeyMode) *Filter {
	if mode == "" {
		mode = KeyDateDescription
	}
	return &Filter{lookup: lookup, mode: mode}
}

// Mode returns the configured key mode
func (f *Filter) Mode() KeyMode {
	return f.mode
}

// Key returns the in-batch identity of tx
func (f *Filter) Key(tx models.RawTransaction) string {
	key := models.DateOnly(tx.Date).Format(models.DateLayout) + "\x00" + models.FoldDescription(tx.Description)
	if f.mode == KeyDateDescriptionAmount {
		key += "\x00" + models.FormatAmount(tx.Amount)
	}
	return key
}

// IsDuplicate checks tx against the stored transactions
func (f *Filter) IsDuplicate(ctx context.Context, tx models.RawTransaction) (bool, error) {
	if f.lookup == nil {
		return false, nil
	}
	var amount *decimal.Decimal
	if f.mode == KeyDateDescriptionAmount {
		a := tx.Amount.Round(2)
		amount = &a
	}
	return f.lookup.TransactionExists(ctx, models.DateOnly(tx.Date), strings.TrimSpace(tx.Description), amount)
}

// Filter splits batch into accepted rows and duplicates, keeping input order.
// A row repeating an earlier row of the same batch is a duplicate.
func (f *Filter) Filter(ctx context.Context, batch []models.RawTransaction) ([]models.RawTransaction, []models.RawTransaction, error) {
	seen := make(map[string]bool, len(batch))
	accepted := make([]models.RawTransaction, 0, len(batch))
	var duplicates []models.RawTransaction

	for _, tx := range batch {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		key := f.Key(tx)
		if seen[key] {
			duplicates = append(duplicates, tx)
			continue
		}
		seen[key] = true

		dup, err := f.IsDuplicate(ctx, tx)
		if err != nil {
			return nil, nil, err
		}
		if dup {
			duplicates = append(duplicates, tx)
			continue
		}
		accepted = append(accepted, tx)
	}
	return accepted, duplicates, nil
}

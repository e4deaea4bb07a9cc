package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
)

// InsertTransaction adds a flat transaction row and returns its id
func (q *Queries) InsertTransaction(ctx context.Context, t models.Transaction) (int64, error) {
	ts := t.AuditTimestamp
	if ts.IsZero() {
		ts = q.now()
	}
	var category sql.NullInt64
	if t.CategoryID != nil {
		category = sql.NullInt64{Int64: *t.CategoryID, Valid: true}
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO transactions (date, description, description_key, amount, type, category_id, audit_user, audit_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Date.Format(models.DateLayout), t.Description, models.FoldDescription(t.Description), models.FormatAmount(t.Amount.Abs()),
		string(t.Type), category, t.AuditUser, ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, mapError("insert transaction", err)
	}
	return res.LastInsertId()
}

// TransactionExists reports whether a transaction with the same date and
// folded description (models.FoldDescription) is stored. A non-nil amount also has to match
// by magnitude and direction.
func (q *Queries) TransactionExists(ctx context.Context, date time.Time, description string, amount *decimal.Decimal) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE date = ? AND description_key = ?`
	args := []any{models.DateOnly(date).Format(models.DateLayout), models.FoldDescription(description)}
	if amount != nil {
		query += ` AND amount = ? AND type = ?`
		args = append(args, models.FormatAmount(amount.Abs()), string(models.DirectionOf(*amount)))
	}
	query += `)`

	var exists int
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, mapError("lookup transaction", err)
	}
	return exists == 1, nil
}

// CountTransactions returns the number of stored transactions
func (q *Queries) CountTransactions(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, mapError("count transactions", err)
}

// DeleteTransactions removes transaction rows
func (q *Queries) DeleteTransactions(ctx context.Context, ids []int64) error {
	return deleteByID(ctx, q.db, "transactions", ids)
}

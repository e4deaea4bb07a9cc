package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"nexledger-reconciler/internal/models"
)

// InsertFeed stages a raw bank feed row and returns its id
func (q *Queries) InsertFeed(ctx context.Context, f models.RawFeed) (int64, error) {
	importedAt := f.ImportedAt
	if importedAt.IsZero() {
		importedAt = q.now()
	}
	metadata := string(f.Metadata)
	if metadata == "" {
		metadata = "{}"
	}
	currency := f.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO raw_bank_feeds (source_file, imported_at, bank_date, amount, currency, payee, reference, metadata, posted, matched_transaction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.SourceFile, importedAt.UTC().Format(time.RFC3339), f.BankDate.Format(models.DateLayout),
		models.FormatAmount(f.Amount), currency, f.Payee, f.Reference, metadata,
		boolInt(f.Posted), nullInt(f.MatchedTransactionID),
	)
	if err != nil {
		return 0, mapError("stage raw feed", err)
	}
	return res.LastInsertId()
}

// ListFeeds returns staged rows ordered by id; unpostedOnly hides posted rows
func (q *Queries) ListFeeds(ctx context.Context, unpostedOnly bool, limit int) ([]models.RawFeed, error) {
	query := `SELECT id, source_file, imported_at, bank_date, amount, currency, payee, reference, metadata, posted, matched_transaction_id
		FROM raw_bank_feeds`
	if unpostedOnly {
		query += ` WHERE posted = 0`
	}
	query += ` ORDER BY id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError("list raw feeds", err)
	}
	defer rows.Close()

	var feeds []models.RawFeed
	for rows.Next() {
		var (
			f                            models.RawFeed
			importedAt, bankDate, amount string
			metadata                     string
			posted                       int
			matched                      sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.SourceFile, &importedAt, &bankDate, &amount, &f.Currency,
			&f.Payee, &f.Reference, &metadata, &posted, &matched); err != nil {
			return nil, mapError("scan raw feed", err)
		}
		f.ImportedAt, _ = time.Parse(time.RFC3339, importedAt)
		if f.BankDate, err = models.ParseStoredDate(bankDate); err != nil {
			return nil, mapError("scan raw feed", err)
		}
		if f.Amount, err = models.ParseStoredAmount(amount); err != nil {
			return nil, mapError("scan raw feed", err)
		}
		f.Metadata = json.RawMessage(metadata)
		f.Posted = posted != 0
		if matched.Valid {
			id := matched.Int64
			f.MatchedTransactionID = &id
		}
		feeds = append(feeds, f)
	}
	return feeds, mapError("list raw feeds", rows.Err())
}

// DeleteFeeds removes staged rows
func (q *Queries) DeleteFeeds(ctx context.Context, ids []int64) error {
	return deleteByID(ctx, q.db, "raw_bank_feeds", ids)
}

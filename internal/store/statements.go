package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"nexledger-reconciler/internal/models"
)

const lineColumns = `id, reconciliation_id, fitid, date, description, amount, source, matched_entry_id, cleared`

// LineFilter narrows ListStatementLines
type LineFilter struct {
	UnmatchedOnly    bool
	ReconciliationID string
	Limit            int
}

// InsertStatementLine adds an imported statement row and returns its id
func (q *Queries) InsertStatementLine(ctx context.Context, l models.StatementLine) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO bank_statement_lines (reconciliation_id, fitid, date, description, amount, source, matched_entry_id, cleared)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ReconciliationID, l.FITID, l.Date.Format(models.DateLayout), l.Description,
		models.FormatAmount(l.Amount), string(l.Source), nullInt(l.MatchedEntryID), boolInt(l.Cleared),
	)
	if err != nil {
		return 0, mapError("insert statement line", err)
	}
	return res.LastInsertId()
}

// GetStatementLine loads one statement line
func (q *Queries) GetStatementLine(ctx context.Context, id int64) (models.StatementLine, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+lineColumns+` FROM bank_statement_lines WHERE id = ?`, id)
	l, err := scanStatementLine(row)
	if isNoRows(err) {
		return models.StatementLine{}, notFound("get statement line", "bank_statement_lines", id)
	}
	if err != nil {
		return models.StatementLine{}, mapError("get statement line", err)
	}
	return l, nil
}

// ListStatementLines returns statement lines ordered by id
func (q *Queries) ListStatementLines(ctx context.Context, f LineFilter) ([]models.StatementLine, error) {
	var (
		where []string
		args  []any
	)
	if f.UnmatchedOnly {
		where = append(where, "matched_entry_id IS NULL")
	}
	if f.ReconciliationID != "" {
		where = append(where, "reconciliation_id = ?")
		args = append(args, f.ReconciliationID)
	}

	query := `SELECT ` + lineColumns + ` FROM bank_statement_lines`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list statement lines", err)
	}
	defer rows.Close()

	var lines []models.StatementLine
	for rows.Next() {
		l, err := scanStatementLine(rows)
		if err != nil {
			return nil, mapError("scan statement line", err)
		}
		lines = append(lines, l)
	}
	return lines, mapError("list statement lines", rows.Err())
}

// SetLineMatch points a line at a ledger entry, or clears it when entryID is nil
func (q *Queries) SetLineMatch(ctx context.Context, id int64, entryID *int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE bank_statement_lines SET matched_entry_id = ?, cleared = ? WHERE id = ?`,
		nullInt(entryID), boolInt(entryID != nil), id)
	if err != nil {
		return mapError("set statement line match", err)
	}
	return expectOne(res, "set statement line match", "bank_statement_lines", id)
}

// DeleteStatementLines removes statement lines
func (q *Queries) DeleteStatementLines(ctx context.Context, ids []int64) error {
	return deleteByID(ctx, q.db, "bank_statement_lines", ids)
}

func scanStatementLine(s rowScanner) (models.StatementLine, error) {
	var (
		l              models.StatementLine
		date, amount   string
		source         string
		matchedEntryID sql.NullInt64
		cleared        int
	)
	if err := s.Scan(&l.ID, &l.ReconciliationID, &l.FITID, &date, &l.Description, &amount,
		&source, &matchedEntryID, &cleared); err != nil {
		return l, err
	}

	var err error
	if l.Date, err = models.ParseStoredDate(date); err != nil {
		return l, err
	}
	if l.Amount, err = models.ParseStoredAmount(amount); err != nil {
		return l, err
	}
	l.Source = models.SourceFormat(source)
	if matchedEntryID.Valid {
		id := matchedEntryID.Int64
		l.MatchedEntryID = &id
	}
	l.Cleared = cleared != 0
	return l, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

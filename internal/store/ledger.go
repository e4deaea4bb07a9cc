package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"nexledger-reconciler/internal/models"
)

const ledgerColumns = `id, date, account, narration, reference, debit, credit, reconciled, batch_no, entry_type`

// LedgerFilter narrows ListLedgerEntries
type LedgerFilter struct {
	UnreconciledOnly bool
	Account          string
	Limit            int
}

// InsertLedgerEntry adds a cash book row and returns its id
func (q *Queries) InsertLedgerEntry(ctx context.Context, e models.LedgerEntry) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO cash_book (date, account, narration, reference, debit, credit, reconciled, batch_no, entry_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Date.Format(models.DateLayout), e.Account, e.Narration, e.Reference,
		models.FormatAmount(e.Debit), models.FormatAmount(e.Credit), boolInt(e.Reconciled),
		e.BatchNo, e.EntryType,
	)
	if err != nil {
		return 0, mapError("insert cash book entry", err)
	}
	return res.LastInsertId()
}

// UpdateLedgerEntry overwrites every column of the row with e.ID
func (q *Queries) UpdateLedgerEntry(ctx context.Context, e models.LedgerEntry) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE cash_book
		SET date = ?, account = ?, narration = ?, reference = ?, debit = ?, credit = ?,
		    reconciled = ?, batch_no = ?, entry_type = ?
		WHERE id = ?`,
		e.Date.Format(models.DateLayout), e.Account, e.Narration, e.Reference,
		models.FormatAmount(e.Debit), models.FormatAmount(e.Credit), boolInt(e.Reconciled),
		e.BatchNo, e.EntryType, e.ID,
	)
	if err != nil {
		return mapError("update cash book entry", err)
	}
	return expectOne(res, "update cash book entry", "cash_book", e.ID)
}

// GetLedgerEntry loads one cash book row
func (q *Queries) GetLedgerEntry(ctx context.Context, id int64) (models.LedgerEntry, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM cash_book WHERE id = ?`, id)
	e, err := scanLedgerEntry(row)
	if isNoRows(err) {
		return models.LedgerEntry{}, notFound("get cash book entry", "cash_book", id)
	}
	if err != nil {
		return models.LedgerEntry{}, mapError("get cash book entry", err)
	}
	return e, nil
}

// ListLedgerEntries returns cash book rows ordered by date then id
func (q *Queries) ListLedgerEntries(ctx context.Context, f LedgerFilter) ([]models.LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.UnreconciledOnly {
		where = append(where, "reconciled = 0")
	}
	if f.Account != "" {
		where = append(where, "account = ?")
		args = append(args, f.Account)
	}

	query := `SELECT ` + ledgerColumns + ` FROM cash_book`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list cash book", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, mapError("scan cash book entry", err)
		}
		entries = append(entries, e)
	}
	return entries, mapError("list cash book", rows.Err())
}

// SetReconciled flips the reconciled flag of a cash book row
func (q *Queries) SetReconciled(ctx context.Context, id int64, reconciled bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE cash_book SET reconciled = ? WHERE id = ?`, boolInt(reconciled), id)
	if err != nil {
		return mapError("set reconciled", err)
	}
	return expectOne(res, "set reconciled", "cash_book", id)
}

// DeleteLedgerEntries removes cash book rows
func (q *Queries) DeleteLedgerEntries(ctx context.Context, ids []int64) error {
	return deleteByID(ctx, q.db, "cash_book", ids)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(s rowScanner) (models.LedgerEntry, error) {
	var (
		e                   models.LedgerEntry
		date, debit, credit string
		reconciled          int
	)
	if err := s.Scan(&e.ID, &date, &e.Account, &e.Narration, &e.Reference, &debit, &credit,
		&reconciled, &e.BatchNo, &e.EntryType); err != nil {
		return e, err
	}

	var err error
	if e.Date, err = models.ParseStoredDate(date); err != nil {
		return e, err
	}
	if e.Debit, err = models.ParseStoredAmount(debit); err != nil {
		return e, err
	}
	if e.Credit, err = models.ParseStoredAmount(credit); err != nil {
		return e, err
	}
	e.Reconciled = reconciled != 0
	return e, nil
}

func expectOne(res sql.Result, operation, table string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(operation, err)
	}
	if n == 0 {
		return notFound(operation, table, id)
	}
	return nil
}

// deleteByID removes rows by primary key; table is always a constant
func deleteByID(ctx context.Context, db querier, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inClause(ids)
	if _, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return mapError("delete from "+table, err)
	}
	return nil
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

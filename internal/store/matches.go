package store

import (
	"context"
	"fmt"
	"time"

	"nexledger-reconciler/internal/models"
)

// InsertMatch records a confirmed match and returns its id
func (q *Queries) InsertMatch(ctx context.Context, m models.MatchRecord) (int64, error) {
	matchedOn := m.MatchedOn
	if matchedOn.IsZero() {
		matchedOn = q.now()
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO reconciliation_matches (reconciliation_id, statement_line_id, ledger_entry_id, match_score, matched_on)
		VALUES (?, ?, ?, ?, ?)`,
		m.ReconciliationID, m.StatementLineID, m.LedgerEntryID, m.Score, matchedOn.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, mapError("insert match", err)
	}
	return res.LastInsertId()
}

// ListMatches returns match records ordered by id; limit <= 0 means all
func (q *Queries) ListMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	query := `SELECT id, reconciliation_id, statement_line_id, ledger_entry_id, match_score, matched_on
		FROM reconciliation_matches ORDER BY id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError("list matches", err)
	}
	defer rows.Close()

	var matches []models.MatchRecord
	for rows.Next() {
		var (
			m         models.MatchRecord
			matchedOn string
		)
		if err := rows.Scan(&m.ID, &m.ReconciliationID, &m.StatementLineID, &m.LedgerEntryID, &m.Score, &matchedOn); err != nil {
			return nil, mapError("scan match", err)
		}
		m.MatchedOn, _ = time.Parse(time.RFC3339, matchedOn)
		matches = append(matches, m)
	}
	return matches, mapError("list matches", rows.Err())
}

// DeleteMatches removes match records
func (q *Queries) DeleteMatches(ctx context.Context, ids []int64) error {
	return deleteByID(ctx, q.db, "reconciliation_matches", ids)
}

// CountMatchesForLine returns how many records reference a statement line
func (q *Queries) CountMatchesForLine(ctx context.Context, lineID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconciliation_matches WHERE statement_line_id = ?`, lineID).Scan(&n)
	return n, mapError("count matches", err)
}

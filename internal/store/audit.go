package store

import (
	"context"
	"fmt"
	"time"

	"nexledger-reconciler/internal/models"
)

// AppendAudit writes one audit log line
func (q *Queries) AppendAudit(ctx context.Context, user, action string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO audit_log (timestamp, user, action) VALUES (?, ?, ?)`,
		q.timestamp(), user, action)
	return mapError("append audit", err)
}

// ListAudit returns the newest audit lines first
func (q *Queries) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	query := `SELECT id, timestamp, user, action FROM audit_log ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError("list audit", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e  models.AuditEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &ts, &e.User, &e.Action); err != nil {
			return nil, mapError("scan audit", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		entries = append(entries, e)
	}
	return entries, mapError("list audit", rows.Err())
}

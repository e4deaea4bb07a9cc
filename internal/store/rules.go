package store

import (
	"context"

	"nexledger-reconciler/internal/models"
)

// InsertRule adds a bank rule and returns its id
func (q *Queries) InsertRule(ctx context.Context, r models.BankRule) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO bank_rules (pattern, action, enabled) VALUES (?, ?, ?)`,
		r.Pattern, r.Action, boolInt(r.Enabled))
	if err != nil {
		return 0, mapError("insert rule", err)
	}
	return res.LastInsertId()
}

// ListRules returns all bank rules ordered by id
func (q *Queries) ListRules(ctx context.Context) ([]models.BankRule, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, pattern, action, enabled FROM bank_rules ORDER BY id ASC`)
	if err != nil {
		return nil, mapError("list rules", err)
	}
	defer rows.Close()

	var rules []models.BankRule
	for rows.Next() {
		var (
			r       models.BankRule
			enabled int
		)
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Action, &enabled); err != nil {
			return nil, mapError("scan rule", err)
		}
		r.Enabled = enabled != 0
		rules = append(rules, r)
	}
	return rules, mapError("list rules", rows.Err())
}

// SetRuleEnabled toggles a bank rule
func (q *Queries) SetRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE bank_rules SET enabled = ? WHERE id = ?`, boolInt(enabled), id)
	if err != nil {
		return mapError("set rule enabled", err)
	}
	return expectOne(res, "set rule enabled", "bank_rules", id)
}

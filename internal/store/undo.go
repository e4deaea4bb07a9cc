package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nexledger-reconciler/internal/models"
)

// PushUndo appends a command log entry. With maxDepth > 0 the oldest
// entries beyond that depth are trimmed.
func (q *Queries) PushUndo(ctx context.Context, kind models.UndoKind, payload any, maxDepth int) (int64, error) {
	if !kind.IsValid() {
		return 0, fmt.Errorf("unknown undo kind %q", kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", kind, err)
	}

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO bank_undo (action, payload, created_at) VALUES (?, ?, ?)`,
		string(kind), string(data), q.timestamp())
	if err != nil {
		return 0, mapError("push undo", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, mapError("push undo", err)
	}

	if maxDepth > 0 {
		if _, err := q.db.ExecContext(ctx,
			`DELETE FROM bank_undo WHERE id NOT IN (SELECT id FROM bank_undo ORDER BY id DESC LIMIT ?)`,
			maxDepth); err != nil {
			return 0, mapError("trim undo log", err)
		}
	}
	return id, nil
}

// PeekUndo returns the most recent entry without removing it
func (q *Queries) PeekUndo(ctx context.Context) (*models.UndoAction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT id, action, payload, created_at FROM bank_undo ORDER BY id DESC LIMIT 1`)
	u, err := scanUndo(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("peek undo", err)
	}
	return &u, nil
}

// PopUndo removes and returns the most recent entry; nil when the log is empty
func (q *Queries) PopUndo(ctx context.Context) (*models.UndoAction, error) {
	u, err := q.PeekUndo(ctx)
	if err != nil || u == nil {
		return u, err
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM bank_undo WHERE id = ?`, u.ID); err != nil {
		return nil, mapError("pop undo", err)
	}
	return u, nil
}

// ListUndo returns the newest entries first
func (q *Queries) ListUndo(ctx context.Context, limit int) ([]models.UndoAction, error) {
	query := `SELECT id, action, payload, created_at FROM bank_undo ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError("list undo", err)
	}
	defer rows.Close()

	var actions []models.UndoAction
	for rows.Next() {
		u, err := scanUndo(rows)
		if err != nil {
			return nil, mapError("scan undo", err)
		}
		actions = append(actions, u)
	}
	return actions, mapError("list undo", rows.Err())
}

func scanUndo(s rowScanner) (models.UndoAction, error) {
	var (
		u                        models.UndoAction
		kind, payload, createdAt string
	)
	if err := s.Scan(&u.ID, &kind, &payload, &createdAt); err != nil {
		return u, err
	}
	u.Kind = models.UndoKind(kind)
	u.Payload = json.RawMessage(payload)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return u, nil
}

package reconciler

import (
	"context"
	"fmt"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/store"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

// matchedPair is one confirmed line/entry pair and its match record
type matchedPair struct {
	MatchID int64 `json:"match_id"`
	LineID  int64 `json:"statement_line_id"`
	EntryID int64 `json:"ledger_entry_id"`
}

// matchUndo is the payload of confirm_matches and manual_match
type matchUndo struct {
	BatchID string        `json:"batch_id"`
	Pairs   []matchedPair `json:"pairs"`
}

// importBatchUndo is the payload of import_batch
type importBatchUndo struct {
	BatchID        string  `json:"batch_id"`
	File           string  `json:"file"`
	LineIDs        []int64 `json:"statement_line_ids"`
	TransactionIDs []int64 `json:"transaction_ids"`
	FeedIDs        []int64 `json:"feed_ids"`
}

// insertCashbookUndo is the payload of insert_cashbook
type insertCashbookUndo struct {
	EntryIDs []int64 `json:"entry_ids"`
}

// editCashbookUndo is the payload of edit_cashbook
type editCashbookUndo struct {
	Before models.LedgerEntry `json:"before"`
}

// UndoLast pops the newest command log entry and reverses it in one
// transaction. It returns nil when there is nothing to undo.
func (s *Service) UndoLast(ctx context.Context) (*models.UndoAction, error) {
	var action *models.UndoAction
	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		var err error
		action, err = q.PopUndo(ctx)
		if err != nil || action == nil {
			return err
		}
		if err := s.reverse(ctx, q, action); err != nil {
			return err
		}
		return q.AppendAudit(ctx, s.config.User, fmt.Sprintf("Undid %s (log entry %d)", action.Kind, action.ID))
	})
	if err != nil {
		return nil, err
	}

	if action != nil {
		s.logger.WithFields(logger.Fields{
			"kind":    action.Kind,
			"undo_id": action.ID,
		}).Info("Action undone")
	}
	return action, nil
}

func (s *Service) reverse(ctx context.Context, q *store.Queries, action *models.UndoAction) error {
	switch action.Kind {
	case models.UndoConfirmMatches, models.UndoManualMatch:
		var p matchUndo
		if err := action.Decode(&p); err != nil {
			return undoPayloadError(action, err)
		}
		return s.unlinkPairs(ctx, q, p.Pairs)

	case models.UndoImportBatch:
		var p importBatchUndo
		if err := action.Decode(&p); err != nil {
			return undoPayloadError(action, err)
		}
		return s.removeImport(ctx, q, p)

	case models.UndoInsertCashbook:
		var p insertCashbookUndo
		if err := action.Decode(&p); err != nil {
			return undoPayloadError(action, err)
		}
		for _, id := range p.EntryIDs {
			entry, err := q.GetLedgerEntry(ctx, id)
			if err != nil {
				return err
			}
			if entry.Reconciled {
				return errors.ReconciliationError(errors.CodeDataInconsistent, "undo insert_cashbook",
					fmt.Errorf("cash book entry %d has been reconciled since it was added", id)).
					WithSuggestion("Undo the match first")
			}
		}
		return q.DeleteLedgerEntries(ctx, p.EntryIDs)

	case models.UndoEditCashbook:
		var p editCashbookUndo
		if err := action.Decode(&p); err != nil {
			return undoPayloadError(action, err)
		}
		current, err := q.GetLedgerEntry(ctx, p.Before.ID)
		if err != nil {
			return err
		}
		p.Before.Reconciled = current.Reconciled
		return q.UpdateLedgerEntry(ctx, p.Before)
	}

	return errors.ReconciliationError(errors.CodeDataInconsistent, "undo",
		fmt.Errorf("unknown undo action %q", action.Kind))
}

// unlinkPairs clears both sides of each pair and removes the match records
func (s *Service) unlinkPairs(ctx context.Context, q *store.Queries, pairs []matchedPair) error {
	matchIDs := make([]int64, 0, len(pairs))
	for _, pair := range pairs {
		line, err := q.GetStatementLine(ctx, pair.LineID)
		if err != nil {
			return err
		}
		if line.MatchedEntryID == nil || *line.MatchedEntryID != pair.EntryID {
			return errors.ReconciliationError(errors.CodeDataInconsistent, "undo match",
				fmt.Errorf("statement line %d is no longer matched to entry %d", pair.LineID, pair.EntryID))
		}
		if err := q.SetLineMatch(ctx, pair.LineID, nil); err != nil {
			return err
		}
		if err := q.SetReconciled(ctx, pair.EntryID, false); err != nil {
			return err
		}
		matchIDs = append(matchIDs, pair.MatchID)
	}
	return q.DeleteMatches(ctx, matchIDs)
}

// removeImport deletes every row an import batch created. Lines that were
// matched since have to be unmatched first.
func (s *Service) removeImport(ctx context.Context, q *store.Queries, p importBatchUndo) error {
	for _, id := range p.LineIDs {
		n, err := q.CountMatchesForLine(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.ReconciliationError(errors.CodeDataInconsistent, "undo import_batch",
				fmt.Errorf("statement line %d of batch %s has been matched", id, p.BatchID)).
				WithSuggestion("Undo the matches of this batch first")
		}
	}
	if err := q.DeleteStatementLines(ctx, p.LineIDs); err != nil {
		return err
	}
	if err := q.DeleteFeeds(ctx, p.FeedIDs); err != nil {
		return err
	}
	return q.DeleteTransactions(ctx, p.TransactionIDs)
}

func undoPayloadError(action *models.UndoAction, err error) error {
	return errors.ReconciliationError(errors.CodeDataInconsistent, "undo "+string(action.Kind), err).
		WithContext("undo_id", action.ID)
}

package reconciler

import (
	"context"
	"fmt"
	"strings"

	"nexledger-reconciler/internal/matcher"
	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/store"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

// AutoMatch proposes ledger entries for every unmatched statement line.
// An empty result is not an error.
func (s *Service) AutoMatch(ctx context.Context) ([]models.ProposedMatch, error) {
	lines, err := s.store.ListStatementLines(ctx, store.LineFilter{UnmatchedOnly: true})
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListLedgerEntries(ctx, store.LedgerFilter{UnreconciledOnly: true})
	if err != nil {
		return nil, err
	}

	engine := matcher.NewMatchingEngine(s.config.Matching)
	if err := engine.ValidateConfiguration(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", s.config.Matching.String(), err)
	}
	engine.LoadLedger(entries)
	proposals := engine.AutoMatch(lines)

	summary := matcher.Summarize(lines, proposals)
	stats := engine.GetStats()
	s.logger.WithFields(logger.Fields{
		"lines":          len(lines),
		"entries":        len(entries),
		"unique_amounts": stats.UniqueAmounts,
		"proposals":      len(proposals),
		"exact":          summary.ExactMatches,
		"close":          summary.CloseMatches,
		"fuzzy":          summary.FuzzyMatches,
		"config":         s.config.Matching.String(),
	}).Info("Auto-match completed")
	return proposals, nil
}

// ConfirmMatches persists a batch of proposals atomically. Each pair is
// re-checked; if any line is already matched or any entry already
// reconciled the whole batch is rolled back.
func (s *Service) ConfirmMatches(ctx context.Context, proposals []models.ProposedMatch) (int, error) {
	if len(proposals) == 0 {
		return 0, nil
	}

	undo := matchUndo{BatchID: s.newID()}
	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		for _, p := range proposals {
			pair, err := s.linkPair(ctx, q, p.Line.ID, p.Entry.ID, p.Score, "confirm matches")
			if err != nil {
				return err
			}
			undo.Pairs = append(undo.Pairs, pair)
		}
		if err := q.AppendAudit(ctx, s.config.User,
			fmt.Sprintf("Confirmed %d bank matches (batch %s)", len(proposals), undo.BatchID)); err != nil {
			return err
		}
		_, err := q.PushUndo(ctx, models.UndoConfirmMatches, undo, s.config.MaxUndoDepth)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logger.Fields{
		"batch_id":  undo.BatchID,
		"confirmed": len(undo.Pairs),
	}).Info("Matches confirmed")
	return len(undo.Pairs), nil
}

// MatchManual pairs one statement line with one ledger entry chosen by the user
func (s *Service) MatchManual(ctx context.Context, lineID, entryID int64) (*models.MatchRecord, error) {
	var record *models.MatchRecord
	undo := matchUndo{BatchID: s.newID()}

	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		line, err := q.GetStatementLine(ctx, lineID)
		if err != nil {
			return err
		}
		entry, err := q.GetLedgerEntry(ctx, entryID)
		if err != nil {
			return err
		}
		score := matcher.Similarity(line.Description, entry.Narration)

		pair, err := s.linkPair(ctx, q, lineID, entryID, score, "manual match")
		if err != nil {
			return err
		}
		undo.Pairs = append(undo.Pairs, pair)
		record = &models.MatchRecord{
			ID:               pair.MatchID,
			ReconciliationID: line.ReconciliationID,
			StatementLineID:  lineID,
			LedgerEntryID:    entryID,
			Score:            score,
			MatchedOn:        s.now(),
		}

		if !entry.Net().Equal(line.Amount) {
			s.logger.WithFields(logger.Fields{
				"line_amount": models.FormatAmount(line.Amount),
				"entry_net":   models.FormatAmount(entry.Net()),
			}).Warn("Manual match amounts differ")
		}

		if err := q.AppendAudit(ctx, s.config.User,
			fmt.Sprintf("Manually matched statement line %d to cash book entry %d", lineID, entryID)); err != nil {
			return err
		}
		_, err = q.PushUndo(ctx, models.UndoManualMatch, undo, s.config.MaxUndoDepth)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// linkPair checks both sides are still open, records the match and flips
// the line and the entry to reconciled.
func (s *Service) linkPair(ctx context.Context, q *store.Queries, lineID, entryID int64, score float64, operation string) (matchedPair, error) {
	line, err := q.GetStatementLine(ctx, lineID)
	if err != nil {
		return matchedPair{}, err
	}
	if line.IsMatched() {
		return matchedPair{}, errors.ReconciliationError(errors.CodeDataInconsistent, operation,
			fmt.Errorf("statement line %d is already matched to entry %d", lineID, *line.MatchedEntryID)).
			WithContext("statement_line_id", lineID)
	}
	entry, err := q.GetLedgerEntry(ctx, entryID)
	if err != nil {
		return matchedPair{}, err
	}
	if entry.Reconciled {
		return matchedPair{}, errors.ReconciliationError(errors.CodeDataInconsistent, operation,
			fmt.Errorf("cash book entry %d is already reconciled", entryID)).
			WithContext("ledger_entry_id", entryID)
	}

	matchID, err := q.InsertMatch(ctx, models.MatchRecord{
		ReconciliationID: line.ReconciliationID,
		StatementLineID:  lineID,
		LedgerEntryID:    entryID,
		Score:            score,
	})
	if err != nil {
		return matchedPair{}, err
	}
	if err := q.SetLineMatch(ctx, lineID, &entryID); err != nil {
		return matchedPair{}, err
	}
	if err := q.SetReconciled(ctx, entryID, true); err != nil {
		return matchedPair{}, err
	}
	return matchedPair{MatchID: matchID, LineID: lineID, EntryID: entryID}, nil
}

// AddLedgerEntry writes a cash book entry. Irregular debit/credit
// combinations are accepted and returned as warnings.
func (s *Service) AddLedgerEntry(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, []string, error) {
	if err := entry.Validate(); err != nil {
		return entry, nil, errors.ValidationError(errors.CodeInvalidAmount, "cash_book", entry.String(), err)
	}
	entry.Date = models.DateOnly(entry.Date)
	entry.Reconciled = false
	warnings := entry.Warnings()

	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		id, err := q.InsertLedgerEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		if err := q.AppendAudit(ctx, s.config.User, fmt.Sprintf("Cash book entry %d added", id)); err != nil {
			return err
		}
		_, err = q.PushUndo(ctx, models.UndoInsertCashbook, insertCashbookUndo{EntryIDs: []int64{id}}, s.config.MaxUndoDepth)
		return err
	})
	if err != nil {
		return entry, nil, err
	}
	for _, w := range warnings {
		s.logger.WithField("entry_id", entry.ID).Warn(w)
	}
	return entry, warnings, nil
}

// EditLedgerEntry overwrites an unreconciled cash book entry. The previous
// version is kept on the command log.
func (s *Service) EditLedgerEntry(ctx context.Context, entry models.LedgerEntry) ([]string, error) {
	if err := entry.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "cash_book", entry.String(), err)
	}
	entry.Date = models.DateOnly(entry.Date)

	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		before, err := q.GetLedgerEntry(ctx, entry.ID)
		if err != nil {
			return err
		}
		if before.Reconciled {
			return errors.ReconciliationError(errors.CodeDataInconsistent, "edit cash book",
				fmt.Errorf("cash book entry %d is reconciled", entry.ID)).
				WithSuggestion("Undo the match before editing the entry")
		}
		entry.Reconciled = before.Reconciled
		if err := q.UpdateLedgerEntry(ctx, entry); err != nil {
			return err
		}
		if err := q.AppendAudit(ctx, s.config.User, fmt.Sprintf("Cash book entry %d edited", entry.ID)); err != nil {
			return err
		}
		_, err = q.PushUndo(ctx, models.UndoEditCashbook, editCashbookUndo{Before: before}, s.config.MaxUndoDepth)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry.Warnings(), nil
}

// PostStatementLines creates one cash book entry per statement line in
// account: positive amounts become debits, negative amounts credits.
func (s *Service) PostStatementLines(ctx context.Context, account string, lineIDs []int64) ([]models.LedgerEntry, error) {
	if strings.TrimSpace(account) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "account", account, nil)
	}
	if len(lineIDs) == 0 {
		return nil, nil
	}

	var posted []models.LedgerEntry
	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		undo := insertCashbookUndo{}
		for _, id := range lineIDs {
			line, err := q.GetStatementLine(ctx, id)
			if err != nil {
				return err
			}
			entry := models.LedgerEntry{
				Date:      line.Date,
				Account:   account,
				Narration: line.Description,
				Reference: line.FITID,
				BatchNo:   line.ReconciliationID,
				EntryType: "bank_import",
			}
			if line.Amount.IsNegative() {
				entry.Credit = line.Amount.Neg()
			} else {
				entry.Debit = line.Amount
			}
			if entry.ID, err = q.InsertLedgerEntry(ctx, entry); err != nil {
				return err
			}
			posted = append(posted, entry)
			undo.EntryIDs = append(undo.EntryIDs, entry.ID)
		}
		if err := q.AppendAudit(ctx, s.config.User,
			fmt.Sprintf("Posted %d statement lines to cash book account %s", len(lineIDs), account)); err != nil {
			return err
		}
		_, err := q.PushUndo(ctx, models.UndoInsertCashbook, undo, s.config.MaxUndoDepth)
		return err
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

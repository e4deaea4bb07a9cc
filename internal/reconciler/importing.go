package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"nexledger-reconciler/internal/dedup"
	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/parsers"
	"nexledger-reconciler/internal/store"
	"nexledger-reconciler/pkg/logger"
)

// ImportResult describes one imported statement file
type ImportResult struct {
	File       string                  `json:"file"`
	Format     models.SourceFormat     `json:"format"`
	BatchID    string                  `json:"batch_id"`
	Parsed     int                     `json:"parsed"`
	Imported   int                     `json:"imported"`
	Duplicates int                     `json:"duplicates"`
	RuleTagged int                     `json:"rule_tagged"`
	StageOnly  bool                    `json:"stage_only,omitempty"`
	Warnings   []string                `json:"warnings,omitempty"`
	Lines      []models.StatementLine  `json:"lines,omitempty"`
	Preview    []models.RawTransaction `json:"preview,omitempty"`
	Duration   time.Duration           `json:"duration"`
}

// feedMetadata is stored as JSON on each staged row
type feedMetadata struct {
	FITID      string `json:"fitid,omitempty"`
	Format     string `json:"format"`
	Line       int    `json:"line,omitempty"`
	RuleAction string `json:"rule_action,omitempty"`
	BatchID    string `json:"batch_id,omitempty"`
}

func (s *Service) parse(ctx context.Context, path string) (*parsers.Result, error) {
	result, err := s.registry.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	engine, err := s.rulesEngine(ctx)
	if err != nil {
		return nil, err
	}
	engine.Apply(result.Transactions)
	return result, nil
}

func feedFor(tx models.RawTransaction, batchID string, importedAt time.Time, posted bool, txID *int64) models.RawFeed {
	meta, _ := json.Marshal(feedMetadata{
		FITID:      tx.FITID,
		Format:     string(tx.SourceFormat),
		Line:       tx.Line,
		RuleAction: tx.RuleAction,
		BatchID:    batchID,
	})
	return models.RawFeed{
		SourceFile:           filepath.Base(tx.SourceFile),
		ImportedAt:           importedAt,
		BankDate:             models.DateOnly(tx.Date),
		Amount:               tx.Amount,
		Currency:             tx.Currency,
		Payee:                tx.Description,
		Reference:            tx.Reference,
		Metadata:             meta,
		Posted:               posted,
		MatchedTransactionID: txID,
	}
}

// StageRaw parses path and stages its rows in raw_bank_feeds without posting
// them. It returns the number of staged rows and a short preview.
func (s *Service) StageRaw(ctx context.Context, path string) (int, []models.RawTransaction, error) {
	result, err := s.parse(ctx, path)
	if err != nil {
		return 0, nil, err
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(q *store.Queries) error {
		for _, tx := range result.Transactions {
			if _, err := q.InsertFeed(ctx, feedFor(tx, "", now, false, nil)); err != nil {
				return err
			}
		}
		return q.AppendAudit(ctx, s.config.User,
			fmt.Sprintf("Staged %d raw bank rows from %s", len(result.Transactions), filepath.Base(path)))
	})
	if err != nil {
		return 0, nil, err
	}

	preview := result.Transactions
	if n := s.config.PreviewRows; n > 0 && len(preview) > n {
		preview = preview[:n]
	}
	s.logger.WithFields(logger.Fields{
		"file":   path,
		"staged": len(result.Transactions),
	}).Info("Statement staged")
	return len(result.Transactions), preview, nil
}

// Import parses path, drops duplicates and persists the remaining rows as
// statement lines in one transaction. Re-importing a file adds nothing.
func (s *Service) Import(ctx context.Context, path string) (*ImportResult, error) {
	start := s.now()
	result, err := s.parse(ctx, path)
	if err != nil {
		return nil, err
	}

	tagged := 0
	for _, tx := range result.Transactions {
		if tx.RuleAction != "" {
			tagged++
		}
	}

	out := &ImportResult{
		File:       path,
		Format:     result.Format,
		BatchID:    s.newID(),
		Parsed:     len(result.Transactions),
		RuleTagged: tagged,
	}
	if result.Stats != nil {
		out.Warnings = result.Stats.Warnings
	}

	// The duplicate lookup shares the write transaction, so a concurrent
	// import of the same rows waits for this one and then sees them.
	undo := importBatchUndo{BatchID: out.BatchID, File: filepath.Base(path)}
	var accepted []models.RawTransaction
	err = s.store.WithTx(ctx, func(q *store.Queries) error {
		var duplicates []models.RawTransaction
		var err error
		accepted, duplicates, err = dedup.New(q, s.config.DedupKey).Filter(ctx, result.Transactions)
		if err != nil {
			return err
		}
		out.Duplicates = len(duplicates)
		if len(accepted) == 0 {
			return nil
		}

		for _, raw := range accepted {
			txID, err := q.InsertTransaction(ctx, models.TransactionFromRaw(raw, s.config.User, start))
			if err != nil {
				return err
			}
			feedID, err := q.InsertFeed(ctx, feedFor(raw, out.BatchID, start, true, &txID))
			if err != nil {
				return err
			}
			line := models.StatementLine{
				ReconciliationID: out.BatchID,
				FITID:            raw.FITID,
				Date:             models.DateOnly(raw.Date),
				Description:      raw.Description,
				Amount:           raw.Amount,
				Source:           raw.SourceFormat,
			}
			if line.ID, err = q.InsertStatementLine(ctx, line); err != nil {
				return err
			}
			out.Lines = append(out.Lines, line)
			undo.TransactionIDs = append(undo.TransactionIDs, txID)
			undo.FeedIDs = append(undo.FeedIDs, feedID)
			undo.LineIDs = append(undo.LineIDs, line.ID)
		}

		if err := q.AppendAudit(ctx, s.config.User,
			fmt.Sprintf("Imported %d bank lines from %s (batch %s)", len(accepted), filepath.Base(path), out.BatchID)); err != nil {
			return err
		}
		_, err = q.PushUndo(ctx, models.UndoImportBatch, undo, s.config.MaxUndoDepth)
		return err
	})
	if err != nil {
		return nil, err
	}

	out.Duration = s.now().Sub(start)
	if len(accepted) == 0 {
		s.logger.WithFields(logger.Fields{
			"file":       path,
			"duplicates": out.Duplicates,
		}).Info("Nothing new to import")
		return out, nil
	}

	out.Imported = len(accepted)
	s.logger.WithFields(logger.Fields{
		"file":       path,
		"batch_id":   out.BatchID,
		"imported":   out.Imported,
		"duplicates": out.Duplicates,
		"tagged":     out.RuleTagged,
	}).Info("Statement imported")
	return out, nil
}

// ImportFiles imports each file in turn. A failing file does not stop the
// others; the failures are combined into the returned error.
func (s *Service) ImportFiles(ctx context.Context, paths []string, stageOnly bool) ([]*ImportResult, error) {
	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:  "import",
		TotalFiles: len(paths),
		Logger:     s.logger,
	})

	var (
		results []*ImportResult
		errs    error
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		var (
			res *ImportResult
			err error
		)
		if stageOnly {
			var staged int
			var preview []models.RawTransaction
			staged, preview, err = s.StageRaw(ctx, path)
			if err == nil {
				res = &ImportResult{File: path, Parsed: staged, StageOnly: true, Preview: preview}
				if format, derr := s.registry.Detect(path); derr == nil {
					res.Format = format
				}
			}
		} else {
			res, err = s.Import(ctx, path)
		}
		if err != nil {
			s.logger.WithError(err).WithField("file", path).Error("Import failed")
			errs = multierr.Append(errs, err)
			progress.FileDone(path, 0)
			continue
		}
		results = append(results, res)
		progress.FileDone(path, res.Parsed)
	}

	if errs != nil {
		progress.CompleteWithError(errs)
	} else {
		progress.Complete()
	}
	return results, errs
}

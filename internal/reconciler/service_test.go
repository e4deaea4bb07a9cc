package reconciler

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexledger-reconciler/internal/company"
	"nexledger-reconciler/internal/dedup"
	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/normalizer"
	"nexledger-reconciler/internal/parsers"
	"nexledger-reconciler/internal/store"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

const januaryCSV = "Date,Description,Amount\n" +
	"2025-01-10,ABC SUPPLIES PTY,150.00\n" +
	"2025-01-11,Monthly service fee,-35.00\n" +
	"2025-01-14,Client deposit,1200.00\n"

type fixture struct {
	svc   *Service
	store *store.Store
	fs    afero.Fs
	ctx   context.Context
}

func newFixture(t *testing.T, parseConfig *parsers.ParseConfig, config *Config) *fixture {
	t.Helper()
	log := logger.NewWithWriter(io.Discard, logger.ErrorLevel, logger.TextFormat)
	ctx := context.Background()

	c := company.Context{ID: "acme", Name: "Acme", DBPath: filepath.Join(t.TempDir(), "acme.db"), Currency: "ZAR"}
	st, err := store.Open(ctx, c, store.Options{Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fs := afero.NewMemMapFs()
	svc, err := NewService(st, parsers.NewRegistry(fs, parseConfig, log), config, log)
	require.NoError(t, err)
	return &fixture{svc: svc, store: st, fs: fs, ctx: ctx}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, name, []byte(content), 0o644))
	return name
}

func (f *fixture) addEntry(t *testing.T, day int, net, narration string) models.LedgerEntry {
	t.Helper()
	e := models.LedgerEntry{Date: time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC), Account: "Bank", Narration: narration}
	if d := decimal.RequireFromString(net); d.IsNegative() {
		e.Credit = d.Neg()
	} else {
		e.Debit = d
	}
	added, _, err := f.svc.AddLedgerEntry(f.ctx, e)
	require.NoError(t, err)
	return added
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.DedupKey = "fitid"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxUndoDepth = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.User = " "
	assert.Error(t, cfg.Validate())
}

func TestImportTwiceAddsNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	path := f.write(t, "january.csv", januaryCSV)

	first, err := f.svc.Import(f.ctx, path)
	require.NoError(t, err)
	assert.Equal(t, models.FormatCSV, first.Format)
	assert.Equal(t, 3, first.Parsed)
	assert.Equal(t, 3, first.Imported)
	assert.Equal(t, 0, first.Duplicates)
	assert.NotEmpty(t, first.BatchID)
	require.Len(t, first.Lines, 3)

	second, err := f.svc.Import(f.ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 3, second.Duplicates)

	lines, err := f.svc.ListStatementLines(f.ctx, store.LineFilter{})
	require.NoError(t, err)
	assert.Len(t, lines, 3)

	n, err := f.store.CountTransactions(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	income := decimal.RequireFromString("1200")
	exists, err := f.store.TransactionExists(f.ctx, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), "client deposit", &income)
	require.NoError(t, err)
	assert.True(t, exists, "positive amount stored as Income")
}

func TestConcurrentImportsOfSameFile(t *testing.T) {
	f := newFixture(t, nil, nil)
	path := f.write(t, "january.csv", januaryCSV)

	// A second connection pool on the same file, as a CLI import racing the watcher would have.
	log := logger.NewWithWriter(io.Discard, logger.ErrorLevel, logger.TextFormat)
	other, err := store.Open(f.ctx, f.store.Company(), store.Options{Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { other.Close() })
	otherSvc, err := NewService(other, parsers.NewRegistry(f.fs, nil, log), nil, log)
	require.NoError(t, err)

	services := []*Service{f.svc, otherSvc, f.svc, otherSvc}
	results := make([]*ImportResult, len(services))
	errs := make([]error, len(services))
	var wg sync.WaitGroup
	for i, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Import(f.ctx, path)
		}()
	}
	wg.Wait()

	imported := 0
	for i := range services {
		require.NoError(t, errs[i])
		imported += results[i].Imported
	}
	assert.Equal(t, 3, imported)

	n, err := f.store.CountTransactions(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	lines, err := f.svc.ListStatementLines(f.ctx, store.LineFilter{})
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestImportFoldsNonASCIICase(t *testing.T) {
	f := newFixture(t, nil, nil)
	first, err := f.svc.Import(f.ctx, f.write(t, "a.csv", "Date,Description,Amount\n2025-01-10,CAFÉ CRÈME,-42.00\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	second, err := f.svc.Import(f.ctx, f.write(t, "b.csv", "Date,Description,Amount\n2025-01-10,café crème,-42.00\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 1, second.Duplicates)
}

func TestImportWidenedDedupKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupKey = dedup.KeyDateDescriptionAmount
	f := newFixture(t, nil, cfg)

	_, err := f.svc.Import(f.ctx, f.write(t, "a.csv", "Date,Description,Amount\n2025-01-10,Card purchase,10.00\n"))
	require.NoError(t, err)
	res, err := f.svc.Import(f.ctx, f.write(t, "b.csv", "Date,Description,Amount\n2025-01-10,Card purchase,12.00\n2025-01-10,CARD PURCHASE,10.00\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Duplicates)
}

func TestImportAppliesRules(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.AddRule(f.ctx, models.BankRule{Pattern: "service fee", Action: "categorize:Bank Charges", Enabled: true})
	require.NoError(t, err)

	res, err := f.svc.Import(f.ctx, f.write(t, "january.csv", januaryCSV))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RuleTagged)

	feeds, err := f.svc.ListFeeds(f.ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, feeds, 3)
	assert.True(t, feeds[1].Posted)
	assert.Contains(t, string(feeds[1].Metadata), "categorize:Bank Charges")
	assert.NotNil(t, feeds[1].MatchedTransactionID)
}

func TestImportStrictRejectsBadAmount(t *testing.T) {
	cfg := parsers.DefaultParseConfig()
	cfg.Policy = normalizer.PolicyStrict
	f := newFixture(t, cfg, nil)

	_, err := f.svc.Import(f.ctx, f.write(t, "bad.csv", "Date,Description,Amount\n2025-01-10,Broken,abc\n2025-01-11,Fine,1.00\n"))
	require.Error(t, err)
	re, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryValidation, re.Category)

	lines, err := f.svc.ListStatementLines(f.ctx, store.LineFilter{})
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestImportUnsupportedFormat(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Import(f.ctx, f.write(t, "statement.xlsx", "x"))
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedFormat))
}

func TestStageRaw(t *testing.T) {
	f := newFixture(t, nil, nil)
	staged, preview, err := f.svc.StageRaw(f.ctx, f.write(t, "january.csv", januaryCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, staged)
	assert.Len(t, preview, 3)

	feeds, err := f.svc.ListFeeds(f.ctx, true, 0)
	require.NoError(t, err)
	assert.Len(t, feeds, 3)

	lines, err := f.svc.ListStatementLines(f.ctx, store.LineFilter{})
	require.NoError(t, err)
	assert.Empty(t, lines, "staging does not post")
}

func TestAutoMatchConfirmAndUndo(t *testing.T) {
	f := newFixture(t, nil, nil)
	entry := f.addEntry(t, 12, "150.00", "ABC Supplies")
	f.addEntry(t, 20, "-35.00", "Service fee")
	_, err := f.svc.Import(f.ctx, f.write(t, "january.csv", januaryCSV))
	require.NoError(t, err)

	proposals, err := f.svc.AutoMatch(f.ctx)
	require.NoError(t, err)
	require.Len(t, proposals, 1, "the fee entry is nine days away")
	assert.Equal(t, entry.ID, proposals[0].Entry.ID)
	assert.Greater(t, proposals[0].Score, 0.4)

	confirmed, err := f.svc.ConfirmMatches(f.ctx, proposals)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)

	got, err := f.store.GetLedgerEntry(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.Reconciled)
	line, err := f.store.GetStatementLine(f.ctx, proposals[0].Line.ID)
	require.NoError(t, err)
	require.NotNil(t, line.MatchedEntryID)
	assert.Equal(t, entry.ID, *line.MatchedEntryID)
	matches, err := f.svc.ListMatches(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	again, err := f.svc.AutoMatch(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	undone, err := f.svc.UndoLast(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, undone)
	assert.Equal(t, models.UndoConfirmMatches, undone.Kind)

	got, err = f.store.GetLedgerEntry(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, got.Reconciled)
	line, err = f.store.GetStatementLine(f.ctx, proposals[0].Line.ID)
	require.NoError(t, err)
	assert.Nil(t, line.MatchedEntryID)
	matches, err = f.svc.ListMatches(f.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestConfirmStaleProposalsRollsBack(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addEntry(t, 12, "150.00", "ABC Supplies")
	_, err := f.svc.Import(f.ctx, f.write(t, "january.csv", januaryCSV))
	require.NoError(t, err)

	proposals, err := f.svc.AutoMatch(f.ctx)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	_, err = f.svc.ConfirmMatches(f.ctx, proposals)
	require.NoError(t, err)

	_, err = f.svc.ConfirmMatches(f.ctx, proposals)
	assert.True(t, errors.HasCode(err, errors.CodeDataInconsistent))

	matches, err := f.svc.ListMatches(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	n, err := f.svc.ConfirmMatches(f.ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMatchManualAndUndo(t *testing.T) {
	f := newFixture(t, nil, nil)
	entry := f.addEntry(t, 1, "1200.00", "Invoice 42 paid")
	res, err := f.svc.Import(f.ctx, f.write(t, "january.csv", januaryCSV))
	require.NoError(t, err)
	lineID := res.Lines[2].ID

	record, err := f.svc.MatchManual(f.ctx, lineID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, lineID, record.StatementLineID)
	assert.Equal(t, res.BatchID, record.ReconciliationID)

	_, err = f.svc.MatchManual(f.ctx, res.Lines[0].ID, entry.ID)
	assert.True(t, errors.HasCode(err, errors.CodeDataInconsistent), "entry already reconciled")

	_, err = f.svc.MatchManual(f.ctx, 9999, entry.ID)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	undone, err := f.svc.UndoLast(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UndoManualMatch, undone.Kind)
	got, err := f.store.GetLedgerEntry(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, got.Reconciled)
}

func TestUndoImportBatch(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Import(f.ctx, f.write(t, "january.csv", januaryCSV))
	require.NoError(t, err)

	undone, err := f.svc.UndoLast(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UndoImportBatch, undone.Kind)

	lines, err := f.svc.ListStatementLines(f.ctx, store.LineFilter{})
	require.NoError(t, err)
	assert.Empty(t, lines)
	feeds, err := f.svc.ListFeeds(f.ctx, false, 0)
	require.NoError(t, err)
	assert.Empty(t, feeds)
	n, err := f.store.CountTransactions(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// the file imports again once its batch is gone
	res, err := f.svc.Import(f.ctx, "january.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)

	empty := newFixture(t, nil, nil)
	nothing, err := empty.svc.UndoLast(empty.ctx)
	require.NoError(t, err)
	assert.Nil(t, nothing)
}

func TestUndoRunsNewestFirst(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Import(f.ctx, f.write(t, "january.csv", januaryCSV))
	require.NoError(t, err)
	f.addEntry(t, 12, "150.00", "ABC Supplies")
	proposals, err := f.svc.AutoMatch(f.ctx)
	require.NoError(t, err)
	_, err = f.svc.ConfirmMatches(f.ctx, proposals)
	require.NoError(t, err)

	for _, kind := range []models.UndoKind{models.UndoConfirmMatches, models.UndoInsertCashbook, models.UndoImportBatch} {
		undone, err := f.svc.UndoLast(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, kind, undone.Kind)
	}
}

func TestUndoImportRefusesMatchedLines(t *testing.T) {
	f := newFixture(t, nil, nil)
	res, err := f.svc.Import(f.ctx, f.write(t, "january.csv", januaryCSV))
	require.NoError(t, err)
	entry := f.addEntry(t, 10, "150.00", "ABC Supplies")
	_, err = f.svc.MatchManual(f.ctx, res.Lines[0].ID, entry.ID)
	require.NoError(t, err)

	_, err = f.store.PushUndo(f.ctx, models.UndoImportBatch, importBatchUndo{
		BatchID: res.BatchID,
		LineIDs: []int64{res.Lines[0].ID},
	}, 0)
	require.NoError(t, err)

	_, err = f.svc.UndoLast(f.ctx)
	assert.True(t, errors.HasCode(err, errors.CodeDataInconsistent))

	log, err := f.svc.ListUndo(f.ctx, 1)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.UndoImportBatch, log[0].Kind, "failed undo keeps its log entry")

	lines, err := f.svc.ListStatementLines(f.ctx, store.LineFilter{})
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestPostStatementLinesAndUndo(t *testing.T) {
	f := newFixture(t, nil, nil)
	res, err := f.svc.Import(f.ctx, f.write(t, "january.csv", januaryCSV))
	require.NoError(t, err)

	posted, err := f.svc.PostStatementLines(f.ctx, "Bank", []int64{res.Lines[0].ID, res.Lines[1].ID})
	require.NoError(t, err)
	require.Len(t, posted, 2)
	assert.Equal(t, "150.00", models.FormatAmount(posted[0].Debit))
	assert.True(t, posted[0].Credit.IsZero())
	assert.Equal(t, "35.00", models.FormatAmount(posted[1].Credit))
	assert.Equal(t, res.BatchID, posted[1].BatchNo)

	proposals, err := f.svc.AutoMatch(f.ctx)
	require.NoError(t, err)
	assert.Len(t, proposals, 2, "posted entries match their own lines")

	undone, err := f.svc.UndoLast(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UndoInsertCashbook, undone.Kind)
	entries, err := f.svc.ListLedger(f.ctx, store.LedgerFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = f.svc.PostStatementLines(f.ctx, " ", []int64{1})
	assert.Error(t, err)
}

func TestEditLedgerEntryAndUndo(t *testing.T) {
	f := newFixture(t, nil, nil)
	entry := f.addEntry(t, 5, "80.00", "Fuel")

	edited := entry
	edited.Narration = "Fuel station"
	edited.Debit = decimal.RequireFromString("85")
	warnings, err := f.svc.EditLedgerEntry(f.ctx, edited)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	got, err := f.store.GetLedgerEntry(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fuel station", got.Narration)

	undone, err := f.svc.UndoLast(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UndoEditCashbook, undone.Kind)
	got, err = f.store.GetLedgerEntry(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fuel", got.Narration)
	assert.Equal(t, "80.00", models.FormatAmount(got.Debit))
}

func TestAddLedgerEntryWarnings(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, warnings, err := f.svc.AddLedgerEntry(f.ctx, models.LedgerEntry{
		Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Account: "Bank",
		Debit: decimal.RequireFromString("5"), Credit: decimal.RequireFromString("5"),
	})
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	_, _, err = f.svc.AddLedgerEntry(f.ctx, models.LedgerEntry{
		Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Account: "Bank", Debit: decimal.RequireFromString("-5"),
	})
	assert.Error(t, err)
}

func TestUndoDepthIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUndoDepth = 2
	f := newFixture(t, nil, cfg)
	for day := 1; day <= 4; day++ {
		f.addEntry(t, day, "1.00", "entry")
	}
	log, err := f.svc.ListUndo(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestRulesManagement(t *testing.T) {
	f := newFixture(t, nil, nil)
	rule, err := f.svc.AddRule(f.ctx, models.BankRule{Pattern: "fee", Action: "categorize:Fees", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, f.svc.SetRuleEnabled(f.ctx, rule.ID, false))

	rules, err := f.svc.ListRules(f.ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.False(t, rules[0].Enabled)

	_, err = f.svc.AddRule(f.ctx, models.BankRule{Pattern: "", Action: "x"})
	assert.Error(t, err)
	assert.True(t, errors.HasCode(f.svc.SetRuleEnabled(f.ctx, 99, true), errors.CodeNotFound))

	audit, err := f.svc.ListAudit(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, audit, 2)
}

func TestImportFilesCollectsErrors(t *testing.T) {
	f := newFixture(t, nil, nil)
	good := f.write(t, "january.csv", januaryCSV)
	results, err := f.svc.ImportFiles(f.ctx, []string{good, "missing.csv", "notes.doc"}, false)
	require.Error(t, err)
	assert.Len(t, results, 1)
	assert.True(t, errors.HasCode(err, errors.CodeFileNotFound) || errors.HasCode(err, errors.CodeUnsupportedFormat))

	staged, err := f.svc.ImportFiles(f.ctx, []string{good}, true)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.True(t, staged[0].StageOnly)
	assert.Equal(t, models.FormatCSV, staged[0].Format)
}

func TestAutoMatchRejectsInvalidThresholds(t *testing.T) {
	f := newFixture(t, nil, nil)
	bad := f.svc.GetConfiguration().Matching.Clone()
	bad.DateWindowDays = -1
	assert.Error(t, f.svc.SetMatchingConfig(bad))

	// Thresholds mutated in place bypass SetMatchingConfig but not the engine check.
	f.svc.GetConfiguration().Matching.DateWindowDays = -1
	_, err := f.svc.AutoMatch(f.ctx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}

package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexledger-reconciler/internal/company"
	"nexledger-reconciler/internal/models"
	pkgerrors "nexledger-reconciler/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	c := company.Context{ID: "test", Name: "Test", DBPath: filepath.Join(t.TempDir(), "test", company.DatabaseFile), Currency: "ZAR"}
	s, err := Open(context.Background(), c, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.SetClock(func() time.Time { return time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC) })
	return s
}

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestOpenMigrates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// reopening applies nothing new
	again, err := Open(ctx, s.Company(), Options{})
	require.NoError(t, err)
	defer again.Close()
	v, err = again.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestLedgerEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.InsertLedgerEntry(ctx, models.LedgerEntry{
		Date: date("2025-01-12"), Account: "Bank", Narration: "ABC Supplies", Debit: dec("150"),
	})
	require.NoError(t, err)
	_, err = s.InsertLedgerEntry(ctx, models.LedgerEntry{
		Date: date("2025-01-05"), Account: "Bank", Narration: "Rent", Credit: dec("900.5"), Reconciled: true,
	})
	require.NoError(t, err)

	got, err := s.GetLedgerEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ABC Supplies", got.Narration)
	assert.True(t, got.Net().Equal(dec("150")))
	assert.True(t, got.Date.Equal(date("2025-01-12")))

	all, err := s.ListLedgerEntries(ctx, LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Rent", all[0].Narration, "ordered by date")
	assert.Equal(t, "900.50", models.FormatAmount(all[0].Credit))

	open, err := s.ListLedgerEntries(ctx, LedgerFilter{UnreconciledOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, s.SetReconciled(ctx, id, true))
	got, err = s.GetLedgerEntry(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Reconciled)

	got.Narration = "ABC Supplies Pty"
	require.NoError(t, s.UpdateLedgerEntry(ctx, got))
	got, err = s.GetLedgerEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ABC Supplies Pty", got.Narration)

	_, err = s.GetLedgerEntry(ctx, 999)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	assert.True(t, pkgerrors.HasCode(s.SetReconciled(ctx, 999, true), pkgerrors.CodeNotFound))
}

func TestStatementLinesAndMatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entryID, err := s.InsertLedgerEntry(ctx, models.LedgerEntry{Date: date("2025-01-12"), Account: "Bank", Debit: dec("150")})
	require.NoError(t, err)
	lineID, err := s.InsertStatementLine(ctx, models.StatementLine{
		ReconciliationID: "batch-1", FITID: "F1", Date: date("2025-01-10"),
		Description: "ABC SUPPLIES PTY", Amount: dec("150.00"), Source: models.FormatCSV,
	})
	require.NoError(t, err)

	unmatched, err := s.ListStatementLines(ctx, LineFilter{UnmatchedOnly: true})
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, models.LineUnmatched, unmatched[0].State())

	require.NoError(t, s.SetLineMatch(ctx, lineID, &entryID))
	line, err := s.GetStatementLine(ctx, lineID)
	require.NoError(t, err)
	require.NotNil(t, line.MatchedEntryID)
	assert.Equal(t, entryID, *line.MatchedEntryID)
	assert.True(t, line.Cleared)

	matchID, err := s.InsertMatch(ctx, models.MatchRecord{ReconciliationID: "batch-1", StatementLineID: lineID, LedgerEntryID: entryID, Score: 0.86})
	require.NoError(t, err)
	n, err := s.CountMatchesForLine(ctx, lineID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err := s.ListMatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.86, matches[0].Score, 1e-9)
	assert.Equal(t, time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC), matches[0].MatchedOn)

	require.NoError(t, s.DeleteMatches(ctx, []int64{matchID}))
	require.NoError(t, s.SetLineMatch(ctx, lineID, nil))
	line, err = s.GetStatementLine(ctx, lineID)
	require.NoError(t, err)
	assert.Nil(t, line.MatchedEntryID)
	assert.False(t, line.Cleared)

	byBatch, err := s.ListStatementLines(ctx, LineFilter{ReconciliationID: "batch-2"})
	require.NoError(t, err)
	assert.Empty(t, byBatch)
}

func TestTransactionExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertTransaction(ctx, models.TransactionFromRaw(models.RawTransaction{
		Date: date("2025-03-01"), Description: "Coffee Shop", Amount: dec("-25.00"),
	}, "tester", time.Time{}))
	require.NoError(t, err)
	_, err = s.InsertTransaction(ctx, models.TransactionFromRaw(models.RawTransaction{
		Date: date("2025-03-01"), Description: "café crème", Amount: dec("-42.00"),
	}, "tester", time.Time{}))
	require.NoError(t, err)

	minus25, minus30 := dec("-25"), dec("-30")
	plus25 := dec("25")
	tests := []struct {
		name   string
		date   string
		desc   string
		amount *decimal.Decimal
		want   bool
	}{
		{"same key, other case", "2025-03-01", "COFFEE SHOP", nil, true},
		{"other date", "2025-03-02", "Coffee Shop", nil, false},
		{"amount matches", "2025-03-01", "coffee shop", &minus25, true},
		{"amount differs", "2025-03-01", "coffee shop", &minus30, false},
		{"direction differs", "2025-03-01", "coffee shop", &plus25, false},
		{"non-ascii case", "2025-03-01", "CAFÉ CRÈME", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.TransactionExists(ctx, date(tt.date), tt.desc, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	n, err := s.CountTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUndoLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.PopUndo(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	for i := 1; i <= 3; i++ {
		_, err := s.PushUndo(ctx, models.UndoInsertCashbook, map[string]int{"n": i}, 2)
		require.NoError(t, err)
	}
	_, err = s.PushUndo(ctx, models.UndoKind("bogus"), nil, 0)
	assert.Error(t, err)

	list, err := s.ListUndo(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2, "trimmed to max depth")

	top, err := s.PopUndo(ctx)
	require.NoError(t, err)
	require.NotNil(t, top)
	var payload map[string]int
	require.NoError(t, top.Decode(&payload))
	assert.Equal(t, 3, payload["n"])

	list, err = s.ListUndo(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestWithTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(q *Queries) error {
		if _, err := q.InsertLedgerEntry(ctx, models.LedgerEntry{Date: date("2025-01-01"), Account: "Bank", Debit: dec("1")}); err != nil {
			return err
		}
		return q.SetReconciled(ctx, 424242, true)
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	entries, err := s.ListLedgerEntries(ctx, LedgerFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.WithTx(ctx, func(q *Queries) error {
		_, err := q.InsertLedgerEntry(ctx, models.LedgerEntry{Date: date("2025-01-01"), Account: "Bank", Debit: dec("1")})
		return err
	}))
	entries, err = s.ListLedgerEntries(ctx, LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRulesAuditAndFeeds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRule(ctx, models.BankRule{Pattern: "fee", Action: "categorize:Bank Charges", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, s.SetRuleEnabled(ctx, id, false))
	rules, err := s.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.False(t, rules[0].Enabled)

	require.NoError(t, s.AppendAudit(ctx, "tester", "Imported 3 rows"))
	audit, err := s.ListAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "Imported 3 rows", audit[0].Action)

	meta, _ := json.Marshal(map[string]string{"fitid": "F1"})
	feedID, err := s.InsertFeed(ctx, models.RawFeed{
		SourceFile: "jan.csv", BankDate: date("2025-01-10"), Amount: dec("-12.5"), Payee: "Fee", Metadata: meta,
	})
	require.NoError(t, err)
	feeds, err := s.ListFeeds(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "ZAR", feeds[0].Currency)
	assert.JSONEq(t, `{"fitid":"F1"}`, string(feeds[0].Metadata))

	require.NoError(t, s.DeleteFeeds(ctx, []int64{feedID}))
	feeds, err = s.ListFeeds(ctx, false, 0)
	require.NoError(t, err)
	assert.Empty(t, feeds)
}

package matcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
)

// LedgerIndex provides amount lookups over unreconciled ledger entries
type LedgerIndex struct {
	// ExactAmountIndex maps net amounts (two decimals) to entries
	ExactAmountIndex map[string][]*models.LedgerEntry

	// AmountRangeIndex is sorted by net amount for range lookups
	AmountRangeIndex []*AmountIndexEntry

	// AllEntries holds all indexed entries in load order
	AllEntries []*models.LedgerEntry
}

// AmountIndexEntry groups the entries sharing one net amount
type AmountIndexEntry struct {
	Amount  decimal.Decimal
	Entries []*models.LedgerEntry
}

// NewLedgerIndex indexes the given entries; reconciled entries are skipped.
func NewLedgerIndex(entries []models.LedgerEntry) *LedgerIndex {
	index := &LedgerIndex{
		ExactAmountIndex: make(map[string][]*models.LedgerEntry),
	}
	for i := range entries {
		if entries[i].Reconciled {
			continue
		}
		index.AllEntries = append(index.AllEntries, &entries[i])
	}
	index.buildIndexes()
	return index
}

func amountKey(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (li *LedgerIndex) buildIndexes() {
	amountMap := make(map[string]*AmountIndexEntry)

	for _, entry := range li.AllEntries {
		net := entry.Net()
		key := amountKey(net)
		li.ExactAmountIndex[key] = append(li.ExactAmountIndex[key], entry)

		if bucket, exists := amountMap[key]; exists {
			bucket.Entries = append(bucket.Entries, entry)
		} else {
			amountMap[key] = &AmountIndexEntry{Amount: net.Round(2), Entries: []*models.LedgerEntry{entry}}
		}
	}

	li.AmountRangeIndex = make([]*AmountIndexEntry, 0, len(amountMap))
	for _, bucket := range amountMap {
		li.AmountRangeIndex = append(li.AmountRangeIndex, bucket)
	}
	sort.Slice(li.AmountRangeIndex, func(i, j int) bool {
		return li.AmountRangeIndex[i].Amount.LessThan(li.AmountRangeIndex[j].Amount)
	})
}

// GetByExactAmount returns entries whose net equals amount to the cent
func (li *LedgerIndex) GetByExactAmount(amount decimal.Decimal) []*models.LedgerEntry {
	return li.ExactAmountIndex[amountKey(amount)]
}

// GetByAmountRange returns entries with net amount in [minAmount, maxAmount]
func (li *LedgerIndex) GetByAmountRange(minAmount, maxAmount decimal.Decimal) []*models.LedgerEntry {
	var result []*models.LedgerEntry

	startIdx := sort.Search(len(li.AmountRangeIndex), func(i int) bool {
		return li.AmountRangeIndex[i].Amount.GreaterThanOrEqual(minAmount)
	})
	for i := startIdx; i < len(li.AmountRangeIndex); i++ {
		bucket := li.AmountRangeIndex[i]
		if bucket.Amount.GreaterThan(maxAmount) {
			break
		}
		result = append(result, bucket.Entries...)
	}
	return result
}

// GetCandidates returns the entries eligible for a statement line under config
func (li *LedgerIndex) GetCandidates(line *models.StatementLine, config *MatchingConfig) []*models.LedgerEntry {
	var inRange []*models.LedgerEntry
	if config.AmountTolerance.IsZero() {
		inRange = li.GetByExactAmount(line.Amount)
	} else {
		inRange = li.GetByAmountRange(line.Amount.Sub(config.AmountTolerance), line.Amount.Add(config.AmountTolerance))
	}

	candidates := make([]*models.LedgerEntry, 0, len(inRange))
	for _, entry := range inRange {
		if !config.IsWithinAmountTolerance(entry.Net(), line.Amount) {
			continue
		}
		if !config.IsWithinDateWindow(entry.Date, line.Date) {
			continue
		}
		candidates = append(candidates, entry)
	}
	return candidates
}

// IndexStats provides statistics about index performance
type IndexStats struct {
	TotalEntries      int
	UniqueAmounts     int
	AverageBucketSize float64
}

// GetIndexStats returns statistics about the index
func (li *LedgerIndex) GetIndexStats() IndexStats {
	stats := IndexStats{
		TotalEntries:  len(li.AllEntries),
		UniqueAmounts: len(li.AmountRangeIndex),
	}
	if stats.UniqueAmounts > 0 {
		stats.AverageBucketSize = float64(stats.TotalEntries) / float64(stats.UniqueAmounts)
	}
	return stats
}

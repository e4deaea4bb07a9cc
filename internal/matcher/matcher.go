package matcher

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
)

// MatchingEngine proposes ledger entries for statement lines
type MatchingEngine struct {
	Config      *MatchingConfig
	LedgerIndex *LedgerIndex
}

// MatchSummary provides aggregate statistics about an auto-match run
type MatchSummary struct {
	Lines          int
	Proposed       int
	Unmatched      int
	ExactMatches   int
	CloseMatches   int
	FuzzyMatches   int
	AmountProposed decimal.Decimal
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &MatchingEngine{Config: config}
}

// LoadLedger indexes the ledger snapshot to match against
func (me *MatchingEngine) LoadLedger(entries []models.LedgerEntry) {
	me.LedgerIndex = NewLedgerIndex(entries)
}

// Score returns the similarity and signed day difference of a pair
func (me *MatchingEngine) Score(line *models.StatementLine, entry *models.LedgerEntry) (float64, int) {
	return Similarity(line.Description, entry.Narration), models.DaysBetween(line.Date, entry.Date)
}

// FindBest returns the best eligible entry for line, ignoring claimed ids.
func (me *MatchingEngine) FindBest(line *models.StatementLine, claimed map[int64]bool) (models.ProposedMatch, bool) {
	if me.LedgerIndex == nil {
		return models.ProposedMatch{}, false
	}

	var best *models.LedgerEntry
	bestScore, bestDays := -1.0, 0
	for _, entry := range me.LedgerIndex.GetCandidates(line, me.Config) {
		if claimed[entry.ID] {
			continue
		}
		score, days := me.Score(line, entry)
		if best == nil || better(score, days, entry.ID, bestScore, bestDays, best.ID) {
			best, bestScore, bestDays = entry, score, days
		}
	}

	if best == nil || bestScore <= me.Config.MinScore {
		return models.ProposedMatch{}, false
	}
	return models.ProposedMatch{
		Line:          *line,
		Entry:         *best,
		Score:         bestScore,
		DayDifference: bestDays,
	}, true
}

// better orders candidates by score, then closeness in days, then entry id
func better(score float64, days int, id int64, bestScore float64, bestDays int, bestID int64) bool {
	if score != bestScore {
		return score > bestScore
	}
	if abs(days) != abs(bestDays) {
		return abs(days) < abs(bestDays)
	}
	return id < bestID
}

func abs(n int) int {
	return int(math.Abs(float64(n)))
}

// AutoMatch proposes at most one entry per unmatched line, in line id order.
// An entry claimed by an earlier line is not offered again.
func (me *MatchingEngine) AutoMatch(lines []models.StatementLine) []models.ProposedMatch {
	ordered := make([]models.StatementLine, len(lines))
	copy(ordered, lines)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	claimed := make(map[int64]bool)
	var proposals []models.ProposedMatch
	for i := range ordered {
		line := &ordered[i]
		if line.IsMatched() {
			continue
		}
		if p, ok := me.FindBest(line, claimed); ok {
			claimed[p.Entry.ID] = true
			proposals = append(proposals, p)
		}
	}
	return proposals
}

// Summarize computes run statistics for the given lines and proposals
func Summarize(lines []models.StatementLine, proposals []models.ProposedMatch) MatchSummary {
	summary := MatchSummary{AmountProposed: decimal.Zero}
	for _, l := range lines {
		if !l.IsMatched() {
			summary.Lines++
		}
	}
	for _, p := range proposals {
		summary.Proposed++
		summary.AmountProposed = summary.AmountProposed.Add(p.Line.Amount.Abs())
		switch Classify(p) {
		case MatchExact:
			summary.ExactMatches++
		case MatchClose:
			summary.CloseMatches++
		default:
			summary.FuzzyMatches++
		}
	}
	summary.Unmatched = summary.Lines - summary.Proposed
	return summary
}

// ValidateConfiguration validates the current configuration
func (me *MatchingEngine) ValidateConfiguration() error {
	return me.Config.Validate()
}

// GetStats returns index statistics
func (me *MatchingEngine) GetStats() IndexStats {
	if me.LedgerIndex == nil {
		return IndexStats{}
	}
	return me.LedgerIndex.GetIndexStats()
}

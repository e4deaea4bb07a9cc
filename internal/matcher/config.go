// Package matcher pairs unmatched bank statement lines with unreconciled
// cash book entries.
//
// A ledger entry is eligible for a statement line when its net amount is
// within the amount tolerance and its date within the date window. Among
// eligible entries the one whose narration is most similar to the statement
// description wins, provided the similarity clears the minimum score.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	engine := matcher.NewMatchingEngine(config)
//	engine.LoadLedger(entries)
//	proposals := engine.AutoMatch(lines)
package matcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
)

// MatchType represents the quality of a proposed match
type MatchType int

const (
	// MatchExact is an equal amount on the same day
	MatchExact MatchType = iota
	// MatchClose has a high description similarity
	MatchClose
	// MatchFuzzy only cleared the minimum score
	MatchFuzzy
)

// String returns the string representation of MatchType
func (mt MatchType) String() string {
	switch mt {
	case MatchExact:
		return "Exact"
	case MatchClose:
		return "Close"
	case MatchFuzzy:
		return "Fuzzy"
	default:
		return "Unknown"
	}
}

// closeScore separates Close from Fuzzy matches
const closeScore = 0.8

// Classify grades a proposal for display
func Classify(p models.ProposedMatch) MatchType {
	if p.DayDifference == 0 && p.Entry.Net().Equal(p.Line.Amount) {
		return MatchExact
	}
	if p.Score >= closeScore {
		return MatchClose
	}
	return MatchFuzzy
}

// MatchingConfig holds the eligibility and scoring thresholds.
type MatchingConfig struct {
	// AmountTolerance is the largest accepted |ledger net - statement amount|
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// DateWindowDays is the largest accepted |day difference|
	DateWindowDays int `json:"date_window_days"`

	// MinScore is exclusive: a proposal needs score > MinScore
	MinScore float64 `json:"min_score"`
}

// DefaultMatchingConfig returns a one cent, three day, 0.4 score configuration
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance: decimal.New(1, -2),
		DateWindowDays:  3,
		MinScore:        0.4,
	}
}

// StrictMatchingConfig returns a configuration for strict matching
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance: decimal.Zero,
		DateWindowDays:  1,
		MinScore:        0.6,
	}
}

// RelaxedMatchingConfig returns a configuration for relaxed matching
func RelaxedMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance: decimal.New(5, -2),
		DateWindowDays:  5,
		MinScore:        0.3,
	}
}

// Preset returns the named configuration: default, strict or relaxed
func Preset(name string) (*MatchingConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultMatchingConfig(), nil
	case "strict":
		return StrictMatchingConfig(), nil
	case "relaxed":
		return RelaxedMatchingConfig(), nil
	}
	return nil, fmt.Errorf("unknown matching preset %q: must be default, strict or relaxed", name)
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", mc.AmountTolerance)
	}
	if mc.DateWindowDays < 0 {
		return fmt.Errorf("date window days cannot be negative: %d", mc.DateWindowDays)
	}
	if mc.MinScore < 0.0 || mc.MinScore >= 1.0 {
		return fmt.Errorf("minimum score must be in [0.0, 1.0): %f", mc.MinScore)
	}
	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// IsWithinAmountTolerance checks |a - b| against the tolerance
func (mc *MatchingConfig) IsWithinAmountTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(mc.AmountTolerance)
}

// IsWithinDateWindow checks if two dates are within the configured window
func (mc *MatchingConfig) IsWithinDateWindow(a, b time.Time) bool {
	diff := models.DaysBetween(a, b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= mc.DateWindowDays
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{AmountTolerance: %s, DateWindow: %d days, MinScore: %.2f}",
		mc.AmountTolerance.StringFixed(2), mc.DateWindowDays, mc.MinScore)
}

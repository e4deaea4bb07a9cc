// Package rules applies bank rules to imported statement descriptions.
//
// A rule matches when its pattern occurs anywhere in the description,
// ignoring case. When several enabled rules match, the one with the lowest
// id wins. All patterns are matched in a single pass with an Aho-Corasick
// automaton.
package rules

import (
	"sort"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"

	"nexledger-reconciler/internal/models"
)

// Engine matches descriptions against a set of bank rules
type Engine struct {
	matcher *ahocorasick.Matcher
	rules   []models.BankRule // one per unique pattern, indexed like the matcher
	mu      sync.RWMutex
}

// NewEngine creates an engine over the enabled rules
func NewEngine(rules []models.BankRule) *Engine {
	e := &Engine{}
	e.Build(rules)
	return e
}

// Build replaces the automaton. Disabled rules and blank patterns are ignored.
func (e *Engine) Build(rules []models.BankRule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	enabled := make([]models.BankRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled && strings.TrimSpace(r.Pattern) != "" {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].ID < enabled[j].ID })

	seen := make(map[string]bool, len(enabled))
	patterns := make([][]byte, 0, len(enabled))
	kept := make([]models.BankRule, 0, len(enabled))
	for _, r := range enabled {
		p := strings.ToUpper(strings.TrimSpace(r.Pattern))
		if seen[p] {
			continue
		}
		seen[p] = true
		patterns = append(patterns, []byte(p))
		kept = append(kept, r)
	}

	e.rules = kept
	e.matcher = nil
	if len(patterns) > 0 {
		e.matcher = ahocorasick.NewMatcher(patterns)
	}
}

// Match returns the winning rule for description
func (e *Engine) Match(description string) (models.BankRule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.matcher == nil {
		return models.BankRule{}, false
	}
	hits := e.matcher.Match([]byte(strings.ToUpper(description)))
	if len(hits) == 0 {
		return models.BankRule{}, false
	}

	best := -1
	for _, idx := range hits {
		if idx >= 0 && idx < len(e.rules) && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best < 0 {
		return models.BankRule{}, false
	}
	return e.rules[best], true
}

// Apply sets RuleAction on every transaction a rule matches and returns how
// many were tagged.
func (e *Engine) Apply(txs []models.RawTransaction) int {
	tagged := 0
	for i := range txs {
		if rule, ok := e.Match(txs[i].Description); ok {
			txs[i].RuleAction = rule.Action
			tagged++
		}
	}
	return tagged
}

// PatternCount returns the number of patterns loaded in the engine.
func (e *Engine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

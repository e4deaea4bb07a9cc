package matcher

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Similarity returns the case-insensitive sequence similarity of a and b in
// [0,1]: 2*M/T, M being the characters in the Ratcliff/Obershelp matching
// blocks and T the total length.
func Similarity(a, b string) float64 {
	ca := charsOf(strings.ToLower(strings.TrimSpace(a)))
	cb := charsOf(strings.ToLower(strings.TrimSpace(b)))
	if len(ca) == 0 && len(cb) == 0 {
		return 1
	}
	if len(ca) == 0 || len(cb) == 0 {
		return 0
	}
	return difflib.NewMatcher(ca, cb).Ratio()
}

// charsOf splits s into one-rune strings, the element type difflib compares.
func charsOf(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

package parsers

import (
	"encoding/csv"
	"strings"
)

var candidateDelimiters = []rune{',', ';', '\t', '|'}

// sniffDelimiter picks the delimiter that splits the most sample lines into
// the same column count greater than one. Comma wins ties and empty samples.
func sniffDelimiter(sample []string) rune {
	best, bestScore := ',', 0
	for _, delim := range candidateDelimiters {
		counts := make(map[int]int)
		for _, line := range sample {
			if strings.TrimSpace(line) == "" {
				continue
			}
			r := csv.NewReader(strings.NewReader(line))
			r.Comma = delim
			r.LazyQuotes = true
			r.FieldsPerRecord = -1
			record, err := r.Read()
			if err != nil || len(record) < 2 {
				continue
			}
			counts[len(record)]++
		}

		score := 0
		for _, n := range counts {
			if n > score {
				score = n
			}
		}
		if score > bestScore {
			best, bestScore = delim, score
		}
	}
	return best
}

// column aliases; the first alias present in the header wins
var (
	dateAliases        = []string{"date", "transaction date", "value date"}
	descriptionAliases = []string{"description", "narrative", "memo", "payee"}
	amountAliases      = []string{"amount", "amt", "value", "credit", "debit"}
	currencyAliases    = []string{"currency"}
	referenceAliases   = []string{"reference", "fitid"}
)

// columnMap holds resolved column indexes, -1 when absent
type columnMap struct {
	date, description, amount, currency, reference int
	credit, debit                                  int
	names                                          []string
}

func resolveColumns(header []string) columnMap {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}
	find := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				return i
			}
		}
		return -1
	}

	cols := columnMap{
		date:        find(dateAliases),
		description: find(descriptionAliases),
		amount:      find(amountAliases[:3]),
		currency:    find(currencyAliases),
		reference:   find(referenceAliases),
		credit:      find([]string{"credit"}),
		debit:       find([]string{"debit"}),
		names:       header,
	}
	if cols.amount < 0 && !cols.split() {
		cols.amount = find(amountAliases)
	}
	return cols
}

// split reports whether the amount comes from separate credit and debit columns
func (c columnMap) split() bool {
	return c.amount < 0 && c.credit >= 0 && c.debit >= 0
}

func (c columnMap) usable() bool {
	return c.date >= 0 && (c.amount >= 0 || c.split())
}

func (c columnMap) name(i int) string {
	if i >= 0 && i < len(c.names) {
		return strings.TrimSpace(c.names[i])
	}
	return ""
}

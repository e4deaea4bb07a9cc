// Package normalizer canonicalizes the date, amount and description strings
// found in bank statements.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"nexledger-reconciler/internal/models"
)

// Policy decides what happens to values that cannot be normalized.
type Policy string

const (
	// PolicyLenient substitutes today / zero and records a warning.
	PolicyLenient Policy = "lenient"
	// PolicyStrict rejects the row.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a policy name; empty means lenient.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyLenient:
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("invalid policy %q: must be strict or lenient", s)
}

// DateOrder is a locale hint for ambiguous numeric dates such as 01/02/2025.
type DateOrder string

const (
	DateOrderAuto DateOrder = "auto"
	DateOrderDMY  DateOrder = "dmy"
	DateOrderMDY  DateOrder = "mdy"
)

// ParseDateOrder validates a date order name; empty means auto.
func ParseDateOrder(s string) (DateOrder, error) {
	switch DateOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", DateOrderAuto:
		return DateOrderAuto, nil
	case DateOrderDMY:
		return DateOrderDMY, nil
	case DateOrderMDY:
		return DateOrderMDY, nil
	}
	return "", fmt.Errorf("invalid date order %q: must be auto, dmy or mdy", s)
}

var (
	// ErrInvalidDate is returned when no layout matches.
	ErrInvalidDate = errors.New("unrecognized date")
	// ErrInvalidAmount is returned when the cleaned amount is not a number.
	ErrInvalidAmount = errors.New("unrecognized amount")
)

var dayFirstLayouts = []string{
	"2/1/2006",
	"2006-1-2",
	"2-1-2006",
	"20060102",
	"02012006",
	"2.1.2006",
}

var monthFirstLayouts = []string{
	"1/2/2006",
}

// two-digit years are only tried after every four-digit layout
var shortYearDayFirst = []string{"2/1/06", "2-1-06", "2.1.06"}
var shortYearMonthFirst = []string{"1/2/06"}

var embeddedDate = regexp.MustCompile(`\d{8}`)

func layoutsFor(order DateOrder) []string {
	var layouts []string
	switch order {
	case DateOrderDMY:
		layouts = append(layouts, dayFirstLayouts...)
		layouts = append(layouts, shortYearDayFirst...)
	case DateOrderMDY:
		layouts = append(layouts, monthFirstLayouts...)
		layouts = append(layouts, dayFirstLayouts...)
		layouts = append(layouts, shortYearMonthFirst...)
		layouts = append(layouts, shortYearDayFirst...)
	default:
		layouts = append(layouts, dayFirstLayouts...)
		layouts = append(layouts, monthFirstLayouts...)
		layouts = append(layouts, shortYearDayFirst...)
		layouts = append(layouts, shortYearMonthFirst...)
	}
	return layouts
}

// ParseDate parses a statement date. Layouts are tried in order and the first
// success wins; a trailing time of day is ignored; as a last resort the first
// embedded YYYYMMDD run is used.
func ParseDate(s string, order DateOrder) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	candidates := []string{s}
	if i := strings.IndexAny(s, " T"); i > 0 {
		candidates = append(candidates, s[:i])
	}
	for _, c := range candidates {
		for _, layout := range layoutsFor(order) {
			if t, err := time.Parse(layout, c); err == nil {
				return t, nil
			}
		}
	}

	for _, run := range embeddedDate.FindAllString(s, -1) {
		if t, err := time.Parse("20060102", run); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrInvalidDate, "%q", s)
}

// ParseAmount parses a statement amount.
//
// Whitespace and currency symbols are dropped and parentheses or a trailing
// minus mean negative. When both '.' and ',' occur the rightmost one is the
// decimal separator. A lone ',' is a decimal separator; repeated ',' or '.'
// are thousands grouping.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if dot > comma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-':
			negative = !negative
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "." {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "%q", raw)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "%q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// Direction classifies an amount: positive is Income, everything else Expense.
func Direction(amount decimal.Decimal) models.Direction {
	return models.DirectionOf(amount)
}

// CleanDescription applies NFC normalization and collapses whitespace.
func CleanDescription(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

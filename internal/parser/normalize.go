package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

// DateOrder selects how ambiguous numeric dates like 01/03/2026 are read.
type DateOrder int

const (
	// DayFirst reads 01/03/2026 as 1 March 2026
	DayFirst DateOrder = iota
	// MonthFirst reads 01/03/2026 as 3 January 2026
	MonthFirst
)

var (
	dayFirstLayouts = []string{
		"2/1/2006", "2/1/06",
		"2-1-2006", "2-1-06",
		"2.1.2006", "2.1.06",
	}
	monthFirstLayouts = []string{
		"1/2/2006", "1/2/06",
		"1-2-2006", "1-2-06",
		"1.2.2006", "1.2.06",
	}
	// Year-first layouts are unambiguous and tried for both orders.
	isoLayouts = []string{"2006-1-2", "2006/1/2", "20060102"}

	currencyTokens = []string{"US$", "R$", "BRL", "USD", "EUR", "$", "€", "£"}

	amountPattern = regexp.MustCompile(`^[0-9.,]*[0-9][0-9.,]*$`)
)

// ParseDate parses a day-first calendar date, discarding any time component.
func ParseDate(s string) (time.Time, error) {
	return ParseDateOrder(s, DayFirst)
}

// ParseDateOrder parses a calendar date using the given order for ambiguous
// numeric layouts. Time components ("2026-03-01T10:00:00", "01/03/2026 10:00")
// are discarded.
func ParseDateOrder(s string, order DateOrder) (time.Time, error) {
	value := strings.TrimSpace(s)
	if value == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}
	if i := strings.IndexAny(value, " T"); i > 0 {
		value = value[:i]
	}

	layouts := dayFirstLayouts
	if order == MonthFirst {
		layouts = monthFirstLayouts
	}

	for _, group := range [][]string{isoLayouts, layouts} {
		for _, layout := range group {
			if t, err := time.Parse(layout, value); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseAmount converts a formatted monetary amount to a signed decimal.
//
// Both "1.234,56" and "1,234.56" are accepted: the right-most separator is the
// decimal mark when both appear, and a separator repeated more than once is a
// thousands mark. A lone separator is a thousands mark when exactly three
// digits follow it and one to three digits without a leading zero precede it,
// so "1.234" and "1,234" both read as 1234 while "0,125" and "12,50" keep
// their decimals. Currency symbols
// and whitespace are stripped. A leading or trailing minus, parentheses, or a
// trailing D (debit) marker make the result negative; a trailing C (credit)
// marker is accepted and ignored.
func ParseAmount(s string) (decimal.Decimal, error) {
	value := strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if value == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	negative := false

	// Debit/credit markers trail the number: "450,00 D", "450,00C"
	if n := len(value); n > 1 {
		switch value[n-1] {
		case 'D', 'd':
			if isMarkerPrefix(value[:n-1]) {
				negative = true
				value = value[:n-1]
			}
		case 'C', 'c':
			if isMarkerPrefix(value[:n-1]) {
				value = value[:n-1]
			}
		}
	}

	upper := strings.ToUpper(value)
	for _, token := range currencyTokens {
		upper = strings.ReplaceAll(upper, token, "")
	}
	value = strings.Join(strings.Fields(upper), "")

	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		negative = !negative
		value = value[1 : len(value)-1]
	}
	switch {
	case strings.HasPrefix(value, "-"):
		negative = !negative
		value = value[1:]
	case strings.HasSuffix(value, "-"):
		negative = !negative
		value = value[:len(value)-1]
	case strings.HasPrefix(value, "+"):
		value = value[1:]
	}

	if !amountPattern.MatchString(value) {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}

	normalized, err := normalizeSeparators(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

// isMarkerPrefix reports whether the text before a D/C marker ends in a number.
func isMarkerPrefix(s string) bool {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return (last >= '0' && last <= '9') || last == ')'
}

// normalizeSeparators rewrites a digits-and-separators string to plain
// decimal notation with '.' as the decimal mark.
func normalizeSeparators(value string) (string, error) {
	lastComma := strings.LastIndex(value, ",")
	lastDot := strings.LastIndex(value, ".")

	var decimalMark, thousandsMark string
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			decimalMark, thousandsMark = ",", "."
		} else {
			decimalMark, thousandsMark = ".", ","
		}
	case lastComma >= 0:
		if strings.Count(value, ",") > 1 || groupsThousands(value, lastComma) {
			thousandsMark = ","
		} else {
			decimalMark = ","
		}
	case lastDot >= 0:
		if strings.Count(value, ".") > 1 || groupsThousands(value, lastDot) {
			thousandsMark = "."
		} else {
			decimalMark = "."
		}
	default:
		return value, nil
	}

	if thousandsMark != "" {
		value = strings.ReplaceAll(value, thousandsMark, "")
	}
	if decimalMark != "" {
		if strings.Count(value, decimalMark) > 1 {
			return "", fmt.Errorf("more than one decimal separator")
		}
		value = strings.Replace(value, decimalMark, ".", 1)
	}
	return value, nil
}

// groupsThousands reports whether the lone separator at i splits a single
// thousands group, as in "1.234" or "12,500".
func groupsThousands(value string, i int) bool {
	whole, frac := value[:i], value[i+1:]
	return len(frac) == 3 && len(whole) >= 1 && len(whole) <= 3 && whole[0] != '0'
}

// NormalizeDescription trims and collapses internal whitespace.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// KindFor maps a signed amount to its transaction kind.
func KindFor(amount decimal.Decimal) domain.Kind {
	if amount.IsNegative() {
		return domain.KindExpense
	}
	return domain.KindIncome
}

// Package qif provides Quicken Interchange Format statement parsing for finreport
package qif

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/parser"
)

// Parser implements QIF parsing with a stateless design.
// Safe for concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared QIF parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Format returns the format this parser handles
func (p *Parser) Format() domain.Format {
	return domain.FormatQIF
}

// CanParse accepts .qif files, and .txt exports that start with a !Type line
func (p *Parser) CanParse(path string, header []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".qif":
		return true
	case ".txt":
		head := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(string(header), "\ufeff")))
		return strings.HasPrefix(head, "!TYPE")
	}
	return false
}

// record is one ^-terminated QIF entry
type record struct {
	line   int // first line of the record
	fields map[byte]string
	raw    []string
}

// cash-style account types; investment, category and class lists are ignored
var transactionTypes = map[string]bool{
	"bank":    true,
	"cash":    true,
	"ccard":   true,
	"oth a":   true,
	"oth l":   true,
	"invoice": true,
}

// Parse reads every transaction record of cash-style account sections.
// Ambiguous dates are read day-first unless some record proves the file is
// month-first (a middle component above 12).
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := readRecords(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to read QIF content%s: %w", parser.FileInfo(meta), err)
	}

	order := detectDateOrder(records)
	result := parser.NewResult(domain.FormatQIF)

	for _, rec := range records {
		txn, err := rec.transaction(order)
		if err != nil {
			result.Skip(rec.line, err)
			continue
		}
		result.Add(txn)
	}

	return result.Finish(meta)
}

func readRecords(ctx context.Context, r io.Reader) ([]record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		records []record
		current *record
		lineNo  int
		inScope = true
	)

	flush := func() {
		if current != nil && inScope && len(current.fields) > 0 {
			records = append(records, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		lineNo++
		if lineNo%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "!"):
			flush()
			header := strings.ToLower(strings.TrimSpace(line[1:]))
			switch {
			case strings.HasPrefix(header, "type:"):
				inScope = transactionTypes[strings.TrimSpace(strings.TrimPrefix(header, "type:"))]
			case header == "account":
				inScope = false
			}
			continue
		case line[0] == '^':
			flush()
			continue
		}

		if current == nil {
			current = &record{line: lineNo, fields: make(map[byte]string)}
		}
		current.raw = append(current.raw, line)

		code := line[0]
		// split lines (S, E, $) and the first occurrence of each field win
		if _, seen := current.fields[code]; !seen {
			current.fields[code] = strings.TrimSpace(line[1:])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return records, nil
}

// normalizeDate rewrites Quicken's apostrophe-year form ("3/ 1'26") to a
// plain numeric date.
func normalizeDate(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	if i := strings.Index(s, "'"); i >= 0 {
		year := s[i+1:]
		if len(year) == 2 {
			year = "20" + year
		}
		s = s[:i] + "/" + year
	}
	return s
}

func detectDateOrder(records []record) parser.DateOrder {
	for _, rec := range records {
		parts := strings.FieldsFunc(normalizeDate(rec.fields['D']), func(r rune) bool {
			return r == '/' || r == '-' || r == '.'
		})
		if len(parts) != 3 || len(parts[0]) == 4 {
			continue
		}
		switch {
		case atoi(parts[0]) > 12:
			return parser.DayFirst
		case atoi(parts[1]) > 12:
			return parser.MonthFirst
		}
	}
	return parser.DayFirst
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func (rec record) transaction(order parser.DateOrder) (domain.ParsedTransaction, error) {
	dateField, ok := rec.fields['D']
	if !ok {
		return domain.ParsedTransaction{}, fmt.Errorf("record missing date (D) field")
	}
	date, err := parser.ParseDateOrder(normalizeDate(dateField), order)
	if err != nil {
		return domain.ParsedTransaction{}, err
	}

	amountField, ok := rec.fields['T']
	if !ok {
		amountField, ok = rec.fields['U']
	}
	if !ok {
		return domain.ParsedTransaction{}, fmt.Errorf("record missing amount (T) field")
	}
	amount, err := parser.ParseAmount(amountField)
	if err != nil {
		return domain.ParsedTransaction{}, err
	}

	description := parser.NormalizeDescription(rec.fields['P'])
	if description == "" {
		description = parser.NormalizeDescription(rec.fields['M'])
	}
	if description == "" {
		return domain.ParsedTransaction{}, fmt.Errorf("record missing payee (P) and memo (M) fields")
	}

	txn, err := domain.NewParsedTransaction(date, description, amount, parser.KindFor(amount), rec.fields['N'], strings.Join(rec.raw, "\n"))
	if err != nil {
		return domain.ParsedTransaction{}, err
	}
	return *txn, nil
}

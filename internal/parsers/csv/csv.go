// Package csv provides delimited-text statement parsing for finreport
package csv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/parser"
)

// sniffSize is how much of the file is inspected for delimiter and encoding.
const sniffSize = 4096

// candidate delimiters in preference order when counts tie
var delimiters = []rune{';', ',', '\t', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser implements delimited-text statement parsing with a stateless design.
// Safe for concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared CSV parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Format returns the format this parser handles
func (p *Parser) Format() domain.Format {
	return domain.FormatCSV
}

// CanParse checks the extension and rejects content that announces another
// text format (QIF "!Type", OFX headers).
func (p *Parser) CanParse(path string, header []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
	default:
		return false
	}

	head := strings.ToUpper(strings.TrimSpace(string(bytes.TrimPrefix(header, utf8BOM))))
	if strings.HasPrefix(head, "!TYPE") || strings.HasPrefix(head, "!OPTION") {
		return false
	}
	if strings.Contains(head, "OFXHEADER") || strings.Contains(head, "<OFX>") {
		return false
	}
	return true
}

// Parse reads delimited rows. The delimiter is sniffed from the first
// non-empty line, a header row is recognized by column names, and
// non-UTF-8 input is decoded as Windows-1252, the usual export encoding of
// Brazilian banks.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	br := bufio.NewReaderSize(r, sniffSize)
	peek, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read CSV content%s: %w", parser.FileInfo(meta), err)
	}

	var src io.Reader = br
	if bytes.HasPrefix(peek, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, fmt.Errorf("failed to read CSV content%s: %w", parser.FileInfo(meta), err)
		}
		peek = peek[len(utf8BOM):]
	} else if !validUTF8Prefix(peek, len(peek) == sniffSize) {
		src = charmap.Windows1252.NewDecoder().Reader(br)
	}

	delim := sniffDelimiter(peek)

	csvReader := csv.NewReader(src)
	csvReader.Comma = delim
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	result := parser.NewResult(domain.FormatCSV)

	var cols *parser.Columns
	headerless := false
	for records := 0; ; records++ {
		if records%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Skip(parseErr.StartLine, parseErr.Err)
				continue
			}
			return nil, fmt.Errorf("failed to read CSV content%s: %w", parser.FileInfo(meta), err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := csvReader.FieldPos(0)

		if cols == nil {
			if detected, ok := parser.DetectColumns(record); ok {
				cols = &detected
				continue
			}
			defaults := parser.DefaultColumns(len(record))
			cols, headerless = &defaults, true
		}

		if headerless && len(record) < 3 {
			result.Skip(line, fmt.Errorf("expected at least 3 fields, got %d", len(record)))
			continue
		}

		txn, err := cols.Transaction(record, nil, strings.Join(record, string(delim)))
		if err != nil {
			result.Skip(line, err)
			continue
		}
		result.Add(txn)
	}

	return result.Finish(meta)
}

// sniffDelimiter picks the candidate occurring most often, outside quotes,
// on the first non-empty line.
func sniffDelimiter(peek []byte) rune {
	line := firstLine(peek)

	best, bestCount := delimiters[0], 0
	for _, d := range delimiters {
		if n := countUnquoted(line, d); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func firstLine(peek []byte) string {
	for _, line := range strings.Split(string(peek), "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func countUnquoted(line string, d rune) int {
	count, quoted := 0, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			count++
		}
	}
	return count
}

// validUTF8Prefix ignores a rune cut at the end of a truncated window.
func validUTF8Prefix(b []byte, truncated bool) bool {
	if !truncated {
		return utf8.Valid(b)
	}
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return true
		}
		b = b[:len(b)-1]
	}
	return utf8.Valid(b)
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

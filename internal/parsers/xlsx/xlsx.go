// Package xlsx provides spreadsheet statement parsing for finreport
package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
	"github.com/rumor-ml/commons.systems/finreport/internal/parser"
)

// zipMagic starts every OOXML workbook
var zipMagic = []byte("PK\x03\x04")

// maxSerialDate bounds numeric cells treated as Excel date serials
// (99999 is 2173-10-14); larger numbers such as 20260301 are read as text.
const maxSerialDate = 99999

// Parser implements XLSX parsing with a stateless design.
// Safe for concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared XLSX parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Format returns the format this parser handles
func (p *Parser) Format() domain.Format {
	return domain.FormatXLSX
}

// CanParse checks the extension and, when available, the zip signature
func (p *Parser) CanParse(path string, header []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
	default:
		return false
	}
	return len(header) == 0 || bytes.HasPrefix(header, zipMagic)
}

// Parse streams the first worksheet row by row. Column layout is detected
// the same way as delimited text; date cells may be Excel serials or text.
// Cancellation is checked before every row.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook%s: %w", parser.FileInfo(meta), err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Msg("failed to close workbook")
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w%s: workbook has no sheets", domain.ErrEmptyStatement, parser.FileInfo(meta))
	}

	use1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		use1904 = *props.Date1904
	}
	parseDate := func(s string) (time.Time, error) {
		return parseDateCell(s, use1904)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q%s: %w", sheets[0], parser.FileInfo(meta), err)
	}
	defer rows.Close()

	result := parser.NewResult(domain.FormatXLSX)

	var cols *parser.Columns
	headerless := false
	for row := 1; rows.Next(); row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			result.Skip(row, err)
			continue
		}
		if isBlank(cells) {
			continue
		}

		if cols == nil {
			if detected, ok := parser.DetectColumns(cells); ok {
				cols = &detected
				continue
			}
			defaults := parser.DefaultColumns(len(cells))
			cols, headerless = &defaults, true
		}

		if headerless && len(cells) < 3 {
			result.Skip(row, fmt.Errorf("expected at least 3 cells, got %d", len(cells)))
			continue
		}

		txn, err := cols.Transaction(cells, parseDate, strings.Join(cells, ";"))
		if err != nil {
			result.Skip(row, err)
			continue
		}
		result.Add(txn)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("failed to read sheet %q%s: %w", sheets[0], parser.FileInfo(meta), err)
	}

	return result.Finish(meta)
}

// parseDateCell reads an Excel serial date, falling back to text layouts
func parseDateCell(s string, use1904 bool) (time.Time, error) {
	value := strings.TrimSpace(s)
	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 && serial <= maxSerialDate {
		t, err := excelize.ExcelDateToTime(serial, use1904)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date serial %q: %w", s, err)
		}
		return domain.CivilDate(t), nil
	}
	return parser.ParseDate(value)
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

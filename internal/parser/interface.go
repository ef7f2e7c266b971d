package parser

import (
	"context"
	"fmt"
	"io"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

// Parser is the strategy interface for all statement file formats
type Parser interface {
	// Format returns the format this parser handles
	Format() domain.Format

	// CanParse checks if parser can handle this file.
	// header holds up to the first 512 bytes of the file.
	CanParse(path string, header []byte) bool

	// Parse converts raw file content into canonical transactions.
	// Malformed rows are skipped and recorded on the result, not returned as errors.
	// A parse that yields no transactions fails with domain.ErrEmptyStatement.
	Parse(ctx context.Context, r io.Reader, meta *Metadata) (*Result, error)
}

// SkippedRow is the diagnostic for one malformed row
type SkippedRow struct {
	Row    int    `json:"row"` // 1-based row/record number in the source
	Reason string `json:"reason"`
}

// Result is the outcome of parsing one file
type Result struct {
	Format       domain.Format              `json:"format"`
	Transactions []domain.ParsedTransaction `json:"transactions"`
	Skipped      []SkippedRow               `json:"skipped"`
}

// NewResult creates an empty result for a format
func NewResult(format domain.Format) *Result {
	return &Result{
		Format:       format,
		Transactions: []domain.ParsedTransaction{},
		Skipped:      []SkippedRow{},
	}
}

// SkippedCount returns the number of rows skipped as malformed
func (r *Result) SkippedCount() int {
	return len(r.Skipped)
}

// Add appends a parsed transaction
func (r *Result) Add(txn domain.ParsedTransaction) {
	r.Transactions = append(r.Transactions, txn)
}

// Skip records a malformed row
func (r *Result) Skip(row int, err error) {
	r.Skipped = append(r.Skipped, SkippedRow{Row: row, Reason: err.Error()})
}

// Finish enforces the non-empty contract shared by every parser.
func (r *Result) Finish(meta *Metadata) (*Result, error) {
	if len(r.Transactions) == 0 {
		return nil, fmt.Errorf("%w%s: no transactions parsed (%d rows skipped)",
			domain.ErrEmptyStatement, FileInfo(meta), len(r.Skipped))
	}
	return r, nil
}

// FileInfo returns a formatted file path string for error messages
func FileInfo(meta *Metadata) string {
	if meta != nil && meta.FilePath() != "" {
		return fmt.Sprintf(" from %s", meta.FilePath())
	}
	return ""
}

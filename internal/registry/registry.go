// Package registry maps statement files to the parser for their format.
package registry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/parser"
	"github.com/rumor-ml/commons.systems/finreport/internal/parsers/csv"
	"github.com/rumor-ml/commons.systems/finreport/internal/parsers/ofx"
	"github.com/rumor-ml/commons.systems/finreport/internal/parsers/qif"
	"github.com/rumor-ml/commons.systems/finreport/internal/parsers/xlsx"
)

// HeaderSize is how many leading bytes are handed to CanParse.
// Enough for OFX headers, the QIF !Type line and the zip signature.
const HeaderSize = 512

var extensions = map[string]domain.Format{
	".csv":  domain.FormatCSV,
	".tsv":  domain.FormatCSV,
	".txt":  domain.FormatCSV,
	".ofx":  domain.FormatOFX,
	".qfx":  domain.FormatOFX,
	".qif":  domain.FormatQIF,
	".xlsx": domain.FormatXLSX,
	".xlsm": domain.FormatXLSX,
}

// Detect resolves a format from the file name extension, case-insensitively.
// Unknown extensions fail with domain.ErrUnsupportedFormat.
func Detect(fileName string) (domain.Format, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if format, ok := extensions[ext]; ok {
		return format, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, fileName)
}

// Registry holds one parser per format, in detection order
type Registry struct {
	parsers []parser.Parser
}

// New creates a registry with all built-in parsers. Content-sniffing parsers
// come first so a .txt QIF export is not taken for delimited text.
func New() (*Registry, error) {
	r := &Registry{}
	for _, p := range []parser.Parser{
		ofx.NewParser(),
		qif.NewParser(),
		xlsx.NewParser(),
		csv.NewParser(),
	} {
		if err := r.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register built-in parser: %w", err)
		}
	}
	return r, nil
}

// MustNew creates a registry or panics. Built-in registration cannot fail.
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a parser. A later parser for an already registered format
// is rejected.
func (r *Registry) Register(p parser.Parser) error {
	if p == nil {
		return fmt.Errorf("cannot register nil parser")
	}
	for _, existing := range r.parsers {
		if existing.Format() == p.Format() {
			return fmt.Errorf("parser for format %q already registered", p.Format())
		}
	}
	r.parsers = append(r.parsers, p)
	return nil
}

// Parser returns the parser registered for a format
func (r *Registry) Parser(format domain.Format) (parser.Parser, error) {
	for _, p := range r.parsers {
		if p.Format() == format {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no parser registered for %q", domain.ErrUnsupportedFormat, format)
}

// Resolve picks the parser for a file given its leading bytes. The first
// parser whose CanParse accepts the file wins; otherwise the extension
// decides.
func (r *Registry) Resolve(fileName string, header []byte) (parser.Parser, error) {
	for _, p := range r.parsers {
		if p.CanParse(fileName, header) {
			return p, nil
		}
	}

	format, err := Detect(fileName)
	if err != nil {
		return nil, err
	}
	return r.Parser(format)
}

// FindParser opens a file on disk and resolves its parser from the header.
func (r *Registry) FindParser(path string) (parser.Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, header)
	// Statement files shorter than the header are fine
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}

	return r.Resolve(path, header[:n])
}

// Formats returns the registered formats in detection order
func (r *Registry) Formats() []domain.Format {
	formats := make([]domain.Format, len(r.parsers))
	for i, p := range r.parsers {
		formats[i] = p.Format()
	}
	return formats
}

package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/parser"
)

// mockParser implements parser.Parser for testing
type mockParser struct {
	format       domain.Format
	canParseFunc func(string, []byte) bool
}

func (m *mockParser) Format() domain.Format {
	return m.format
}

func (m *mockParser) CanParse(path string, header []byte) bool {
	if m.canParseFunc != nil {
		return m.canParseFunc(path, header)
	}
	return false
}

func (m *mockParser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	return nil, nil
}

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestDetect(t *testing.T) {
	tests := []struct {
		fileName string
		want     domain.Format
	}{
		{"extrato.csv", domain.FormatCSV},
		{"EXTRATO.CSV", domain.FormatCSV},
		{"extrato.txt", domain.FormatCSV},
		{"extrato.tsv", domain.FormatCSV},
		{"extrato.ofx", domain.FormatOFX},
		{"extrato.QFX", domain.FormatOFX},
		{"extrato.qif", domain.FormatQIF},
		{"/uploads/2026/extrato.xlsx", domain.FormatXLSX},
		{"extrato.xlsm", domain.FormatXLSX},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			got, err := Detect(tt.fileName)
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetect_Unsupported(t *testing.T) {
	for _, name := range []string{"extrato.pdf", "extrato", "extrato.xls", ".csv.bak"} {
		t.Run(name, func(t *testing.T) {
			_, err := Detect(name)
			if !errors.Is(err, domain.ErrUnsupportedFormat) {
				t.Fatalf("Detect() error = %v, want ErrUnsupportedFormat", err)
			}
			if !strings.Contains(err.Error(), name) {
				t.Errorf("error %q should name the file", err)
			}
		})
	}
}

func TestRegistry_New(t *testing.T) {
	reg, err := New()
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}

	want := []domain.Format{domain.FormatOFX, domain.FormatQIF, domain.FormatXLSX, domain.FormatCSV}
	got := reg.Formats()
	if len(got) != len(want) {
		t.Fatalf("Formats() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Formats()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := &Registry{}

	if err := reg.Register(nil); err == nil || !strings.Contains(err.Error(), "nil") {
		t.Errorf("Register(nil) error = %v, want nil parser error", err)
	}

	if err := reg.Register(&mockParser{format: domain.FormatCSV}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := reg.Register(&mockParser{format: domain.FormatCSV})
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Errorf("duplicate Register() error = %v, want 'already registered'", err)
	}
	if len(reg.Formats()) != 1 {
		t.Errorf("Formats() = %v, want one entry after duplicate rejection", reg.Formats())
	}
}

func TestRegistry_Parser(t *testing.T) {
	reg := MustNew()

	for _, format := range []domain.Format{domain.FormatCSV, domain.FormatOFX, domain.FormatQIF, domain.FormatXLSX} {
		p, err := reg.Parser(format)
		if err != nil {
			t.Fatalf("Parser(%q) error = %v", format, err)
		}
		if p.Format() != format {
			t.Errorf("Parser(%q).Format() = %q", format, p.Format())
		}
	}

	if _, err := reg.Parser("pdf"); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("Parser(pdf) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		header   string
		want     domain.Format
	}{
		{"ofx header", "extrato.ofx", "OFXHEADER:100\nDATA:OFXSGML\n", domain.FormatOFX},
		{"ofx extension without marker", "extrato.ofx", "garbage", domain.FormatOFX},
		{"qif in txt", "extrato.txt", "!Type:Bank\nD01/03/2026\n", domain.FormatQIF},
		{"delimited txt", "extrato.txt", "01/03/2026;x;1,00", domain.FormatCSV},
		{"xlsx zip", "extrato.xlsx", "PK\x03\x04", domain.FormatXLSX},
		{"csv", "extrato.csv", "Data;Descrição;Valor", domain.FormatCSV},
	}

	reg := MustNew()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := reg.Resolve(tt.fileName, []byte(tt.header))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if p.Format() != tt.want {
				t.Errorf("Resolve() format = %q, want %q", p.Format(), tt.want)
			}
		})
	}

	if _, err := reg.Resolve("extrato.pdf", []byte("%PDF-1.7")); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("Resolve(pdf) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRegistry_FindParser(t *testing.T) {
	reg := MustNew()

	path := createTempFile(t, "extrato.txt", "!Type:Bank\nD01/03/2026\nT-1,00\nPTaxa\n^\n")
	p, err := reg.FindParser(path)
	if err != nil {
		t.Fatalf("FindParser() error = %v", err)
	}
	if p.Format() != domain.FormatQIF {
		t.Errorf("FindParser() format = %q, want qif", p.Format())
	}
}

func TestRegistry_FindParser_FileErrors(t *testing.T) {
	tests := []struct {
		name          string
		filePath      string
		errorContains string
	}{
		{"missing file", "/nonexistent/file.ofx", "failed to open file"},
		{"directory instead of file", os.TempDir(), "failed to read header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MustNew().FindParser(tt.filePath)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.errorContains, err.Error())
			}
		})
	}
}

func TestRegistry_FindParser_HeaderReading(t *testing.T) {
	tests := []struct {
		name       string
		fileSize   int
		expectRead int
	}{
		{"empty file", 0, 0},
		{"small file", 100, 100},
		{"exactly header size", HeaderSize, HeaderSize},
		{"large file", 4 * HeaderSize, HeaderSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTempFile(t, "extrato.csv", strings.Repeat("x", tt.fileSize))

			var gotLen int
			reg := &Registry{}
			if err := reg.Register(&mockParser{
				format: domain.FormatCSV,
				canParseFunc: func(path string, header []byte) bool {
					gotLen = len(header)
					return true
				},
			}); err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			if _, err := reg.FindParser(path); err != nil {
				t.Fatalf("FindParser() error = %v", err)
			}
			if gotLen != tt.expectRead {
				t.Errorf("header length = %d, want %d", gotLen, tt.expectRead)
			}
		})
	}
}

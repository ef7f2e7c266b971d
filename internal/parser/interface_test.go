package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

func TestResult_FinishEmpty(t *testing.T) {
	meta, err := NewMetadata("/tmp/extrato.csv", time.Now())
	if err != nil {
		t.Fatalf("NewMetadata() error = %v", err)
	}

	r := NewResult(domain.FormatCSV)
	r.Skip(2, fmt.Errorf("invalid date"))

	_, err = r.Finish(meta)
	if !errors.Is(err, domain.ErrEmptyStatement) {
		t.Fatalf("Finish() error = %v, want ErrEmptyStatement", err)
	}
	if got := err.Error(); got == "" || !strings.Contains(got, "/tmp/extrato.csv") || !strings.Contains(got, "1 rows skipped") {
		t.Errorf("Finish() error = %q, want file name and skip count", got)
	}
}

func TestResult_FinishNonEmpty(t *testing.T) {
	r := NewResult(domain.FormatOFX)
	r.Add(domain.ParsedTransaction{Description: "x"})
	r.Skip(4, fmt.Errorf("bad amount"))

	got, err := r.Finish(nil)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if got.SkippedCount() != 1 {
		t.Errorf("SkippedCount() = %d, want 1", got.SkippedCount())
	}
	if got.Skipped[0].Row != 4 || got.Skipped[0].Reason != "bad amount" {
		t.Errorf("Skipped[0] = %+v", got.Skipped[0])
	}
}

func TestNewMetadata_Validation(t *testing.T) {
	if _, err := NewMetadata("", time.Now()); err == nil {
		t.Error("NewMetadata() expected error for empty path")
	}
	if _, err := NewMetadata("a.csv", time.Time{}); err == nil {
		t.Error("NewMetadata() expected error for zero time")
	}

	meta, err := NewMetadata("/uploads/2026/extrato.ofx", time.Now())
	if err != nil {
		t.Fatalf("NewMetadata() error = %v", err)
	}
	if meta.FileName() != "extrato.ofx" {
		t.Errorf("FileName() = %q, want extrato.ofx", meta.FileName())
	}
	if FileInfo(meta) != " from /uploads/2026/extrato.ofx" {
		t.Errorf("FileInfo() = %q", FileInfo(meta))
	}
	if FileInfo(nil) != "" {
		t.Errorf("FileInfo(nil) = %q, want empty", FileInfo(nil))
	}
}

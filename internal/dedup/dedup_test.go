package dedup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

func ptxn(day int, value string, kind domain.Kind, description string) domain.ParsedTransaction {
	return domain.ParsedTransaction{
		Date:        time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
		Description: description,
		Value:       decimal.RequireFromString(value),
		Kind:        kind,
	}
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint(ptxn(1, "450.00", domain.KindExpense, "Pagamento Fornecedor XYZ"))

	if len(base) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(base))
	}

	same := []struct {
		name string
		txn  domain.ParsedTransaction
	}{
		{"case", ptxn(1, "450.00", domain.KindExpense, "PAGAMENTO FORNECEDOR XYZ")},
		{"whitespace", ptxn(1, "450.00", domain.KindExpense, "  Pagamento   Fornecedor XYZ ")},
		{"trailing zeros", ptxn(1, "450", domain.KindExpense, "Pagamento Fornecedor XYZ")},
		{"raw line ignored", func() domain.ParsedTransaction {
			t := ptxn(1, "450.00", domain.KindExpense, "Pagamento Fornecedor XYZ")
			t.RawLine = "anything"
			return t
		}()},
	}
	for _, tt := range same {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fingerprint(tt.txn); got != base {
				t.Errorf("Fingerprint() = %s, want %s", got, base)
			}
		})
	}

	different := []struct {
		name string
		txn  domain.ParsedTransaction
	}{
		{"date", ptxn(2, "450.00", domain.KindExpense, "Pagamento Fornecedor XYZ")},
		{"value", ptxn(1, "450.01", domain.KindExpense, "Pagamento Fornecedor XYZ")},
		{"kind", ptxn(1, "450.00", domain.KindIncome, "Pagamento Fornecedor XYZ")},
		{"description", ptxn(1, "450.00", domain.KindExpense, "Pagamento Fornecedor XY")},
	}
	for _, tt := range different {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fingerprint(tt.txn); got == base {
				t.Errorf("Fingerprint() should differ when %s changes", tt.name)
			}
		})
	}
}

func TestFindDuplicates(t *testing.T) {
	txns := []domain.ParsedTransaction{
		ptxn(1, "10.00", domain.KindExpense, "Tarifa"),
		ptxn(1, "99.00", domain.KindIncome, "Venda"),
		ptxn(1, "10.00", domain.KindExpense, "TARIFA"),
		ptxn(2, "10.00", domain.KindExpense, "Tarifa"),
		ptxn(1, "99.00", domain.KindIncome, "Venda"),
		ptxn(1, "10.00", domain.KindExpense, "Tarifa"),
	}

	groups := FindDuplicates(txns)
	if len(groups) != 2 {
		t.Fatalf("FindDuplicates() returned %d groups, want 2: %+v", len(groups), groups)
	}

	want := [][]int{{0, 2, 5}, {1, 4}}
	for i, g := range groups {
		if len(g.Indexes) != len(want[i]) {
			t.Fatalf("group %d indexes = %v, want %v", i, g.Indexes, want[i])
		}
		for j := range want[i] {
			if g.Indexes[j] != want[i][j] {
				t.Errorf("group %d indexes = %v, want %v", i, g.Indexes, want[i])
			}
		}
	}
}

func TestFindDuplicates_None(t *testing.T) {
	if groups := FindDuplicates(nil); len(groups) != 0 {
		t.Errorf("FindDuplicates(nil) = %v, want none", groups)
	}

	txns := []domain.ParsedTransaction{
		ptxn(1, "1.00", domain.KindExpense, "A"),
		ptxn(1, "1.00", domain.KindExpense, "B"),
	}
	if groups := FindDuplicates(txns); len(groups) != 0 {
		t.Errorf("FindDuplicates() = %v, want none", groups)
	}
}

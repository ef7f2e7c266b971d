package parser

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"brazilian decimal", "450,00", "450"},
		{"brazilian negative", "-450,00", "-450"},
		{"brazilian thousands", "1.234,56", "1234.56"},
		{"brazilian millions", "1.234.567,89", "1234567.89"},
		{"plain dot decimal", "1234.56", "1234.56"},
		{"us thousands", "1,234.56", "1234.56"},
		{"dot thousands only", "1.234.567", "1234567"},
		{"currency symbol", "R$ 1.234,56", "1234.56"},
		{"currency after minus", "-R$ 10,50", "-10.5"},
		{"currency before minus", "R$ -10,50", "-10.5"},
		{"dollar", "$1,000.00", "1000"},
		{"parentheses", "(450,00)", "-450"},
		{"trailing minus", "450,00-", "-450"},
		{"debit marker", "450,00 D", "-450"},
		{"debit marker no space", "450,00D", "-450"},
		{"credit marker", "450,00 C", "450"},
		{"leading plus", "+99,90", "99.9"},
		{"non-breaking space", "1 234,56", "1234.56"},
		{"integer", "100", "100"},
		{"lone dot thousands", "1.234", "1234"},
		{"lone comma thousands", "1,234", "1234"},
		{"lone thousands negative", "-12.500", "-12500"},
		{"lone thousands with currency", "R$ 150.000", "150000"},
		{"three decimals after zero", "0,125", "0.125"},
		{"four digit whole is decimal", "1234,567", "1234.567"},
		{"two decimals stay decimal", "12,50", "12.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "12abc", "1,2,3.4.5", "--", "R$"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseAmount(input)
			assert.Error(t, err)
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, input := range []string{
		"01/03/2026",
		"1/3/2026",
		"01/03/26",
		"01-03-2026",
		"01.03.2026",
		"2026-03-01",
		"2026/03/01",
		"20260301",
		"2026-03-01T15:04:05Z",
		"01/03/2026 23:59:59",
	} {
		t.Run(input, func(t *testing.T) {
			got, err := ParseDate(input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseDateOrder_MonthFirst(t *testing.T) {
	got, err := ParseDateOrder("03/01/2026", MonthFirst)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDateOrder("2026-03-01", MonthFirst)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDate_Invalid(t *testing.T) {
	for _, input := range []string{"", "32/01/2026", "01/13/2026", "yesterday", "2026-02-30"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDate(input)
			assert.Error(t, err)
		})
	}
}

func TestNormalizeDescription(t *testing.T) {
	assert.Equal(t, "Pagamento Fornecedor XYZ", NormalizeDescription("  Pagamento   Fornecedor\tXYZ \n"))
	assert.Equal(t, "", NormalizeDescription("   "))
}

package qif

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/parser"
)

func TestCanParse(t *testing.T) {
	p := NewParser()

	assert.True(t, p.CanParse("extrato.qif", nil))
	assert.True(t, p.CanParse("EXTRATO.QIF", []byte("garbage")))
	assert.True(t, p.CanParse("extrato.txt", []byte("!Type:Bank\nD01/03/2026")))
	assert.True(t, p.CanParse("extrato.txt", []byte("\ufeff!type:CCard\n")))
	assert.False(t, p.CanParse("extrato.txt", []byte("01/03/2026;x;1,00")))
	assert.False(t, p.CanParse("extrato.csv", []byte("!Type:Bank")))
}

func TestParse_BankRecords(t *testing.T) {
	content := strings.Join([]string{
		"!Type:Bank",
		"D01/03/2026",
		"T-450,00",
		"PPagamento Fornecedor XYZ",
		"N1001",
		"^",
		"D15/03/2026",
		"T1.500,00",
		"MRecebimento cliente",
		"LVendas",
		"^",
	}, "\n")

	meta, err := parser.NewMetadata("extrato.qif", time.Now())
	require.NoError(t, err)

	result, err := NewParser().Parse(context.Background(), strings.NewReader(content), meta)
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, domain.FormatQIF, result.Format)

	first := result.Transactions[0]
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "Pagamento Fornecedor XYZ", first.Description)
	assert.Equal(t, domain.KindExpense, first.Kind)
	assert.True(t, first.Value.Equal(decimal.NewFromInt(450)))
	assert.Equal(t, "1001", first.DocumentNumber)
	assert.Equal(t, "D01/03/2026\nT-450,00\nPPagamento Fornecedor XYZ\nN1001", first.RawLine)

	second := result.Transactions[1]
	assert.Equal(t, "Recebimento cliente", second.Description)
	assert.Equal(t, domain.KindIncome, second.Kind)
	assert.True(t, second.Value.Equal(decimal.NewFromInt(1500)))
	assert.Empty(t, second.DocumentNumber)
}

func TestParse_MonthFirstDetected(t *testing.T) {
	content := "!Type:CCard\nD03/01/2026\nT-10.00\nPCafe\n^\nD03/25/2026\nT-20.00\nPLunch\n^\n"

	result, err := NewParser().Parse(context.Background(), strings.NewReader(content), nil)
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), result.Transactions[0].Date)
	assert.Equal(t, time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC), result.Transactions[1].Date)
}

func TestParse_ApostropheYear(t *testing.T) {
	content := "!Type:Bank\nD 1/ 3'26\nU-99.90\nPTarifa\n^\n"

	result, err := NewParser().Parse(context.Background(), strings.NewReader(content), nil)
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), result.Transactions[0].Date)
	assert.True(t, result.Transactions[0].Value.Equal(decimal.RequireFromString("99.90")))
}

func TestParse_SkipsMalformedRecords(t *testing.T) {
	content := strings.Join([]string{
		"!Type:Bank",   // line 1
		"D01/03/2026",  // line 2
		"T100,00",      // line 3
		"PVenda",       // line 4
		"^",            // line 5
		"D99/99/2026",  // line 6
		"T10,00",       // line 7
		"PData ruim",   // line 8
		"^",            // line 9
		"D02/03/2026",  // line 10
		"PSem valor",   // line 11
		"^",            // line 12
		"D03/03/2026",  // line 13
		"T5,00",        // line 14
		"^",            // line 15
	}, "\n")

	result, err := NewParser().Parse(context.Background(), strings.NewReader(content), nil)
	require.NoError(t, err)
	assert.Len(t, result.Transactions, 1)
	require.Equal(t, 3, result.SkippedCount())
	assert.Equal(t, 6, result.Skipped[0].Row)
	assert.Equal(t, 10, result.Skipped[1].Row)
	assert.Contains(t, result.Skipped[1].Reason, "amount")
	assert.Equal(t, 13, result.Skipped[2].Row)
	assert.Contains(t, result.Skipped[2].Reason, "payee")
}

func TestParse_IgnoresNonCashSections(t *testing.T) {
	content := strings.Join([]string{
		"!Account",
		"NConta Corrente",
		"TBank",
		"^",
		"!Type:Cat",
		"NAluguel",
		"E",
		"^",
		"!Type:Bank",
		"D05/03/2026",
		"T-2.000,00",
		"PAluguel escritorio",
		"^",
	}, "\n")

	result, err := NewParser().Parse(context.Background(), strings.NewReader(content), nil)
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "Aluguel escritorio", result.Transactions[0].Description)
	assert.Zero(t, result.SkippedCount())
}

func TestParse_TrailingRecordWithoutTerminator(t *testing.T) {
	content := "!Type:Bank\r\nD01/03/2026\r\nT-1,00\r\nPTaxa\r\n"

	result, err := NewParser().Parse(context.Background(), strings.NewReader(content), nil)
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "Taxa", result.Transactions[0].Description)
}

func TestParse_EmptyStatement(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), strings.NewReader("!Type:Bank\n"), nil)
	assert.True(t, errors.Is(err, domain.ErrEmptyStatement))
}

func TestParse_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().Parse(ctx, strings.NewReader("!Type:Bank\n"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

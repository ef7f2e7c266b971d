package finreport_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/finreport/internal/batch"
	"github.com/rumor-ml/commons.systems/finreport/internal/catalog"
	"github.com/rumor-ml/commons.systems/finreport/internal/classify"
	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/period"
	"github.com/rumor-ml/commons.systems/finreport/internal/pipeline"
	"github.com/rumor-ml/commons.systems/finreport/internal/registry"
	"github.com/rumor-ml/commons.systems/finreport/internal/scanner"
	"github.com/rumor-ml/commons.systems/finreport/internal/store/sqlite"
)

const marchCSV = "Data;Descrição;Valor\n" +
	"01/03/2026;Pagamento Fornecedor XYZ;-450,00\n" +
	"02/03/2026;PIX recebido Cliente ABC;1.200,50\n" +
	"04/03/2026;Compra diversa;-12,00\n"

const aprilQIF = "!Type:Bank\n" +
	"D02/04/2026\nT-1.500,00\nPAluguel sala comercial\n^\n" +
	"D05/04/2026\nT3.000,00\nPVenda balcao\n^\n"

func writeStatement(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// TestIntegration_ImportToReport drives a directory of statements through
// scanning, classification, batch commit and the period report.
func TestIntegration_ImportToReport(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeStatement(t, root, "itau/0001/2026-03/extrato.csv", marchCSV)
	writeStatement(t, root, "itau/0001/2026-04/extrato.qif", aprilQIF)
	writeStatement(t, root, "itau/0001/notas.md", "not a statement")

	files, err := scanner.New(root).Scan()
	require.NoError(t, err)
	require.Len(t, files, 2)

	cat, err := catalog.LoadEmbedded()
	require.NoError(t, err)
	st, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := pipeline.New(registry.MustNew(), nil)
	results, err := p.PreviewFiles(ctx, scanner.Paths(files), cat.Categories(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	importer := batch.NewImporter(st, cat)
	for _, r := range results {
		require.NoError(t, r.Err)
		b, err := importer.Commit(ctx, r.Preview.FileName, r.Preview.Format, r.Preview.Results, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.BatchStatusCommitted, b.Status)
	}

	batches, err := st.ListBatches(ctx)
	require.NoError(t, err)
	assert.Len(t, batches, 2)
	txns, err := st.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txns, 5)

	svc := period.NewService(st, st, cat)
	march, err := svc.Create(ctx, period.CreateRequest{
		Granularity: domain.GranularityMonthly,
		Start:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-03", march.ID)

	_, err = svc.AddEntry(ctx, march.ID, period.EntryInput{CategoryID: "aluguel", Description: "Aluguel março", Value: money("1500")})
	require.NoError(t, err)

	report, err := svc.Report(ctx, march.ID)
	require.NoError(t, err)
	assert.True(t, report.ReceitaBruta.Equal(money("1200.50")), "receita bruta %s", report.ReceitaBruta)
	assert.True(t, report.CustoProdutos.Equal(money("450")), "custo %s", report.CustoProdutos)
	assert.True(t, report.LucroBruto.Equal(money("750.50")), "lucro bruto %s", report.LucroBruto)
	assert.True(t, report.DespesasAdministrativas.Equal(money("1500")))
	assert.True(t, report.LucroLiquido.Equal(money("-749.50")), "lucro liquido %s", report.LucroLiquido)
	assert.Equal(t, 62.52, report.MargemBruta)

	_, err = svc.Close(ctx, march.ID)
	require.NoError(t, err)
	_, err = svc.AddEntry(ctx, march.ID, period.EntryInput{CategoryID: "aluguel", Value: money("1")})
	assert.ErrorIs(t, err, domain.ErrPeriodClosed)

	q1, err := svc.Create(ctx, period.CreateRequest{
		Granularity: domain.GranularityQuarterly,
		Start:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	second, err := svc.Create(ctx, period.CreateRequest{
		ID:          "2026-q2",
		Granularity: domain.GranularityQuarterly,
		Start:       time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	trend, err := svc.Trend(ctx, 0)
	require.NoError(t, err)
	require.Len(t, trend, 3)
	assert.Equal(t, []string{q1.ID, march.ID, second.ID},
		[]string{trend[0].PeriodID, trend[1].PeriodID, trend[2].PeriodID})
	assert.True(t, trend[0].ReceitaBruta.Equal(money("1200.50")))
	assert.True(t, trend[0].DespesasAdministrativas.IsZero(), "manual entries belong to the monthly period only")
	assert.True(t, trend[1].LucroLiquido.Equal(report.LucroLiquido))
	assert.True(t, trend[2].ReceitaBruta.Equal(money("3000")))
	assert.True(t, trend[2].DespesasAdministrativas.Equal(money("1500")))
}

// TestIntegration_HistoryLearnsFromCommits re-imports a statement after a
// committed batch and expects the remembered category to win.
func TestIntegration_HistoryLearnsFromCommits(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.LoadEmbedded()
	require.NoError(t, err)
	st, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := pipeline.New(registry.MustNew(), nil)
	root := t.TempDir()
	writeStatement(t, root, "extrato.csv", marchCSV)
	path := filepath.Join(root, "extrato.csv")

	first, err := p.PreviewFile(ctx, path, cat.Categories(), nil)
	require.NoError(t, err)
	require.False(t, first.Results[2].IsClassified())

	// Classify the purchase by hand before committing.
	first.Results[2].Override("material-de-escritorio")

	_, err = batch.NewImporter(st, cat).Commit(ctx, first.FileName, first.Format, first.Results, nil)
	require.NoError(t, err)

	txns, err := st.ListTransactions(ctx)
	require.NoError(t, err)
	second, err := p.PreviewFile(ctx, path, cat.Categories(), classify.HistoryFrom(txns))
	require.NoError(t, err)
	assert.Equal(t, "material-de-escritorio", second.Results[2].SuggestedCategoryID)
}

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/finreport/internal/catalog"
	"github.com/rumor-ml/commons.systems/finreport/internal/classify"
	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/registry"
)

const csvStatement = "Data;Descrição;Valor\n" +
	"01/03/2026;Pagamento Fornecedor XYZ;-450,00\n" +
	"02/03/2026;PIX recebido Cliente ABC;1.200,50\n" +
	"03/03/2026;linha quebrada\n" +
	"04/03/2026;Compra diversa;-12,00\n"

const qifStatement = "!Type:Bank\nD01/03/2026\nT-89,90\nPConta de energia CPFL\n^\n"

func newPipeline(t *testing.T) (*Pipeline, []domain.Category) {
	t.Helper()
	cat, err := catalog.LoadEmbedded()
	require.NoError(t, err)
	return New(registry.MustNew(), nil), cat.Categories()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestPreview(t *testing.T) {
	p, categories := newPipeline(t)

	preview, err := p.Preview(context.Background(), "extrato.csv", strings.NewReader(csvStatement), categories, nil)
	require.NoError(t, err)

	assert.Equal(t, "extrato.csv", preview.FileName)
	assert.Equal(t, domain.FormatCSV, preview.Format)
	require.Len(t, preview.Results, 3)
	assert.Len(t, preview.Skipped, 1)

	assert.Equal(t, "fornecedores", preview.Results[0].SuggestedCategoryID)
	assert.Equal(t, domain.KindIncome, preview.Results[1].Transaction.Kind)
	assert.Equal(t, "vendas-de-mercadorias", preview.Results[1].SuggestedCategoryID)
	assert.False(t, preview.Results[2].IsClassified())
	assert.Equal(t, 2, preview.Classified())
}

func TestPreview_HistoryWins(t *testing.T) {
	p, categories := newPipeline(t)
	history := classify.History{
		{Description: "Compra diversa", CategoryID: "aluguel"},
	}

	preview, err := p.Preview(context.Background(), "extrato.csv", strings.NewReader(csvStatement), categories, history)
	require.NoError(t, err)
	assert.Equal(t, "aluguel", preview.Results[2].SuggestedCategoryID)
}

func TestPreview_SniffsContent(t *testing.T) {
	p, categories := newPipeline(t)

	preview, err := p.Preview(context.Background(), "extrato.txt", strings.NewReader(qifStatement), categories, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.FormatQIF, preview.Format)
	require.Len(t, preview.Results, 1)
	assert.Equal(t, "energia-eletrica", preview.Results[0].SuggestedCategoryID)
}

func TestPreview_Errors(t *testing.T) {
	p, categories := newPipeline(t)
	ctx := context.Background()

	_, err := p.Preview(ctx, "extrato.pdf", strings.NewReader("%PDF-1.7"), categories, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = p.Preview(ctx, "extrato.csv", strings.NewReader("Data;Descrição;Valor\n"), categories, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyStatement)
	assert.ErrorContains(t, err, "extrato.csv")
}

func TestPreviewFiles(t *testing.T) {
	p, categories := newPipeline(t)
	dir := t.TempDir()

	paths := []string{
		writeFile(t, dir, "marco.csv", csvStatement),
		writeFile(t, dir, "vazio.csv", ""),
		writeFile(t, dir, "luz.qif", qifStatement),
		filepath.Join(dir, "missing.ofx"),
	}

	results, err := p.PreviewFiles(context.Background(), paths, categories, nil)
	require.NoError(t, err)
	require.Len(t, results, len(paths))

	for i, r := range results {
		assert.Equal(t, paths[i], r.Path, "results keep input order")
	}
	require.NoError(t, results[0].Err)
	assert.Len(t, results[0].Preview.Results, 3)
	assert.ErrorIs(t, results[1].Err, domain.ErrEmptyStatement)
	require.NoError(t, results[2].Err)
	assert.Equal(t, domain.FormatQIF, results[2].Preview.Format)
	assert.ErrorContains(t, results[3].Err, "failed to open file")
}

func TestPreviewFiles_Cancelled(t *testing.T) {
	p, categories := newPipeline(t)
	path := writeFile(t, t.TempDir(), "marco.csv", csvStatement)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PreviewFiles(ctx, []string{path}, categories, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

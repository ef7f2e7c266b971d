package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/store"
	"github.com/rumor-ml/commons.systems/finreport/internal/store/sqlite"
)

type staticCategories []domain.Category

func (c staticCategories) Categories() []domain.Category { return c }

var categories = staticCategories{
	{ID: "vendas", Name: "Vendas", Bucket: domain.BucketReceitaBruta},
	{ID: "fornecedores", Name: "Fornecedores", Bucket: domain.BucketCustoProdutos},
}

func result(day int, value string, kind domain.Kind, description, categoryID string) domain.ClassificationResult {
	r := domain.ClassificationResult{
		Transaction: domain.ParsedTransaction{
			Date:        time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
			Description: description,
			Value:       decimal.RequireFromString(value),
			Kind:        kind,
			RawLine:     description,
		},
	}
	if categoryID != "" {
		r.SuggestedCategoryID = categoryID
		r.Confidence = 0.6
	}
	return r
}

func sampleResults() []domain.ClassificationResult {
	docResult := result(3, "89.90", domain.KindExpense, "Boleto 123", "")
	docResult.Transaction.DocumentNumber = "123"
	return []domain.ClassificationResult{
		result(1, "450.00", domain.KindExpense, "Pagamento Fornecedor XYZ", "fornecedores"),
		result(2, "1200.50", domain.KindIncome, "PIX recebido Cliente", "vendas"),
		docResult,
	}
}

// failingStore fails SaveBatch and records what it was given
type failingStore struct {
	store.BatchStore
	err   error
	saved *domain.ImportBatch
}

func (f *failingStore) SaveBatch(ctx context.Context, b domain.ImportBatch, txns []domain.PersistedTransaction, progress store.Progress) error {
	f.saved = &b
	return f.err
}

func TestBuildBatch(t *testing.T) {
	b := BuildBatch("extrato.csv", domain.FormatCSV, sampleResults())

	assert.Equal(t, "extrato.csv", b.FileName)
	assert.Equal(t, domain.FormatCSV, b.Format)
	assert.Equal(t, 3, b.TotalCount)
	assert.Equal(t, 2, b.ClassifiedCount)
	assert.Equal(t, 1, b.UnclassifiedCount)
	assert.Equal(t, "1200.50", b.TotalIncome.StringFixed(2))
	assert.Equal(t, "539.90", b.TotalExpense.StringFixed(2))
}

func TestBuildBatch_Empty(t *testing.T) {
	b := BuildBatch("vazio.csv", domain.FormatCSV, nil)

	assert.Zero(t, b.TotalCount)
	assert.True(t, b.TotalIncome.IsZero())
	assert.True(t, b.TotalExpense.IsZero())
}

func TestToPersisted(t *testing.T) {
	txns := ToPersisted(sampleResults(), "b1", domain.SourceImportCSV)
	require.Len(t, txns, 3)

	expense := txns[0]
	assert.Equal(t, domain.KindExpense, expense.Kind)
	assert.Equal(t, domain.StatusPaid, expense.Status)
	assert.Equal(t, domain.SourceImportCSV, expense.Source)
	assert.Equal(t, "fornecedores", expense.CategoryID)
	assert.True(t, expense.IsClassified)
	assert.Equal(t, "b1", expense.BatchID)
	require.NotNil(t, expense.PaidDate)
	assert.Equal(t, expense.Date, *expense.PaidDate)
	assert.Equal(t, expense.Date, expense.DueDate)

	assert.Equal(t, domain.StatusReceived, txns[1].Status)

	assert.False(t, txns[2].IsClassified)
	assert.Empty(t, txns[2].CategoryID)
	assert.Equal(t, "123", txns[2].DocumentNumber)

	for _, txn := range txns {
		assert.NoError(t, txn.Validate())
	}

	again := ToPersisted(sampleResults(), "b1", domain.SourceImportCSV)
	assert.Equal(t, txns[0].ID, again[0].ID, "IDs are deterministic")
	assert.NotEqual(t, txns[0].ID, txns[1].ID)
}

func TestToPersisted_RepeatedTransactionsGetDistinctIDs(t *testing.T) {
	r := result(1, "10.00", domain.KindExpense, "Tarifa", "")
	txns := ToPersisted([]domain.ClassificationResult{r, r}, "b1", domain.SourceImportOFX)
	assert.NotEqual(t, txns[0].ID, txns[1].ID)
}

func newImporter(s store.BatchStore) *Importer {
	im := NewImporter(s, categories)
	im.now = func() time.Time { return time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC) }
	im.newID = func() string { return "batch-1" }
	return im
}

func TestCommit(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer st.Close()

	var last [2]int
	b, err := newImporter(st).Commit(ctx, "extrato.csv", domain.FormatCSV, sampleResults(), func(written, total int) {
		last = [2]int{written, total}
	})
	require.NoError(t, err)

	assert.Equal(t, "batch-1", b.ID)
	assert.Equal(t, domain.BatchStatusCommitted, b.Status)
	assert.Equal(t, [2]int{3, 3}, last)

	stored, err := st.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ClassifiedCount)

	txns, err := st.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txns, stored.TotalCount)
	for _, txn := range txns {
		assert.Equal(t, domain.SourceImportCSV, txn.Source)
		assert.Equal(t, "batch-1", txn.BatchID)
	}
}

func TestCommit_PartialImport(t *testing.T) {
	fs := &failingStore{err: errors.New("deadline exceeded")}

	b, err := newImporter(fs).Commit(context.Background(), "extrato.ofx", domain.FormatOFX, sampleResults(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPartialImport)
	assert.Contains(t, err.Error(), "extrato.ofx")
	assert.Contains(t, err.Error(), "batch-1")
	assert.Contains(t, err.Error(), "deadline exceeded")

	assert.Equal(t, "batch-1", b.ID)
	assert.Equal(t, domain.BatchStatusPartial, b.Status)
	require.NotNil(t, fs.saved)
	assert.Equal(t, 3, fs.saved.TotalCount)
}

func TestCommit_Rejected(t *testing.T) {
	fs := &failingStore{}
	im := newImporter(fs)
	ctx := context.Background()

	_, err := im.Commit(ctx, "vazio.csv", domain.FormatCSV, nil, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyStatement)

	_, err = im.Commit(ctx, "extrato.pdf", "pdf", sampleResults(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bad := sampleResults()
	bad[0].SuggestedCategoryID = "removida"
	_, err = im.Commit(ctx, "extrato.csv", domain.FormatCSV, bad, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "removida")

	assert.Nil(t, fs.saved, "nothing reaches the store when validation fails")
}

func TestCommit_ReviewerOverride(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer st.Close()

	results := sampleResults()
	results[2].Override("fornecedores")
	results[0].Override("")

	b, err := newImporter(st).Commit(ctx, "extrato.qif", domain.FormatQIF, results, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, b.ClassifiedCount)
	assert.Equal(t, 1, b.UnclassifiedCount)
}

func TestPrepareThenSave(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer st.Close()

	im := newImporter(st)
	plan, err := im.Prepare(ctx, "extrato.xlsx", domain.FormatXLSX, sampleResults())
	require.NoError(t, err)
	assert.Equal(t, "batch-1", plan.Batch.ID)
	assert.Len(t, plan.Transactions, 3)

	_, err = st.GetBatch(ctx, "batch-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "Prepare writes nothing")

	b, err := im.Save(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCommitted, b.Status)

	stored, err := st.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FormatXLSX, stored.Format)
}

package firestore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodDoc(t *testing.T) {
	closedAt := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	p := domain.Period{
		ID:          "2026-03",
		Name:        "Março 2026",
		Granularity: domain.GranularityMonthly,
		Start:       date(2026, 3, 1),
		End:         date(2026, 3, 31),
		IsClosed:    true,
		ClosedAt:    &closedAt,
	}

	doc := toPeriodDoc("user-1", p)
	assert.Equal(t, "user-1", doc.UserID)
	assert.Equal(t, "2026-03-01", doc.Start)
	assert.Equal(t, "2026-03-31", doc.End)

	got, err := doc.period()
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPeriodDoc_InvalidDate(t *testing.T) {
	_, err := periodDoc{ID: "p", Start: "01/03/2026", End: "2026-03-31"}.period()
	assert.ErrorContains(t, err, "period p")
}

func TestEntryDoc(t *testing.T) {
	e := domain.ManualEntry{
		ID:          "e1",
		PeriodID:    "2026-03",
		CategoryID:  "aluguel",
		Description: "Aluguel sala",
		Value:       decimal.RequireFromString("2500.10"),
	}
	created := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	doc := toEntryDoc("user-1", e, created)
	assert.Equal(t, "2500.1", doc.Value)
	assert.Equal(t, created, doc.CreatedAt)

	got, err := doc.entry()
	require.NoError(t, err)
	assert.True(t, e.Value.Equal(got.Value))
	assert.Equal(t, e.CategoryID, got.CategoryID)

	_, err = entryDoc{ID: "e2", Value: "R$ 10"}.entry()
	assert.ErrorContains(t, err, "invalid value")
}

func TestBatchDoc(t *testing.T) {
	b := domain.ImportBatch{
		ID:                "b1",
		FileName:          "extrato.ofx",
		Format:            domain.FormatOFX,
		TotalCount:        3,
		ClassifiedCount:   2,
		UnclassifiedCount: 1,
		TotalIncome:       decimal.RequireFromString("1200.50"),
		TotalExpense:      decimal.RequireFromString("539.90"),
		Status:            domain.BatchStatusCommitted,
		CreatedAt:         time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}

	got, err := toBatchDoc("user-1", b).batch()
	require.NoError(t, err)
	assert.True(t, b.TotalIncome.Equal(got.TotalIncome))
	assert.True(t, b.TotalExpense.Equal(got.TotalExpense))
	assert.Equal(t, b.Status, got.Status)
	assert.Equal(t, b.TotalCount, got.TotalCount)
}

func TestTransactionDoc(t *testing.T) {
	paid := date(2026, 3, 10)
	txn := domain.PersistedTransaction{
		ID:           "txn-1",
		Kind:         domain.KindExpense,
		Status:       domain.StatusPaid,
		Source:       domain.SourceImportCSV,
		Description:  "Conta de luz",
		Value:        decimal.RequireFromString("200.00"),
		Date:         paid,
		DueDate:      paid,
		PaidDate:     &paid,
		CategoryID:   "energia-eletrica",
		IsClassified: true,
		BatchID:      "b1",
	}

	doc := toTransactionDoc("user-1", txn)
	assert.Equal(t, "2026-03-10", doc.PaidDate)

	got, err := doc.transaction()
	require.NoError(t, err)
	require.NotNil(t, got.PaidDate)
	assert.Equal(t, paid, *got.PaidDate)
	assert.NoError(t, got.Validate())

	txn.PaidDate = nil
	txn.Status = domain.StatusPending
	got, err = toTransactionDoc("user-1", txn).transaction()
	require.NoError(t, err)
	assert.Nil(t, got.PaidDate)
}

func TestDocID(t *testing.T) {
	assert.Equal(t, "u1_2026-03", docID("u1", "2026-03"))
	assert.Equal(t, "u1_2026-03_e1", docID("u1", "2026-03", "e1"))
	assert.NotEqual(t, docID("u1", "p"), docID("u2", "p"))
}

func TestChunks(t *testing.T) {
	tests := []struct {
		n, size int
		want    []span
	}{
		{0, 400, nil},
		{1, 400, []span{{0, 1}}},
		{400, 400, []span{{0, 400}}},
		{401, 400, []span{{0, 400}, {400, 401}}},
		{1000, 400, []span{{0, 400}, {400, 800}, {800, 1000}}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chunks(tt.n, tt.size), "chunks(%d, %d)", tt.n, tt.size)
	}
}

func TestSortTransactions(t *testing.T) {
	txns := []domain.PersistedTransaction{
		{ID: "b", Date: date(2026, 3, 2)},
		{ID: "c", Date: date(2026, 3, 1)},
		{ID: "a", Date: date(2026, 3, 2)},
	}
	sortTransactions(txns)
	assert.Equal(t, "c", txns[0].ID)
	assert.Equal(t, "a", txns[1].ID)
	assert.Equal(t, "b", txns[2].ID)
}

// Package batch turns reviewed classification results into an import batch
// and commits it, with its transactions, as one unit.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/dedup"
	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
	"github.com/rumor-ml/commons.systems/finreport/internal/store"
	"github.com/rumor-ml/commons.systems/finreport/internal/transform"
	"github.com/rumor-ml/commons.systems/finreport/internal/validate"
)

// BuildBatch summarizes classification results. ID, Status and CreatedAt
// are left for the caller.
func BuildBatch(fileName string, format domain.Format, results []domain.ClassificationResult) domain.ImportBatch {
	b := domain.ImportBatch{
		FileName:     fileName,
		Format:       format,
		TotalCount:   len(results),
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}

	for _, r := range results {
		if r.IsClassified() {
			b.ClassifiedCount++
		}
		switch r.Transaction.Kind {
		case domain.KindIncome:
			b.TotalIncome = b.TotalIncome.Add(r.Transaction.Value)
		case domain.KindExpense:
			b.TotalExpense = b.TotalExpense.Add(r.Transaction.Value)
		}
	}
	b.UnclassifiedCount = b.TotalCount - b.ClassifiedCount

	return b
}

// ToPersisted maps results to the stored transaction shape. Imported
// transactions are already settled: income is received and expenses paid on
// the transaction date.
func ToPersisted(results []domain.ClassificationResult, batchID string, source domain.Source) []domain.PersistedTransaction {
	txns := make([]domain.PersistedTransaction, len(results))
	for i, r := range results {
		t := r.Transaction
		paid := t.Date

		status := domain.StatusPaid
		if t.Kind == domain.KindIncome {
			status = domain.StatusReceived
		}

		txns[i] = domain.PersistedTransaction{
			ID:             transform.TransactionID(batchID, i, dedup.Fingerprint(t)),
			Kind:           t.Kind,
			Status:         status,
			Source:         source,
			Description:    t.Description,
			Value:          t.Value,
			Date:           t.Date,
			DueDate:        t.Date,
			PaidDate:       &paid,
			CategoryID:     r.SuggestedCategoryID,
			DocumentNumber: t.DocumentNumber,
			IsClassified:   r.IsClassified(),
			BatchID:        batchID,
		}
	}
	return txns
}

// Categories supplies the current chart of accounts
type Categories interface {
	Categories() []domain.Category
}

// Importer commits reviewed results through a batch store
type Importer struct {
	store      store.BatchStore
	categories Categories
	now        func() time.Time
	newID      func() string
}

// NewImporter creates an importer. categories may be nil to skip category
// reference checks.
func NewImporter(s store.BatchStore, categories Categories) *Importer {
	return &Importer{
		store:      s,
		categories: categories,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Plan is a validated batch ready to be saved
type Plan struct {
	Batch        domain.ImportBatch
	Transactions []domain.PersistedTransaction
}

// Prepare validates the results and builds the batch with its transactions
// and a fresh id. Nothing is written.
func (im *Importer) Prepare(ctx context.Context, fileName string, format domain.Format, results []domain.ClassificationResult) (*Plan, error) {
	log := logger.FromContext(ctx).With().Str("file", fileName).Str("format", string(format)).Logger()

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s has no transactions to import", domain.ErrEmptyStatement, fileName)
	}
	source, err := domain.ImportSource(format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}

	var categories []domain.Category
	if im.categories != nil {
		categories = im.categories.Categories()
	}

	check := validate.ValidateResults(results, categories)
	for _, w := range check.Warnings {
		log.Warn().Str("row", w.ID).Msg(w.Message)
	}
	if err := check.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}

	b := BuildBatch(fileName, format, results)
	b.ID = im.newID()
	b.Status = domain.BatchStatusCommitted
	b.CreatedAt = im.now().UTC()
	txns := ToPersisted(results, b.ID, source)

	if err := validate.ValidateBatch(b, txns, categories).Err(); err != nil {
		return nil, fmt.Errorf("%s (batch %s): %w", fileName, b.ID, err)
	}
	return &Plan{Batch: b, Transactions: txns}, nil
}

// Save persists a prepared batch with all of its transactions. A storage
// failure is reported as domain.ErrPartialImport naming the file and batch,
// together with the batch marked partial; the store guarantees it is not
// visible as committed.
func (im *Importer) Save(ctx context.Context, plan *Plan, progress store.Progress) (domain.ImportBatch, error) {
	b := plan.Batch
	log := logger.FromContext(ctx).With().
		Str("file", b.FileName).
		Str("format", string(b.Format)).
		Str("batch_id", b.ID).
		Logger()

	if err := im.store.SaveBatch(ctx, b, plan.Transactions, progress); err != nil {
		log.Error().Err(err).Int("transactions", len(plan.Transactions)).Msg("batch commit failed")
		b.Status = domain.BatchStatusPartial
		return b, fmt.Errorf("%w: %s (batch %s): %w", domain.ErrPartialImport, b.FileName, b.ID, err)
	}

	log.Info().
		Int("total", b.TotalCount).
		Int("classified", b.ClassifiedCount).
		Str("income", b.TotalIncome.StringFixed(2)).
		Str("expense", b.TotalExpense.StringFixed(2)).
		Msg("batch committed")
	return b, nil
}

// Commit prepares and saves a batch in one call
func (im *Importer) Commit(ctx context.Context, fileName string, format domain.Format, results []domain.ClassificationResult, progress store.Progress) (domain.ImportBatch, error) {
	plan, err := im.Prepare(ctx, fileName, format, results)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	return im.Save(ctx, plan, progress)
}

// Package store defines the persistence boundary. Implementations live in
// store/sqlite (CLI, local file) and store/firestore (HTTP service, per user).
package store

import (
	"context"
	"time"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

// Progress reports how many transactions of a batch have been written
type Progress func(written, total int)

// PeriodStore persists periods and the manual entries they own
type PeriodStore interface {
	CreatePeriod(ctx context.Context, p domain.Period) error
	// GetPeriod fails with domain.ErrNotFound for an unknown id
	GetPeriod(ctx context.Context, id string) (domain.Period, error)
	// ListPeriods returns periods ordered by start date
	ListPeriods(ctx context.Context) ([]domain.Period, error)
	// ClosePeriod marks an open period closed in one atomic step. It fails
	// with domain.ErrAlreadyClosed when the period is already closed.
	ClosePeriod(ctx context.Context, id string, at time.Time) (domain.Period, error)
	// DeletePeriod removes the period and its manual entries, nothing else
	DeletePeriod(ctx context.Context, id string) error

	ListEntries(ctx context.Context, periodID string) ([]domain.ManualEntry, error)
	GetEntry(ctx context.Context, periodID, entryID string) (domain.ManualEntry, error)
	// SaveEntry inserts or replaces an entry. SaveEntry and DeleteEntry check
	// the period in the same transaction as the write and fail with
	// domain.ErrPeriodClosed once it is closed.
	SaveEntry(ctx context.Context, e domain.ManualEntry) error
	DeleteEntry(ctx context.Context, periodID, entryID string) error
}

// TransactionStore reads persisted transactions
type TransactionStore interface {
	// ListTransactions returns every transaction ordered by date, then id
	ListTransactions(ctx context.Context) ([]domain.PersistedTransaction, error)
}

// BatchStore persists import batches together with their transactions
type BatchStore interface {
	// SaveBatch writes the batch and all of its transactions as one unit.
	// On failure no reader may observe the batch as committed.
	SaveBatch(ctx context.Context, b domain.ImportBatch, txns []domain.PersistedTransaction, progress Progress) error
	GetBatch(ctx context.Context, id string) (domain.ImportBatch, error)
	// ListBatches returns batches newest first
	ListBatches(ctx context.Context) ([]domain.ImportBatch, error)
}

// Store is the full storage collaborator
type Store interface {
	PeriodStore
	TransactionStore
	BatchStore
}

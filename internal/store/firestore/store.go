package firestore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/store"
)

// maxWritesPerTransaction stays below Firestore's 500 writes per commit
const maxWritesPerTransaction = 400

// Store is a store.Store over one user's Firestore documents
type Store struct {
	fs     *firestore.Client
	userID string
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func (s *Store) periodRef(id string) *firestore.DocumentRef {
	return s.fs.Collection(periodsCollection).Doc(docID(s.userID, id))
}

func (s *Store) entryRef(periodID, entryID string) *firestore.DocumentRef {
	return s.fs.Collection(entriesCollection).Doc(docID(s.userID, periodID, entryID))
}

func (s *Store) batchRef(id string) *firestore.DocumentRef {
	return s.fs.Collection(batchesCollection).Doc(docID(s.userID, id))
}

func (s *Store) transactionRef(id string) *firestore.DocumentRef {
	return s.fs.Collection(transactionsCollection).Doc(docID(s.userID, id))
}

func (s *Store) owned(collection string) firestore.Query {
	return s.fs.Collection(collection).Where("userId", "==", s.userID)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// readAll drains an iterator into documents of type T
func readAll[T any](it *firestore.DocumentIterator, what string) ([]T, error) {
	defer it.Stop()

	var docs []T
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s: %w", what, err)
		}
		var doc T
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s %s: %w", what, snap.Ref.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Periods

func (s *Store) CreatePeriod(ctx context.Context, p domain.Period) error {
	_, err := s.periodRef(p.ID).Create(ctx, toPeriodDoc(s.userID, p))
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: period %s already exists", domain.ErrInvalidInput, p.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create period %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetPeriod(ctx context.Context, id string) (domain.Period, error) {
	snap, err := s.periodRef(id).Get(ctx)
	if isNotFound(err) {
		return domain.Period{}, fmt.Errorf("period %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Period{}, fmt.Errorf("failed to load period %s: %w", id, err)
	}

	var doc periodDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Period{}, fmt.Errorf("failed to parse period %s: %w", id, err)
	}
	return doc.period()
}

func (s *Store) ListPeriods(ctx context.Context) ([]domain.Period, error) {
	docs, err := readAll[periodDoc](s.owned(periodsCollection).Documents(ctx), "periods")
	if err != nil {
		return nil, fmt.Errorf("failed to list periods for user %s: %w", s.userID, err)
	}

	periods := make([]domain.Period, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.period()
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	slices.SortFunc(periods, func(a, b domain.Period) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return periods, nil
}

// ClosePeriod reads and closes the period inside one Firestore transaction.
// A concurrent close makes the transaction retry and then see the period
// closed.
func (s *Store) ClosePeriod(ctx context.Context, id string, at time.Time) (domain.Period, error) {
	ref := s.periodRef(id)
	var closed domain.Period
	err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		p, err := s.txPeriod(tx, id)
		if err != nil {
			return err
		}
		if err := p.Close(at); err != nil {
			return err
		}
		closed = p
		return tx.Set(ref, toPeriodDoc(s.userID, p))
	})
	if err != nil {
		return domain.Period{}, err
	}
	return closed, nil
}

func (s *Store) txPeriod(tx *firestore.Transaction, id string) (domain.Period, error) {
	snap, err := tx.Get(s.periodRef(id))
	if isNotFound(err) {
		return domain.Period{}, fmt.Errorf("period %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Period{}, fmt.Errorf("failed to load period %s: %w", id, err)
	}
	var doc periodDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Period{}, fmt.Errorf("failed to parse period %s: %w", id, err)
	}
	return doc.period()
}

// mutableTx reads the period inside the transaction, so a close committed
// meanwhile aborts the entry write with domain.ErrPeriodClosed.
func (s *Store) mutableTx(ctx context.Context, periodID string, fn func(tx *firestore.Transaction) error) error {
	return s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		p, err := s.txPeriod(tx, periodID)
		if err != nil {
			return err
		}
		if err := p.CanMutate(); err != nil {
			return err
		}
		return fn(tx)
	})
}

// DeletePeriod removes the period and its entries in one transaction.
// Imported transactions are never touched.
func (s *Store) DeletePeriod(ctx context.Context, id string) error {
	ref := s.periodRef(id)
	return s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("period %s: %w", id, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to load period %s: %w", id, err)
		}

		entries, err := tx.Documents(s.owned(entriesCollection).Where("periodId", "==", id)).GetAll()
		if err != nil {
			return fmt.Errorf("failed to list entries of period %s: %w", id, err)
		}
		for _, e := range entries {
			if err := tx.Delete(e.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	})
}

// Entries

func (s *Store) ListEntries(ctx context.Context, periodID string) ([]domain.ManualEntry, error) {
	it := s.owned(entriesCollection).Where("periodId", "==", periodID).Documents(ctx)
	docs, err := readAll[entryDoc](it, "entries")
	if err != nil {
		return nil, fmt.Errorf("failed to list entries of period %s: %w", periodID, err)
	}
	slices.SortStableFunc(docs, func(a, b entryDoc) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	entries := make([]domain.ManualEntry, 0, len(docs))
	for _, doc := range docs {
		e, err := doc.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) GetEntry(ctx context.Context, periodID, entryID string) (domain.ManualEntry, error) {
	snap, err := s.entryRef(periodID, entryID).Get(ctx)
	if isNotFound(err) {
		return domain.ManualEntry{}, fmt.Errorf("entry %s of period %s: %w", entryID, periodID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ManualEntry{}, fmt.Errorf("failed to load entry %s: %w", entryID, err)
	}

	var doc entryDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.ManualEntry{}, fmt.Errorf("failed to parse entry %s: %w", entryID, err)
	}
	return doc.entry()
}

// SaveEntry upserts an entry, keeping the creation time of an existing one
// so list order is stable across edits.
func (s *Store) SaveEntry(ctx context.Context, e domain.ManualEntry) error {
	ref := s.entryRef(e.PeriodID, e.ID)
	err := s.mutableTx(ctx, e.PeriodID, func(tx *firestore.Transaction) error {
		createdAt := s.clock()
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing entryDoc
			if err := snap.DataTo(&existing); err == nil {
				createdAt = existing.CreatedAt
			}
		case !isNotFound(err):
			return err
		}
		return tx.Set(ref, toEntryDoc(s.userID, e, createdAt))
	})
	if err != nil {
		return fmt.Errorf("failed to save entry %s of period %s: %w", e.ID, e.PeriodID, err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, periodID, entryID string) error {
	ref := s.entryRef(periodID, entryID)
	return s.mutableTx(ctx, periodID, func(tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("entry %s of period %s: %w", entryID, periodID, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to load entry %s: %w", entryID, err)
		}
		return tx.Delete(ref)
	})
}

// Transactions

// ListTransactions returns manual transactions and those of committed
// batches. Transactions left behind by a partial batch are not visible.
func (s *Store) ListTransactions(ctx context.Context) ([]domain.PersistedTransaction, error) {
	batches, err := s.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	committed := make(map[string]bool, len(batches))
	for _, b := range batches {
		committed[b.ID] = b.Status == domain.BatchStatusCommitted
	}

	docs, err := readAll[transactionDoc](s.owned(transactionsCollection).Documents(ctx), "transactions")
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %s: %w", s.userID, err)
	}

	txns := make([]domain.PersistedTransaction, 0, len(docs))
	for _, doc := range docs {
		if doc.BatchID != "" && !committed[doc.BatchID] {
			continue
		}
		t, err := doc.transaction()
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	sortTransactions(txns)
	return txns, nil
}

func sortTransactions(txns []domain.PersistedTransaction) {
	slices.SortFunc(txns, func(a, b domain.PersistedTransaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Batches

// span is a half-open index range
type span struct{ start, end int }

// chunks splits n items into consecutive spans of at most size items
func chunks(n, size int) []span {
	var spans []span
	for start := 0; start < n; start += size {
		spans = append(spans, span{start, min(start+size, n)})
	}
	return spans
}

// SaveBatch writes the batch as partial, then its transactions in chunks
// that each commit atomically, then flips the batch to committed. A failure
// at any step leaves the batch partial, and ListTransactions hides its rows.
func (s *Store) SaveBatch(ctx context.Context, b domain.ImportBatch, txns []domain.PersistedTransaction, progress store.Progress) error {
	ref := s.batchRef(b.ID)

	pending := b
	pending.Status = domain.BatchStatusPartial
	if _, err := ref.Create(ctx, toBatchDoc(s.userID, pending)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: batch %s already exists", domain.ErrInvalidInput, b.ID)
		}
		return fmt.Errorf("failed to create batch %s: %w", b.ID, err)
	}

	written := 0
	for _, sp := range chunks(len(txns), maxWritesPerTransaction) {
		part := txns[sp.start:sp.end]
		err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for i, t := range part {
				if err := tx.Create(s.transactionRef(t.ID), toTransactionDoc(s.userID, t)); err != nil {
					return fmt.Errorf("transaction %d (%s): %w", sp.start+i, t.ID, err)
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write transactions %d-%d of batch %s: %w", sp.start, sp.end-1, b.ID, err)
		}
		written += len(part)
		if progress != nil {
			progress(written, len(txns))
		}
	}

	if _, err := ref.Update(ctx, []firestore.Update{{Path: "status", Value: string(domain.BatchStatusCommitted)}}); err != nil {
		return fmt.Errorf("failed to mark batch %s committed: %w", b.ID, err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (domain.ImportBatch, error) {
	snap, err := s.batchRef(id).Get(ctx)
	if isNotFound(err) {
		return domain.ImportBatch{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("failed to load batch %s: %w", id, err)
	}

	var doc batchDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.ImportBatch{}, fmt.Errorf("failed to parse batch %s: %w", id, err)
	}
	return doc.batch()
}

func (s *Store) ListBatches(ctx context.Context) ([]domain.ImportBatch, error) {
	it := s.owned(batchesCollection).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	docs, err := readAll[batchDoc](it, "batches")
	if err != nil {
		return nil, fmt.Errorf("failed to list batches for user %s: %w", s.userID, err)
	}

	batches := make([]domain.ImportBatch, 0, len(docs))
	for _, doc := range docs {
		b, err := doc.batch()
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

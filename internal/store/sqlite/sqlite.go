// Package sqlite implements the store interfaces on a local SQLite file
// using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/store"
)

// progressEvery is how many inserted transactions trigger a progress callback
const progressEvery = 100

// Store is a SQLite-backed store.Store
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS periods (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	granularity TEXT NOT NULL,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	is_closed   INTEGER NOT NULL DEFAULT 0,
	closed_at   TEXT
);

CREATE TABLE IF NOT EXISTS entries (
	id          TEXT NOT NULL,
	period_id   TEXT NOT NULL REFERENCES periods(id) ON DELETE CASCADE,
	category_id TEXT NOT NULL,
	description TEXT NOT NULL,
	value       TEXT NOT NULL,
	PRIMARY KEY (period_id, id)
);

CREATE TABLE IF NOT EXISTS batches (
	id                 TEXT PRIMARY KEY,
	file_name          TEXT NOT NULL,
	format             TEXT NOT NULL,
	total_count        INTEGER NOT NULL,
	classified_count   INTEGER NOT NULL,
	unclassified_count INTEGER NOT NULL,
	total_income       TEXT NOT NULL,
	total_expense      TEXT NOT NULL,
	status             TEXT NOT NULL,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	status          TEXT NOT NULL,
	source          TEXT NOT NULL,
	description     TEXT NOT NULL,
	value           TEXT NOT NULL,
	date            TEXT NOT NULL,
	due_date        TEXT NOT NULL,
	paid_date       TEXT,
	category_id     TEXT,
	document_number TEXT,
	notes           TEXT,
	is_classified   INTEGER NOT NULL,
	batch_id        TEXT REFERENCES batches(id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
CREATE INDEX IF NOT EXISTS idx_transactions_batch ON transactions(batch_id);
`

// Open opens (creating if needed) the database at path and ensures the
// schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	// one connection: SQLite has a single writer, and ":memory:" is per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema at %s: %w", path, err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back when it fails
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Periods

func (s *Store) CreatePeriod(ctx context.Context, p domain.Period) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM periods WHERE id = ?`, p.ID).Scan(&exists)
		if err == nil {
			return fmt.Errorf("%w: period %s already exists", domain.ErrInvalidInput, p.ID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check period %s: %w", p.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO periods (id, name, granularity, start_date, end_date, is_closed, closed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Name, string(p.Granularity), formatDate(p.Start), formatDate(p.End), p.IsClosed, closedAt(p))
		if err != nil {
			return fmt.Errorf("failed to create period %s: %w", p.ID, err)
		}
		return nil
	})
}

func closedAt(p domain.Period) sql.NullString {
	if p.ClosedAt == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.ClosedAt.UTC().Format(time.RFC3339Nano), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row scanner) (domain.Period, error) {
	var (
		p           domain.Period
		granularity string
		start, end  string
		closed      sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &granularity, &start, &end, &p.IsClosed, &closed); err != nil {
		return domain.Period{}, err
	}
	p.Granularity = domain.Granularity(granularity)

	var err error
	if p.Start, err = parseDate(start); err != nil {
		return domain.Period{}, err
	}
	if p.End, err = parseDate(end); err != nil {
		return domain.Period{}, err
	}
	if closed.Valid {
		at, err := time.Parse(time.RFC3339Nano, closed.String)
		if err != nil {
			return domain.Period{}, fmt.Errorf("invalid closed_at %q: %w", closed.String, err)
		}
		p.ClosedAt = &at
	}
	return p, nil
}

const periodColumns = `id, name, granularity, start_date, end_date, is_closed, closed_at`

func (s *Store) GetPeriod(ctx context.Context, id string) (domain.Period, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = ?`, id)
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Period{}, fmt.Errorf("period %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Period{}, fmt.Errorf("failed to load period %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) ListPeriods(ctx context.Context) ([]domain.Period, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer rows.Close()

	var periods []domain.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	return periods, nil
}

// ClosePeriod reads and closes the period in one transaction, so of two
// concurrent closes exactly one succeeds.
func (s *Store) ClosePeriod(ctx context.Context, id string, at time.Time) (domain.Period, error) {
	var closed domain.Period
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := loadPeriod(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := p.Close(at); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE periods SET is_closed = 1, closed_at = ? WHERE id = ? AND is_closed = 0`, closedAt(p), id)
		if err != nil {
			return fmt.Errorf("failed to close period %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("period %s: %w", id, domain.ErrAlreadyClosed)
		}
		closed = p
		return nil
	})
	if err != nil {
		return domain.Period{}, err
	}
	return closed, nil
}

func loadPeriod(ctx context.Context, tx *sql.Tx, id string) (domain.Period, error) {
	p, err := scanPeriod(tx.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Period{}, fmt.Errorf("period %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Period{}, fmt.Errorf("failed to load period %s: %w", id, err)
	}
	return p, nil
}

// mutableTx runs fn in a transaction that first checks the period is open
func (s *Store) mutableTx(ctx context.Context, periodID string, fn func(tx *sql.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := loadPeriod(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if err := p.CanMutate(); err != nil {
			return err
		}
		return fn(tx)
	})
}

func (s *Store) DeletePeriod(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE period_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete entries of period %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM periods WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete period %s: %w", id, err)
		}
		return expectRow(res, "period "+id)
	})
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

// Entries

const entryColumns = `id, period_id, category_id, description, value`

func scanEntry(row scanner) (domain.ManualEntry, error) {
	var e domain.ManualEntry
	err := row.Scan(&e.ID, &e.PeriodID, &e.CategoryID, &e.Description, &e.Value)
	return e, err
}

func (s *Store) ListEntries(ctx context.Context, periodID string) ([]domain.ManualEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE period_id = ? ORDER BY rowid`, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries of period %s: %w", periodID, err)
	}
	defer rows.Close()

	var entries []domain.ManualEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list entries of period %s: %w", periodID, err)
	}
	return entries, nil
}

func (s *Store) GetEntry(ctx context.Context, periodID, entryID string) (domain.ManualEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE period_id = ? AND id = ?`, periodID, entryID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ManualEntry{}, fmt.Errorf("entry %s of period %s: %w", entryID, periodID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ManualEntry{}, fmt.Errorf("failed to load entry %s: %w", entryID, err)
	}
	return e, nil
}

// SaveEntry upserts an entry of an open period
func (s *Store) SaveEntry(ctx context.Context, e domain.ManualEntry) error {
	return s.mutableTx(ctx, e.PeriodID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entries (id, period_id, category_id, description, value)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (period_id, id) DO UPDATE SET
				category_id = excluded.category_id,
				description = excluded.description,
				value = excluded.value
		`, e.ID, e.PeriodID, e.CategoryID, e.Description, e.Value.String())
		if err != nil {
			return fmt.Errorf("failed to save entry %s of period %s: %w", e.ID, e.PeriodID, err)
		}
		return nil
	})
}

func (s *Store) DeleteEntry(ctx context.Context, periodID, entryID string) error {
	return s.mutableTx(ctx, periodID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE period_id = ? AND id = ?`, periodID, entryID)
		if err != nil {
			return fmt.Errorf("failed to delete entry %s: %w", entryID, err)
		}
		return expectRow(res, fmt.Sprintf("entry %s of period %s", entryID, periodID))
	})
}

// Transactions

const transactionColumns = `id, kind, status, source, description, value, date, due_date, paid_date,
	category_id, document_number, notes, is_classified, batch_id`

func scanTransaction(row scanner) (domain.PersistedTransaction, error) {
	var (
		t                                 domain.PersistedTransaction
		kind, status, source              string
		date, due                         string
		paid, category, doc, notes, batch sql.NullString
	)
	err := row.Scan(&t.ID, &kind, &status, &source, &t.Description, &t.Value, &date, &due, &paid,
		&category, &doc, &notes, &t.IsClassified, &batch)
	if err != nil {
		return domain.PersistedTransaction{}, err
	}

	t.Kind = domain.Kind(kind)
	t.Status = domain.Status(status)
	t.Source = domain.Source(source)
	t.CategoryID = category.String
	t.DocumentNumber = doc.String
	t.Notes = notes.String
	t.BatchID = batch.String

	if t.Date, err = parseDate(date); err != nil {
		return domain.PersistedTransaction{}, err
	}
	if t.DueDate, err = parseDate(due); err != nil {
		return domain.PersistedTransaction{}, err
	}
	if paid.Valid {
		pd, err := parseDate(paid.String)
		if err != nil {
			return domain.PersistedTransaction{}, err
		}
		t.PaidDate = &pd
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.PersistedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.PersistedTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// Batches

// SaveBatch writes the batch row and every transaction in one SQL
// transaction, stored as committed. Any failure rolls everything back.
func (s *Store) SaveBatch(ctx context.Context, b domain.ImportBatch, txns []domain.PersistedTransaction, progress store.Progress) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO batches (id, file_name, format, total_count, classified_count, unclassified_count,
				total_income, total_expense, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.ID, b.FileName, string(b.Format), b.TotalCount, b.ClassifiedCount, b.UnclassifiedCount,
			b.TotalIncome.String(), b.TotalExpense.String(), string(domain.BatchStatusCommitted),
			b.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert batch %s: %w", b.ID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (id, kind, status, source, description, value, date, due_date, paid_date,
				category_id, document_number, notes, is_classified, batch_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare transaction insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range txns {
			var paid sql.NullString
			if t.PaidDate != nil {
				paid = sql.NullString{String: formatDate(*t.PaidDate), Valid: true}
			}
			_, err := stmt.ExecContext(ctx, t.ID, string(t.Kind), string(t.Status), string(t.Source),
				t.Description, t.Value.String(), formatDate(t.Date), formatDate(t.DueDate), paid,
				nullString(t.CategoryID), nullString(t.DocumentNumber), nullString(t.Notes),
				t.IsClassified, nullString(t.BatchID))
			if err != nil {
				return fmt.Errorf("failed to insert transaction %d (%s): %w", i, t.ID, err)
			}
			if progress != nil && ((i+1)%progressEvery == 0 || i+1 == len(txns)) {
				progress(i+1, len(txns))
			}
		}
		return nil
	})
}

const batchColumns = `id, file_name, format, total_count, classified_count, unclassified_count,
	total_income, total_expense, status, created_at`

func scanBatch(row scanner) (domain.ImportBatch, error) {
	var (
		b               domain.ImportBatch
		format, status  string
		income, expense string
		created         string
	)
	err := row.Scan(&b.ID, &b.FileName, &format, &b.TotalCount, &b.ClassifiedCount, &b.UnclassifiedCount,
		&income, &expense, &status, &created)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	b.Format = domain.Format(format)
	b.Status = domain.BatchStatus(status)

	if b.TotalIncome, err = decimal.NewFromString(income); err != nil {
		return domain.ImportBatch{}, fmt.Errorf("invalid total_income %q: %w", income, err)
	}
	if b.TotalExpense, err = decimal.NewFromString(expense); err != nil {
		return domain.ImportBatch{}, fmt.Errorf("invalid total_expense %q: %w", expense, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return domain.ImportBatch{}, fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	return b, nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (domain.ImportBatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ImportBatch{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("failed to load batch %s: %w", id, err)
	}
	return b, nil
}

func (s *Store) ListBatches(ctx context.Context) ([]domain.ImportBatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

// Money is stored as a decimal string and calendar dates as YYYY-MM-DD, so
// nothing is rounded through float64 and date queries order lexically.

type periodDoc struct {
	ID          string     `firestore:"id"`
	UserID      string     `firestore:"userId"`
	Name        string     `firestore:"name"`
	Granularity string     `firestore:"granularity"`
	Start       string     `firestore:"start"`
	End         string     `firestore:"end"`
	IsClosed    bool       `firestore:"isClosed"`
	ClosedAt    *time.Time `firestore:"closedAt,omitempty"`
}

func toPeriodDoc(userID string, p domain.Period) periodDoc {
	return periodDoc{
		ID:          p.ID,
		UserID:      userID,
		Name:        p.Name,
		Granularity: string(p.Granularity),
		Start:       p.Start.Format(domain.DateLayout),
		End:         p.End.Format(domain.DateLayout),
		IsClosed:    p.IsClosed,
		ClosedAt:    p.ClosedAt,
	}
}

func (d periodDoc) period() (domain.Period, error) {
	start, err := parseDate(d.Start)
	if err != nil {
		return domain.Period{}, fmt.Errorf("period %s: %w", d.ID, err)
	}
	end, err := parseDate(d.End)
	if err != nil {
		return domain.Period{}, fmt.Errorf("period %s: %w", d.ID, err)
	}
	return domain.Period{
		ID:          d.ID,
		Name:        d.Name,
		Granularity: domain.Granularity(d.Granularity),
		Start:       start,
		End:         end,
		IsClosed:    d.IsClosed,
		ClosedAt:    d.ClosedAt,
	}, nil
}

type entryDoc struct {
	ID          string    `firestore:"id"`
	UserID      string    `firestore:"userId"`
	PeriodID    string    `firestore:"periodId"`
	CategoryID  string    `firestore:"categoryId"`
	Description string    `firestore:"description"`
	Value       string    `firestore:"value"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func toEntryDoc(userID string, e domain.ManualEntry, createdAt time.Time) entryDoc {
	return entryDoc{
		ID:          e.ID,
		UserID:      userID,
		PeriodID:    e.PeriodID,
		CategoryID:  e.CategoryID,
		Description: e.Description,
		Value:       e.Value.String(),
		CreatedAt:   createdAt,
	}
}

func (d entryDoc) entry() (domain.ManualEntry, error) {
	value, err := decimal.NewFromString(d.Value)
	if err != nil {
		return domain.ManualEntry{}, fmt.Errorf("entry %s: invalid value %q: %w", d.ID, d.Value, err)
	}
	return domain.ManualEntry{
		ID:          d.ID,
		PeriodID:    d.PeriodID,
		CategoryID:  d.CategoryID,
		Description: d.Description,
		Value:       value,
	}, nil
}

type batchDoc struct {
	ID                string    `firestore:"id"`
	UserID            string    `firestore:"userId"`
	FileName          string    `firestore:"fileName"`
	Format            string    `firestore:"format"`
	TotalCount        int       `firestore:"totalCount"`
	ClassifiedCount   int       `firestore:"classifiedCount"`
	UnclassifiedCount int       `firestore:"unclassifiedCount"`
	TotalIncome       string    `firestore:"totalIncome"`
	TotalExpense      string    `firestore:"totalExpense"`
	Status            string    `firestore:"status"`
	CreatedAt         time.Time `firestore:"createdAt"`
}

func toBatchDoc(userID string, b domain.ImportBatch) batchDoc {
	return batchDoc{
		ID:                b.ID,
		UserID:            userID,
		FileName:          b.FileName,
		Format:            string(b.Format),
		TotalCount:        b.TotalCount,
		ClassifiedCount:   b.ClassifiedCount,
		UnclassifiedCount: b.UnclassifiedCount,
		TotalIncome:       b.TotalIncome.String(),
		TotalExpense:      b.TotalExpense.String(),
		Status:            string(b.Status),
		CreatedAt:         b.CreatedAt,
	}
}

func (d batchDoc) batch() (domain.ImportBatch, error) {
	income, err := decimal.NewFromString(d.TotalIncome)
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("batch %s: invalid total income %q: %w", d.ID, d.TotalIncome, err)
	}
	expense, err := decimal.NewFromString(d.TotalExpense)
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("batch %s: invalid total expense %q: %w", d.ID, d.TotalExpense, err)
	}
	return domain.ImportBatch{
		ID:                d.ID,
		FileName:          d.FileName,
		Format:            domain.Format(d.Format),
		TotalCount:        d.TotalCount,
		ClassifiedCount:   d.ClassifiedCount,
		UnclassifiedCount: d.UnclassifiedCount,
		TotalIncome:       income,
		TotalExpense:      expense,
		Status:            domain.BatchStatus(d.Status),
		CreatedAt:         d.CreatedAt,
	}, nil
}

type transactionDoc struct {
	ID             string `firestore:"id"`
	UserID         string `firestore:"userId"`
	Kind           string `firestore:"kind"`
	Status         string `firestore:"status"`
	Source         string `firestore:"source"`
	Description    string `firestore:"description"`
	Value          string `firestore:"value"`
	Date           string `firestore:"date"`
	DueDate        string `firestore:"dueDate"`
	PaidDate       string `firestore:"paidDate,omitempty"`
	CategoryID     string `firestore:"categoryId,omitempty"`
	DocumentNumber string `firestore:"documentNumber,omitempty"`
	Notes          string `firestore:"notes,omitempty"`
	IsClassified   bool   `firestore:"isClassified"`
	BatchID        string `firestore:"batchId,omitempty"`
}

func toTransactionDoc(userID string, t domain.PersistedTransaction) transactionDoc {
	d := transactionDoc{
		ID:             t.ID,
		UserID:         userID,
		Kind:           string(t.Kind),
		Status:         string(t.Status),
		Source:         string(t.Source),
		Description:    t.Description,
		Value:          t.Value.String(),
		Date:           t.Date.Format(domain.DateLayout),
		DueDate:        t.DueDate.Format(domain.DateLayout),
		CategoryID:     t.CategoryID,
		DocumentNumber: t.DocumentNumber,
		Notes:          t.Notes,
		IsClassified:   t.IsClassified,
		BatchID:        t.BatchID,
	}
	if t.PaidDate != nil {
		d.PaidDate = t.PaidDate.Format(domain.DateLayout)
	}
	return d
}

func (d transactionDoc) transaction() (domain.PersistedTransaction, error) {
	value, err := decimal.NewFromString(d.Value)
	if err != nil {
		return domain.PersistedTransaction{}, fmt.Errorf("transaction %s: invalid value %q: %w", d.ID, d.Value, err)
	}
	date, err := parseDate(d.Date)
	if err != nil {
		return domain.PersistedTransaction{}, fmt.Errorf("transaction %s: %w", d.ID, err)
	}
	due, err := parseDate(d.DueDate)
	if err != nil {
		return domain.PersistedTransaction{}, fmt.Errorf("transaction %s: %w", d.ID, err)
	}

	t := domain.PersistedTransaction{
		ID:             d.ID,
		Kind:           domain.Kind(d.Kind),
		Status:         domain.Status(d.Status),
		Source:         domain.Source(d.Source),
		Description:    d.Description,
		Value:          value,
		Date:           date,
		DueDate:        due,
		CategoryID:     d.CategoryID,
		DocumentNumber: d.DocumentNumber,
		Notes:          d.Notes,
		IsClassified:   d.IsClassified,
		BatchID:        d.BatchID,
	}
	if d.PaidDate != "" {
		paid, err := parseDate(d.PaidDate)
		if err != nil {
			return domain.PersistedTransaction{}, fmt.Errorf("transaction %s: %w", d.ID, err)
		}
		t.PaidDate = &paid
	}
	return t, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

// docID namespaces a document id by its owner so two users can hold the
// same period or transaction id.
func docID(userID string, parts ...string) string {
	id := userID
	for _, p := range parts {
		id += "_" + p
	}
	return id
}

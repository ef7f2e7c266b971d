// Package period manages the period lifecycle and the manual entries a
// period owns. A closed period rejects every entry mutation.
package period

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/dre"
	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
	"github.com/rumor-ml/commons.systems/finreport/internal/store"
	"github.com/rumor-ml/commons.systems/finreport/internal/transform"
)

// Categories supplies the current chart of accounts
type Categories interface {
	Categories() []domain.Category
}

// Service implements period and manual entry operations over a store
type Service struct {
	periods    store.PeriodStore
	txns       store.TransactionStore
	categories Categories
	now        func() time.Time
}

// NewService creates a period service
func NewService(periods store.PeriodStore, txns store.TransactionStore, categories Categories) *Service {
	return &Service{
		periods:    periods,
		txns:       txns,
		categories: categories,
		now:        time.Now,
	}
}

// CreateRequest describes a new period. ID, Name and End are optional:
// the id derives from granularity and start ("2026-03", "2026-q1",
// "2026"), the name defaults to the id and the end to the last day of the
// granularity.
type CreateRequest struct {
	ID          string             `json:"id,omitempty"`
	Name        string             `json:"name,omitempty"`
	Granularity domain.Granularity `json:"granularity"`
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end,omitempty"`
}

// Create validates and stores a new open period
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Period, error) {
	if req.Start.IsZero() {
		return domain.Period{}, fmt.Errorf("%w: period start is required", domain.ErrInvalidInput)
	}

	var err error
	id := strings.TrimSpace(req.ID)
	if id == "" {
		if id, err = transform.PeriodID(req.Granularity, req.Start); err != nil {
			return domain.Period{}, err
		}
	}
	end := req.End
	if end.IsZero() {
		if end, err = transform.PeriodEnd(req.Granularity, req.Start); err != nil {
			return domain.Period{}, err
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = id
	}

	p, err := domain.NewPeriod(id, name, req.Granularity, req.Start, end)
	if err != nil {
		return domain.Period{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.periods.CreatePeriod(ctx, *p); err != nil {
		return domain.Period{}, err
	}

	logger.FromContext(ctx).Info().
		Str("period_id", p.ID).
		Str("start", p.Start.Format(domain.DateLayout)).
		Str("end", p.End.Format(domain.DateLayout)).
		Msg("period created")
	return *p, nil
}

// Get loads one period
func (s *Service) Get(ctx context.Context, id string) (domain.Period, error) {
	return s.periods.GetPeriod(ctx, id)
}

// List returns all periods ordered by start date
func (s *Service) List(ctx context.Context) ([]domain.Period, error) {
	return s.periods.ListPeriods(ctx)
}

// Close moves an open period to closed. Closing twice fails with
// domain.ErrAlreadyClosed.
func (s *Service) Close(ctx context.Context, id string) (domain.Period, error) {
	p, err := s.periods.ClosePeriod(ctx, id, s.now().UTC())
	if err != nil {
		return domain.Period{}, err
	}

	logger.FromContext(ctx).Info().Str("period_id", id).Msg("period closed")
	return p, nil
}

// Delete removes a period in any state together with its manual entries.
// Persisted transactions are never touched.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.periods.DeletePeriod(ctx, id); err != nil {
		return err
	}
	logger.FromContext(ctx).Info().Str("period_id", id).Msg("period deleted")
	return nil
}

// EntryInput is the editable part of a manual entry
type EntryInput struct {
	CategoryID  string          `json:"categoryId"`
	Description string          `json:"description"`
	Value       decimal.Decimal `json:"value"`
}

// openPeriod loads a period and fails with domain.ErrPeriodClosed when it
// no longer accepts entry changes. The store repeats the check when it
// writes, so a close racing with this call still wins.
func (s *Service) openPeriod(ctx context.Context, id string) (domain.Period, error) {
	p, err := s.periods.GetPeriod(ctx, id)
	if err != nil {
		return domain.Period{}, err
	}
	if err := p.CanMutate(); err != nil {
		return domain.Period{}, err
	}
	return p, nil
}

func (s *Service) checkCategory(id string) error {
	for _, c := range s.categories.Categories() {
		if c.ID == id {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, id)
}

func (s *Service) saveEntry(ctx context.Context, e domain.ManualEntry) error {
	e.Description = strings.TrimSpace(e.Description)
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.checkCategory(e.CategoryID); err != nil {
		return err
	}
	return s.periods.SaveEntry(ctx, e)
}

// ListEntries returns the manual entries of a period
func (s *Service) ListEntries(ctx context.Context, periodID string) ([]domain.ManualEntry, error) {
	if _, err := s.periods.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	return s.periods.ListEntries(ctx, periodID)
}

// AddEntry creates a manual entry in an open period
func (s *Service) AddEntry(ctx context.Context, periodID string, in EntryInput) (domain.ManualEntry, error) {
	if _, err := s.openPeriod(ctx, periodID); err != nil {
		return domain.ManualEntry{}, err
	}

	e := domain.ManualEntry{
		ID:          uuid.New().String(),
		PeriodID:    periodID,
		CategoryID:  in.CategoryID,
		Description: in.Description,
		Value:       in.Value,
	}
	if err := s.saveEntry(ctx, e); err != nil {
		return domain.ManualEntry{}, fmt.Errorf("period %s: %w", periodID, err)
	}
	e.Description = strings.TrimSpace(e.Description)
	return e, nil
}

// UpdateEntry replaces the editable fields of an entry in an open period
func (s *Service) UpdateEntry(ctx context.Context, periodID, entryID string, in EntryInput) (domain.ManualEntry, error) {
	if _, err := s.openPeriod(ctx, periodID); err != nil {
		return domain.ManualEntry{}, err
	}

	e, err := s.periods.GetEntry(ctx, periodID, entryID)
	if err != nil {
		return domain.ManualEntry{}, err
	}
	e.CategoryID = in.CategoryID
	e.Description = in.Description
	e.Value = in.Value

	if err := s.saveEntry(ctx, e); err != nil {
		return domain.ManualEntry{}, fmt.Errorf("period %s: %w", periodID, err)
	}
	e.Description = strings.TrimSpace(e.Description)
	return e, nil
}

// DeleteEntry removes an entry from an open period
func (s *Service) DeleteEntry(ctx context.Context, periodID, entryID string) error {
	if _, err := s.openPeriod(ctx, periodID); err != nil {
		return err
	}
	return s.periods.DeleteEntry(ctx, periodID, entryID)
}

// Report computes the statement of one period from current data
func (s *Service) Report(ctx context.Context, periodID string) (domain.Report, error) {
	p, err := s.periods.GetPeriod(ctx, periodID)
	if err != nil {
		return domain.Report{}, err
	}
	entries, err := s.periods.ListEntries(ctx, periodID)
	if err != nil {
		return domain.Report{}, err
	}
	txns, err := s.txns.ListTransactions(ctx)
	if err != nil {
		return domain.Report{}, err
	}

	report := dre.Calculate(p, entries, s.categories.Categories(), txns)
	if report.Ignored > 0 {
		logger.FromContext(ctx).Warn().
			Str("period_id", periodID).
			Int("ignored", report.Ignored).
			Msg("records with unknown categories left out of report")
	}
	return report, nil
}

// Trend computes the reports of the last n periods by start date, oldest
// first. n <= 0 means all periods.
func (s *Service) Trend(ctx context.Context, n int) ([]domain.Report, error) {
	periods, err := s.periods.ListPeriods(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].Start.Before(periods[j].Start)
	})
	if n > 0 && len(periods) > n {
		periods = periods[len(periods)-n:]
	}

	entries := make(map[string][]domain.ManualEntry, len(periods))
	for _, p := range periods {
		if entries[p.ID], err = s.periods.ListEntries(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	txns, err := s.txns.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}

	return dre.Trend(ctx, periods, entries, s.categories.Categories(), txns)
}

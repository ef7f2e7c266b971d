package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Granularity is the nominal length of a period.
type Granularity string

const (
	GranularityMonthly   Granularity = "monthly"
	GranularityQuarterly Granularity = "quarterly"
	GranularityAnnual    Granularity = "annual"
)

// ValidateGranularity checks if granularity is valid
func ValidateGranularity(g Granularity) bool {
	switch g {
	case GranularityMonthly, GranularityQuarterly, GranularityAnnual:
		return true
	}
	return false
}

// Period is a bounded, inclusive date range aggregated into one report.
// It is created open and may be closed exactly once.
type Period struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Granularity Granularity `json:"granularity"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	IsClosed    bool        `json:"isClosed"`
	ClosedAt    *time.Time  `json:"closedAt,omitempty"`
}

// NewPeriod creates a validated open period
func NewPeriod(id, name string, granularity Granularity, start, end time.Time) (*Period, error) {
	if id == "" {
		return nil, fmt.Errorf("period ID cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("period name cannot be empty")
	}
	if !ValidateGranularity(granularity) {
		return nil, fmt.Errorf("invalid granularity: %s", granularity)
	}
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("period start and end are required")
	}
	start, end = CivilDate(start), CivilDate(end)
	if end.Before(start) {
		return nil, fmt.Errorf("period end %s is before start %s", end.Format(DateLayout), start.Format(DateLayout))
	}

	return &Period{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Granularity: granularity,
		Start:       start,
		End:         end,
	}, nil
}

// Contains reports whether the calendar day of t falls within the period, both ends inclusive.
func (p *Period) Contains(t time.Time) bool {
	d := CivilDate(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Close transitions the period to closed. Closing twice fails with ErrAlreadyClosed.
func (p *Period) Close(now time.Time) error {
	if p.IsClosed {
		return fmt.Errorf("period %s: %w", p.ID, ErrAlreadyClosed)
	}
	p.IsClosed = true
	closedAt := now
	p.ClosedAt = &closedAt
	return nil
}

// CanMutate returns ErrPeriodClosed when entries of this period are frozen.
func (p *Period) CanMutate() error {
	if p.IsClosed {
		return fmt.Errorf("period %s: %w", p.ID, ErrPeriodClosed)
	}
	return nil
}

// ManualEntry is a hand-entered line item owned by exactly one period.
type ManualEntry struct {
	ID          string          `json:"id"`
	PeriodID    string          `json:"periodId"`
	CategoryID  string          `json:"categoryId"`
	Description string          `json:"description"`
	Value       decimal.Decimal `json:"value"`
}

// Validate checks manual entry invariants
func (e *ManualEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry ID is required")
	}
	if e.PeriodID == "" {
		return fmt.Errorf("entry %s: period ID is required", e.ID)
	}
	if e.CategoryID == "" {
		return fmt.Errorf("entry %s: category ID is required", e.ID)
	}
	if e.Value.IsNegative() {
		return fmt.Errorf("entry %s: value must be non-negative, got %s", e.ID, e.Value)
	}
	return nil
}

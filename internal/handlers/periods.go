package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/period"
)

// createPeriodRequest is the wire form of period.CreateRequest with
// calendar dates as "2006-01-02" strings.
type createPeriodRequest struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Granularity domain.Granularity `json:"granularity"`
	Start       string             `json:"start"`
	End         string             `json:"end"`
}

func (req createPeriodRequest) toCreate() (period.CreateRequest, error) {
	out := period.CreateRequest{
		ID:          req.ID,
		Name:        req.Name,
		Granularity: req.Granularity,
	}
	var err error
	if out.Start, err = parseDay("start", req.Start); err != nil {
		return out, err
	}
	if req.End != "" {
		if out.End, err = parseDay("end", req.End); err != nil {
			return out, err
		}
	}
	return out, nil
}

func parseDay(field, value string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a date like 2026-03-01, got %q", domain.ErrInvalidInput, field, value)
	}
	return t, nil
}

// periods builds the period service over the caller's store
func (h *Handler) periods(w http.ResponseWriter, r *http.Request) (*period.Service, bool) {
	st, _, ok := h.userStore(w, r)
	if !ok {
		return nil, false
	}
	return period.NewService(st, st, h.categories), true
}

// ListPeriods handles GET /api/periods
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	periods, err := svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if periods == nil {
		periods = []domain.Period{}
	}
	writeJSON(w, r, http.StatusOK, periods)
}

// CreatePeriod handles POST /api/periods
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	var req createPeriodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	create, err := req.toCreate()
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := svc.Create(r.Context(), create)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, p)
}

// GetPeriod handles GET /api/periods/{id}
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	p, err := svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// ClosePeriod handles POST /api/periods/{id}/close
func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	p, err := svc.Close(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// DeletePeriod handles DELETE /api/periods/{id}
func (h *Handler) DeletePeriod(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	if err := svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries handles GET /api/periods/{id}/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	entries, err := svc.ListEntries(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.ManualEntry{}
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// AddEntry handles POST /api/periods/{id}/entries
func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	var in period.EntryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := svc.AddEntry(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

// UpdateEntry handles PUT /api/periods/{id}/entries/{entryID}
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	var in period.EntryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := svc.UpdateEntry(r.Context(), r.PathValue("id"), r.PathValue("entryID"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// DeleteEntry handles DELETE /api/periods/{id}/entries/{entryID}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	if err := svc.DeleteEntry(r.Context(), r.PathValue("id"), r.PathValue("entryID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Report handles GET /api/periods/{id}/report
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	report, err := svc.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// Trend handles GET /api/reports/trend?n=6. Without n every period is
// reported.
func (h *Handler) Trend(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.periods(w, r)
	if !ok {
		return
	}
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, r, fmt.Errorf("%w: n must be a non-negative integer, got %q", domain.ErrInvalidInput, raw))
			return
		}
		n = v
	}
	reports, err := svc.Trend(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reports == nil {
		reports = []domain.Report{}
	}
	writeJSON(w, r, http.StatusOK, reports)
}

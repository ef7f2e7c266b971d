// Package handlers implements the finreport HTTP API. Every /api route runs
// behind authentication and works on the caller's own store.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rumor-ml/commons.systems/finreport/internal/classify"
	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
	"github.com/rumor-ml/commons.systems/finreport/internal/middleware"
	"github.com/rumor-ml/commons.systems/finreport/internal/pipeline"
	"github.com/rumor-ml/commons.systems/finreport/internal/store"
	"github.com/rumor-ml/commons.systems/finreport/internal/streaming"
)

// StoreFactory returns the store holding one user's data
type StoreFactory func(userID string) store.Store

// Categories supplies the chart of accounts
type Categories interface {
	Categories() []domain.Category
}

// Options tune a Handler
type Options struct {
	MaxUploadBytes    int64
	ReferenceCacheTTL time.Duration
}

// Handler serves the API
type Handler struct {
	stores     StoreFactory
	categories Categories
	pipeline   *pipeline.Pipeline
	hub        *streaming.StreamHub

	// history caches each user's classification history
	history   *cache.Cache
	maxUpload int64

	commits sync.WaitGroup
}

// New creates the API handler
func New(stores StoreFactory, categories Categories, p *pipeline.Pipeline, hub *streaming.StreamHub, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.ReferenceCacheTTL <= 0 {
		opts.ReferenceCacheTTL = 5 * time.Minute
	}
	return &Handler{
		stores:     stores,
		categories: categories,
		pipeline:   p,
		hub:        hub,
		history:    cache.New(opts.ReferenceCacheTTL, 2*opts.ReferenceCacheTTL),
		maxUpload:  opts.MaxUploadBytes,
	}
}

// Wait blocks until every background commit has finished
func (h *Handler) Wait() {
	h.commits.Wait()
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// userStore resolves the caller's store, answering 401 when the request
// carries no user.
func (h *Handler) userStore(w http.ResponseWriter, r *http.Request) (store.Store, string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, "", false
	}
	return h.stores(userID), userID, true
}

// userHistory returns the classification history of a user, cached for
// the reference TTL.
func (h *Handler) userHistory(ctx context.Context, userID string, st store.TransactionStore) (classify.History, error) {
	if cached, ok := h.history.Get(userID); ok {
		return cached.(classify.History), nil
	}
	txns, err := st.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load classification history: %w", err)
	}
	history := classify.HistoryFrom(txns)
	h.history.SetDefault(userID, history)
	return history, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedFormat), errors.Is(err, domain.ErrEmptyStatement):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPeriodClosed), errors.Is(err, domain.ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Unexpected errors are logged
// and their detail withheld, except partial imports whose message names
// the batch to retry.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error().Err(err).Msg("request failed")
		if !errors.Is(err, domain.ErrPartialImport) {
			msg = "internal error"
		}
	}
	writeJSON(w, r, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rumor-ml/commons.systems/finreport/internal/batch"
	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
	"github.com/rumor-ml/commons.systems/finreport/internal/streaming"
)

const heartbeatInterval = 15 * time.Second

// PreviewImport handles POST /api/imports/preview. The statement arrives as
// multipart field "file"; nothing is stored.
func (h *Handler) PreviewImport(w http.ResponseWriter, r *http.Request) {
	st, userID, ok := h.userStore(w, r)
	if !ok {
		return
	}

	if r.ContentLength > h.maxUpload {
		writeError(w, r, &http.MaxBytesError{Limit: h.maxUpload})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, fmt.Errorf("%w: failed to parse form: %v", domain.ErrInvalidInput, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: no file uploaded", domain.ErrInvalidInput))
		return
	}
	defer file.Close()

	history, err := h.userHistory(r.Context(), userID, st)
	if err != nil {
		writeError(w, r, err)
		return
	}

	preview, err := h.pipeline.Preview(r.Context(), header.Filename, file, h.categories.Categories(), history)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, preview)
}

// CommitRequest carries reviewed results back for commit
type CommitRequest struct {
	FileName string                        `json:"fileName"`
	Format   domain.Format                 `json:"format"`
	Results  []domain.ClassificationResult `json:"results"`
}

// CommitResponse names the batch being written
type CommitResponse struct {
	BatchID string `json:"batchId"`
}

// CommitImport handles POST /api/imports. Validation happens before the
// response; the batch is then written in the background and its progress
// published on /api/imports/{id}/events.
func (h *Handler) CommitImport(w http.ResponseWriter, r *http.Request) {
	st, userID, ok := h.userStore(w, r)
	if !ok {
		return
	}

	var req CommitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.FileName == "" {
		writeError(w, r, fmt.Errorf("%w: fileName is required", domain.ErrInvalidInput))
		return
	}

	importer := batch.NewImporter(st, h.categories)
	plan, err := importer.Prepare(r.Context(), req.FileName, req.Format, req.Results)
	if err != nil {
		writeError(w, r, err)
		return
	}

	batchID := plan.Batch.ID
	key := streamKey(userID, batchID)
	h.hub.Begin(key)
	h.commits.Add(1)

	// the commit outlives the request but keeps its logger
	ctx := context.WithoutCancel(r.Context())
	go func() {
		defer h.commits.Done()

		b, err := importer.Save(ctx, plan, func(written, total int) {
			h.hub.Broadcast(key, streaming.NewProgressEvent(streaming.ProgressEvent{
				BatchID:  batchID,
				FileName: plan.Batch.FileName,
				Written:  written,
				Total:    total,
			}))
		})
		h.history.Delete(userID)

		if err != nil {
			h.hub.Broadcast(key, streaming.NewErrorEvent(streaming.ErrorEvent{
				Message: err.Error(),
				BatchID: batchID,
				Partial: errors.Is(err, domain.ErrPartialImport),
			}))
			return
		}
		h.hub.Broadcast(key, streaming.NewCompleteEvent(streaming.CompleteEvent{Batch: b}))
	}()

	writeJSON(w, r, http.StatusAccepted, CommitResponse{BatchID: batchID})
}

// ListImports handles GET /api/imports
func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	st, _, ok := h.userStore(w, r)
	if !ok {
		return
	}
	batches, err := st.ListBatches(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if batches == nil {
		batches = []domain.ImportBatch{}
	}
	writeJSON(w, r, http.StatusOK, batches)
}

// GetImport handles GET /api/imports/{id}
func (h *Handler) GetImport(w http.ResponseWriter, r *http.Request) {
	st, _, ok := h.userStore(w, r)
	if !ok {
		return
	}
	b, err := st.GetBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

// ImportEvents handles GET /api/imports/{id}/events, streaming commit
// progress as Server-Sent Events. A batch that already finished gets its
// terminal event replayed by the hub, or built from stored state when the
// hub no longer knows the batch.
func (h *Handler) ImportEvents(w http.ResponseWriter, r *http.Request) {
	st, userID, ok := h.userStore(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	batchID := r.PathValue("id")
	ctx := r.Context()

	key := streamKey(userID, batchID)
	sub := h.hub.Subscribe(ctx, key)
	if sub.Client != nil {
		defer h.hub.Unregister(key, sub.Client)
	}

	final := sub.Final
	if !sub.Known() {
		b, err := st.GetBatch(ctx, batchID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		event := storedOutcome(b)
		final = &event
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if final != nil {
		writeEvent(ctx, w, *final)
		flusher.Flush()
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeEvent(ctx, w, streaming.NewHeartbeatEvent())
			flusher.Flush()
		case event, ok := <-sub.Client.Events:
			if !ok {
				return
			}
			writeEvent(ctx, w, event)
			flusher.Flush()
			if event.IsTerminal() {
				return
			}
		}
	}
}

// streamKey scopes hub sessions to their owner
func streamKey(userID, batchID string) string {
	return userID + "/" + batchID
}

// storedOutcome rebuilds the terminal event of a batch from its stored status
func storedOutcome(b domain.ImportBatch) streaming.SSEEvent {
	if b.Status == domain.BatchStatusCommitted {
		return streaming.NewCompleteEvent(streaming.CompleteEvent{Batch: b})
	}
	return streaming.NewErrorEvent(streaming.ErrorEvent{
		Message: fmt.Sprintf("batch %s is %s", b.ID, b.Status),
		BatchID: b.ID,
		Partial: true,
	})
}

func writeEvent(ctx context.Context, w http.ResponseWriter, event streaming.SSEEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("event", string(event.Type)).Msg("failed to encode event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
}

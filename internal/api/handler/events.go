package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/zhinao/geoscan/internal/api/middleware"
	"github.com/zhinao/geoscan/internal/api/response"
	"github.com/zhinao/geoscan/internal/store"
	"github.com/zhinao/geoscan/internal/tracker"
)

// Watcher is what the events handler needs from the tracker.
type Watcher interface {
	Watch(ctx context.Context, userID, jobID uuid.UUID) (<-chan tracker.Update, error)
}

// NewJobEventsHandler returns the SSE handler for GET /api/v1/jobs/{jobID}/events.
// The stream emits one event per lifecycle update and closes after the
// terminal state. Client disconnect cancels the request context, which tears
// the underlying subscription down.
func NewJobEventsHandler(watcher Watcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming not supported", nil)
			return
		}

		updates, err := watcher.Watch(r.Context(), userID, jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for update := range updates {
			data, err := json.Marshal(update)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: update\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/zhinao/geoscan/internal/api/middleware"
	"github.com/zhinao/geoscan/internal/api/response"
	"github.com/zhinao/geoscan/internal/store"
)

// ReportStore is what the report handler needs from the store.
type ReportStore interface {
	UpdateResultReport(ctx context.Context, id uuid.UUID, userID uuid.UUID, body string) error
}

// NewUpdateReportHandler returns the handler for
// PUT /api/v1/results/{resultID}/report. The report body is the only
// result field a user may overwrite; everything else belongs to the engine.
func NewUpdateReportHandler(st ReportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		resultID, err := uuid.Parse(chi.URLParam(r, "resultID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "resultID must be a valid UUID", nil)
			return
		}

		var req struct {
			ReportBody string `json:"report_body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.ReportBody == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "report_body is required", nil)
			return
		}

		err = st.UpdateResultReport(r.Context(), resultID, userID, req.ReportBody)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Result not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, map[string]any{"updated": true})
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	mw "github.com/zhinao/geoscan/internal/api/middleware"
	"github.com/zhinao/geoscan/internal/api/response"
	"github.com/zhinao/geoscan/internal/credits"
	"github.com/zhinao/geoscan/pkg/models"
)

// CreditsReader is what the credits handler needs from the credits service.
type CreditsReader interface {
	Summarize(ctx context.Context, userID uuid.UUID) (*credits.Summary, error)
}

// LedgerStore is what the ledger and top-up handlers need from the store.
type LedgerStore interface {
	ListLedgerEntries(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.LedgerEntry, int, error)
	CreateTopUpRequest(ctx context.Context, req *models.TopUpRequest) error
}

// NewCreditsHandler returns the handler for GET /api/v1/credits.
func NewCreditsHandler(svc CreditsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		summary, err := svc.Summarize(r.Context(), userID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, summary)
	}
}

// NewLedgerHandler returns the handler for GET /api/v1/credits/ledger.
func NewLedgerHandler(st LedgerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", 20)

		entries, total, err := st.ListLedgerEntries(r.Context(), userID, page, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if entries == nil {
			entries = []*models.LedgerEntry{}
		}

		response.Collection(w, entries, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewTopUpHandler returns the handler for POST /api/v1/topups. The request
// is created pending; crediting happens through an operator process.
func NewTopUpHandler(st LedgerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Amount int    `json:"amount"`
			Note   string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Amount <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "amount must be positive", nil)
			return
		}

		topup := &models.TopUpRequest{
			ID:        uuid.New(),
			UserID:    userID,
			Amount:    req.Amount,
			Status:    models.TopUpStatusPending,
			Note:      req.Note,
			CreatedAt: time.Now().UTC(),
		}
		if err := st.CreateTopUpRequest(r.Context(), topup); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.Created(w, topup)
	}
}

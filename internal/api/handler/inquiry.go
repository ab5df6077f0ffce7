package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zhinao/geoscan/internal/api/response"
	"github.com/zhinao/geoscan/internal/mailer"
)

// NewInquiryHandler returns the handler for POST /api/v1/inquiries, the
// public lead-capture endpoint behind the marketing site's contact form.
func NewInquiryHandler(sender mailer.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name    string `json:"name"`
			Company string `json:"company"`
			Website string `json:"website"`
			Phone   string `json:"phone"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		err := sender.SendInquiry(r.Context(), mailer.Inquiry{
			Name:    req.Name,
			Company: req.Company,
			Website: req.Website,
			Phone:   req.Phone,
			Message: req.Message,
		})
		switch {
		case errors.Is(err, mailer.ErrMissingField):
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		case err != nil:
			response.Error(w, http.StatusInternalServerError, "MAIL_DISPATCH_FAILED",
				"Failed to send inquiry notification", nil)
		default:
			response.JSON(w, map[string]any{"sent": true})
		}
	}
}

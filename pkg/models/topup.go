package models

import (
	"time"

	"github.com/google/uuid"
)

const TopUpStatusPending = "pending"

// TopUpRequest records a user's request for manual crediting after an
// out-of-band payment. Resolution (approval and the matching ledger entry)
// happens through an operator process, not through this API.
type TopUpRequest struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	Amount    int       `db:"amount"     json:"amount"`
	Status    string    `db:"status"     json:"status"`
	Note      string    `db:"note"       json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	LedgerTypeTopUp        = "top_up"
	LedgerTypeDeduction    = "deduction"
	LedgerTypeRefund       = "refund"
	LedgerTypeMonthlyGrant = "monthly_grant"
)

// LedgerEntry is one append-only credit transaction. Amount is signed
// (negative = deduction); BalanceAfter is the account balance snapshot
// immediately after applying the entry and is the single source of truth —
// this service reads the latest snapshot, it never recomputes balances.
type LedgerEntry struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	UserID       uuid.UUID  `db:"user_id"       json:"user_id"`
	Amount       int        `db:"amount"        json:"amount"`
	BalanceAfter int        `db:"balance_after" json:"balance_after"`
	Type         string     `db:"type"          json:"type"`
	JobID        *uuid.UUID `db:"job_id"        json:"job_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
}

package models

import (
	"time"
)

// CreditLedgerEntry is one append-only row in the billing audit trail.
// The running balance for a client is the sum of deltas and never goes
// negative; entries are never mutated or deleted.
type CreditLedgerEntry struct {
	ID        int64     `json:"id"`
	ClientID  string    `json:"client_id"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	JobID     *string   `json:"job_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

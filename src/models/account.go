package models

import "time"

// Account is a user-owned crypto account (exchange account or wallet).
// Deleting an account cascades all of its ledger entries.
type Account struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Platform  string    `json:"platform,omitempty"` // e.g. "binance", "ledger"
	Address   string    `json:"address,omitempty"`  // on-chain address, if any
	CreatedAt time.Time `json:"created_at,omitempty"`
}

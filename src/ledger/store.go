// Package ledger owns the append-only store of atomic ledger entries.
//
// Entries are only ever written whole groups at a time: all legs of one
// user-facing operation land in a single transaction or not at all. Beyond
// that, individual entries may be edited or deleted post hoc, and deleting
// an account cascades its entries.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEntryNotFound   = errors.New("ledger entry not found")
	ErrInvalidEntry    = errors.New("invalid ledger entry")
)

// Store is the persistence boundary of the accounting engine.
type Store interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	AccountsByUser(ctx context.Context, userID int64) ([]models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
	// DeleteAccount removes the account and cascades all of its entries.
	DeleteAccount(ctx context.Context, id int64) error

	// AppendGroup persists all entries in one transaction. If any leg fails
	// validation or insertion, none are persisted. Assigned ids are filled
	// into the returned slice.
	AppendGroup(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error)
	// EntriesByAccount returns the full history ordered by executed_at,
	// ties broken by insertion id so ordering stays deterministic.
	EntriesByAccount(ctx context.Context, accountID int64) ([]models.LedgerEntry, error)
	// EntriesByTxRef looks entries up by external reference without the
	// store ever comparing plaintext (blind index equality).
	EntriesByTxRef(ctx context.Context, accountID int64, txRef string) ([]models.LedgerEntry, error)
	EntryByID(ctx context.Context, id int64) (*models.LedgerEntry, error)
	UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error
	DeleteEntry(ctx context.Context, id int64) error
}

// validateGroup checks every leg before anything is written. A zero-amount
// leg is never persisted, so it is an error to submit one.
func validateGroup(entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: group has no entries", ErrInvalidEntry)
	}
	for i, e := range entries {
		if e.AccountID == 0 {
			return fmt.Errorf("%w: leg %d has no account", ErrInvalidEntry, i)
		}
		if e.Symbol == "" {
			return fmt.Errorf("%w: leg %d has no symbol", ErrInvalidEntry, i)
		}
		if !e.Type.Valid() {
			return fmt.Errorf("%w: leg %d has unknown entry type %q", ErrInvalidEntry, i, e.Type)
		}
		if e.Amount.Cmp(decimal.Zero) <= 0 {
			return fmt.Errorf("%w: leg %d (%s %s) amount must be positive", ErrInvalidEntry, i, e.Type, e.Symbol)
		}
		if e.UnitPriceEUR.Cmp(decimal.Zero) < 0 {
			return fmt.Errorf("%w: leg %d (%s %s) unit price must not be negative", ErrInvalidEntry, i, e.Type, e.Symbol)
		}
		if e.ExecutedAt.IsZero() {
			return fmt.Errorf("%w: leg %d has no execution time", ErrInvalidEntry, i)
		}
	}
	return nil
}

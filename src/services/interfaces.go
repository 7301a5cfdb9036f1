package services

import (
	"context"
	"errors"
	"io"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/processors"
	"github.com/shopspring/decimal"
)

var (
	ErrParsingFailed   = errors.New("error parsing import file")
	ErrNotAccountOwner = errors.New("account does not belong to the requesting user")
	ErrMissingEURInput = errors.New("a flagged import group is missing its EUR amount")
)

// OperationResult is the outcome of one composite write. Advisory carries
// the balance guard's warning; it is part of a successful response, never
// an error.
type OperationResult struct {
	GroupID  string               `json:"group_id"`
	Entries  []models.LedgerEntry `json:"entries"`
	Advisory string               `json:"advisory,omitempty"`
}

// LedgerService is the write and read surface of the accounting engine.
type LedgerService interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	Accounts(ctx context.Context, userID int64) ([]models.Account, error)
	UpdateAccount(ctx context.Context, userID int64, account *models.Account) error
	DeleteAccount(ctx context.Context, userID, accountID int64) error

	CreateOperation(ctx context.Context, userID int64, input processors.OperationInput) (*OperationResult, error)
	Transfer(ctx context.Context, userID int64, input processors.TransferInput) (*OperationResult, error)

	Entries(ctx context.Context, userID, accountID int64) ([]models.LedgerEntry, error)
	EntriesByTxRef(ctx context.Context, userID, accountID int64, txRef string) ([]models.LedgerEntry, error)
	UpdateEntry(ctx context.Context, userID int64, entry *models.LedgerEntry) error
	DeleteEntry(ctx context.Context, userID, entryID int64) error

	Positions(ctx context.Context, userID, accountID int64) (*models.AccountPositions, error)
	Portfolio(ctx context.Context, userID int64) (*models.PortfolioSummary, error)

	InvalidateUserCache(userID int64)
}

// ImportResult summarizes a confirmed import.
type ImportResult struct {
	GroupsPersisted  int      `json:"groups_persisted"`
	EntriesPersisted int      `json:"entries_persisted"`
	Advisory         string   `json:"advisory,omitempty"`
	GroupIDs         []string `json:"group_ids"`
}

// ImportService is the two-phase exchange-export import flow. Preview is
// ephemeral; only Confirm persists anything.
type ImportService interface {
	Preview(source string, file io.Reader) (*models.ImportPreview, error)
	Confirm(ctx context.Context, userID, accountID int64, groups []models.ImportGroup) (*ImportResult, error)
}

// PriceService supplies live EUR valuations. It is used for valuation only,
// never for cost basis. The second return is false when no price is known;
// callers surface null in that case, never zero.
type PriceService interface {
	PriceEUR(symbol string) (decimal.Decimal, bool)
}

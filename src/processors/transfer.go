package processors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrTransferOwnership = errors.New("transfer accounts must belong to the same user")

// TransferInput moves a balance between two accounts of the same user.
// The optional fee is always debited from the source account.
type TransferInput struct {
	SourceAccountID int64           `json:"source_account_id"`
	DestAccountID   int64           `json:"dest_account_id"`
	Symbol          string          `json:"symbol"`
	Amount          decimal.Decimal `json:"amount"`
	FeeSymbol       string          `json:"fee_symbol,omitempty"`
	FeeAmount       decimal.Decimal `json:"fee_amount"`
	ExecutedAt      time.Time       `json:"executed_at"`
	Memo            string          `json:"memo,omitempty"`
}

// TransferBuilder is the cross-account specialization of the decomposer.
type TransferBuilder struct{}

func NewTransferBuilder() *TransferBuilder {
	return &TransferBuilder{}
}

// Build emits a TRANSFER debit at the source and a costless BUY credit at
// the destination. The destination leg is deliberately priced at zero: cost
// basis is not propagated across accounts, so a reader that needs it must
// special-case TRANSFER-matched BUY legs.
func (b *TransferBuilder) Build(source, dest *models.Account, requestingUserID int64, input TransferInput) (string, []models.LedgerEntry, error) {
	if source.UserID != requestingUserID || dest.UserID != requestingUserID {
		return "", nil, ErrTransferOwnership
	}
	if source.ID == dest.ID {
		return "", nil, fmt.Errorf("%w: source and destination are the same account", ErrTransferOwnership)
	}
	symbol := strings.ToUpper(strings.TrimSpace(input.Symbol))
	if symbol == "" {
		return "", nil, fmt.Errorf("%w: symbol is required", ErrInvalidAmount)
	}
	if input.Amount.Cmp(decimal.Zero) <= 0 {
		return "", nil, fmt.Errorf("%w: transfer amount %s", ErrInvalidAmount, input.Amount)
	}

	groupID := uuid.NewString()
	executedAt := input.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}

	entries := []models.LedgerEntry{
		{
			AccountID:    source.ID,
			GroupID:      groupID,
			Symbol:       symbol,
			Type:         models.EntryTransfer,
			Amount:       input.Amount,
			UnitPriceEUR: decimal.Zero,
			ExecutedAt:   executedAt,
			Memo:         input.Memo,
		},
		{
			AccountID:    dest.ID,
			GroupID:      groupID,
			Symbol:       symbol,
			Type:         models.EntryBuy,
			Amount:       input.Amount,
			UnitPriceEUR: decimal.Zero,
			ExecutedAt:   executedAt,
			Memo:         input.Memo,
		},
	}

	if input.FeeAmount.IsPositive() {
		feeSymbol := strings.ToUpper(strings.TrimSpace(input.FeeSymbol))
		if feeSymbol == "" {
			feeSymbol = symbol
		}
		entries = append(entries, models.LedgerEntry{
			AccountID:    source.ID,
			GroupID:      groupID,
			Symbol:       feeSymbol,
			Type:         models.EntryFee,
			Amount:       input.FeeAmount,
			UnitPriceEUR: decimal.Zero,
			ExecutedAt:   executedAt,
			Memo:         input.Memo,
		})
	} else if input.FeeAmount.IsNegative() {
		return "", nil, fmt.Errorf("%w: fee amount %s", ErrInvalidAmount, input.FeeAmount)
	}

	return groupID, entries, nil
}

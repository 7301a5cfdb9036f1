// Package processors holds the accounting engine proper: decomposition of
// user-facing operations into ledger entry groups, cost-basis aggregation
// over the resulting history, and the post-write balance guard.
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

var (
	ErrUnknownOperation = errors.New("unknown operation type")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidFee       = errors.New("invalid fee specification")
)

// OperationType is the user-facing vocabulary, one step above entry types.
type OperationType string

const (
	OpBuy            OperationType = "BUY"
	OpReward         OperationType = "REWARD"
	OpFiatDeposit    OperationType = "FIAT_DEPOSIT"
	OpFiatWithdraw   OperationType = "FIAT_WITHDRAW"
	OpCryptoDeposit  OperationType = "CRYPTO_DEPOSIT"
	OpTransfer       OperationType = "TRANSFER"
	OpExit           OperationType = "EXIT"
	OpGasFee         OperationType = "GAS_FEE"
	OpNonTaxableExit OperationType = "NON_TAXABLE_EXIT"
)

// primaryEntryTypes maps each operation to the entry type of its primary leg.
var primaryEntryTypes = map[OperationType]models.EntryType{
	OpBuy:            models.EntryBuy,
	OpReward:         models.EntryReward,
	OpFiatDeposit:    models.EntryFiatDeposit,
	OpFiatWithdraw:   models.EntrySpend,
	OpCryptoDeposit:  models.EntryCryptoDeposit,
	OpTransfer:       models.EntryTransfer,
	OpExit:           models.EntryExit,
	OpGasFee:         models.EntryGasFee,
	OpNonTaxableExit: models.EntryNonTaxableExit,
}

// FeeModel describes the fee attached to an operation. Exactly one of
// Percentage, FeeEUR or (FeeSymbol, FeeAmount) is expected when a fee is
// present; all zero values mean "no fee".
//
// Included=true means the fee is already reflected in the economics the user
// supplied: the fee leg is informational and the anchor amount is untouched.
// Included=false means the fee is additional cost and inflates the group's
// fiat cost leg instead of being priced on the fee leg.
type FeeModel struct {
	Included   bool            `json:"fee_included"`
	Percentage decimal.Decimal `json:"fee_percentage"`
	FeeEUR     decimal.Decimal `json:"fee_eur"`
	FeeSymbol  string          `json:"fee_symbol"`
	FeeAmount  decimal.Decimal `json:"fee_amount"`
}

func (f FeeModel) present() bool {
	return f.Percentage.IsPositive() || f.FeeEUR.IsPositive() || f.FeeAmount.IsPositive()
}

// OperationInput is one user-facing operation before decomposition.
type OperationInput struct {
	Operation   OperationType   `json:"operation"`
	AccountID   int64           `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Amount      decimal.Decimal `json:"amount"`
	QuoteSymbol string          `json:"quote_symbol,omitempty"` // the other side of a trade
	QuoteAmount decimal.Decimal `json:"quote_amount"`
	EURAmount   decimal.Decimal `json:"eur_amount"` // explicit EUR value of the whole operation
	Fee         FeeModel        `json:"fee"`
	ExecutedAt  time.Time       `json:"executed_at"`
	TxRef       string          `json:"tx_ref,omitempty"`
	Memo        string          `json:"memo,omitempty"`
}

// Decomposer turns one user-facing operation into 1-4 atomic ledger entries
// sharing a fresh group id.
type Decomposer struct {
	fiatBase string
}

func NewDecomposer(fiatBase string) *Decomposer {
	return &Decomposer{fiatBase: strings.ToUpper(fiatBase)}
}

// Decompose builds the entry group for the operation. Validation happens
// before any leg is built; the caller persists the returned legs atomically.
func (d *Decomposer) Decompose(input OperationInput) (string, []models.LedgerEntry, error) {
	primaryType, ok := primaryEntryTypes[input.Operation]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownOperation, input.Operation)
	}
	if input.Amount.Cmp(decimal.Zero) <= 0 {
		return "", nil, fmt.Errorf("%w: primary amount %s", ErrInvalidAmount, input.Amount)
	}
	if input.QuoteSymbol != "" && input.QuoteAmount.Cmp(decimal.Zero) <= 0 {
		return "", nil, fmt.Errorf("%w: quote amount %s", ErrInvalidAmount, input.QuoteAmount)
	}
	if input.EURAmount.Cmp(decimal.Zero) < 0 {
		return "", nil, fmt.Errorf("%w: eur amount %s", ErrInvalidAmount, input.EURAmount)
	}
	feeEUR, err := d.feeEURAmount(input)
	if err != nil {
		return "", nil, err
	}

	groupID := uuid.NewString()
	executedAt := input.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}

	leg := func(symbol string, entryType models.EntryType, amount, unitPrice decimal.Decimal) models.LedgerEntry {
		return models.LedgerEntry{
			AccountID:    input.AccountID,
			GroupID:      groupID,
			Symbol:       strings.ToUpper(symbol),
			Type:         entryType,
			Amount:       amount,
			UnitPriceEUR: unitPrice,
			ExecutedAt:   executedAt,
			TxRef:        input.TxRef,
			Memo:         input.Memo,
		}
	}

	// Primary leg. Its cost is carried by the anchor or quote leg, so the
	// unit price is zero, except when the leg itself is the fiat side.
	primarySymbol := input.Symbol
	primaryPrice := decimal.Zero
	if input.Operation == OpFiatDeposit || input.Operation == OpFiatWithdraw {
		primarySymbol = d.fiatBase
		primaryPrice = decimal.NewFromInt(1)
	}
	entries := []models.LedgerEntry{leg(primarySymbol, primaryType, input.Amount, primaryPrice)}

	// Quote leg: the opposite side of a trade. A fiat quote is the group's
	// cost leg at unit price 1; a crypto quote is costless at price 0.
	hasFiatQuote := false
	if input.QuoteSymbol != "" {
		quoteSymbol := strings.ToUpper(input.QuoteSymbol)
		primaryIsCredit := primaryType.IsCredit()
		if quoteSymbol == d.fiatBase {
			hasFiatQuote = true
			quoteType := models.EntrySpend // fiat out pays for an acquisition
			if !primaryIsCredit {
				quoteType = models.EntryFiatDeposit // fiat in from a disposal
			}
			quoteAmount := input.QuoteAmount
			if quoteType == models.EntrySpend && !input.Fee.Included && feeEUR.IsPositive() {
				// additional fee inflates the group's fiat cost leg
				quoteAmount = quoteAmount.Add(feeEUR)
			}
			entries = append(entries, leg(quoteSymbol, quoteType, quoteAmount, decimal.NewFromInt(1)))
		} else {
			quoteType := models.EntrySpend
			if !primaryIsCredit {
				quoteType = models.EntryBuy
			}
			entries = append(entries, leg(quoteSymbol, quoteType, input.QuoteAmount, decimal.Zero))
		}
	}

	// Fiat anchor: records the EUR cost when no real fiat leg exists.
	if !hasFiatQuote && strings.ToUpper(primarySymbol) != d.fiatBase && input.EURAmount.IsPositive() {
		anchorAmount := input.EURAmount
		if !input.Fee.Included && feeEUR.IsPositive() {
			anchorAmount = anchorAmount.Add(feeEUR)
		}
		entries = append(entries, leg(d.fiatBase, models.EntryFiatAnchor, anchorAmount, decimal.NewFromInt(1)))
	}

	// Fee leg, informational: its cost is either already in the user's
	// numbers (Included) or was added to the fiat cost leg above, so it is
	// never priced on the leg itself.
	if input.Fee.present() {
		feeSymbol := input.Fee.FeeSymbol
		feeAmount := input.Fee.FeeAmount
		if feeSymbol == "" {
			feeSymbol = d.fiatBase
			feeAmount = feeEUR
		}
		if feeAmount.Cmp(decimal.Zero) <= 0 {
			return "", nil, fmt.Errorf("%w: fee amount %s", ErrInvalidAmount, feeAmount)
		}
		entries = append(entries, leg(feeSymbol, models.EntryFee, feeAmount, decimal.Zero))
	}

	return groupID, entries, nil
}

// feeEURAmount resolves the fee model to its EUR equivalent. A crypto-symbol
// fee with no EUR figure resolves to zero: it cannot inflate the anchor, it
// only shows up as an informational leg.
func (d *Decomposer) feeEURAmount(input OperationInput) (decimal.Decimal, error) {
	f := input.Fee
	if !f.present() {
		return decimal.Zero, nil
	}
	if f.Percentage.IsPositive() {
		if f.Percentage.Cmp(decimal.NewFromInt(100)) > 0 {
			return decimal.Zero, fmt.Errorf("%w: percentage %s", ErrInvalidFee, f.Percentage)
		}
		base := input.EURAmount
		if base.IsZero() && strings.ToUpper(input.QuoteSymbol) == d.fiatBase {
			base = input.QuoteAmount
		}
		return base.Mul(f.Percentage).Div(decimal.NewFromInt(100)), nil
	}
	if f.FeeEUR.IsPositive() {
		return f.FeeEUR, nil
	}
	if strings.ToUpper(f.FeeSymbol) == d.fiatBase {
		return f.FeeAmount, nil
	}
	return decimal.Zero, nil
}

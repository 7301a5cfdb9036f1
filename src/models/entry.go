package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType identifies what a ledger entry does to the tracked quantity of
// its symbol. The set is closed: anything else is rejected at write time.
type EntryType string

const (
	EntryBuy            EntryType = "BUY"
	EntryReward         EntryType = "REWARD"
	EntryCryptoDeposit  EntryType = "CRYPTO_DEPOSIT"
	EntryFiatDeposit    EntryType = "FIAT_DEPOSIT"
	EntryStaking        EntryType = "STAKING"
	EntrySpend          EntryType = "SPEND"
	EntryExit           EntryType = "EXIT"
	EntryNonTaxableExit EntryType = "NON_TAXABLE_EXIT"
	EntryTransfer       EntryType = "TRANSFER"
	EntryGasFee         EntryType = "GAS_FEE"
	EntryFee            EntryType = "FEE"
	EntryFiatAnchor     EntryType = "FIAT_ANCHOR"
)

// EntryClass partitions entry types by their effect on a position.
type EntryClass int

const (
	ClassCredit EntryClass = iota // increases tracked quantity
	ClassDebit                    // decreases tracked quantity or records an expense
	ClassAnchor                   // synthetic fiat leg carrying a group's EUR cost
)

// entryClasses is the single classification table. The aggregator and the
// decomposer consult it instead of re-deriving direction per call site.
var entryClasses = map[EntryType]EntryClass{
	EntryBuy:            ClassCredit,
	EntryReward:         ClassCredit,
	EntryCryptoDeposit:  ClassCredit,
	EntryFiatDeposit:    ClassCredit,
	EntryStaking:        ClassCredit,
	EntrySpend:          ClassDebit,
	EntryExit:           ClassDebit,
	EntryNonTaxableExit: ClassDebit,
	EntryTransfer:       ClassDebit,
	EntryGasFee:         ClassDebit,
	EntryFee:            ClassDebit,
	EntryFiatAnchor:     ClassAnchor,
}

// Class returns the CREDIT/DEBIT/ANCHOR classification of the entry type.
// The second return is false for types outside the closed set.
func (t EntryType) Class() (EntryClass, bool) {
	c, ok := entryClasses[t]
	return c, ok
}

// Valid reports whether t is one of the known entry types.
func (t EntryType) Valid() bool {
	_, ok := entryClasses[t]
	return ok
}

// IsCredit reports whether the entry type increases tracked quantity.
func (t EntryType) IsCredit() bool {
	return entryClasses[t] == ClassCredit
}

// IsDebit reports whether the entry type decreases tracked quantity.
func (t EntryType) IsDebit() bool {
	c, ok := entryClasses[t]
	return ok && c == ClassDebit
}

// IsFee reports whether the entry type records a fee expense.
func (t EntryType) IsFee() bool {
	return t == EntryFee || t == EntryGasFee
}

// LedgerEntry is one atomic, always-positive-amount record of a single asset
// movement. Direction is encoded by Type, never by the sign of Amount.
// Entries sharing a GroupID were created together and represent one
// real-world operation.
type LedgerEntry struct {
	ID           int64           `json:"id,omitempty"`
	AccountID    int64           `json:"account_id"`
	GroupID      string          `json:"group_id,omitempty"` // empty when the entry stands alone
	Symbol       string          `json:"symbol"`             // uppercase ticker, fiat symbols included
	Type         EntryType       `json:"entry_type"`
	Amount       decimal.Decimal `json:"amount"`         // always > 0
	UnitPriceEUR decimal.Decimal `json:"unit_price_eur"` // >= 0; 0 marks a costless leg
	ExecutedAt   time.Time       `json:"executed_at"`
	TxRef        string          `json:"tx_ref,omitempty"` // optional tx hash, encrypted at rest
	Memo         string          `json:"memo,omitempty"`   // encrypted at rest
	CreatedAt    time.Time       `json:"created_at,omitempty"`
}

// ValueEUR returns the entry's EUR value at its recorded unit price.
func (e LedgerEntry) ValueEUR() decimal.Decimal {
	return e.Amount.Mul(e.UnitPriceEUR)
}

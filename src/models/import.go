package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImportRow is one successfully parsed line of an exchange ledger export.
type ImportRow struct {
	Line      int             `json:"line"` // 1-based line number in the file
	UserID    string          `json:"user_id,omitempty"`
	Time      time.Time       `json:"utc_time"`
	Account   string          `json:"account,omitempty"`
	Operation string          `json:"operation"`
	Coin      string          `json:"coin"`
	Change    decimal.Decimal `json:"change"` // signed
	Remark    string          `json:"remark,omitempty"`
}

// SkipReason records why a CSV row was dropped during parsing. Rows are
// skipped, never fatal: the import proceeds with whatever parsed.
type SkipReason struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// MappedRow is an import row translated to ledger vocabulary.
type MappedRow struct {
	Line         int             `json:"line"`
	Operation    string          `json:"operation"` // source operation, for review
	EntryType    EntryType       `json:"entry_type"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `json:"amount"` // absolute value of the change
	UnitPriceEUR decimal.Decimal `json:"unit_price_eur"`
	ExecutedAt   time.Time       `json:"executed_at"`
}

// ImportGroup is one bucket of rows assumed to belong to a single exchange
// action, plus the flags the caller needs to review it.
//
// EURAmount is filled in by the caller between preview and confirm for
// groups flagged NeedsFiatInput; it becomes the group's fiat anchor.
type ImportGroup struct {
	ExecutedAt           time.Time        `json:"executed_at"` // first row's timestamp
	Rows                 []MappedRow      `json:"rows"`
	HasFiat              bool             `json:"has_fiat"`
	NeedsFiatInput       bool             `json:"needs_fiat_input"`
	AutoFiatAmount       decimal.Decimal  `json:"auto_fiat_amount"`
	HintStablecoinAmount decimal.Decimal  `json:"hint_stablecoin_amount"`
	EURAmount            *decimal.Decimal `json:"eur_amount,omitempty"`
}

// ImportPreview is the ephemeral result of parsing and grouping an export.
// Nothing is persisted until the caller confirms; discarding a preview has
// no side effects.
type ImportPreview struct {
	Source   string        `json:"source"`
	Groups   []ImportGroup `json:"groups"`
	Skipped  []SkipReason  `json:"skipped,omitempty"`
	RowCount int           `json:"row_count"` // rows parsed, before grouping
}

package models

import "github.com/shopspring/decimal"

// Position is the derived state of one symbol in an account. It is never
// persisted: it is recomputed from the full entry history on every summary
// request. CurrentValue and ProfitLoss are nil when no live price is
// available, never zero.
type Position struct {
	Symbol       string           `json:"symbol"`
	Quantity     decimal.Decimal  `json:"quantity"`
	CostBasis    decimal.Decimal  `json:"cost_basis_eur"`
	Fees         decimal.Decimal  `json:"fees_eur"`
	AvgUnitCost  decimal.Decimal  `json:"avg_unit_cost_eur"`
	PriceEUR     *decimal.Decimal `json:"price_eur,omitempty"`
	CurrentValue *decimal.Decimal `json:"current_value_eur,omitempty"`
	ProfitLoss   *decimal.Decimal `json:"profit_loss_eur,omitempty"`
}

// AccountPositions is the position list of one account plus its totals.
type AccountPositions struct {
	AccountID         int64            `json:"account_id"`
	Positions         []Position       `json:"positions"`
	TotalCostBasis    decimal.Decimal  `json:"total_cost_basis_eur"`
	TotalFees         decimal.Decimal  `json:"total_fees_eur"`
	TotalCurrentValue *decimal.Decimal `json:"total_current_value_eur,omitempty"`
	TotalProfitLoss   *decimal.Decimal `json:"total_profit_loss_eur,omitempty"`
}

// PortfolioSummary aggregates positions across all accounts of a user.
type PortfolioSummary struct {
	Accounts          []AccountPositions `json:"accounts"`
	TotalCostBasis    decimal.Decimal    `json:"total_cost_basis_eur"`
	TotalFees         decimal.Decimal    `json:"total_fees_eur"`
	TotalCurrentValue *decimal.Decimal   `json:"total_current_value_eur,omitempty"`
	TotalProfitLoss   *decimal.Decimal   `json:"total_profit_loss_eur,omitempty"`
}

package processors

import (
	"sort"
	"strings"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/shopspring/decimal"
)

// Aggregator derives per-symbol positions from an account's full entry
// history. It is a pure function of the entries it is given: no locks, no
// storage access, identical output for identical input.
type Aggregator struct {
	fiatBase string
}

func NewAggregator(fiatBase string) *Aggregator {
	return &Aggregator{fiatBase: strings.ToUpper(fiatBase)}
}

// groupCostInfo is what one entry group contributes beyond its own legs.
type groupCostInfo struct {
	fiatCost      decimal.Decimal // amount of the group's fiat-cost leg, zero if none
	anchorCost    decimal.Decimal // portion of fiatCost carried by a FIAT_ANCHOR
	feesEUR       decimal.Decimal // EUR value of the group's fee legs
	hasTrade      bool            // group contains a position-tracked trade leg
	anchorClaimed bool            // anchorCost already attributed to a fee total
}

// Positions streams the history in order and maintains running quantity and
// cost basis per symbol.
//
// Cost attribution happens via group id: a CREDIT leg absorbs its group's
// full fiat cost plus the group's fee EUR. When a group carries more than
// one CREDIT leg for different symbols, the cost is NOT divided among them;
// each absorbs the full group cost. A DEBIT leg removes cost proportionally
// to the fraction of the held quantity it takes, clamped at zero to absorb
// rounding drift and over-sells from imperfect imported history.
//
// The entries must already be ordered by execution time with insertion id as
// the tie break, which is how the ledger store returns them.
func (a *Aggregator) Positions(entries []models.LedgerEntry) []models.Position {
	groups := a.collectGroupCosts(entries)

	quantity := make(map[string]decimal.Decimal)
	costBasis := make(map[string]decimal.Decimal)
	fees := make(map[string]decimal.Decimal)

	for _, e := range entries {
		if e.Symbol == a.fiatBase {
			// fiat legs only carry cost for their group, they never
			// become a position
			continue
		}

		class, ok := e.Type.Class()
		if !ok {
			continue
		}
		switch class {
		case models.ClassCredit:
			if e.GroupID != "" {
				g := groups[e.GroupID]
				costBasis[e.Symbol] = costBasis[e.Symbol].Add(g.fiatCost).Add(g.feesEUR)
			}
			quantity[e.Symbol] = quantity[e.Symbol].Add(e.Amount)

		case models.ClassDebit:
			held := quantity[e.Symbol]
			if held.IsPositive() {
				fraction := e.Amount.Div(held)
				if fraction.Cmp(decimal.NewFromInt(1)) > 0 {
					fraction = decimal.NewFromInt(1)
				}
				removed := costBasis[e.Symbol].Mul(fraction)
				costBasis[e.Symbol] = clampZero(costBasis[e.Symbol].Sub(removed))
			}
			// nothing held means nothing to remove from the cost basis;
			// the quantity is still debited and floored below
			quantity[e.Symbol] = clampZero(held.Sub(e.Amount))

			if e.Type.IsFee() && a.isStandaloneFee(e, groups) {
				fee := e.ValueEUR()
				if e.GroupID != "" {
					// a fee-only group's anchor holds the fee's EUR value;
					// attribute it once, to the first fee leg
					g := groups[e.GroupID]
					if !g.anchorClaimed && g.anchorCost.IsPositive() {
						fee = fee.Add(g.anchorCost)
						g.anchorClaimed = true
						groups[e.GroupID] = g
					}
				}
				fees[e.Symbol] = fees[e.Symbol].Add(fee)
			}
		}
	}

	symbols := make([]string, 0, len(quantity))
	for symbol := range quantity {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var positions []models.Position
	for _, symbol := range symbols {
		qty := quantity[symbol]
		if !qty.IsPositive() {
			// fully exited or over-sold to zero: dropped from the output
			continue
		}
		cost := costBasis[symbol]
		positions = append(positions, models.Position{
			Symbol:      symbol,
			Quantity:    qty,
			CostBasis:   cost,
			Fees:        fees[symbol],
			AvgUnitCost: cost.DivRound(qty, int32(decimal.DivisionPrecision)),
		})
	}
	return positions
}

// collectGroupCosts computes each group's attributed fiat cost and fee EUR
// in one pass, so the streaming loop never re-derives them per leg.
func (a *Aggregator) collectGroupCosts(entries []models.LedgerEntry) map[string]groupCostInfo {
	groups := make(map[string]groupCostInfo)
	for _, e := range entries {
		if e.GroupID == "" {
			continue
		}
		g := groups[e.GroupID]
		switch {
		case e.Type == models.EntryFiatAnchor:
			if g.fiatCost.IsZero() {
				g.fiatCost = e.Amount
				g.anchorCost = e.Amount
			}
		case a.isFiatCostLeg(e):
			if g.fiatCost.IsZero() {
				g.fiatCost = e.Amount
			}
		case e.Type.IsFee():
			g.feesEUR = g.feesEUR.Add(e.ValueEUR())
		default:
			g.hasTrade = true
		}
		groups[e.GroupID] = g
	}
	return groups
}

// isFiatCostLeg reports whether the entry is a fiat-symbol SPEND or
// FIAT_DEPOSIT row carrying its group's EUR cost. Anchors are handled
// separately so a lone anchor never makes its group look like a trade.
func (a *Aggregator) isFiatCostLeg(e models.LedgerEntry) bool {
	return e.Symbol == a.fiatBase && (e.Type == models.EntrySpend || e.Type == models.EntryFiatDeposit)
}

// isStandaloneFee reports whether a fee entry stands on its own rather than
// belonging to a trade group. Grouped fees are already part of the group's
// cost via feesEUR; standalone ones accumulate into the fees total instead.
func (a *Aggregator) isStandaloneFee(e models.LedgerEntry, groups map[string]groupCostInfo) bool {
	if e.GroupID == "" {
		return true
	}
	return !groups[e.GroupID].hasTrade
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

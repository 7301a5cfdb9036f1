package processors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/shopspring/decimal"
)

// BalanceGuard is the post-write, non-blocking negative-quantity check. It
// never rejects anything: imperfect imported histories are allowed to drive
// a balance negative, the guard only makes that visible.
type BalanceGuard struct {
	fiatBase string
}

func NewBalanceGuard(fiatBase string) *BalanceGuard {
	return &BalanceGuard{fiatBase: strings.ToUpper(fiatBase)}
}

// Check recomputes the signed quantity of every non-fiat symbol the new
// entries debited, over the account's full history. It returns a
// human-readable advisory enumerating any symbol that went negative, or an
// empty string when all debited balances are fine. The advisory rides on
// the success response; it is never an error.
func (g *BalanceGuard) Check(written, history []models.LedgerEntry) string {
	debited := make(map[string]bool)
	for _, e := range written {
		if e.Symbol == g.fiatBase {
			continue
		}
		if e.Type.IsDebit() {
			debited[e.Symbol] = true
		}
	}
	if len(debited) == 0 {
		return ""
	}

	balances := g.signedQuantities(history)

	var negative []string
	for symbol := range debited {
		if balance, ok := balances[symbol]; ok && balance.IsNegative() {
			negative = append(negative, fmt.Sprintf("%s (%s)", symbol, balance))
		}
	}
	if len(negative) == 0 {
		return ""
	}
	sort.Strings(negative)
	return "balance warning: negative quantity for " + strings.Join(negative, ", ")
}

// signedQuantities sums credits minus debits per symbol without the
// aggregator's clamp-at-zero, so an over-sell shows as a negative balance.
func (g *BalanceGuard) signedQuantities(entries []models.LedgerEntry) map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal)
	for _, e := range entries {
		if e.Symbol == g.fiatBase {
			continue
		}
		class, ok := e.Type.Class()
		if !ok {
			continue
		}
		switch class {
		case models.ClassCredit:
			balances[e.Symbol] = balances[e.Symbol].Add(e.Amount)
		case models.ClassDebit:
			balances[e.Symbol] = balances[e.Symbol].Sub(e.Amount)
		}
	}
	return balances
}

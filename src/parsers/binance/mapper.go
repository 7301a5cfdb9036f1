package binance

import (
	"sort"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/shopspring/decimal"
)

// Operation values as they appear in the export.
const (
	opDeposit            = "Deposit"
	opWithdraw           = "Withdraw"
	opBuyCryptoWithFiat  = "Buy Crypto With Fiat"
	opCryptoBox          = "Crypto Box"
	opBinanceConvert     = "Binance Convert"
	opTransactionBuy     = "Transaction Buy"
	opTransactionSpend   = "Transaction Spend"
	opTransactionFee     = "Transaction Fee"
	opTransactionSold    = "Transaction Sold"
	opTransactionRevenue = "Transaction Revenue"
)

// stablecoins are surfaced as an EUR-estimate hint when a trade group has
// no fiat leg.
var stablecoins = map[string]bool{
	"USDC":  true,
	"USDT":  true,
	"DAI":   true,
	"BUSD":  true,
	"FDUSD": true,
}

var priceOne = decimal.NewFromInt(1)

// mapRow translates one export row via the fixed per-operation decision
// table into ledger vocabulary. The sign of the change only matters where
// the table says it does (Binance Convert, unrecognized operations);
// everywhere else the operation name alone decides the entry type.
func (p *Parser) mapRow(row models.ImportRow) models.MappedRow {
	isFiat := row.Coin == p.fiatBase
	incoming := row.Change.IsPositive()

	entryType := models.EntryType("")
	price := decimal.Zero

	switch row.Operation {
	case opDeposit, opTransactionRevenue:
		if isFiat {
			entryType, price = models.EntryFiatDeposit, priceOne
		} else {
			entryType = models.EntryBuy
		}
	case opWithdraw:
		entryType = models.EntryTransfer
	case opBuyCryptoWithFiat:
		if isFiat {
			entryType, price = models.EntrySpend, priceOne
		} else {
			entryType = models.EntryBuy
		}
	case opCryptoBox:
		entryType = models.EntryReward
	case opBinanceConvert:
		switch {
		case incoming && isFiat:
			entryType, price = models.EntryFiatDeposit, priceOne
		case incoming:
			entryType = models.EntryBuy
		case isFiat:
			entryType, price = models.EntrySpend, priceOne
		default:
			entryType = models.EntrySpend
		}
	case opTransactionBuy:
		entryType = models.EntryBuy
	case opTransactionSpend, opTransactionSold:
		if isFiat {
			entryType, price = models.EntrySpend, priceOne
		} else {
			entryType = models.EntrySpend
		}
	case opTransactionFee:
		entryType = models.EntryFee
	default:
		if incoming {
			entryType = models.EntryBuy
		} else {
			entryType = models.EntrySpend
		}
	}

	return models.MappedRow{
		Line:         row.Line,
		Operation:    row.Operation,
		EntryType:    entryType,
		Symbol:       row.Coin,
		Amount:       row.Change.Abs(),
		UnitPriceEUR: price,
		ExecutedAt:   row.Time,
	}
}

// previewOrder fixes the display order of mapped rows within a group so
// previews are stable and reviewable.
var previewOrder = map[models.EntryType]int{
	models.EntryBuy:         0,
	models.EntryFiatDeposit: 1,
	models.EntryReward:      1,
	models.EntrySpend:       2,
	models.EntryExit:        3,
	models.EntryFee:         4,
	models.EntryGasFee:      4,
	models.EntryFiatAnchor:  5,
	models.EntryTransfer:    6,
}

// mapGroup maps one time bucket and derives its fiat-anchor flags.
func (p *Parser) mapGroup(bucket []models.ImportRow) models.ImportGroup {
	group := models.ImportGroup{
		ExecutedAt: bucket[0].Time,
		Rows:       make([]models.MappedRow, 0, len(bucket)),
	}

	rewardOnly, transferOnly := true, true
	hasTradeLeg := false
	fiatOut, fiatIn := decimal.Zero, decimal.Zero
	stablecoinTotal := decimal.Zero

	for _, row := range bucket {
		mapped := p.mapRow(row)
		group.Rows = append(group.Rows, mapped)

		isFiat := row.Coin == p.fiatBase
		if isFiat {
			group.HasFiat = true
			switch mapped.EntryType {
			case models.EntrySpend:
				fiatOut = fiatOut.Add(mapped.Amount)
			case models.EntryFiatDeposit:
				fiatIn = fiatIn.Add(mapped.Amount)
			}
		} else {
			if mapped.EntryType == models.EntryBuy || mapped.EntryType == models.EntrySpend {
				hasTradeLeg = true
			}
			if stablecoins[row.Coin] {
				stablecoinTotal = stablecoinTotal.Add(mapped.Amount)
			}
		}
		if row.Operation != opCryptoBox {
			rewardOnly = false
		}
		if row.Operation != opWithdraw {
			transferOnly = false
		}
	}

	sort.SliceStable(group.Rows, func(i, j int) bool {
		return previewOrder[group.Rows[i].EntryType] < previewOrder[group.Rows[j].EntryType]
	})

	if group.HasFiat {
		// net fiat outflow is the preferred cost reference, inflow the
		// fallback for disposal groups
		if fiatOut.IsPositive() {
			group.AutoFiatAmount = fiatOut
		} else {
			group.AutoFiatAmount = fiatIn
		}
		return group
	}

	group.NeedsFiatInput = !rewardOnly && !transferOnly && hasTradeLeg
	if stablecoinTotal.IsPositive() {
		group.HintStablecoinAmount = stablecoinTotal
	}
	return group
}

package binance

import (
	"strings"
	"testing"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

const exportHeader = "User_ID,UTC_Time,Account,Operation,Coin,Change,Remark\n"

func parse(t *testing.T, csvBody string) *models.ImportPreview {
	t.Helper()
	preview, err := NewParser("EUR").Parse(strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return preview
}

func TestParse_DepositAndFiatPurchaseSameSecond(t *testing.T) {
	// a card top-up: the fiat deposit and the purchase land with identical
	// timestamps but are distinct user actions
	preview := parse(t, exportHeader+
		"1001,2024-03-15 10:00:00,Spot,Deposit,EUR,14.70,\n"+
		"1001,2024-03-15 10:00:00,Spot,Buy Crypto With Fiat,EUR,-10.00,\n"+
		"1001,2024-03-15 10:00:00,Spot,Buy Crypto With Fiat,ETH,0.00677440,\n")

	if preview.Source != "binance" {
		t.Errorf("source = %q, want binance", preview.Source)
	}
	if preview.RowCount != 3 {
		t.Errorf("row count = %d, want 3", preview.RowCount)
	}
	if len(preview.Groups) != 2 {
		t.Fatalf("expected the deposit split from the purchase, got %d groups", len(preview.Groups))
	}

	deposit := preview.Groups[0]
	if len(deposit.Rows) != 1 || deposit.Rows[0].EntryType != models.EntryFiatDeposit {
		t.Fatalf("first group = %+v, want a lone FIAT_DEPOSIT", deposit.Rows)
	}
	if !deposit.Rows[0].Amount.Equal(dec("14.70")) {
		t.Errorf("deposit amount = %s, want 14.70", deposit.Rows[0].Amount)
	}

	purchase := preview.Groups[1]
	if !purchase.HasFiat {
		t.Error("purchase group should report a fiat leg")
	}
	if purchase.NeedsFiatInput {
		t.Error("group with fiat must not be flagged for manual EUR input")
	}
	if !purchase.AutoFiatAmount.Equal(dec("10.00")) {
		t.Errorf("auto fiat amount = %s, want 10.00", purchase.AutoFiatAmount)
	}

	// preview ordering: BUY before the fiat SPEND
	types := make([]models.EntryType, 0, len(purchase.Rows))
	for _, row := range purchase.Rows {
		types = append(types, row.EntryType)
	}
	want := []models.EntryType{models.EntryBuy, models.EntrySpend}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("row order = %v, want %v", types, want)
		}
	}
}

func TestParse_TimeWindowJoinsAndSplits(t *testing.T) {
	preview := parse(t, exportHeader+
		"1001,2024-03-15 10:00:00,Spot,Transaction Buy,BTC,0.001,\n"+
		"1001,2024-03-15 10:00:05,Spot,Transaction Spend,USDT,-30.5,\n"+
		"1001,2024-03-15 10:00:11,Spot,Transaction Buy,ETH,0.01,\n")

	if len(preview.Groups) != 2 {
		t.Fatalf("expected 2 buckets (5s joins, 11s splits), got %d", len(preview.Groups))
	}
	if len(preview.Groups[0].Rows) != 2 {
		t.Errorf("first bucket has %d rows, want 2", len(preview.Groups[0].Rows))
	}
	if !preview.Groups[1].ExecutedAt.Equal(time.Date(2024, 3, 15, 10, 0, 11, 0, time.UTC)) {
		t.Errorf("second bucket starts at %v, want 10:00:11 UTC", preview.Groups[1].ExecutedAt)
	}
}

func TestParse_CryptoTradeFlagsAndStablecoinHint(t *testing.T) {
	preview := parse(t, exportHeader+
		"1001,2024-03-15 10:00:00,Spot,Transaction Buy,BTC,0.001,\n"+
		"1001,2024-03-15 10:00:00,Spot,Transaction Spend,USDT,-30.5,\n"+
		"1001,2024-03-15 10:00:00,Spot,Transaction Fee,BNB,-0.0001,\n")

	group := preview.Groups[0]
	if group.HasFiat {
		t.Error("no EUR rows, HasFiat should be false")
	}
	if !group.NeedsFiatInput {
		t.Error("fiat-less trade group must be flagged for EUR input")
	}
	if !group.HintStablecoinAmount.Equal(dec("30.5")) {
		t.Errorf("stablecoin hint = %s, want 30.5", group.HintStablecoinAmount)
	}
}

func TestParse_RewardOnlyGroupNotFlagged(t *testing.T) {
	preview := parse(t, exportHeader+
		"1001,2024-03-15 10:00:00,Spot,Crypto Box,SHIB,100000,\n")

	group := preview.Groups[0]
	if group.NeedsFiatInput {
		t.Error("reward-only group must not require EUR input")
	}
	if group.Rows[0].EntryType != models.EntryReward {
		t.Errorf("Crypto Box mapped to %s, want REWARD", group.Rows[0].EntryType)
	}
}

func TestParse_WithdrawOnlyGroupNotFlagged(t *testing.T) {
	preview := parse(t, exportHeader+
		"1001,2024-03-15 10:00:00,Spot,Withdraw,BTC,-0.05,\n")

	group := preview.Groups[0]
	if group.NeedsFiatInput {
		t.Error("withdraw-only group must not require EUR input")
	}
	if group.Rows[0].EntryType != models.EntryTransfer {
		t.Errorf("Withdraw mapped to %s, want TRANSFER", group.Rows[0].EntryType)
	}
}

func TestParse_OperationMapping(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		coin      string
		change    string
		wantType  models.EntryType
		wantPrice string
	}{
		{"fiat deposit", "Deposit", "EUR", "100", models.EntryFiatDeposit, "1"},
		{"crypto deposit maps to costless buy", "Deposit", "BTC", "0.5", models.EntryBuy, "0"},
		{"transaction revenue fiat", "Transaction Revenue", "EUR", "250", models.EntryFiatDeposit, "1"},
		{"fiat spend on purchase", "Buy Crypto With Fiat", "EUR", "-10", models.EntrySpend, "1"},
		{"purchased leg", "Buy Crypto With Fiat", "ETH", "0.006", models.EntryBuy, "0"},
		{"convert incoming crypto", "Binance Convert", "SOL", "1.5", models.EntryBuy, "0"},
		{"convert outgoing crypto", "Binance Convert", "USDT", "-200", models.EntrySpend, "0"},
		{"convert incoming fiat", "Binance Convert", "EUR", "55", models.EntryFiatDeposit, "1"},
		{"convert outgoing fiat", "Binance Convert", "EUR", "-55", models.EntrySpend, "1"},
		{"transaction sold crypto", "Transaction Sold", "BTC", "-0.1", models.EntrySpend, "0"},
		{"fee in any coin", "Transaction Fee", "BNB", "-0.0002", models.EntryFee, "0"},
		{"fee in fiat still price zero", "Transaction Fee", "EUR", "-1.2", models.EntryFee, "0"},
		{"unknown incoming falls back to buy", "Mystery Airdrop", "XYZ", "42", models.EntryBuy, "0"},
		{"unknown outgoing falls back to spend", "Mystery Burn", "XYZ", "-42", models.EntrySpend, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preview := parse(t, exportHeader+
				"1001,2024-03-15 10:00:00,Spot,"+tt.operation+","+tt.coin+","+tt.change+",\n")
			row := preview.Groups[0].Rows[0]
			if row.EntryType != tt.wantType {
				t.Errorf("entry type = %s, want %s", row.EntryType, tt.wantType)
			}
			if !row.UnitPriceEUR.Equal(dec(tt.wantPrice)) {
				t.Errorf("unit price = %s, want %s", row.UnitPriceEUR, tt.wantPrice)
			}
			if row.Amount.IsNegative() {
				t.Errorf("amount = %s, mapped amounts are always positive", row.Amount)
			}
		})
	}
}

func TestParse_SameSecondDifferentActionsSplit(t *testing.T) {
	// a withdraw logged in the same second as a spot trade is not part of it
	preview := parse(t, exportHeader+
		"1001,2024-03-15 10:00:00,Spot,Transaction Buy,BTC,0.001,\n"+
		"1001,2024-03-15 10:00:00,Spot,Transaction Spend,USDT,-30.5,\n"+
		"1001,2024-03-15 10:00:00,Spot,Withdraw,ETH,-0.2,\n")

	if len(preview.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(preview.Groups))
	}
	if len(preview.Groups[0].Rows) != 2 {
		t.Errorf("trade group has %d rows, want the buy and spend together", len(preview.Groups[0].Rows))
	}
	if preview.Groups[1].Rows[0].EntryType != models.EntryTransfer {
		t.Errorf("second group = %+v, want the withdraw alone", preview.Groups[1].Rows)
	}
}

func TestParse_SkipReasons(t *testing.T) {
	preview := parse(t, exportHeader+
		"1001,not-a-time,Spot,Deposit,EUR,100,\n"+
		"1001,2024-03-15 10:00:00,Spot,Deposit,BTC,abc,\n"+
		"1001,2024-03-15 10:00:00,Spot,Deposit,BTC,0,\n"+
		"1001,2024-03-15 10:00:00,Spot,Deposit,BTC,0.5,\n")

	if preview.RowCount != 1 {
		t.Errorf("row count = %d, want 1 surviving row", preview.RowCount)
	}
	if len(preview.Skipped) != 3 {
		t.Fatalf("expected 3 skip reasons, got %d: %+v", len(preview.Skipped), preview.Skipped)
	}
	// line numbers are 1-based with the header as line 1
	if preview.Skipped[0].Line != 2 {
		t.Errorf("first skip at line %d, want 2", preview.Skipped[0].Line)
	}
	for _, skip := range preview.Skipped {
		if skip.Reason == "" {
			t.Errorf("skip at line %d has no reason", skip.Line)
		}
	}
}

func TestParse_ScientificNotationAmounts(t *testing.T) {
	preview := parse(t, exportHeader+
		"1001,2024-03-15 10:00:00,Spot,Transaction Fee,BNB,-6.8E-7,\n")
	row := preview.Groups[0].Rows[0]
	if !row.Amount.Equal(dec("0.00000068")) {
		t.Errorf("amount = %s, want 0.00000068", row.Amount)
	}
}

func TestParse_BOMAndHeaderVariants(t *testing.T) {
	preview := parse(t, "\ufeffUser ID,UTC Time,Account,Operation,Coin,Change,Remark\n"+
		"1001,2024-03-15 10:00:00,Spot,Deposit,EUR,100,\n")
	if preview.RowCount != 1 {
		t.Errorf("row count = %d, want 1 (BOM and spaced headers must still match)", preview.RowCount)
	}
}

func TestParse_MissingRequiredColumn(t *testing.T) {
	_, err := NewParser("EUR").Parse(strings.NewReader("User_ID,UTC_Time,Account,Coin,Change,Remark\n"))
	if err == nil {
		t.Fatal("expected an error for a header without the operation column")
	}
	if !strings.Contains(err.Error(), "operation") {
		t.Errorf("error %q does not name the missing column", err)
	}
}

func TestParse_EmptyFileHasNoGroups(t *testing.T) {
	preview := parse(t, exportHeader)
	if len(preview.Groups) != 0 || preview.RowCount != 0 {
		t.Errorf("empty export produced %d groups, %d rows", len(preview.Groups), preview.RowCount)
	}
}

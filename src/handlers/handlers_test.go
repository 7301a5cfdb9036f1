package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/config"
	"github.com/emilienrk/capitalview-sub000/src/ledger"
	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/processors"
	"github.com/emilienrk/capitalview-sub000/src/services"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{MaxUploadSizeBytes: 4 << 20}
	os.Exit(m.Run())
}

type testAPI struct {
	mux           *http.ServeMux
	ledgerService services.LedgerService
}

func newTestAPI() *testAPI {
	store := ledger.NewMemoryStore()
	guard := processors.NewBalanceGuard("EUR")
	ledgerService := services.NewLedgerService(
		store,
		processors.NewDecomposer("EUR"),
		processors.NewTransferBuilder(),
		processors.NewAggregator("EUR"),
		guard,
		services.StaticPriceService(nil),
		cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval),
	)
	importService := services.NewImportService(store, guard, "EUR", ledgerService)

	accountHandler := NewAccountHandler(ledgerService)
	ledgerHandler := NewLedgerHandler(ledgerService)
	portfolioHandler := NewPortfolioHandler(ledgerService)
	importHandler := NewImportHandler(importService)

	identity := IdentityMiddleware(HeaderIdentityResolver)
	mux := http.NewServeMux()
	mux.Handle("POST /api/accounts", identity(http.HandlerFunc(accountHandler.HandleCreateAccount)))
	mux.Handle("GET /api/accounts", identity(http.HandlerFunc(accountHandler.HandleListAccounts)))
	mux.Handle("DELETE /api/accounts/{id}", identity(http.HandlerFunc(accountHandler.HandleDeleteAccount)))
	mux.Handle("POST /api/operations", identity(http.HandlerFunc(ledgerHandler.HandleCreateOperation)))
	mux.Handle("GET /api/accounts/{id}/entries", identity(http.HandlerFunc(ledgerHandler.HandleListEntries)))
	mux.Handle("GET /api/portfolio", identity(http.HandlerFunc(portfolioHandler.HandleGetPortfolioSummary)))
	mux.Handle("POST /api/imports/preview", identity(http.HandlerFunc(importHandler.HandlePreview)))
	mux.Handle("POST /api/imports/confirm", identity(http.HandlerFunc(importHandler.HandleConfirm)))
	return &testAPI{mux: mux, ledgerService: ledgerService}
}

func (a *testAPI) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, userID int64, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))
	}
	return req
}

func (a *testAPI) createAccount(t *testing.T, userID int64) models.Account {
	t.Helper()
	rec := a.do(t, jsonRequest(http.MethodPost, "/api/accounts", userID, map[string]string{"name": "spot"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status = %d, body %s", rec.Code, rec.Body.String())
	}
	var account models.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &account); err != nil {
		t.Fatalf("decoding account: %v", err)
	}
	return account
}

func TestIdentityMiddleware_RejectsAnonymous(t *testing.T) {
	api := newTestAPI()
	rec := api.do(t, jsonRequest(http.MethodGet, "/api/accounts", 0, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without header = %d, want 401", rec.Code)
	}
}

func TestAccountEndpoints_CreateListDelete(t *testing.T) {
	api := newTestAPI()
	account := api.createAccount(t, 7)
	if account.UserID != 7 || account.Name != "spot" {
		t.Errorf("created account = %+v", account)
	}

	rec := api.do(t, jsonRequest(http.MethodGet, "/api/accounts", 7, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var accounts []models.Account
	json.Unmarshal(rec.Body.Bytes(), &accounts)
	if len(accounts) != 1 {
		t.Errorf("listed %d accounts, want 1", len(accounts))
	}

	// another user sees nothing and cannot delete
	rec = api.do(t, jsonRequest(http.MethodGet, "/api/accounts", 8, nil))
	var foreign []models.Account
	json.Unmarshal(rec.Body.Bytes(), &foreign)
	if len(foreign) != 0 {
		t.Errorf("user 8 sees %d accounts", len(foreign))
	}
	rec = api.do(t, jsonRequest(http.MethodDelete, fmt.Sprintf("/api/accounts/%d", account.ID), 8, nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign delete status = %d, want 403", rec.Code)
	}

	rec = api.do(t, jsonRequest(http.MethodDelete, fmt.Sprintf("/api/accounts/%d", account.ID), 7, nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
}

func TestOperationEndpoint_PersistsAndReturnsGroup(t *testing.T) {
	api := newTestAPI()
	account := api.createAccount(t, 7)

	rec := api.do(t, jsonRequest(http.MethodPost, "/api/operations", 7, map[string]any{
		"operation":    "BUY",
		"account_id":   account.ID,
		"symbol":       "BTC",
		"amount":       "0.1",
		"quote_symbol": "EUR",
		"quote_amount": "3000",
		"executed_at":  time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("operation status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result services.OperationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.GroupID == "" || len(result.Entries) != 2 {
		t.Errorf("result = %+v, want a 2-leg group", result)
	}

	rec = api.do(t, jsonRequest(http.MethodGet, fmt.Sprintf("/api/accounts/%d/entries", account.ID), 7, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("entries status = %d", rec.Code)
	}
	var entries []models.LedgerEntry
	json.Unmarshal(rec.Body.Bytes(), &entries)
	if len(entries) != 2 {
		t.Errorf("stored %d entries, want 2", len(entries))
	}
}

func TestEntriesEndpoint_TxRefFilter(t *testing.T) {
	api := newTestAPI()
	account := api.createAccount(t, 7)

	for _, op := range []map[string]any{
		{"operation": "CRYPTO_DEPOSIT", "account_id": account.ID, "symbol": "BTC",
			"amount": "1", "tx_ref": "0xaaa", "executed_at": time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)},
		{"operation": "CRYPTO_DEPOSIT", "account_id": account.ID, "symbol": "ETH",
			"amount": "2", "tx_ref": "0xbbb", "executed_at": time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC)},
	} {
		if rec := api.do(t, jsonRequest(http.MethodPost, "/api/operations", 7, op)); rec.Code != http.StatusCreated {
			t.Fatalf("operation status = %d, body %s", rec.Code, rec.Body.String())
		}
	}

	rec := api.do(t, jsonRequest(http.MethodGet,
		fmt.Sprintf("/api/accounts/%d/entries?tx_ref=0xbbb", account.ID), 7, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("filtered list status = %d", rec.Code)
	}
	var entries []models.LedgerEntry
	json.Unmarshal(rec.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Symbol != "ETH" {
		t.Errorf("filtered entries = %+v, want just the ETH deposit", entries)
	}
}

func TestOperationEndpoint_BadOperationIs400(t *testing.T) {
	api := newTestAPI()
	account := api.createAccount(t, 7)

	rec := api.do(t, jsonRequest(http.MethodPost, "/api/operations", 7, map[string]any{
		"operation":  "SHORT_SELL",
		"account_id": account.ID,
		"symbol":     "BTC",
		"amount":     "1",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an unknown operation", rec.Code)
	}
}

func TestPortfolioEndpoint_ETagNotModified(t *testing.T) {
	api := newTestAPI()
	account := api.createAccount(t, 7)

	rec := api.do(t, jsonRequest(http.MethodPost, "/api/operations", 7, map[string]any{
		"operation":   "CRYPTO_DEPOSIT",
		"account_id":  account.ID,
		"symbol":      "BTC",
		"amount":      "1",
		"executed_at": time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit status = %d", rec.Code)
	}

	first := api.do(t, jsonRequest(http.MethodGet, "/api/portfolio", 7, nil))
	if first.Code != http.StatusOK {
		t.Fatalf("portfolio status = %d", first.Code)
	}
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("portfolio response carries no ETag")
	}

	req := jsonRequest(http.MethodGet, "/api/portfolio", 7, nil)
	req.Header.Set("If-None-Match", etag)
	second := api.do(t, req)
	if second.Code != http.StatusNotModified {
		t.Errorf("status with matching ETag = %d, want 304", second.Code)
	}
}

func multipartUpload(t *testing.T, userID int64, filename, contents string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", "text/csv")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("creating multipart part: %v", err)
	}
	part.Write([]byte(contents))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))
	return req
}

func TestImportPreviewEndpoint(t *testing.T) {
	api := newTestAPI()
	api.createAccount(t, 7)

	csv := "User_ID,UTC_Time,Account,Operation,Coin,Change,Remark\n" +
		"1001,2024-03-15 10:00:00,Spot,Transaction Buy,BTC,0.001,\n" +
		"1001,2024-03-15 10:00:00,Spot,Transaction Spend,USDT,-30.5,\n"

	rec := api.do(t, multipartUpload(t, 7, "export.csv", csv))
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", rec.Code, rec.Body.String())
	}
	var preview models.ImportPreview
	if err := json.Unmarshal(rec.Body.Bytes(), &preview); err != nil {
		t.Fatalf("decoding preview: %v", err)
	}
	if len(preview.Groups) != 1 || !preview.Groups[0].NeedsFiatInput {
		t.Errorf("preview = %+v, want one flagged group", preview.Groups)
	}
}

func TestImportConfirmEndpoint_Flow(t *testing.T) {
	api := newTestAPI()
	account := api.createAccount(t, 7)

	eur := decimal.RequireFromString("28.40")
	confirm := map[string]any{
		"source":     "binance",
		"account_id": account.ID,
		"groups": []models.ImportGroup{{
			ExecutedAt: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
			Rows: []models.MappedRow{
				{EntryType: models.EntryBuy, Symbol: "BTC", Amount: decimal.RequireFromString("0.001"),
					ExecutedAt: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)},
			},
			NeedsFiatInput: true,
			EURAmount:      &eur,
		}},
	}
	rec := api.do(t, jsonRequest(http.MethodPost, "/api/imports/confirm", 7, confirm))
	if rec.Code != http.StatusCreated {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result services.ImportResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.EntriesPersisted != 2 {
		t.Errorf("entries persisted = %d, want buy + anchor", result.EntriesPersisted)
	}

	// flagged group without its EUR amount is rejected whole
	confirm["groups"] = []models.ImportGroup{{
		ExecutedAt: time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC),
		Rows: []models.MappedRow{
			{EntryType: models.EntryBuy, Symbol: "ETH", Amount: decimal.RequireFromString("1"),
				ExecutedAt: time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC)},
		},
		NeedsFiatInput: true,
	}}
	rec = api.do(t, jsonRequest(http.MethodPost, "/api/imports/confirm", 7, confirm))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("confirm without EUR status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "EUR") {
		t.Errorf("error body %q does not mention the missing EUR amount", rec.Body.String())
	}
}

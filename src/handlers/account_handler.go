package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/emilienrk/capitalview-sub000/src/ledger"
	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/security/validation"
	"github.com/emilienrk/capitalview-sub000/src/services"
	"github.com/emilienrk/capitalview-sub000/src/utils"
)

type AccountHandler struct {
	ledgerService services.LedgerService
}

func NewAccountHandler(ledgerService services.LedgerService) *AccountHandler {
	return &AccountHandler{ledgerService: ledgerService}
}

type accountPayload struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Address  string `json:"address"`
}

func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var payload accountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	payload.Name = validation.SanitizeText(payload.Name)
	if strings.TrimSpace(payload.Name) == "" {
		utils.SendJSONError(w, "account name is required", http.StatusBadRequest)
		return
	}

	account := &models.Account{
		UserID:   userID,
		Name:     payload.Name,
		Platform: validation.SanitizeText(payload.Platform),
		Address:  validation.SanitizeText(payload.Address),
	}
	if err := h.ledgerService.CreateAccount(r.Context(), account); err != nil {
		logger.L.Error("Error creating account", "userID", userID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while creating the account.", http.StatusInternalServerError)
		return
	}
	logger.L.Info("Account created", "userID", userID, "accountID", account.ID, "name", account.Name)
	utils.SendJSON(w, account, http.StatusCreated)
}

func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	accounts, err := h.ledgerService.Accounts(r.Context(), userID)
	if err != nil {
		logger.L.Error("Error listing accounts", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving accounts for userID %d", userID), http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	utils.SendJSON(w, accounts, http.StatusOK)
}

func (h *AccountHandler) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	accountID, err := pathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid account id", http.StatusBadRequest)
		return
	}

	var payload accountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	account := &models.Account{
		ID:       accountID,
		UserID:   userID,
		Name:     validation.SanitizeText(payload.Name),
		Platform: validation.SanitizeText(payload.Platform),
		Address:  validation.SanitizeText(payload.Address),
	}
	if err := h.ledgerService.UpdateAccount(r.Context(), userID, account); err != nil {
		writeOwnershipError(w, userID, accountID, "updating account", err)
		return
	}
	utils.SendJSON(w, account, http.StatusOK)
}

func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	accountID, err := pathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid account id", http.StatusBadRequest)
		return
	}

	if err := h.ledgerService.DeleteAccount(r.Context(), userID, accountID); err != nil {
		writeOwnershipError(w, userID, accountID, "deleting account", err)
		return
	}
	logger.L.Info("Account deleted with its entries", "userID", userID, "accountID", accountID)
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses a numeric path value registered as {name} in the mux pattern.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// writeOwnershipError maps the shared service error cases for account-scoped
// writes onto HTTP statuses.
func writeOwnershipError(w http.ResponseWriter, userID, accountID int64, action string, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		utils.SendJSONError(w, "account not found", http.StatusNotFound)
	case errors.Is(err, services.ErrNotAccountOwner):
		logger.L.Warn("Ownership check failed", "userID", userID, "accountID", accountID, "action", action)
		utils.SendJSONError(w, "account does not belong to the requesting user", http.StatusForbidden)
	default:
		logger.L.Error("Error "+action, "userID", userID, "accountID", accountID, "error", err)
		utils.SendJSONError(w, "An internal error occurred. Please try again later.", http.StatusInternalServerError)
	}
}

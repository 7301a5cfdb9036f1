package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/emilienrk/capitalview-sub000/src/ledger"
	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/processors"
	"github.com/emilienrk/capitalview-sub000/src/security/validation"
	"github.com/emilienrk/capitalview-sub000/src/services"
	"github.com/emilienrk/capitalview-sub000/src/utils"
)

// LedgerHandler serves the composite operation writes and the raw entry
// endpoints. All writes go through the service layer; the handler never
// touches the store directly.
type LedgerHandler struct {
	ledgerService services.LedgerService
}

func NewLedgerHandler(ledgerService services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

func (h *LedgerHandler) HandleCreateOperation(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var input processors.OperationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	input.TxRef = validation.SanitizeText(input.TxRef)
	input.Memo = validation.SanitizeText(input.Memo)

	result, err := h.ledgerService.CreateOperation(r.Context(), userID, input)
	if err != nil {
		switch {
		case errors.Is(err, processors.ErrUnknownOperation),
			errors.Is(err, processors.ErrInvalidAmount),
			errors.Is(err, processors.ErrInvalidFee),
			errors.Is(err, ledger.ErrInvalidEntry):
			utils.SendJSONError(w, fmt.Sprintf("invalid operation: %v", err), http.StatusBadRequest)
		default:
			writeOwnershipError(w, userID, input.AccountID, "creating operation", err)
		}
		return
	}
	logger.L.Info("Operation recorded", "userID", userID, "accountID", input.AccountID,
		"operation", input.Operation, "groupID", result.GroupID, "legs", len(result.Entries))
	utils.SendJSON(w, result, http.StatusCreated)
}

func (h *LedgerHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var input processors.TransferInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	input.Memo = validation.SanitizeText(input.Memo)

	result, err := h.ledgerService.Transfer(r.Context(), userID, input)
	if err != nil {
		switch {
		case errors.Is(err, processors.ErrInvalidAmount),
			errors.Is(err, processors.ErrTransferOwnership),
			errors.Is(err, ledger.ErrInvalidEntry):
			utils.SendJSONError(w, fmt.Sprintf("invalid transfer: %v", err), http.StatusBadRequest)
		default:
			writeOwnershipError(w, userID, input.SourceAccountID, "building transfer", err)
		}
		return
	}
	logger.L.Info("Transfer recorded", "userID", userID, "sourceAccountID", input.SourceAccountID,
		"destAccountID", input.DestAccountID, "symbol", input.Symbol, "groupID", result.GroupID)
	utils.SendJSON(w, result, http.StatusCreated)
}

func (h *LedgerHandler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
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

	var entries []models.LedgerEntry
	if txRef := r.URL.Query().Get("tx_ref"); txRef != "" {
		entries, err = h.ledgerService.EntriesByTxRef(r.Context(), userID, accountID, txRef)
	} else {
		entries, err = h.ledgerService.Entries(r.Context(), userID, accountID)
	}
	if err != nil {
		writeOwnershipError(w, userID, accountID, "listing entries", err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	utils.SendJSON(w, entries, http.StatusOK)
}

func (h *LedgerHandler) HandleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	entryID, err := pathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	var entry models.LedgerEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	entry.ID = entryID
	entry.TxRef = validation.SanitizeText(entry.TxRef)
	entry.Memo = validation.SanitizeText(entry.Memo)

	if err := h.ledgerService.UpdateEntry(r.Context(), userID, &entry); err != nil {
		switch {
		case errors.Is(err, ledger.ErrEntryNotFound):
			utils.SendJSONError(w, "ledger entry not found", http.StatusNotFound)
		case errors.Is(err, ledger.ErrInvalidEntry):
			utils.SendJSONError(w, fmt.Sprintf("invalid entry: %v", err), http.StatusBadRequest)
		default:
			writeOwnershipError(w, userID, entry.AccountID, "updating entry", err)
		}
		return
	}
	utils.SendJSON(w, entry, http.StatusOK)
}

func (h *LedgerHandler) HandleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	entryID, err := pathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	if err := h.ledgerService.DeleteEntry(r.Context(), userID, entryID); err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			utils.SendJSONError(w, "ledger entry not found", http.StatusNotFound)
			return
		}
		writeOwnershipError(w, userID, 0, "deleting entry", err)
		return
	}
	logger.L.Info("Ledger entry deleted", "userID", userID, "entryID", entryID)
	w.WriteHeader(http.StatusNoContent)
}

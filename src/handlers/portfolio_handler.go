package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/services"
	"github.com/emilienrk/capitalview-sub000/src/utils"
)

type PortfolioHandler struct {
	ledgerService services.LedgerService
}

func NewPortfolioHandler(ledgerService services.LedgerService) *PortfolioHandler {
	return &PortfolioHandler{ledgerService: ledgerService}
}

func (h *PortfolioHandler) HandleGetAccountPositions(w http.ResponseWriter, r *http.Request) {
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
	logger.L.Debug("Handling GetAccountPositions", "userID", userID, "accountID", accountID)

	positions, err := h.ledgerService.Positions(r.Context(), userID, accountID)
	if err != nil {
		writeOwnershipError(w, userID, accountID, "computing positions", err)
		return
	}
	if positions.Positions == nil {
		positions.Positions = []models.Position{}
	}
	utils.SendJSON(w, positions, http.StatusOK)
}

func (h *PortfolioHandler) HandleGetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.L.Debug("Handling GetPortfolioSummary request with ETag support", "userID", userID)

	summary, err := h.ledgerService.Portfolio(r.Context(), userID)
	if err != nil {
		logger.L.Error("Error computing portfolio summary", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error computing portfolio summary for userID %d", userID), http.StatusInternalServerError)
		return
	}
	if summary.Accounts == nil {
		summary.Accounts = []models.AccountPositions{}
	}

	currentETag, etagErr := utils.GenerateETag(summary)
	if etagErr != nil {
		logger.L.Error("Failed to generate ETag for portfolio summary", "userID", userID, "error", etagErr)
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		clientETag := r.Header.Get("If-None-Match")
		for _, cETag := range strings.Split(clientETag, ",") {
			if strings.TrimSpace(cETag) == quotedETag {
				logger.L.Info("ETag match for portfolio summary", "userID", userID, "etag", currentETag)
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	} else {
		logger.L.Warn("Proceeding without ETag check due to ETag generation error or empty ETag", "userID", userID)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.L.Error("Error generating JSON response for portfolio summary", "userID", userID, "error", err)
	}
}

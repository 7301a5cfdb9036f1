package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/emilienrk/capitalview-sub000/src/config"
	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/security/validation"
	"github.com/emilienrk/capitalview-sub000/src/services"
	"github.com/emilienrk/capitalview-sub000/src/utils"
)

type ImportHandler struct {
	importService services.ImportService
}

func NewImportHandler(importService services.ImportService) *ImportHandler {
	return &ImportHandler{importService: importService}
}

// HandlePreview parses an uploaded export file and returns the ephemeral
// preview. Nothing is written: the client may discard the response freely.
func (h *ImportHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "userID", userID, "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		logger.L.Warn("Uploaded file header reports size too large", "userID", userID, "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB (header check)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		logger.L.Warn("Invalid client-declared file type", "userID", userID, "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		logger.L.Warn("Server-side file content validation failed", "userID", userID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.L.Info("File content validated by magic bytes", "userID", userID, "filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType)

	source := r.FormValue("source")
	if source == "" {
		source = "binance"
	}

	preview, err := h.importService.Preview(source, file)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) {
			logger.L.Warn("Import preview failed due to parsing errors", "userID", userID, "filename", fileHeader.Filename, "source", source, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing export file: %v", err), http.StatusBadRequest)
		} else {
			logger.L.Error("Internal error building import preview", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "An internal error occurred while processing the file. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	logger.L.Info("Import preview built", "userID", userID, "source", source,
		"rows", preview.RowCount, "groups", len(preview.Groups), "skipped", len(preview.Skipped))
	utils.SendJSON(w, preview, http.StatusOK)
}

type confirmImportRequest struct {
	Source    string               `json:"source"`
	AccountID int64                `json:"account_id"`
	Groups    []models.ImportGroup `json:"groups"`
}

// HandleConfirm persists a reviewed preview. Groups flagged as needing a
// fiat amount must carry one; otherwise the whole request is rejected and
// nothing is written.
func (h *ImportHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req confirmImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID <= 0 {
		utils.SendJSONError(w, "account_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Groups) == 0 {
		utils.SendJSONError(w, "no import groups to confirm", http.StatusBadRequest)
		return
	}

	result, err := h.importService.Confirm(r.Context(), userID, req.AccountID, req.Groups)
	if err != nil {
		if errors.Is(err, services.ErrMissingEURInput) {
			logger.L.Warn("Import confirmation rejected, flagged group without EUR amount", "userID", userID, "accountID", req.AccountID, "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeOwnershipError(w, userID, req.AccountID, "confirming import", err)
		return
	}

	logger.L.Info("Import confirmed", "userID", userID, "accountID", req.AccountID,
		"groups", result.GroupsPersisted, "entries", result.EntriesPersisted)
	utils.SendJSON(w, result, http.StatusCreated)
}

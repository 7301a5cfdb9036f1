package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emilienrk/capitalview-sub000/src/ledger"
	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/parsers"
	"github.com/emilienrk/capitalview-sub000/src/processors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type importServiceImpl struct {
	store         ledger.Store
	guard         *processors.BalanceGuard
	fiatBase      string
	ledgerService LedgerService // for cache invalidation after confirm
}

func NewImportService(store ledger.Store, guard *processors.BalanceGuard, fiatBase string, ledgerService LedgerService) ImportService {
	return &importServiceImpl{
		store:         store,
		guard:         guard,
		fiatBase:      strings.ToUpper(fiatBase),
		ledgerService: ledgerService,
	}
}

// Preview parses, groups and maps the export without persisting anything.
// The caller may fill in EUR amounts for flagged groups and pass the result
// to Confirm; discarding the preview has no side effects.
func (s *importServiceImpl) Preview(source string, file io.Reader) (*models.ImportPreview, error) {
	parser, err := parsers.GetParser(source, s.fiatBase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	preview, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	logger.L.Info("Import preview built",
		"source", source, "rows", preview.RowCount,
		"groups", len(preview.Groups), "skipped", len(preview.Skipped))
	return preview, nil
}

// Confirm persists the (possibly edited) preview groups. Every flagged
// group must carry a non-negative EUR amount before anything is written.
// Each group is one atomic write with a freshly generated group id.
func (s *importServiceImpl) Confirm(ctx context.Context, userID, accountID int64, groups []models.ImportGroup) (*ImportResult, error) {
	account, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrNotAccountOwner
	}

	for i, group := range groups {
		if group.NeedsFiatInput && (group.EURAmount == nil || group.EURAmount.IsNegative()) {
			return nil, fmt.Errorf("%w: group %d (%s)", ErrMissingEURInput, i, group.ExecutedAt.Format("2006-01-02 15:04:05"))
		}
	}

	result := &ImportResult{}
	var written []models.LedgerEntry
	for _, group := range groups {
		entries := s.buildEntries(accountID, group)
		if len(entries) == 0 {
			continue
		}
		persisted, err := s.store.AppendGroup(ctx, entries)
		if err != nil {
			return nil, fmt.Errorf("persisting import group of %s: %w", group.ExecutedAt.Format("2006-01-02 15:04:05"), err)
		}
		written = append(written, persisted...)
		result.GroupsPersisted++
		result.EntriesPersisted += len(persisted)
		result.GroupIDs = append(result.GroupIDs, persisted[0].GroupID)
	}

	s.ledgerService.InvalidateUserCache(userID)

	if len(written) > 0 {
		history, err := s.store.EntriesByAccount(ctx, accountID)
		if err != nil {
			logger.L.Error("Balance guard could not load history after import", "accountID", accountID, "error", err)
		} else {
			result.Advisory = s.guard.Check(written, history)
		}
	}

	logger.L.Info("Import confirmed", "userID", userID, "accountID", accountID,
		"groups", result.GroupsPersisted, "entries", result.EntriesPersisted)
	return result, nil
}

// buildEntries turns one import group into ledger entries. Rows with a
// mapped amount of zero are dropped silently; the fiat anchor is appended
// only when the group was flagged and a positive EUR amount was supplied.
func (s *importServiceImpl) buildEntries(accountID int64, group models.ImportGroup) []models.LedgerEntry {
	groupID := uuid.NewString()

	var entries []models.LedgerEntry
	for _, row := range group.Rows {
		if !row.Amount.IsPositive() {
			continue
		}
		entries = append(entries, models.LedgerEntry{
			AccountID:    accountID,
			GroupID:      groupID,
			Symbol:       row.Symbol,
			Type:         row.EntryType,
			Amount:       row.Amount,
			UnitPriceEUR: row.UnitPriceEUR,
			ExecutedAt:   row.ExecutedAt,
			Memo:         row.Operation,
		})
	}

	if group.NeedsFiatInput && group.EURAmount != nil && group.EURAmount.IsPositive() && len(entries) > 0 {
		entries = append(entries, models.LedgerEntry{
			AccountID:    accountID,
			GroupID:      groupID,
			Symbol:       s.fiatBase,
			Type:         models.EntryFiatAnchor,
			Amount:       *group.EURAmount,
			UnitPriceEUR: decimal.NewFromInt(1),
			ExecutedAt:   group.ExecutedAt,
		})
	}
	return entries
}

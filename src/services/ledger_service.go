package services

import (
	"context"
	"fmt"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/ledger"
	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/processors"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

const (
	// Derived-report caches, invalidated whole-user on any write.
	ckAccountPositions = "res_account_positions_user_%d_acc_%d"
	ckPortfolio        = "agg_portfolio_user_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type ledgerServiceImpl struct {
	store        ledger.Store
	decomposer   *processors.Decomposer
	transfers    *processors.TransferBuilder
	aggregator   *processors.Aggregator
	guard        *processors.BalanceGuard
	priceService PriceService
	reportCache  *cache.Cache
}

func NewLedgerService(
	store ledger.Store,
	decomposer *processors.Decomposer,
	transfers *processors.TransferBuilder,
	aggregator *processors.Aggregator,
	guard *processors.BalanceGuard,
	priceService PriceService,
	reportCache *cache.Cache,
) LedgerService {
	return &ledgerServiceImpl{
		store:        store,
		decomposer:   decomposer,
		transfers:    transfers,
		aggregator:   aggregator,
		guard:        guard,
		priceService: priceService,
		reportCache:  reportCache,
	}
}

// ownedAccount loads the account and enforces that it belongs to the user.
func (s *ledgerServiceImpl) ownedAccount(ctx context.Context, userID, accountID int64) (*models.Account, error) {
	account, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrNotAccountOwner
	}
	return account, nil
}

func (s *ledgerServiceImpl) CreateAccount(ctx context.Context, account *models.Account) error {
	return s.store.CreateAccount(ctx, account)
}

func (s *ledgerServiceImpl) Accounts(ctx context.Context, userID int64) ([]models.Account, error) {
	return s.store.AccountsByUser(ctx, userID)
}

func (s *ledgerServiceImpl) UpdateAccount(ctx context.Context, userID int64, account *models.Account) error {
	existing, err := s.ownedAccount(ctx, userID, account.ID)
	if err != nil {
		return err
	}
	account.UserID = existing.UserID
	return s.store.UpdateAccount(ctx, account)
}

func (s *ledgerServiceImpl) DeleteAccount(ctx context.Context, userID, accountID int64) error {
	if _, err := s.ownedAccount(ctx, userID, accountID); err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	s.InvalidateUserCache(userID)
	return nil
}

func (s *ledgerServiceImpl) CreateOperation(ctx context.Context, userID int64, input processors.OperationInput) (*OperationResult, error) {
	startTime := time.Now()
	if _, err := s.ownedAccount(ctx, userID, input.AccountID); err != nil {
		return nil, err
	}

	groupID, entries, err := s.decomposer.Decompose(input)
	if err != nil {
		return nil, err
	}
	persisted, err := s.store.AppendGroup(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("persisting operation group: %w", err)
	}
	s.InvalidateUserCache(userID)

	advisory := s.adviseOnBalances(ctx, persisted)
	logger.L.Info("Composite operation persisted",
		"userID", userID, "accountID", input.AccountID, "operation", input.Operation,
		"groupID", groupID, "legs", len(persisted), "duration", time.Since(startTime))
	return &OperationResult{GroupID: groupID, Entries: persisted, Advisory: advisory}, nil
}

func (s *ledgerServiceImpl) Transfer(ctx context.Context, userID int64, input processors.TransferInput) (*OperationResult, error) {
	source, err := s.store.AccountByID(ctx, input.SourceAccountID)
	if err != nil {
		return nil, err
	}
	dest, err := s.store.AccountByID(ctx, input.DestAccountID)
	if err != nil {
		return nil, err
	}

	groupID, entries, err := s.transfers.Build(source, dest, userID, input)
	if err != nil {
		return nil, err
	}
	persisted, err := s.store.AppendGroup(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("persisting transfer group: %w", err)
	}
	s.InvalidateUserCache(userID)

	advisory := s.adviseOnBalances(ctx, persisted)
	logger.L.Info("Transfer persisted",
		"userID", userID, "sourceAccountID", source.ID, "destAccountID", dest.ID,
		"symbol", input.Symbol, "groupID", groupID)
	return &OperationResult{GroupID: groupID, Entries: persisted, Advisory: advisory}, nil
}

// adviseOnBalances runs the balance guard over every account the new
// entries debited. Guard failures only degrade the advisory, never the
// write: the group is already committed.
func (s *ledgerServiceImpl) adviseOnBalances(ctx context.Context, written []models.LedgerEntry) string {
	byAccount := make(map[int64][]models.LedgerEntry)
	for _, e := range written {
		byAccount[e.AccountID] = append(byAccount[e.AccountID], e)
	}

	advisory := ""
	for accountID, accountEntries := range byAccount {
		history, err := s.store.EntriesByAccount(ctx, accountID)
		if err != nil {
			logger.L.Error("Balance guard could not load history", "accountID", accountID, "error", err)
			continue
		}
		if warning := s.guard.Check(accountEntries, history); warning != "" {
			if advisory != "" {
				advisory += "; "
			}
			advisory += warning
		}
	}
	return advisory
}

func (s *ledgerServiceImpl) Entries(ctx context.Context, userID, accountID int64) ([]models.LedgerEntry, error) {
	if _, err := s.ownedAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.store.EntriesByAccount(ctx, accountID)
}

// EntriesByTxRef finds the entries recorded under a transaction reference.
// The store matches on the blind index, so the lookup never decrypts more
// than the rows it returns.
func (s *ledgerServiceImpl) EntriesByTxRef(ctx context.Context, userID, accountID int64, txRef string) ([]models.LedgerEntry, error) {
	if _, err := s.ownedAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.store.EntriesByTxRef(ctx, accountID, txRef)
}

func (s *ledgerServiceImpl) UpdateEntry(ctx context.Context, userID int64, entry *models.LedgerEntry) error {
	existing, err := s.store.EntryByID(ctx, entry.ID)
	if err != nil {
		return err
	}
	if _, err := s.ownedAccount(ctx, userID, existing.AccountID); err != nil {
		return err
	}
	entry.AccountID = existing.AccountID
	entry.GroupID = existing.GroupID
	if err := s.store.UpdateEntry(ctx, entry); err != nil {
		return err
	}
	s.InvalidateUserCache(userID)
	return nil
}

func (s *ledgerServiceImpl) DeleteEntry(ctx context.Context, userID, entryID int64) error {
	existing, err := s.store.EntryByID(ctx, entryID)
	if err != nil {
		return err
	}
	if _, err := s.ownedAccount(ctx, userID, existing.AccountID); err != nil {
		return err
	}
	if err := s.store.DeleteEntry(ctx, entryID); err != nil {
		return err
	}
	s.InvalidateUserCache(userID)
	return nil
}

func (s *ledgerServiceImpl) Positions(ctx context.Context, userID, accountID int64) (*models.AccountPositions, error) {
	if _, err := s.ownedAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf(ckAccountPositions, userID, accountID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for account positions", "userID", userID, "accountID", accountID)
		return cached.(*models.AccountPositions), nil
	}

	entries, err := s.store.EntriesByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result := s.buildAccountPositions(accountID, entries)
	s.reportCache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

func (s *ledgerServiceImpl) Portfolio(ctx context.Context, userID int64) (*models.PortfolioSummary, error) {
	cacheKey := fmt.Sprintf(ckPortfolio, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for portfolio summary", "userID", userID)
		return cached.(*models.PortfolioSummary), nil
	}

	accounts, err := s.store.AccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &models.PortfolioSummary{Accounts: make([]models.AccountPositions, 0, len(accounts))}
	for _, account := range accounts {
		positions, err := s.Positions(ctx, userID, account.ID)
		if err != nil {
			return nil, err
		}
		summary.Accounts = append(summary.Accounts, *positions)
		summary.TotalCostBasis = summary.TotalCostBasis.Add(positions.TotalCostBasis)
		summary.TotalFees = summary.TotalFees.Add(positions.TotalFees)
		summary.TotalCurrentValue = addNullable(summary.TotalCurrentValue, positions.TotalCurrentValue)
		summary.TotalProfitLoss = addNullable(summary.TotalProfitLoss, positions.TotalProfitLoss)
	}

	s.reportCache.Set(cacheKey, summary, cache.DefaultExpiration)
	return summary, nil
}

// buildAccountPositions runs the aggregator and layers live valuation on
// top. Prices are valuation only; cost basis never depends on them.
func (s *ledgerServiceImpl) buildAccountPositions(accountID int64, entries []models.LedgerEntry) *models.AccountPositions {
	positions := s.aggregator.Positions(entries)

	result := &models.AccountPositions{AccountID: accountID, Positions: positions}
	for i := range result.Positions {
		p := &result.Positions[i]
		result.TotalCostBasis = result.TotalCostBasis.Add(p.CostBasis)
		result.TotalFees = result.TotalFees.Add(p.Fees)

		price, ok := s.priceService.PriceEUR(p.Symbol)
		if !ok {
			// no live price: value and profit stay null, never zero
			continue
		}
		currentValue := p.Quantity.Mul(price)
		profitLoss := currentValue.Sub(p.CostBasis)
		p.PriceEUR = &price
		p.CurrentValue = &currentValue
		p.ProfitLoss = &profitLoss
		result.TotalCurrentValue = addNullable(result.TotalCurrentValue, &currentValue)
		result.TotalProfitLoss = addNullable(result.TotalProfitLoss, &profitLoss)
	}
	return result
}

// InvalidateUserCache clears all cached reports for a user, forcing a full
// recalculation on the next request.
func (s *ledgerServiceImpl) InvalidateUserCache(userID int64) {
	s.reportCache.Delete(fmt.Sprintf(ckPortfolio, userID))
	accounts, err := s.store.AccountsByUser(context.Background(), userID)
	if err != nil {
		logger.L.Error("Could not enumerate accounts for cache invalidation", "userID", userID, "error", err)
		return
	}
	for _, account := range accounts {
		s.reportCache.Delete(fmt.Sprintf(ckAccountPositions, userID, account.ID))
	}
	logger.L.Debug("Invalidated report caches for user", "userID", userID)
}

func addNullable(total, value *decimal.Decimal) *decimal.Decimal {
	if value == nil {
		return total
	}
	if total == nil {
		v := *value
		return &v
	}
	sum := total.Add(*value)
	return &sum
}

package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/models"
)

// memoryStore is an in-memory Store with the same semantics as the sqlite
// store. It backs tests and ephemeral runs.
type memoryStore struct {
	mu         sync.Mutex
	accounts   map[int64]models.Account
	entries    map[int64]models.LedgerEntry
	nextAccID  int64
	nextEntrID int64
}

func NewMemoryStore() Store {
	return &memoryStore{
		accounts:   make(map[int64]models.Account),
		entries:    make(map[int64]models.LedgerEntry),
		nextAccID:  1,
		nextEntrID: 1,
	}
}

func (s *memoryStore) CreateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.ID = s.nextAccID
	s.nextAccID++
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *memoryStore) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (s *memoryStore) AccountsByUser(ctx context.Context, userID int64) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var accounts []models.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *memoryStore) UpdateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *memoryStore) DeleteAccount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(s.accounts, id)
	for entryID, e := range s.entries {
		if e.AccountID == id {
			delete(s.entries, entryID)
		}
	}
	return nil
}

func (s *memoryStore) AppendGroup(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
	if err := validateGroup(entries); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// validate against the store before assigning any id, so the group is
	// all-or-nothing here too
	for i := range entries {
		if _, ok := s.accounts[entries[i].AccountID]; !ok {
			return nil, ErrAccountNotFound
		}
	}
	for i := range entries {
		entries[i].ID = s.nextEntrID
		s.nextEntrID++
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = time.Now().UTC()
		}
		s.entries[entries[i].ID] = entries[i]
	}
	return entries, nil
}

func (s *memoryStore) EntriesByAccount(ctx context.Context, accountID int64) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			entries = append(entries, e)
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (s *memoryStore) EntriesByTxRef(ctx context.Context, accountID int64, txRef string) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID && e.TxRef == txRef {
			entries = append(entries, e)
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (s *memoryStore) EntryByID(ctx context.Context, id int64) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (s *memoryStore) UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if err := validateGroup([]models.LedgerEntry{*entry}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return ErrEntryNotFound
	}
	s.entries[entry.ID] = *entry
	return nil
}

func (s *memoryStore) DeleteEntry(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

// sortEntries orders by execution time, insertion id as the tie break. This
// matches the sqlite ORDER BY so both stores stream history identically.
func sortEntries(entries []models.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ExecutedAt.Equal(entries[j].ExecutedAt) {
			return entries[i].ExecutedAt.Before(entries[j].ExecutedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/security"
	"github.com/shopspring/decimal"
)

// entryTimeLayout is fixed width, with the fraction always printed in
// full, so the text column sorts the same way lexicographically and
// chronologically. RFC3339Nano trims trailing zeros and breaks that.
const entryTimeLayout = "2006-01-02T15:04:05.000000000Z"

// sqliteStore persists accounts and entries through database/sql. TxRef and
// Memo are encrypted with the value cipher before they touch the database;
// a blind index of TxRef is stored beside it for equality lookups.
type sqliteStore struct {
	db     *sql.DB
	cipher security.ValueCipher
}

// NewSQLiteStore wraps an open database handle. The schema is owned by the
// database package; this store assumes it exists.
func NewSQLiteStore(db *sql.DB, cipher security.ValueCipher) Store {
	return &sqliteStore{db: db, cipher: cipher}
}

func (s *sqliteStore) CreateAccount(ctx context.Context, account *models.Account) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, name, platform, address) VALUES (?, ?, ?, ?)`,
		account.UserID, account.Name, account.Platform, account.Address)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading account id: %w", err)
	}
	account.ID = id
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (s *sqliteStore) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	var createdAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, platform, address, created_at FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.UserID, &a.Name, &a.Platform, &a.Address, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account %d: %w", id, err)
	}
	a.CreatedAt = parseDBTime(createdAt.String)
	return &a, nil
}

func (s *sqliteStore) AccountsByUser(ctx context.Context, userID int64) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, platform, address, created_at FROM accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying accounts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		var createdAt sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Platform, &a.Address, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		a.CreatedAt = parseDBTime(createdAt.String)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *sqliteStore) UpdateAccount(ctx context.Context, account *models.Account) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, platform = ?, address = ? WHERE id = ?`,
		account.Name, account.Platform, account.Address, account.ID)
	if err != nil {
		return fmt.Errorf("updating account %d: %w", account.ID, err)
	}
	return checkAffected(res, ErrAccountNotFound)
}

func (s *sqliteStore) DeleteAccount(ctx context.Context, id int64) error {
	// Entry cascade is explicit rather than left to the FK pragma, so the
	// behavior is the same even on connections opened without it.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("deleting entries of account %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting account %d: %w", id, err)
	}
	if err := checkAffected(res, ErrAccountNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendGroup(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
	if err := validateGroup(entries); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ledger_entries
		(account_id, group_id, symbol, entry_type, amount, unit_price_eur, executed_at, tx_ref, tx_ref_index, memo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		txRef, err := s.cipher.Encrypt(e.TxRef)
		if err != nil {
			return nil, fmt.Errorf("encrypting tx ref: %w", err)
		}
		memo, err := s.cipher.Encrypt(e.Memo)
		if err != nil {
			return nil, fmt.Errorf("encrypting memo: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			e.AccountID, nullableString(e.GroupID), e.Symbol, string(e.Type),
			e.Amount.String(), e.UnitPriceEUR.String(),
			e.ExecutedAt.UTC().Format(entryTimeLayout),
			txRef, s.cipher.BlindIndex(e.TxRef), memo)
		if err != nil {
			return nil, fmt.Errorf("inserting entry (%s %s): %w", e.Type, e.Symbol, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading entry id: %w", err)
		}
		e.ID = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing entry group: %w", err)
	}
	return entries, nil
}

const entryColumns = `id, account_id, group_id, symbol, entry_type, amount, unit_price_eur, executed_at, tx_ref, memo`

func (s *sqliteStore) EntriesByAccount(ctx context.Context, accountID int64) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = ? ORDER BY executed_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying entries for account %d: %w", accountID, err)
	}
	defer rows.Close()
	return s.scanEntries(rows)
}

func (s *sqliteStore) EntriesByTxRef(ctx context.Context, accountID int64, txRef string) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = ? AND tx_ref_index = ? ORDER BY executed_at, id`,
		accountID, s.cipher.BlindIndex(txRef))
	if err != nil {
		return nil, fmt.Errorf("querying entries by tx ref: %w", err)
	}
	defer rows.Close()
	return s.scanEntries(rows)
}

func (s *sqliteStore) EntryByID(ctx context.Context, id int64) (*models.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	e, err := s.scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying entry %d: %w", id, err)
	}
	return e, nil
}

func (s *sqliteStore) UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if err := validateGroup([]models.LedgerEntry{*entry}); err != nil {
		return err
	}
	txRef, err := s.cipher.Encrypt(entry.TxRef)
	if err != nil {
		return fmt.Errorf("encrypting tx ref: %w", err)
	}
	memo, err := s.cipher.Encrypt(entry.Memo)
	if err != nil {
		return fmt.Errorf("encrypting memo: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE ledger_entries
		SET symbol = ?, entry_type = ?, amount = ?, unit_price_eur = ?, executed_at = ?, tx_ref = ?, tx_ref_index = ?, memo = ?
		WHERE id = ?`,
		entry.Symbol, string(entry.Type), entry.Amount.String(), entry.UnitPriceEUR.String(),
		entry.ExecutedAt.UTC().Format(entryTimeLayout),
		txRef, s.cipher.BlindIndex(entry.TxRef), memo, entry.ID)
	if err != nil {
		return fmt.Errorf("updating entry %d: %w", entry.ID, err)
	}
	return checkAffected(res, ErrEntryNotFound)
}

func (s *sqliteStore) DeleteEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entry %d: %w", id, err)
	}
	return checkAffected(res, ErrEntryNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqliteStore) scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var groupID, txRef, memo sql.NullString
	var amount, unitPrice, executedAt string
	if err := row.Scan(&e.ID, &e.AccountID, &groupID, &e.Symbol, (*string)(&e.Type),
		&amount, &unitPrice, &executedAt, &txRef, &memo); err != nil {
		return nil, err
	}

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount %q on entry %d: %w", amount, e.ID, err)
	}
	if e.UnitPriceEUR, err = decimal.NewFromString(unitPrice); err != nil {
		return nil, fmt.Errorf("corrupt unit price %q on entry %d: %w", unitPrice, e.ID, err)
	}
	e.GroupID = groupID.String
	e.ExecutedAt = parseDBTime(executedAt)

	if e.TxRef, err = s.cipher.Decrypt(txRef.String); err != nil {
		return nil, fmt.Errorf("decrypting tx ref on entry %d: %w", e.ID, err)
	}
	if e.Memo, err = s.cipher.Decrypt(memo.String); err != nil {
		return nil, fmt.Errorf("decrypting memo on entry %d: %w", e.ID, err)
	}
	return &e, nil
}

func (s *sqliteStore) scanEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// parseDBTime reads the fixed-width entry layout (which RFC3339Nano also
// parses), plain RFC3339 and sqlite's CURRENT_TIMESTAMP default format. A
// zero time is returned for anything unparseable.
func parseDBTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

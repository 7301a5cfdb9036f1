package database

import (
	"database/sql"
	stdlog "log"

	"github.com/emilienrk/capitalview-sub000/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if _, err := DB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		stdlog.Fatalf("failed to enable foreign keys: %v", err)
	}

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateLedgerEntriesTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		platform TEXT,
		address TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		group_id TEXT,
		symbol TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		unit_price_eur TEXT NOT NULL,
		executed_at TIMESTAMP NOT NULL,
		tx_ref TEXT,
		tx_ref_index TEXT,
		memo TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, executed_at, id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_group ON ledger_entries(group_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_tx_ref ON ledger_entries(tx_ref_index);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateLedgerEntriesTable adds columns introduced after the first schema
// version to existing databases. New databases get them from CREATE TABLE.
func migrateLedgerEntriesTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='ledger_entries'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return // table will be created with the full schema
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'ledger_entries' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'ledger_entries' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(ledger_entries)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'ledger_entries'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'ledger_entries': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'ledger_entries'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'ledger_entries': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'ledger_entries'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'ledger_entries': %v", err)
		}
		return
	}

	addColumn := func(name, definition string) {
		if columnExists[name] {
			return
		}
		if _, err := DB.Exec("ALTER TABLE ledger_entries ADD COLUMN " + name + " " + definition); err != nil {
			logger.L.Error("Error adding column to 'ledger_entries' table", "column", name, "error", err)
		} else {
			logger.L.Info("Added column to 'ledger_entries' table", "column", name)
		}
	}

	addColumn("tx_ref", "TEXT")
	addColumn("tx_ref_index", "TEXT")
	addColumn("memo", "TEXT")
}

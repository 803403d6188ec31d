package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// coreDDL creates the fixed tables. Model tables are created dynamically
// at registration time by the schema materializer.
var coreDDL = []string{
	`CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		contract_address TEXT NOT NULL,
		contract_type TEXT NOT NULL,
		head INTEGER NOT NULL DEFAULT 0,
		last_block_timestamp INTEGER NOT NULL DEFAULT 0,
		last_pending_block_tx TEXT,
		last_pending_block_contract_tx TEXT,
		tps REAL NOT NULL DEFAULT 0)`,
	`CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		class_hash TEXT NOT NULL,
		contract_address TEXT,
		layout TEXT NOT NULL,
		schema TEXT NOT NULL,
		packed_size INTEGER NOT NULL DEFAULT 0,
		unpacked_size INTEGER NOT NULL DEFAULT 0,
		executed_at INTEGER)`,
	`CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		keys TEXT,
		event_id TEXT,
		executed_at INTEGER,
		updated_at INTEGER DEFAULT (unixepoch()),
		deleted INTEGER NOT NULL DEFAULT 0)`,
	`CREATE TABLE IF NOT EXISTS entity_model (
		entity_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		historical_counter INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (entity_id, model_id))`,
	`CREATE TABLE IF NOT EXISTS event_messages (
		id TEXT PRIMARY KEY,
		keys TEXT,
		event_id TEXT,
		executed_at INTEGER,
		updated_at INTEGER DEFAULT (unixepoch()))`,
	`CREATE TABLE IF NOT EXISTS event_messages_historical (
		id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		counter INTEGER NOT NULL,
		keys TEXT,
		event_id TEXT,
		data TEXT,
		executed_at INTEGER,
		PRIMARY KEY (id, model_id, counter))`,
	`CREATE TABLE IF NOT EXISTS event_model (
		entity_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		historical_counter INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (entity_id, model_id))`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		keys TEXT,
		data TEXT,
		transaction_hash TEXT,
		executed_at INTEGER)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		transaction_hash TEXT NOT NULL,
		sender_address TEXT,
		calldata TEXT,
		max_fee TEXT,
		signature TEXT,
		nonce TEXT,
		transaction_type TEXT,
		executed_at INTEGER,
		block_number INTEGER)`,
	`CREATE TABLE IF NOT EXISTS transaction_contract (
		transaction_hash TEXT NOT NULL,
		contract_address TEXT NOT NULL,
		PRIMARY KEY (transaction_hash, contract_address))`,
	`CREATE TABLE IF NOT EXISTS transaction_calls (
		transaction_hash TEXT NOT NULL,
		contract_address TEXT,
		entrypoint TEXT,
		calldata TEXT,
		call_type TEXT,
		caller_address TEXT)`,
	`CREATE TABLE IF NOT EXISTS metadata (
		id TEXT PRIMARY KEY,
		uri TEXT,
		updated_at INTEGER DEFAULT (unixepoch()))`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		contract_address TEXT NOT NULL,
		token_id TEXT,
		standard TEXT NOT NULL,
		metadata TEXT)`,
	`CREATE TABLE IF NOT EXISTS token_balances (
		account_address TEXT NOT NULL,
		token_id TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (account_address, token_id))`,
	`CREATE TABLE IF NOT EXISTS token_transfers (
		id TEXT PRIMARY KEY,
		token_id TEXT NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		amount TEXT NOT NULL,
		executed_at INTEGER)`,
	`CREATE TABLE IF NOT EXISTS controllers (
		account_address TEXT PRIMARY KEY,
		public_key TEXT NOT NULL,
		deployed_at INTEGER DEFAULT (unixepoch()))`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_block_number ON transactions (block_number)`,
	`CREATE INDEX IF NOT EXISTS idx_events_transaction_hash ON events (transaction_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_token_transfers_token_id ON token_transfers (token_id)`,
}

// OpenDB opens (or creates) the SQLite database at path in WAL mode so
// the single writer transaction never starves concurrent readers.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	for _, ddl := range coreDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: bootstrap schema: %w", err)
		}
	}
	return db, nil
}

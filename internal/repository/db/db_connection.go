package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var pragmas = []string{
	"journal_mode = WAL",
	"foreign_keys = ON",
	"busy_timeout = 5000",
}

// InitDB opens or creates the SQLite file at path and ensures the tables
// for device states, the discovery inbox, bridge events and users exist.
// ":memory:" is accepted for tests.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec("PRAGMA " + pragma + ";"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set PRAGMA %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaDeviceStates = `
CREATE TABLE IF NOT EXISTS device_states (
    bridge_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    label TEXT NOT NULL,
    hardware_id TEXT,
    status TEXT NOT NULL,
    detail TEXT NOT NULL,
    channels TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (bridge_id, device_id)
);
`

const schemaDiscoveryInbox = `
CREATE TABLE IF NOT EXISTS discovery_inbox (
    thing_uid TEXT PRIMARY KEY,
    bridge_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    label TEXT NOT NULL,
    properties TEXT NOT NULL,
    approved BOOLEAN NOT NULL DEFAULT 0,
    discovered_at TIMESTAMP NOT NULL
);
`

const schemaBridgeEvents = `
CREATE TABLE IF NOT EXISTS bridge_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    bridge_id TEXT NOT NULL,
    message TEXT NOT NULL,
    meta TEXT
);
CREATE INDEX IF NOT EXISTS idx_bridge_events_occurred_at ON bridge_events (occurred_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range []string{
		schemaDeviceStates,
		schemaDiscoveryInbox,
		schemaBridgeEvents,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

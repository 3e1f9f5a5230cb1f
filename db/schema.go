// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	account_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	access_token TEXT NOT NULL,
	refresh_token TEXT,
	expires_at DATETIME,
	scope TEXT,
	api_domain TEXT,
	metadata TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (account_id, provider)
);

CREATE TABLE IF NOT EXISTS deals (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	external_id TEXT NOT NULL,
	company_name TEXT NOT NULL,
	amount INTEGER,
	currency TEXT NOT NULL DEFAULT 'USD',
	stage TEXT NOT NULL,
	close_date DATE,
	pain_points TEXT,
	next_steps TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(account_id, provider, external_id)
);

CREATE INDEX IF NOT EXISTS idx_deals_account ON deals(account_id, provider);
CREATE INDEX IF NOT EXISTS idx_deals_stage ON deals(stage);

CREATE TABLE IF NOT EXISTS deal_contacts (
	id TEXT PRIMARY KEY,
	deal_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT,
	role TEXT,
	is_primary INTEGER NOT NULL DEFAULT 0,
	is_decision_maker INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deal_contacts_deal ON deal_contacts(deal_id);
CREATE INDEX IF NOT EXISTS idx_deal_contacts_email ON deal_contacts(email);

CREATE TABLE IF NOT EXISTS sync_state (
	account_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	cursor TEXT,
	status TEXT NOT NULL DEFAULT 'idle' CHECK(status IN ('idle', 'in_progress', 'completed', 'failed')),
	last_run_at DATETIME,
	error_message TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account_id, provider)
);

CREATE TABLE IF NOT EXISTS sync_log (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	source_service TEXT NOT NULL,
	source_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	imported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	metadata TEXT,
	UNIQUE(source_service, source_id)
);

CREATE INDEX IF NOT EXISTS idx_sync_log_source ON sync_log(source_service, source_id);
CREATE INDEX IF NOT EXISTS idx_sync_log_entity ON sync_log(entity_type, entity_id);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

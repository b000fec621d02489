package store

const schema = `
CREATE TABLE IF NOT EXISTS whales (
	wallet_address TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	total_volume REAL NOT NULL DEFAULT 0,
	total_pnl REAL NOT NULL DEFAULT 0,
	total_roi REAL NOT NULL DEFAULT 0,
	win_rate REAL NOT NULL DEFAULT 0,
	sharpe_ratio REAL NOT NULL DEFAULT 0,
	active_positions INTEGER NOT NULL DEFAULT 0,
	total_trades INTEGER NOT NULL DEFAULT 0,
	first_seen_at INTEGER NOT NULL,
	last_activity_at INTEGER NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	tracking_enabled INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_whales_volume ON whales(total_volume DESC);
CREATE INDEX IF NOT EXISTS idx_whales_tracking ON whales(tracking_enabled) WHERE tracking_enabled = 1;

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	market_id TEXT NOT NULL,
	outcome_index INTEGER NOT NULL,
	side TEXT NOT NULL,
	size REAL NOT NULL,
	price REAL NOT NULL,
	value REAL NOT NULL,
	fee REAL NOT NULL DEFAULT 0,
	tx_hash TEXT NOT NULL DEFAULT '',
	block_number INTEGER NOT NULL DEFAULT 0,
	traded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet_address, traded_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_key ON trades(wallet_address, market_id, outcome_index);

CREATE TABLE IF NOT EXISTS positions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	wallet_address TEXT NOT NULL,
	market_id TEXT NOT NULL,
	outcome_index INTEGER NOT NULL,
	size REAL NOT NULL,
	avg_entry_price REAL NOT NULL,
	total_invested REAL NOT NULL,
	current_price REAL NOT NULL DEFAULT 0,
	current_value REAL NOT NULL DEFAULT 0,
	unrealized_pnl REAL NOT NULL DEFAULT 0,
	unrealized_roi REAL NOT NULL DEFAULT 0,
	opened_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(wallet_address, market_id, outcome_index)
);

CREATE INDEX IF NOT EXISTS idx_positions_wallet ON positions(wallet_address);

CREATE TABLE IF NOT EXISTS closed_positions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	wallet_address TEXT NOT NULL,
	market_id TEXT NOT NULL,
	outcome_index INTEGER NOT NULL,
	size REAL NOT NULL,
	avg_entry_price REAL NOT NULL,
	total_invested REAL NOT NULL,
	avg_exit_price REAL NOT NULL,
	total_returned REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	realized_roi REAL NOT NULL,
	opened_at INTEGER NOT NULL,
	closed_at INTEGER NOT NULL,
	hold_duration INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_wallet ON closed_positions(wallet_address, closed_at DESC);

CREATE TABLE IF NOT EXISTS whale_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	wallet_address TEXT NOT NULL,
	market_id TEXT NOT NULL,
	outcome_index INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	detected_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_wallet ON whale_events(wallet_address, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_type ON whale_events(event_type);

CREATE TABLE IF NOT EXISTS rollups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	wallet_address TEXT NOT NULL,
	bucket_type TEXT NOT NULL,
	bucket_start INTEGER NOT NULL,
	trades_count INTEGER NOT NULL DEFAULT 0,
	volume REAL NOT NULL DEFAULT 0,
	pnl REAL NOT NULL DEFAULT 0,
	roi REAL NOT NULL DEFAULT 0,
	win_rate REAL NOT NULL DEFAULT 0,
	sharpe_ratio REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	UNIQUE(wallet_address, bucket_type, bucket_start)
);

CREATE INDEX IF NOT EXISTS idx_rollups_bucket ON rollups(bucket_type, bucket_start DESC);

CREATE TABLE IF NOT EXISTS indexing_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	completed_at INTEGER,
	records_processed INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_indexing_log_time ON indexing_log(started_at DESC);

CREATE TABLE IF NOT EXISTS indexing_status (
	wallet_address TEXT PRIMARY KEY,
	last_indexed_at INTEGER NOT NULL DEFAULT 0,
	total_trades_indexed INTEGER NOT NULL DEFAULT 0,
	is_indexing INTEGER NOT NULL DEFAULT 0,
	progress REAL NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);
`

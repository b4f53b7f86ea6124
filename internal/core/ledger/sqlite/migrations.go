package sqlite

// schema is the same table layout as the postgres backend, translated to
// SQLite DDL for the embedded/single-binary deployment mode.
const schema = `
CREATE TABLE IF NOT EXISTS node (
	id INTEGER PRIMARY KEY AUTOINCREMENT
);

CREATE TABLE IF NOT EXISTS account (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	node_pos INTEGER NOT NULL REFERENCES node(id),
	node_neg INTEGER NOT NULL REFERENCES node(id),
	balance TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	UNIQUE(node_pos, node_neg)
);

CREATE TABLE IF NOT EXISTS creditline (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES account(id),
	node_id INTEGER NOT NULL REFERENCES node(id),
	bal_mult INTEGER NOT NULL,
	limit_amount TEXT,
	has_limit INTEGER NOT NULL DEFAULT 0,
	UNIQUE(account_id, bal_mult)
);

CREATE TABLE IF NOT EXISTS payment (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	payer_node_id INTEGER NOT NULL REFERENCES node(id),
	recipient_node_id INTEGER NOT NULL REFERENCES node(id),
	amount TEXT NOT NULL,
	memo TEXT NOT NULL DEFAULT '',
	submitted_at DATETIME NOT NULL,
	last_attempted_at DATETIME,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entry (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES account(id),
	payment_id INTEGER NOT NULL REFERENCES payment(id),
	amount TEXT NOT NULL,
	new_balance TEXT NOT NULL,
	date DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_creditline_node ON creditline(node_id);
CREATE INDEX IF NOT EXISTS idx_entry_account ON entry(account_id);
CREATE INDEX IF NOT EXISTS idx_entry_payment ON entry(payment_id);
`

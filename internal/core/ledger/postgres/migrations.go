package postgres

// schema is the exact table layout of spec.md §6, translated to
// PostgreSQL DDL. Amounts are stored as TEXT in amount.Amount's own
// decimal rendering (NUMERIC would lose the +Inf sentinel used by
// creditline.limit_amount, so all amount columns go through the same
// encoding for consistency).
const schema = `
CREATE TABLE IF NOT EXISTS node (
	id BIGSERIAL PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS account (
	id BIGSERIAL PRIMARY KEY,
	node_pos BIGINT NOT NULL REFERENCES node(id),
	node_neg BIGINT NOT NULL REFERENCES node(id),
	balance TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(node_pos, node_neg)
);

CREATE TABLE IF NOT EXISTS creditline (
	id BIGSERIAL PRIMARY KEY,
	account_id BIGINT NOT NULL REFERENCES account(id),
	node_id BIGINT NOT NULL REFERENCES node(id),
	bal_mult SMALLINT NOT NULL,
	limit_amount TEXT,
	has_limit BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE(account_id, bal_mult)
);

CREATE TABLE IF NOT EXISTS payment (
	id BIGSERIAL PRIMARY KEY,
	payer_node_id BIGINT NOT NULL REFERENCES node(id),
	recipient_node_id BIGINT NOT NULL REFERENCES node(id),
	amount TEXT NOT NULL,
	memo TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ NOT NULL,
	last_attempted_at TIMESTAMPTZ,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entry (
	id BIGSERIAL PRIMARY KEY,
	account_id BIGINT NOT NULL REFERENCES account(id),
	payment_id BIGINT NOT NULL REFERENCES payment(id),
	amount TEXT NOT NULL,
	new_balance TEXT NOT NULL,
	date TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_creditline_node ON creditline(node_id);
CREATE INDEX IF NOT EXISTS idx_entry_account ON entry(account_id);
CREATE INDEX IF NOT EXISTS idx_entry_payment ON entry(payment_id);
`

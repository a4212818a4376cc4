package postgres

// Schema keeps indexed fields as typed columns and the full record as a
// JSONB doc, so entity evolution never needs a column migration. Indexes
// cover the filters the engine actually issues: status, country, chain,
// created_at, and venue coordinates for proximity queries.
const schema = `
CREATE TABLE IF NOT EXISTS discovered_venues (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	city          TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	chain_id      TEXT,
	status        TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	dedupe_key    TEXT NOT NULL,
	doc           JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_dv_status     ON discovered_venues (status);
CREATE INDEX IF NOT EXISTS idx_dv_country    ON discovered_venues (country);
CREATE INDEX IF NOT EXISTS idx_dv_chain      ON discovered_venues (chain_id);
CREATE INDEX IF NOT EXISTS idx_dv_created_at ON discovered_venues (created_at);
CREATE INDEX IF NOT EXISTS idx_dv_dedupe     ON discovered_venues (dedupe_key);

CREATE TABLE IF NOT EXISTS discovered_venue_urls (
	venue_id  TEXT NOT NULL REFERENCES discovered_venues(id) ON DELETE CASCADE,
	norm_url  TEXT NOT NULL,
	PRIMARY KEY (venue_id, norm_url)
);
CREATE INDEX IF NOT EXISTS idx_dvu_url ON discovered_venue_urls (norm_url);

CREATE TABLE IF NOT EXISTS discovered_dishes (
	id         TEXT PRIMARY KEY,
	venue_id   TEXT NOT NULL REFERENCES discovered_venues(id),
	status     TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_dd_venue  ON discovered_dishes (venue_id);
CREATE INDEX IF NOT EXISTS idx_dd_status ON discovered_dishes (status);

CREATE TABLE IF NOT EXISTS discovery_strategies (
	id              TEXT PRIMARY KEY,
	country         TEXT NOT NULL DEFAULT '',
	deprecated      BOOLEAN NOT NULL DEFAULT FALSE,
	uses            INTEGER NOT NULL DEFAULT 0,
	successes       INTEGER NOT NULL DEFAULT 0,
	false_positives INTEGER NOT NULL DEFAULT 0,
	doc             JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chains (
	id         TEXT PRIMARY KEY,
	verified   BOOLEAN NOT NULL DEFAULT FALSE,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS production_venues (
	id            TEXT PRIMARY KEY,
	country       TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	lat           DOUBLE PRECISION NOT NULL DEFAULT 0,
	lng           DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_verified TIMESTAMPTZ NOT NULL,
	doc           JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_pv_status ON production_venues (status);
CREATE INDEX IF NOT EXISTS idx_pv_coords ON production_venues (lat, lng);
CREATE INDEX IF NOT EXISTS idx_pv_last_verified ON production_venues (last_verified);

CREATE TABLE IF NOT EXISTS production_dishes (
	id         TEXT PRIMARY KEY,
	venue_id   TEXT NOT NULL REFERENCES production_venues(id),
	status     TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_pd_venue ON production_dishes (venue_id);

CREATE TABLE IF NOT EXISTS change_logs (
	id         TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	document_id TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_cl_doc ON change_logs (collection, document_id);

CREATE TABLE IF NOT EXISTS sync_history (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS learning_records (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_credentials (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS system_metadata (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

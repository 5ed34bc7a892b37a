package index

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/ops-brain/opsd/internal/opserr"
)

// SchemaVersion is recorded in meta.schema_version on first init.
const SchemaVersion = "0.2"

// OpenDB opens (creating if necessary) the SQLite database at path with
// the connection policy required by the store: WAL journaling, NORMAL
// synchronous, foreign keys on, and a generous busy timeout so that
// concurrent readers don't trip over the write mutex's holder.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, opserr.DatabaseWrap(err, "open database %s", path)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, opserr.DatabaseWrap(err, "apply pragma %q", pragma)
		}
	}

	// A single open connection keeps SQLite's own locking, rather than
	// Go's pool, from interleaving writers; readers still proceed
	// concurrently via WAL.
	db.SetMaxOpenConns(1)

	return db, nil
}

// ddl creates every table, index, and FTS trigger idempotently. Table
// and column names are fixed by the data model; this is the canonical
// SQLite rendition of it.
const ddl = `
CREATE TABLE IF NOT EXISTS events (
	rowid INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	schema_version TEXT NOT NULL,
	ts TEXT NOT NULL,
	type TEXT NOT NULL,
	tags_json TEXT NOT NULL DEFAULT '[]',
	text TEXT NOT NULL DEFAULT '',
	payload_json TEXT NOT NULL DEFAULT '{}',
	source_kind TEXT NOT NULL,
	source_locator TEXT NOT NULL,
	source_meta_json TEXT NOT NULL DEFAULT '{}',
	hash_algo TEXT NOT NULL,
	hash_value TEXT NOT NULL,
	dedupe_key TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_dedupe ON events(dedupe_key);

CREATE TABLE IF NOT EXISTS refs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	ref_kind TEXT NOT NULL,
	uri TEXT NOT NULL,
	span_json TEXT NOT NULL DEFAULT '{}',
	digest_algo TEXT,
	digest_value TEXT,
	FOREIGN KEY(event_id) REFERENCES events(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_refs_event ON refs(event_id);
CREATE INDEX IF NOT EXISTS idx_refs_uri ON refs(uri);

CREATE TABLE IF NOT EXISTS dedupe (
	dedupe_key TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	first_seen_ts TEXT NOT NULL,
	FOREIGN KEY(event_id) REFERENCES events(id) ON DELETE CASCADE
);

CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
	text,
	content='events',
	content_rowid='rowid',
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS events_ai AFTER INSERT ON events BEGIN
	INSERT INTO events_fts(rowid, text) VALUES (new.rowid, new.text);
END;
CREATE TRIGGER IF NOT EXISTS events_ad AFTER DELETE ON events BEGIN
	INSERT INTO events_fts(events_fts, rowid, text) VALUES('delete', old.rowid, old.text);
END;
CREATE TRIGGER IF NOT EXISTS events_au AFTER UPDATE OF text ON events BEGIN
	INSERT INTO events_fts(events_fts, rowid, text) VALUES('delete', old.rowid, old.text);
	INSERT INTO events_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	name TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	config_json TEXT NOT NULL DEFAULT '{}',
	tags_json TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_kind ON sources(kind);

CREATE TABLE IF NOT EXISTS views (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	query_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_views_name ON views(name);

CREATE TABLE IF NOT EXISTS jobs (
	name TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	config_json TEXT NOT NULL DEFAULT '{}',
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_enabled ON jobs(enabled);

CREATE TABLE IF NOT EXISTS job_runs (
	id TEXT PRIMARY KEY,
	job_name TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	output_json TEXT NOT NULL DEFAULT '{}',
	error TEXT,
	FOREIGN KEY(job_name) REFERENCES jobs(name) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_job_runs_job_started ON job_runs(job_name, started_at);
`

// InitDB creates all tables/indexes/triggers idempotently and records
// meta.schema_version if it is not already set.
func InitDB(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return opserr.DatabaseWrap(err, "begin init transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(ddl); err != nil {
		return opserr.DatabaseWrap(err, "apply schema DDL")
	}

	var existing string
	err = tx.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES ('schema_version', ?)", SchemaVersion); err != nil {
			return opserr.DatabaseWrap(err, "record schema_version")
		}
	case err != nil:
		return opserr.DatabaseWrap(err, "read schema_version")
	}

	if err := tx.Commit(); err != nil {
		return opserr.DatabaseWrap(err, "commit init transaction")
	}
	return nil
}

// GetSchemaVersion returns the schema_version recorded in meta, or the
// empty string if the database has never been initialized.
func GetSchemaVersion(db *sql.DB) (string, error) {
	var version string
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

// Wipe drops every row-bearing table so that index_rebuild can replay
// the canonical log from scratch. Schema objects (tables, indexes,
// triggers, the FTS virtual table) are left in place; only rows are
// removed, in an order that respects foreign keys.
func Wipe(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return opserr.DatabaseWrap(err, "begin wipe transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"dedupe", "refs", "events"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return opserr.DatabaseWrap(err, "wipe table %s", table)
		}
	}
	if err := tx.Commit(); err != nil {
		return opserr.DatabaseWrap(err, "commit wipe transaction")
	}
	return nil
}

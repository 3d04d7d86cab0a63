package store

// CurrentSchemaVersion is the schema version this binary understands.
// A store whose metadata.schema_version cell disagrees is either
// upgraded (version 0, uninitialized) or refused (any other mismatch).
const CurrentSchemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS reservations (
	path          TEXT NOT NULL,
	tag           TEXT NULL,
	port          INTEGER UNIQUE NOT NULL,
	project       TEXT NULL,
	task          TEXT NULL,
	sticky        INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	last_used_at  INTEGER NOT NULL,
	PRIMARY KEY (path, tag)
);

CREATE INDEX IF NOT EXISTS idx_reservations_port ON reservations(port);
CREATE INDEX IF NOT EXISTS idx_reservations_project ON reservations(project);
CREATE INDEX IF NOT EXISTS idx_reservations_last_used_at ON reservations(last_used_at);
`

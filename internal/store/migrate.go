package store

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/trop-dev/trop/internal/trop"
)

// ensureSchema initializes a fresh database (schema_version absent or "0")
// and refuses to open a database whose schema_version does not match
// CurrentSchemaVersion.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return trop.Wrap(trop.KindIO, err, "failed to apply schema")
	}

	version, err := readSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	switch {
	case version == 0:
		return writeSchemaVersion(ctx, db, CurrentSchemaVersion)
	case version < CurrentSchemaVersion:
		return trop.New(trop.KindValidation, "schema version %d is older than supported version %d: no migration available", version, CurrentSchemaVersion)
	case version > CurrentSchemaVersion:
		return trop.New(trop.KindValidation, "schema version %d is newer than supported version %d: upgrade trop", version, CurrentSchemaVersion)
	default:
		return nil
	}
}

func readSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, trop.Wrap(trop.KindIO, err, "failed to read schema version")
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, trop.Wrap(trop.KindValidation, err, "malformed schema_version %q", raw)
	}
	return version, nil
}

func writeSchemaVersion(ctx context.Context, db *sql.DB, version int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO metadata(key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(version))
	if err != nil {
		return trop.Wrap(trop.KindIO, err, "failed to write schema version")
	}
	return nil
}

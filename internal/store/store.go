package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/trop-dev/trop/internal/trop"
)

// Store wraps the embedded relational database backing reservations. One
// Store corresponds to one open *sql.DB; transactions are opened per
// operation via BeginImmediate.
type Store struct {
	db  *sql.DB
	cfg Config
}

// Open connects to the database at cfg.Path, applying the documented
// PRAGMA batch, and checks (or bootstraps) the schema version. If the
// database file does not exist and cfg.AutoCreate is false, it returns
// DataDirectoryNotFound.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path != ":memory:" {
		if _, err := os.Stat(cfg.Path); err != nil {
			if !os.IsNotExist(err) {
				return nil, trop.Wrap(trop.KindIO, err, "cannot stat database file %s", cfg.Path)
			}
			if !cfg.AutoCreate {
				return nil, trop.New(trop.KindDataDirectoryNotFound, "database not found at %s and auto-create is disabled", cfg.Path)
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
				return nil, trop.Wrap(trop.KindIO, err, "cannot create data directory")
			}
		}
	}

	dsn := cfg.Path
	switch {
	case cfg.ReadOnly:
		dsn += "?mode=ro"
	default:
		// _txlock=immediate makes the driver's own eager BEGIN (issued
		// inside BeginTx, before any statement runs) an immediate
		// transaction instead of a deferred one, so BeginImmediate's
		// write lock is acquired up front rather than on first write.
		dsn += "?_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, trop.Wrap(trop.KindIO, err, "cannot open database %s", cfg.Path)
	}

	// A single writer connection keeps WAL's single-writer discipline at
	// the Go connection-pool level too, avoiding spurious SQLITE_BUSY from
	// this process racing itself.
	db.SetMaxOpenConns(1)

	busyMillis := cfg.BusyTimeout.Milliseconds()
	if busyMillis <= 0 {
		busyMillis = 5000
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyMillis),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, trop.Wrap(trop.KindIO, err, "failed to apply %q", p)
		}
	}

	if !cfg.ReadOnly {
		if err := ensureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db, cfg: cfg}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// VerifyIntegrity runs the store's native integrity pragma.
func (s *Store) VerifyIntegrity(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return trop.Wrap(trop.KindIO, err, "integrity check failed to run")
	}
	if result != "ok" {
		return trop.New(trop.KindIO, "integrity check failed: %s", result)
	}
	return nil
}

// now is overridable in tests via nowFunc.
var nowFunc = time.Now

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

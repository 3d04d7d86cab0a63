package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/trop-dev/trop/internal/trop"
)

// Config parameterizes how Open connects to the reservation store.
type Config struct {
	// Path is the absolute path to the trop.db file.
	Path string
	// BusyTimeout bounds how long a single lock-acquisition attempt waits
	// before LockTimeout is raised. Default 5s.
	BusyTimeout time.Duration
	// AutoCreate creates the database file (and schema) if missing.
	AutoCreate bool
	// ReadOnly opens the database without a writer connection; AutoCreate
	// is forced false when ReadOnly is true.
	ReadOnly bool
}

// NewConfig returns a Config with the documented defaults.
func NewConfig(path string) Config {
	return Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		AutoCreate:  true,
	}
}

// AsReadOnly returns cfg with ReadOnly set and AutoCreate disabled.
func (c Config) AsReadOnly() Config {
	c.ReadOnly = true
	c.AutoCreate = false
	return c
}

// DefaultDataDir returns "$HOME/.trop" (or "%USERPROFILE%\.trop" on
// Windows, handled transparently by os.UserHomeDir).
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", trop.Wrap(trop.KindValidation, err, "cannot determine home directory")
	}
	return filepath.Join(home, ".trop"), nil
}

// ResolveDataDir applies the documented override precedence: explicit flag
// value (if non-empty) > TROP_DATA_DIR env var > default.
func ResolveDataDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if envDir := os.Getenv("TROP_DATA_DIR"); envDir != "" {
		return envDir, nil
	}
	return DefaultDataDir()
}

// DBPath returns "<dataDir>/trop.db".
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "trop.db")
}

// ConfigPath returns "<dataDir>/config.yaml".
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.yaml")
}

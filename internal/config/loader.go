package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/trop-dev/trop/internal/trop"
)

// DefaultDataDirName is the leaf directory name under the user's home
// directory when no override is given.
const DefaultDataDirName = ".trop"

// DataDir resolves the data directory: explicit override (a CLI flag,
// passed in by the caller) beats TROP_DATA_DIR beats the OS-appropriate
// default under the user's home directory.
func DataDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if env := os.Getenv("TROP_DATA_DIR"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", trop.Wrap(trop.KindIO, err, "resolving home directory for default data directory")
	}
	return filepath.Join(home, DefaultDataDirName), nil
}

// LoadOptions carries the inputs the loader can't discover on its own:
// the resolved data directory and the working directory to search
// upward from for trop.yaml.
type LoadOptions struct {
	DataDir    string
	WorkingDir string
	// Overrides is the highest-precedence source: CLI flags already
	// mapped onto Partial fields by the caller.
	Overrides Partial
}

// Load builds the fully merged Config by reading, in descending
// precedence, the programmatic overrides, TROP_* environment variables,
// trop.local.yaml in the working directory, trop.yaml walked upward from
// the working directory, and <data_dir>/config.yaml.
func Load(opts LoadOptions) (Config, error) {
	sources := []Partial{opts.Overrides}

	envPartial, err := loadEnv()
	if err != nil {
		return Config{}, err
	}
	sources = append(sources, envPartial)

	localPartial, err := loadYAMLFile(filepath.Join(opts.WorkingDir, "trop.local.yaml"))
	if err != nil {
		return Config{}, err
	}
	sources = append(sources, localPartial)

	projectPartial, err := loadProjectYAML(opts.WorkingDir, opts.DataDir)
	if err != nil {
		return Config{}, err
	}
	sources = append(sources, projectPartial)

	userPartial, err := loadYAMLFile(filepath.Join(opts.DataDir, "config.yaml"))
	if err != nil {
		return Config{}, err
	}
	sources = append(sources, userPartial)

	return Merge(sources...)
}

// loadProjectYAML walks upward from workingDir looking for trop.yaml,
// stopping once it passes the data directory's parent or reaches the
// filesystem root. The first match wins.
func loadProjectYAML(workingDir, dataDir string) (Partial, error) {
	stop := filepath.Dir(filepath.Clean(dataDir))
	dir := workingDir
	for {
		candidate := filepath.Join(dir, "trop.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return loadYAMLFile(candidate)
		}
		if dir == stop {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return Partial{}, nil
}

func loadYAMLFile(path string) (Partial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Partial{}, nil
		}
		return Partial{}, trop.Wrap(trop.KindIO, err, "reading config file %s", path)
	}
	var p Partial
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Partial{}, trop.Wrap(trop.KindConfigError, err, "parsing config file %s", path)
	}
	if err := p.normalize(); err != nil {
		return Partial{}, err
	}
	return p, nil
}

// loadEnv reads the TROP_* environment variables that map onto
// configuration fields. TROP_DATA_DIR is resolved separately by DataDir
// before the loader runs and is not part of the merged Config surface.
func loadEnv() (Partial, error) {
	var p Partial

	if v, ok := os.LookupEnv("TROP_PROJECT"); ok {
		p.Project = &v
	}
	if v, ok := os.LookupEnv("TROP_DISABLE_AUTOINIT"); ok {
		b, err := parseEnvBool("TROP_DISABLE_AUTOINIT", v)
		if err != nil {
			return Partial{}, err
		}
		p.DisableAutoinit = &b
	}
	if v, ok := os.LookupEnv("TROP_ALLOW_UNRELATED_PATH"); ok {
		b, err := parseEnvBool("TROP_ALLOW_UNRELATED_PATH", v)
		if err != nil {
			return Partial{}, err
		}
		p.AllowUnrelatedPath = &b
	}
	if v, ok := os.LookupEnv("TROP_BUSY_TIMEOUT"); ok {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Partial{}, trop.Wrap(trop.KindConfigError, err, "TROP_BUSY_TIMEOUT %q is not an integer", v)
		}
		p.MaximumLockWaitSeconds = &seconds
	}

	if err := p.normalize(); err != nil {
		return Partial{}, err
	}
	return p, nil
}

func parseEnvBool(name, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, trop.Wrap(trop.KindConfigError, err, "%s %q is not a boolean", name, value)
	}
	return b, nil
}

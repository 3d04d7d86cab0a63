package cli

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/trop-dev/trop/internal/config"
	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
	"github.com/trop-dev/trop/internal/trop"
)

func resolveDataDir(override string) (string, error) {
	return config.DataDir(override)
}

// loadConfig runs the full hierarchical load for the current working
// directory and data directory, folding in CLI-flag overrides.
func loadConfig(a *app, overrides config.Partial) (config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, trop.Wrap(trop.KindIO, err, "resolving current directory")
	}
	return config.Load(config.LoadOptions{
		DataDir:    a.dataDir,
		WorkingDir: cwd,
		Overrides:  overrides,
	})
}

// openStore opens (and, unless disabled, auto-initializes) the store
// under the app's resolved data directory.
func openStore(ctx context.Context, a *app, cfg config.Config) (*store.Store, error) {
	scfg := store.NewConfig(dbPath(a.dataDir))
	scfg.BusyTimeout = cfg.BusyTimeout()
	scfg.AutoCreate = !cfg.DisableAutoinit
	s, err := store.Open(ctx, scfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func dbPath(dataDir string) string {
	return dataDir + string(os.PathSeparator) + "trop.db"
}

// parsePortRange parses "min-max" into a validated PortRange.
func parsePortRange(s string) (portspec.PortRange, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return portspec.PortRange{}, trop.New(trop.KindInvalidPort, "invalid port range %q: want MIN-MAX", s)
	}
	loN, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return portspec.PortRange{}, trop.Wrap(trop.KindInvalidPort, err, "invalid range minimum %q", lo)
	}
	hiN, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return portspec.PortRange{}, trop.Wrap(trop.KindInvalidPort, err, "invalid range maximum %q", hi)
	}
	loP, err := portspec.NewPort(loN)
	if err != nil {
		return portspec.PortRange{}, err
	}
	hiP, err := portspec.NewPort(hiN)
	if err != nil {
		return portspec.PortRange{}, err
	}
	return portspec.NewPortRange(loP, hiP)
}

// parseExclusions parses a comma-separated list of single ports and
// "lo-hi" ranges into an ExclusionList.
func parseExclusions(s string) (portspec.ExclusionList, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var list portspec.ExclusionList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			loN, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, trop.Wrap(trop.KindInvalidPort, err, "invalid exclusion range %q", part)
			}
			hiN, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, trop.Wrap(trop.KindInvalidPort, err, "invalid exclusion range %q", part)
			}
			loP, err := portspec.NewPort(loN)
			if err != nil {
				return nil, err
			}
			hiP, err := portspec.NewPort(hiN)
			if err != nil {
				return nil, err
			}
			ex, err := portspec.NewRangeExclusion(loP, hiP)
			if err != nil {
				return nil, err
			}
			list = append(list, ex)
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, trop.Wrap(trop.KindInvalidPort, err, "invalid exclusion %q", part)
		}
		p, err := portspec.NewPort(n)
		if err != nil {
			return nil, err
		}
		list = append(list, portspec.NewSingleExclusion(p))
	}
	return list, nil
}

// buildAuthority translates the shared sticky-field override flags into
// a reservation.Authority.
func buildAuthority(force, allowProjectChange, allowTaskChange, allowChange bool) reservation.Authority {
	return reservation.Authority{
		Force:              force,
		AllowProjectChange: allowProjectChange,
		AllowTaskChange:    allowTaskChange,
		AllowChange:        allowChange,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalPort(s string) (*portspec.Port, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, trop.Wrap(trop.KindInvalidPort, err, "invalid port %q", s)
	}
	p, err := portspec.NewPort(n)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func keyFor(path, tag string) reservation.Key {
	return reservation.Key{Path: path, Tag: tag}
}

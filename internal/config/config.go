// Package config implements the merged configuration surface: a partial
// representation per source (so "unset" is distinguishable from "zero
// value"), a pure field-by-field merger, and a hierarchical loader that
// reads the real sources in precedence order.
package config

import (
	"time"

	"github.com/trop-dev/trop/internal/occupancy"
	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/trop"
)

// ServiceConfig describes one named service within a reservation group.
type ServiceConfig struct {
	Offset    *int
	Preferred *portspec.Port
	Env       string
}

// Config is the fully merged, ready-to-use configuration.
type Config struct {
	Project                string
	Ports                  portspec.PortRange
	ExcludedPorts          portspec.ExclusionList
	ExpireAfterDays        int
	Occupancy              occupancy.Config
	Services               map[string]ServiceConfig
	MaximumLockWaitSeconds int
	AllowUnrelatedPath     bool
	DisableAutoinit        bool
	DisableAutoprune       bool
	DisableAutoexpire      bool
}

// BusyTimeout converts MaximumLockWaitSeconds into a time.Duration for the store layer.
func (c Config) BusyTimeout() time.Duration {
	return time.Duration(c.MaximumLockWaitSeconds) * time.Second
}

// Defaults returns the built-in configuration: an OS-appropriate ephemeral
// port range, a 30-day expiry window, and every toggle off.
func Defaults() Config {
	lo, _ := portspec.NewPort(49152)
	hi, _ := portspec.NewPort(65535)
	rng, _ := portspec.NewPortRange(lo, hi)
	return Config{
		Ports:                  rng,
		ExpireAfterDays:        30,
		MaximumLockWaitSeconds: 5,
	}
}

// Merge folds sources into a single Config. sources must be ordered
// highest precedence first (programmatic overrides, then env vars, then
// the YAML files); Merge starts from Defaults() and applies them in reverse so
// that a higher-precedence source's explicitly-set field always wins.
func Merge(sources ...Partial) (Config, error) {
	cfg := Defaults()
	for i := len(sources) - 1; i >= 0; i-- {
		applyPartial(&cfg, sources[i])
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyPartial(cfg *Config, p Partial) {
	if p.Project != nil {
		cfg.Project = *p.Project
	}
	if p.PortsMin != nil {
		cfg.Ports.Min = portspec.Port(*p.PortsMin)
	}
	if p.PortsMax != nil {
		cfg.Ports.Max = portspec.Port(*p.PortsMax)
	} else if p.PortsMaxOffset != nil {
		cfg.Ports.Max = portspec.Port(int(cfg.Ports.Min) + *p.PortsMaxOffset)
	}
	if p.ExcludedPorts != nil {
		cfg.ExcludedPorts = p.ExcludedPorts
	}
	if p.ExpireAfterDays != nil {
		cfg.ExpireAfterDays = *p.ExpireAfterDays
	}
	if p.SkipTCP != nil {
		cfg.Occupancy.SkipTCP = *p.SkipTCP
	}
	if p.SkipUDP != nil {
		cfg.Occupancy.SkipUDP = *p.SkipUDP
	}
	if p.SkipIPv4 != nil {
		cfg.Occupancy.SkipIPv4 = *p.SkipIPv4
	}
	if p.SkipIPv6 != nil {
		cfg.Occupancy.SkipIPv6 = *p.SkipIPv6
	}
	if p.CheckAllInterfaces != nil {
		cfg.Occupancy.CheckAllInterfaces = *p.CheckAllInterfaces
	}
	if p.Services != nil {
		cfg.Services = p.Services
	}
	if p.MaximumLockWaitSeconds != nil {
		cfg.MaximumLockWaitSeconds = *p.MaximumLockWaitSeconds
	}
	if p.AllowUnrelatedPath != nil {
		cfg.AllowUnrelatedPath = *p.AllowUnrelatedPath
	}
	if p.DisableAutoinit != nil {
		cfg.DisableAutoinit = *p.DisableAutoinit
	}
	if p.DisableAutoprune != nil {
		cfg.DisableAutoprune = *p.DisableAutoprune
	}
	if p.DisableAutoexpire != nil {
		cfg.DisableAutoexpire = *p.DisableAutoexpire
	}
}

func validate(cfg Config) error {
	if cfg.Ports.Max < cfg.Ports.Min {
		return trop.New(trop.KindConfigError, "configured port range %s is invalid: max < min", cfg.Ports)
	}
	if cfg.ExpireAfterDays < 0 {
		return trop.New(trop.KindConfigError, "cleanup.expire_after_days must be non-negative, got %d", cfg.ExpireAfterDays)
	}
	if cfg.MaximumLockWaitSeconds < 0 {
		return trop.New(trop.KindConfigError, "maximum_lock_wait_seconds must be non-negative, got %d", cfg.MaximumLockWaitSeconds)
	}
	return nil
}

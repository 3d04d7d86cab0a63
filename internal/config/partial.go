package config

import (
	"github.com/trop-dev/trop/internal/portspec"
)

// ServiceSpec is the YAML shape of one reservations.services entry.
// Exactly one of Offset/Preferred is expected by the allocator, but that
// is enforced at plan-build time, not here.
type ServiceSpec struct {
	Offset    *int   `yaml:"offset,omitempty"`
	Preferred *int   `yaml:"preferred,omitempty"`
	Env       string `yaml:"env,omitempty"`
}

// ExclusionSpec is the YAML shape of one excluded_ports entry: either a
// single port or an inclusive range.
type ExclusionSpec struct {
	Port  *int `yaml:"port,omitempty"`
	Start *int `yaml:"start,omitempty"`
	End   *int `yaml:"end,omitempty"`
}

func (e ExclusionSpec) toExclusion() (portspec.Exclusion, error) {
	if e.Start != nil || e.End != nil {
		lo, err := portspec.NewPort(derefOr(e.Start, 0))
		if err != nil {
			return portspec.Exclusion{}, err
		}
		hi, err := portspec.NewPort(derefOr(e.End, 0))
		if err != nil {
			return portspec.Exclusion{}, err
		}
		return portspec.NewRangeExclusion(lo, hi)
	}
	p, err := portspec.NewPort(derefOr(e.Port, 0))
	if err != nil {
		return portspec.Exclusion{}, err
	}
	return portspec.NewSingleExclusion(p), nil
}

func fromExclusion(e portspec.Exclusion) ExclusionSpec {
	if e.IsRange {
		loV, hiV := int(e.RangeLo), int(e.RangeHi)
		return ExclusionSpec{Start: &loV, End: &hiV}
	}
	v := int(e.Single)
	return ExclusionSpec{Port: &v}
}

func derefOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

// Partial is one source's contribution to the merged Config: nil pointer
// fields mean "this source did not set this field," distinguishing unset
// from an explicit zero value.
type Partial struct {
	Project *string `yaml:"project,omitempty"`

	PortsMin       *int `yaml:"-"`
	PortsMax       *int `yaml:"-"`
	PortsMaxOffset *int `yaml:"-"`

	Ports struct {
		Min       *int `yaml:"min,omitempty"`
		Max       *int `yaml:"max,omitempty"`
		MaxOffset *int `yaml:"max_offset,omitempty"`
	} `yaml:"ports,omitempty"`

	ExcludedPortsSpec []ExclusionSpec       `yaml:"excluded_ports,omitempty"`
	ExcludedPorts     portspec.ExclusionList `yaml:"-"`

	Cleanup struct {
		ExpireAfterDays *int `yaml:"expire_after_days,omitempty"`
	} `yaml:"cleanup,omitempty"`
	ExpireAfterDays *int `yaml:"-"`

	OccupancyCheck struct {
		SkipTCP            *bool `yaml:"skip_tcp,omitempty"`
		SkipUDP            *bool `yaml:"skip_udp,omitempty"`
		SkipIPv4           *bool `yaml:"skip_ipv4,omitempty"`
		SkipIPv6           *bool `yaml:"skip_ipv6,omitempty"`
		CheckAllInterfaces *bool `yaml:"check_all_interfaces,omitempty"`
	} `yaml:"occupancy_check,omitempty"`
	SkipTCP            *bool `yaml:"-"`
	SkipUDP            *bool `yaml:"-"`
	SkipIPv4           *bool `yaml:"-"`
	SkipIPv6           *bool `yaml:"-"`
	CheckAllInterfaces *bool `yaml:"-"`

	Reservations struct {
		Services map[string]ServiceSpec `yaml:"services,omitempty"`
	} `yaml:"reservations,omitempty"`
	Services map[string]ServiceConfig `yaml:"-"`

	MaximumLockWaitSeconds *int  `yaml:"maximum_lock_wait_seconds,omitempty"`
	AllowUnrelatedPath     *bool `yaml:"allow_unrelated_path,omitempty"`
	DisableAutoinit        *bool `yaml:"disable_autoinit,omitempty"`
	DisableAutoprune       *bool `yaml:"disable_autoprune,omitempty"`
	DisableAutoexpire      *bool `yaml:"disable_autoexpire,omitempty"`
}

// normalize copies the nested YAML-shaped fields into the flat fields
// applyPartial reads, and converts the port-like sub-specs into their
// validated domain types. Call after unmarshalling a YAML document; it
// overwrites the flat fields, so a Partial built with the flat fields set
// directly is merged without it.
func (p *Partial) normalize() error {
	p.PortsMin = p.Ports.Min
	p.PortsMax = p.Ports.Max
	p.PortsMaxOffset = p.Ports.MaxOffset
	p.ExpireAfterDays = p.Cleanup.ExpireAfterDays
	p.SkipTCP = p.OccupancyCheck.SkipTCP
	p.SkipUDP = p.OccupancyCheck.SkipUDP
	p.SkipIPv4 = p.OccupancyCheck.SkipIPv4
	p.SkipIPv6 = p.OccupancyCheck.SkipIPv6
	p.CheckAllInterfaces = p.OccupancyCheck.CheckAllInterfaces

	if len(p.ExcludedPortsSpec) > 0 {
		list := make(portspec.ExclusionList, 0, len(p.ExcludedPortsSpec))
		for _, spec := range p.ExcludedPortsSpec {
			e, err := spec.toExclusion()
			if err != nil {
				return err
			}
			list = append(list, e)
		}
		p.ExcludedPorts = list
	}

	if len(p.Reservations.Services) > 0 {
		services := make(map[string]ServiceConfig, len(p.Reservations.Services))
		for tag, spec := range p.Reservations.Services {
			sc := ServiceConfig{Offset: spec.Offset, Env: spec.Env}
			if spec.Preferred != nil {
				port, err := portspec.NewPort(*spec.Preferred)
				if err != nil {
					return err
				}
				sc.Preferred = &port
			}
			services[tag] = sc
		}
		p.Services = services
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/trop"
)

// userFile is the on-disk shape of <data_dir>/config.yaml, decoded and
// re-encoded whole on every rewrite. Comments in an existing file are not
// preserved: this is a documented limitation of the whole-file-replace
// strategy, not an oversight.
type userFile struct {
	Project        *string         `yaml:"project,omitempty"`
	Ports          *portsFile      `yaml:"ports,omitempty"`
	ExcludedPorts  []ExclusionSpec `yaml:"excluded_ports,omitempty"`
	Cleanup        *cleanupFile    `yaml:"cleanup,omitempty"`
	OccupancyCheck *occupancyFile  `yaml:"occupancy_check,omitempty"`
	Reservations   *reservationsFile `yaml:"reservations,omitempty"`

	MaximumLockWaitSeconds *int  `yaml:"maximum_lock_wait_seconds,omitempty"`
	AllowUnrelatedPath     *bool `yaml:"allow_unrelated_path,omitempty"`
	DisableAutoinit        *bool `yaml:"disable_autoinit,omitempty"`
	DisableAutoprune       *bool `yaml:"disable_autoprune,omitempty"`
	DisableAutoexpire      *bool `yaml:"disable_autoexpire,omitempty"`
}

type portsFile struct {
	Min       *int `yaml:"min,omitempty"`
	Max       *int `yaml:"max,omitempty"`
	MaxOffset *int `yaml:"max_offset,omitempty"`
}

type cleanupFile struct {
	ExpireAfterDays *int `yaml:"expire_after_days,omitempty"`
}

type occupancyFile struct {
	SkipTCP            *bool `yaml:"skip_tcp,omitempty"`
	SkipUDP            *bool `yaml:"skip_udp,omitempty"`
	SkipIPv4           *bool `yaml:"skip_ipv4,omitempty"`
	SkipIPv6           *bool `yaml:"skip_ipv6,omitempty"`
	CheckAllInterfaces *bool `yaml:"check_all_interfaces,omitempty"`
}

type reservationsFile struct {
	Services map[string]ServiceSpec `yaml:"services,omitempty"`
}

func readUserFile(path string) (userFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return userFile{}, nil
		}
		return userFile{}, trop.Wrap(trop.KindIO, err, "reading %s", path)
	}
	var f userFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return userFile{}, trop.Wrap(trop.KindConfigError, err, "parsing %s", path)
	}
	return f, nil
}

// writeUserFileAtomic encodes f and replaces path with the result via a
// sibling temp file plus rename, so a crash mid-write never leaves a
// truncated config.yaml behind.
func writeUserFileAtomic(path string, f userFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return trop.Wrap(trop.KindConfigError, err, "encoding %s", path)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml.tmp")
	if err != nil {
		return trop.Wrap(trop.KindIO, err, "creating temp file for %s", path)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return trop.Wrap(trop.KindIO, err, "writing temp file for %s", path)
	}
	if err := tmp.Close(); err != nil {
		return trop.Wrap(trop.KindIO, err, "closing temp file for %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return trop.Wrap(trop.KindIO, err, "replacing %s", path)
	}
	return nil
}

// AddExclusion adds e to <data_dir>/config.yaml's excluded_ports list,
// compacting overlapping/adjacent entries, and rewrites the file
// atomically. A no-op if e is already covered.
func AddExclusion(dataDir string, e portspec.Exclusion) error {
	path := filepath.Join(dataDir, "config.yaml")
	f, err := readUserFile(path)
	if err != nil {
		return err
	}

	list := make(portspec.ExclusionList, 0, len(f.ExcludedPorts)+1)
	for _, spec := range f.ExcludedPorts {
		ex, err := spec.toExclusion()
		if err != nil {
			return err
		}
		list = append(list, ex)
	}
	list = append(list, e).Compact()

	f.ExcludedPorts = make([]ExclusionSpec, len(list))
	for i, ex := range list {
		f.ExcludedPorts[i] = fromExclusion(ex)
	}
	return writeUserFileAtomic(path, f)
}

// RemoveExclusion removes every exclusion in the file that matches p
// exactly (an entry stored as the single port p; a range entry, even one
// covering only p, is kept) and rewrites the file atomically.
func RemoveExclusion(dataDir string, p portspec.Port) error {
	path := filepath.Join(dataDir, "config.yaml")
	f, err := readUserFile(path)
	if err != nil {
		return err
	}

	single := portspec.NewSingleExclusion(p)
	kept := f.ExcludedPorts[:0]
	for _, spec := range f.ExcludedPorts {
		ex, err := spec.toExclusion()
		if err != nil {
			return err
		}
		if ex == single {
			continue
		}
		kept = append(kept, spec)
	}
	f.ExcludedPorts = kept
	return writeUserFileAtomic(path, f)
}

// AddExclusions folds AddExclusion over every port in ports, used by
// scan --autoexclude to exclude every currently-occupied port in one
// rewrite rather than one file replacement per port.
func AddExclusions(dataDir string, ports []portspec.Port) error {
	if len(ports) == 0 {
		return nil
	}
	path := filepath.Join(dataDir, "config.yaml")
	f, err := readUserFile(path)
	if err != nil {
		return err
	}

	list := make(portspec.ExclusionList, 0, len(f.ExcludedPorts)+len(ports))
	for _, spec := range f.ExcludedPorts {
		ex, err := spec.toExclusion()
		if err != nil {
			return err
		}
		list = append(list, ex)
	}
	for _, p := range ports {
		list = append(list, portspec.NewSingleExclusion(p))
	}
	list = list.Compact()

	f.ExcludedPorts = make([]ExclusionSpec, len(list))
	for i, ex := range list {
		f.ExcludedPorts[i] = fromExclusion(ex)
	}
	return writeUserFileAtomic(path, f)
}

// CompactExclusions rewrites <data_dir>/config.yaml's excluded_ports list
// with overlapping and adjacent entries merged, without changing the set
// of ports covered.
func CompactExclusions(dataDir string) error {
	path := filepath.Join(dataDir, "config.yaml")
	f, err := readUserFile(path)
	if err != nil {
		return err
	}

	list := make(portspec.ExclusionList, 0, len(f.ExcludedPorts))
	for _, spec := range f.ExcludedPorts {
		ex, err := spec.toExclusion()
		if err != nil {
			return err
		}
		list = append(list, ex)
	}
	list = list.Compact()

	f.ExcludedPorts = make([]ExclusionSpec, len(list))
	for i, ex := range list {
		f.ExcludedPorts[i] = fromExclusion(ex)
	}
	return writeUserFileAtomic(path, f)
}

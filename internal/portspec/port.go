// Package portspec implements the validated port, port range, and exclusion
// primitives the rest of the reservation engine builds on.
package portspec

import (
	"fmt"
	"sort"

	"github.com/trop-dev/trop/internal/trop"
)

// Port is a validated TCP/UDP port number in [1, 65535].
type Port uint16

// NewPort validates value and returns a Port, or InvalidPort if value is 0.
func NewPort(value int) (Port, error) {
	if value <= 0 || value > 65535 {
		e := trop.New(trop.KindInvalidPort, "invalid port %d: must be in 1-65535", value)
		e.Port = value
		return 0, e
	}
	return Port(value), nil
}

// Privileged reports whether the port is below 1024.
func (p Port) Privileged() bool { return p < 1024 }

func (p Port) Int() int { return int(p) }

func (p Port) String() string { return fmt.Sprintf("%d", uint16(p)) }

// PortRange is an inclusive [Min, Max] range with Min <= Max.
type PortRange struct {
	Min Port
	Max Port
}

// NewPortRange validates min <= max.
func NewPortRange(min, max Port) (PortRange, error) {
	if max < min {
		return PortRange{}, trop.New(trop.KindInvalidPort, "invalid port range %d-%d: max < min", min, max)
	}
	return PortRange{Min: min, Max: max}, nil
}

// Contains reports whether p falls within the range, O(1).
func (r PortRange) Contains(p Port) bool { return p >= r.Min && p <= r.Max }

// Len returns the number of ports the range covers.
func (r PortRange) Len() int { return int(r.Max) - int(r.Min) + 1 }

// Iter returns the ports in the range in ascending order. The returned
// slice is a fresh copy each call, so callers may range over it freely
// without aliasing concerns; for very large ranges prefer ForEach.
func (r PortRange) Iter() []Port {
	out := make([]Port, 0, r.Len())
	for p := r.Min; ; p++ {
		out = append(out, p)
		if p == r.Max {
			break
		}
	}
	return out
}

// ForEach calls fn for every port in ascending order, stopping early if fn
// returns false.
func (r PortRange) ForEach(fn func(Port) bool) {
	for p := r.Min; ; p++ {
		if !fn(p) {
			return
		}
		if p == r.Max {
			return
		}
	}
}

func (r PortRange) String() string { return fmt.Sprintf("%d-%d", r.Min, r.Max) }

// Exclusion is either a Single port or an inclusive Range. Equality is
// structural: a Range{p,p} is not automatically folded into a Single(p)
// by the constructors — only Compact does that.
type Exclusion struct {
	Single   Port // valid when IsRange is false
	RangeLo  Port // valid when IsRange is true
	RangeHi  Port
	IsRange  bool
}

// NewSingleExclusion builds an Exclusion matching exactly one port.
func NewSingleExclusion(p Port) Exclusion {
	return Exclusion{Single: p}
}

// NewRangeExclusion builds an Exclusion matching an inclusive range.
func NewRangeExclusion(lo, hi Port) (Exclusion, error) {
	if hi < lo {
		return Exclusion{}, trop.New(trop.KindInvalidPort, "invalid exclusion range %d-%d: hi < lo", lo, hi)
	}
	return Exclusion{RangeLo: lo, RangeHi: hi, IsRange: true}, nil
}

// Contains reports whether the exclusion matches p.
func (e Exclusion) Contains(p Port) bool {
	if e.IsRange {
		return p >= e.RangeLo && p <= e.RangeHi
	}
	return p == e.Single
}

func (e Exclusion) lo() Port {
	if e.IsRange {
		return e.RangeLo
	}
	return e.Single
}

func (e Exclusion) hi() Port {
	if e.IsRange {
		return e.RangeHi
	}
	return e.Single
}

func (e Exclusion) String() string {
	if e.IsRange {
		return fmt.Sprintf("%d-%d", e.RangeLo, e.RangeHi)
	}
	return fmt.Sprintf("%d", e.Single)
}

// ExclusionList answers membership in O(k) for a list of k exclusions.
type ExclusionList []Exclusion

// Contains reports whether any exclusion in the list matches p.
func (l ExclusionList) Contains(p Port) bool {
	for _, e := range l {
		if e.Contains(p) {
			return true
		}
	}
	return false
}

// Compact returns a new list with overlapping or adjacent exclusions
// merged: sorted by start, folding next into current whenever
// next.start <= current.end + 1.
func (l ExclusionList) Compact() ExclusionList {
	if len(l) == 0 {
		return nil
	}
	sorted := make(ExclusionList, len(l))
	copy(sorted, l)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].lo() < sorted[j].lo() })

	out := make(ExclusionList, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		curHi := cur.hi()
		if int(next.lo()) <= int(curHi)+1 {
			if next.hi() > curHi {
				cur = rangeOf(cur.lo(), next.hi())
			}
			continue
		}
		out = append(out, rangeOf(cur.lo(), cur.hi()))
		cur = next
	}
	out = append(out, rangeOf(cur.lo(), cur.hi()))
	return out
}

func rangeOf(lo, hi Port) Exclusion {
	if lo == hi {
		return Exclusion{Single: lo}
	}
	return Exclusion{RangeLo: lo, RangeHi: hi, IsRange: true}
}

// Package occupancy implements the system-level check of whether a port is
// currently bound by some process on the local host, independent of this
// program's own reservation records.
package occupancy

import (
	"fmt"
	"net"

	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/trop"
)

// Config selects which probes run. check_all_interfaces additionally
// probes each local interface address instead of only the wildcard
// address; the default (false) is a single bind-all-interfaces check
// per protocol.
type Config struct {
	SkipTCP            bool
	SkipUDP            bool
	SkipIPv4           bool
	SkipIPv6           bool
	CheckAllInterfaces bool
}

// probe is one (network, address) attempt.
type probe struct {
	network string
	addr    string
}

func probesFor(port portspec.Port, cfg Config) []probe {
	p := int(port)
	var out []probe
	add := func(network, addr string) { out = append(out, probe{network, addr}) }

	addrsV4 := []string{"0.0.0.0"}
	addrsV6 := []string{"::"}
	if cfg.CheckAllInterfaces {
		v4, v6 := localInterfaceIPs()
		addrsV4 = append(addrsV4, v4...)
		addrsV6 = append(addrsV6, v6...)
	}

	if !cfg.SkipIPv4 {
		for _, a := range addrsV4 {
			if !cfg.SkipTCP {
				add("tcp4", fmt.Sprintf("%s:%d", a, p))
			}
			if !cfg.SkipUDP {
				add("udp4", fmt.Sprintf("%s:%d", a, p))
			}
		}
	}
	if !cfg.SkipIPv6 {
		for _, a := range addrsV6 {
			if !cfg.SkipTCP {
				add("tcp6", fmt.Sprintf("[%s]:%d", a, p))
			}
			if !cfg.SkipUDP {
				add("udp6", fmt.Sprintf("[%s]:%d", a, p))
			}
		}
	}
	return out
}

// localInterfaceIPs returns this host's non-loopback unicast addresses,
// split by family, for the check_all_interfaces probe expansion. Failure
// to enumerate interfaces yields two nil slices rather than an error — the
// wildcard probes still run.
func localInterfaceIPs() (v4, v6 []string) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, nil
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			v4 = append(v4, ip4.String())
		} else {
			v6 = append(v6, ipNet.IP.String())
		}
	}
	return v4, v6
}

// probeResult is nil error (free), a bind failure (occupied), or a probe
// infrastructure failure (neither — contributes to the "every probe
// failed" fatal case).
type probeResult struct {
	occupied bool
	failed   bool
}

func runProbe(pr probe) probeResult {
	switch {
	case pr.network == "tcp4" || pr.network == "tcp6":
		ln, err := net.Listen(pr.network, pr.addr)
		if err != nil {
			return classifyBindErr(err)
		}
		ln.Close()
		return probeResult{}
	case pr.network == "udp4" || pr.network == "udp6":
		conn, err := net.ListenPacket(pr.network, pr.addr)
		if err != nil {
			return classifyBindErr(err)
		}
		conn.Close()
		return probeResult{}
	default:
		return probeResult{failed: true}
	}
}

// classifyBindErr treats "address already in use" as occupied and anything
// else (e.g. the family is unsupported on this host) as an infrastructure
// failure rather than an occupancy signal.
func classifyBindErr(err error) probeResult {
	if opErr, ok := err.(*net.OpError); ok {
		if isAddrInUse(opErr) {
			return probeResult{occupied: true}
		}
	}
	return probeResult{failed: true}
}

// IsOccupied reports whether any selected probe finds port already bound.
// Individual probe failures are tolerated (treated as "no signal") unless
// every selected probe fails, in which case OccupancyCheckFailed is
// returned so the caller can decide how to treat the uncertainty.
func IsOccupied(port portspec.Port, cfg Config) (bool, error) {
	probes := probesFor(port, cfg)
	if len(probes) == 0 {
		return false, nil
	}

	failures := 0
	for _, pr := range probes {
		result := runProbe(pr)
		if result.occupied {
			return true, nil
		}
		if result.failed {
			failures++
		}
	}
	if failures == len(probes) {
		return false, trop.New(trop.KindOccupancyCheckFailed, "every occupancy probe failed for port %d", port)
	}
	return false, nil
}

// FindOccupiedPorts walks r and returns the ports found occupied. Probe
// infrastructure failures for an individual port are skipped rather than
// aborting the whole scan.
func FindOccupiedPorts(r portspec.PortRange, cfg Config) ([]portspec.Port, error) {
	var occupied []portspec.Port
	var scanErr error
	r.ForEach(func(p portspec.Port) bool {
		busy, err := IsOccupied(p, cfg)
		if err != nil {
			scanErr = err
			return true
		}
		if busy {
			occupied = append(occupied, p)
		}
		return true
	})
	_ = scanErr // per-port occupancy-check failures are informational only
	return occupied, nil
}

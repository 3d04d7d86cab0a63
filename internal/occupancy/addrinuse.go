package occupancy

import (
	"errors"
	"net"
	"syscall"
)

// isAddrInUse distinguishes "the port is taken" from other bind failures
// (e.g. permission denied, unsupported address family on this host) so the
// latter count toward the "every probe failed" fatal case instead of being
// silently reported as occupied.
func isAddrInUse(opErr *net.OpError) bool {
	return errors.Is(opErr.Err, syscall.EADDRINUSE)
}

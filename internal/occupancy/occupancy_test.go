package occupancy

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trop-dev/trop/internal/portspec"
)

func freeTCPPort(t *testing.T) portspec.Port {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	p, err := portspec.NewPort(port)
	require.NoError(t, err)
	return p
}

func TestIsOccupiedDetectsBoundTCPPort(t *testing.T) {
	ln, err := net.Listen("tcp4", "0.0.0.0:0")
	require.NoError(t, err)
	defer ln.Close()
	port := portspec.Port(ln.Addr().(*net.TCPAddr).Port)

	occupied, err := IsOccupied(port, Config{SkipIPv6: true, SkipUDP: true})
	require.NoError(t, err)
	assert.True(t, occupied)
}

func TestIsOccupiedFreePortIsNotOccupied(t *testing.T) {
	port := freeTCPPort(t)
	occupied, err := IsOccupied(port, Config{})
	require.NoError(t, err)
	assert.False(t, occupied)
}

func TestIsOccupiedSkipsDisabledProbes(t *testing.T) {
	occupied, err := IsOccupied(1, Config{SkipTCP: true, SkipUDP: true})
	require.NoError(t, err)
	assert.False(t, occupied)
}

func TestProbesForCheckAllInterfacesAddsLocalAddresses(t *testing.T) {
	base := probesFor(8080, Config{})
	expanded := probesFor(8080, Config{CheckAllInterfaces: true})
	assert.GreaterOrEqual(t, len(expanded), len(base))
}

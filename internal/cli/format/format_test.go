package format

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/reservation"
)

func TestParseDefaultsToTable(t *testing.T) {
	f, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Table, f)
}

func TestParseRejectsUnknownFormat(t *testing.T) {
	_, err := Parse("xml")
	assert.Error(t, err)
}

func TestWritePortsDotenvUsesUppercaseTag(t *testing.T) {
	var buf bytes.Buffer
	err := WritePorts(&buf, Dotenv, []PortEntry{{Tag: "web", Port: 8080}, {Tag: "", Port: 9000}})
	require.NoError(t, err)
	assert.Equal(t, "WEB_PORT=8080\nPORT=9000\n", buf.String())
}

func TestWritePortsDotenvPrefersConfiguredEnvName(t *testing.T) {
	var buf bytes.Buffer
	err := WritePorts(&buf, Dotenv, []PortEntry{{Tag: "web", Port: 8080, Env: "HTTP_PORT"}})
	require.NoError(t, err)
	assert.Equal(t, "HTTP_PORT=8080\n", buf.String())
}

func TestWritePortsShellExportAddsExportKeyword(t *testing.T) {
	var buf bytes.Buffer
	err := WritePorts(&buf, ShellExport, []PortEntry{{Tag: "db", Port: 5432}})
	require.NoError(t, err)
	assert.Equal(t, "export DB_PORT=5432\n", buf.String())
}

func TestWritePortsCSVIncludesHeader(t *testing.T) {
	var buf bytes.Buffer
	err := WritePorts(&buf, CSV, []PortEntry{{Tag: "web", Port: 8080}})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "tag,port", lines[0])
	assert.Equal(t, "web,8080", lines[1])
}

func TestWriteReservationsJSONRoundTrips(t *testing.T) {
	p, err := portspec.NewPort(8080)
	require.NoError(t, err)
	rs := []reservation.Reservation{
		{Key: reservation.Key{Path: "/srv/app"}, Port: p, Project: "demo", LastUsedAt: time.Unix(0, 0).UTC()},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteReservations(&buf, JSON, rs))
	assert.Contains(t, buf.String(), `"path": "/srv/app"`)
	assert.Contains(t, buf.String(), `"port": 8080`)
}

func TestWriteReservationsRejectsDotenv(t *testing.T) {
	var buf bytes.Buffer
	err := WriteReservations(&buf, Dotenv, nil)
	assert.Error(t, err)
}

func TestWriteStringsTablePrintsOnePerLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStrings(&buf, Table, "project", []string{"alpha", "beta"}))
	assert.Equal(t, "alpha\nbeta\n", buf.String())
}

func TestEnvNameSanitizesNonAlnum(t *testing.T) {
	assert.Equal(t, "API_GATEWAY_PORT", envName("api.gateway"))
	assert.Equal(t, "PORT", envName(""))
}

package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds an *app wired to a fresh temp data directory, quiet
// logging, and table output, letting a test drive commands directly
// without going through os.Args.
func testApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	return &app{
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		dataDir: filepath.Join(dir, "data"),
		format:  "table",
	}
}

// run executes cmd's RunE with a's state on the context and the given
// args, returning stdout.
func run(t *testing.T, a *app, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	ctx := withApp(context.Background(), a)
	cmd.SetContext(ctx)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestInitCreatesDataDirAndDefaultConfig(t *testing.T) {
	a := testApp(t)
	out, err := run(t, a, newInitCommand())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.FileExists(t, dbPath(a.dataDir))
	assert.FileExists(t, filepath.Join(a.dataDir, "config.yaml"))
}

func TestInitIsIdempotentWithoutForce(t *testing.T) {
	a := testApp(t)
	_, err := run(t, a, newInitCommand())
	require.NoError(t, err)
	_, err = run(t, a, newInitCommand())
	require.NoError(t, err)
}

func TestReserveThenListThenRelease(t *testing.T) {
	a := testApp(t)
	_, err := run(t, a, newInitCommand())
	require.NoError(t, err)

	dir := t.TempDir()
	out, err := run(t, a, newReserveCommand(), dir, "--allow-unrelated-path")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	listOut, err := run(t, a, newListCommand())
	require.NoError(t, err)
	assert.Contains(t, listOut, dir)

	_, err = run(t, a, newReleaseCommand(), dir)
	require.NoError(t, err)

	listOut, err = run(t, a, newListCommand())
	require.NoError(t, err)
	assert.NotContains(t, listOut, dir)
}

func TestReserveIsIdempotentOnRepeat(t *testing.T) {
	a := testApp(t)
	_, err := run(t, a, newInitCommand())
	require.NoError(t, err)

	dir := t.TempDir()
	first, err := run(t, a, newReserveCommand(), dir, "--allow-unrelated-path")
	require.NoError(t, err)
	second, err := run(t, a, newReserveCommand(), dir, "--allow-unrelated-path")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssertReservationFailsWhenAbsent(t *testing.T) {
	a := testApp(t)
	_, err := run(t, a, newInitCommand())
	require.NoError(t, err)

	_, err = run(t, a, newAssertReservationCommand(), t.TempDir())
	assert.Error(t, err)
}

func TestAssertDataDirFailsBeforeInit(t *testing.T) {
	a := testApp(t)
	err := runAssertDataDir(a)
	assert.Error(t, err)
}

func TestShowDataDirPrintsResolvedDir(t *testing.T) {
	a := testApp(t)
	out, err := run(t, a, newShowDataDirCommand())
	require.NoError(t, err)
	assert.Equal(t, a.dataDir+"\n", out)
}

func TestParseServiceSpecsParsesOffsetAndPreferred(t *testing.T) {
	svcs, err := parseServiceSpecs([]string{"web=0", "db@5432"})
	require.NoError(t, err)
	require.Len(t, svcs, 2)
	require.NotNil(t, svcs[0].Offset)
	assert.Equal(t, 0, *svcs[0].Offset)
	require.NotNil(t, svcs[1].Preferred)
	assert.Equal(t, 5432, svcs[1].Preferred.Int())
}

func TestParseServiceSpecsRejectsMalformed(t *testing.T) {
	_, err := parseServiceSpecs([]string{"web"})
	assert.Error(t, err)
}

func TestParsePortRangeRejectsMissingSeparator(t *testing.T) {
	_, err := parsePortRange("8000")
	assert.Error(t, err)
}

func TestParseExclusionsParsesMixedSinglesAndRanges(t *testing.T) {
	list, err := parseExclusions("22,8000-8010")
	require.NoError(t, err)
	require.Len(t, list, 2)
}

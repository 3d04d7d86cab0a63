package pathx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdempotent(t *testing.T) {
	once, err := Normalize("/a/b/../c/./d")
	require.NoError(t, err)
	assert.Equal(t, "/a/c/d", once)

	twice, err := Normalize(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizeDotDotEscapesRoot(t *testing.T) {
	_, err := Normalize("/../escape")
	require.Error(t, err)
}

func TestNormalizeRejectsOtherUserTilde(t *testing.T) {
	_, err := Normalize("~someoneelse/dir")
	require.Error(t, err)
}

func TestNormalizeExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := Normalize("~/project")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "project"), got)
}

func TestNormalizeRelativeJoinsCWD(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	got, err := Normalize("relative/dir")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "relative", "dir"), got)
}

func TestBetweenSame(t *testing.T) {
	assert.Equal(t, Same, Between("/a/b", "/a/b"))
	assert.Equal(t, Same, Between("/a/b", "/a/b/"))
}

func TestBetweenAncestorDescendantSymmetry(t *testing.T) {
	assert.Equal(t, Ancestor, Between("/a", "/a/b"))
	assert.Equal(t, Descendant, Between("/a/b", "/a"))
}

func TestBetweenUnrelated(t *testing.T) {
	assert.Equal(t, Unrelated, Between("/a/b", "/a/c"))
	assert.Equal(t, Unrelated, Between("/ab", "/a"))
}

func TestCanonicalizeDistinguishesNotFound(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope", "deeper")
	_, err := Canonicalize(missing, 0)
	require.Error(t, err)
}

func TestCanonicalizeFollowsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	resolved, err := Canonicalize(link, 0)
	require.NoError(t, err)
	assert.Equal(t, target, resolved)
}

func TestResolveExplicitNeverCanonicalizes(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	resolved, err := Resolve(link, Explicit)
	require.NoError(t, err)
	assert.Equal(t, link, resolved)
}

func TestResolveImplicitCanonicalizesWhenExists(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	resolved, err := Resolve(link, Implicit)
	require.NoError(t, err)
	assert.Equal(t, target, resolved)
}

func TestResolveImplicitLeavesMissingPathAlone(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope")

	resolved, err := Resolve(missing, Implicit)
	require.NoError(t, err)
	assert.Equal(t, missing, resolved)
}

package reservation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trop-dev/trop/internal/portspec"
)

func TestNewTrimsProjectAndTask(t *testing.T) {
	port, _ := portspec.NewPort(5000)
	r, err := New(Key{Path: "/p"}, port, WithProject("  web  "), WithTask(" api "))
	require.NoError(t, err)
	assert.Equal(t, "web", r.Project)
	assert.Equal(t, "api", r.Task)
}

func TestNewRejectsBlankProjectAfterTrim(t *testing.T) {
	port, _ := portspec.NewPort(5000)
	_, err := New(Key{Path: "/p"}, port, WithProject("   "))
	require.Error(t, err)
}

func TestKeyStringDisplayForm(t *testing.T) {
	assert.Equal(t, "/p", Key{Path: "/p"}.String())
	assert.Equal(t, "/p:tag1", Key{Path: "/p", Tag: "tag1"}.String())
}

func TestCheckStickyChangeNoopOnSameValue(t *testing.T) {
	require.NoError(t, CheckStickyChange("project", "a", "a", Authority{}))
}

func TestCheckStickyChangeRefusedWithoutAuthority(t *testing.T) {
	err := CheckStickyChange("project", "a", "b", Authority{})
	require.Error(t, err)
}

func TestCheckStickyChangeAllowedWithForce(t *testing.T) {
	require.NoError(t, CheckStickyChange("project", "a", "b", Authority{Force: true}))
}

func TestCheckStickyChangeAllowedWithSpecificField(t *testing.T) {
	require.NoError(t, CheckStickyChange("task", "a", "b", Authority{AllowTaskChange: true}))
	require.Error(t, CheckStickyChange("project", "a", "b", Authority{AllowTaskChange: true}))
}

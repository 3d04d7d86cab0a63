package portspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPort(t *testing.T) {
	_, err := NewPort(0)
	require.Error(t, err)

	p, err := NewPort(65535)
	require.NoError(t, err)
	assert.Equal(t, Port(65535), p)

	_, err = NewPort(65536)
	require.Error(t, err)
}

func TestPortPrivileged(t *testing.T) {
	p, _ := NewPort(80)
	assert.True(t, p.Privileged())

	p, _ = NewPort(1024)
	assert.False(t, p.Privileged())
}

func TestNewPortRange(t *testing.T) {
	_, err := NewPortRange(5001, 5000)
	require.Error(t, err)

	r, err := NewPortRange(5000, 5002)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []Port{5000, 5001, 5002}, r.Iter())
}

func TestPortRangeContains(t *testing.T) {
	r, _ := NewPortRange(100, 200)
	assert.True(t, r.Contains(100))
	assert.True(t, r.Contains(200))
	assert.False(t, r.Contains(99))
	assert.False(t, r.Contains(201))
}

func TestExclusionRangeOfSinglePortBehavesLikeSingle(t *testing.T) {
	e, err := NewRangeExclusion(500, 500)
	require.NoError(t, err)
	assert.True(t, e.Contains(500))
	assert.False(t, e.Contains(501))
}

func TestExclusionListCompactMergesAdjacent(t *testing.T) {
	list := ExclusionList{
		NewSingleExclusion(10),
		NewSingleExclusion(11),
		NewSingleExclusion(20),
	}
	compact := list.Compact()
	require.Len(t, compact, 2)
	assert.True(t, compact[0].IsRange)
	assert.Equal(t, Port(10), compact[0].RangeLo)
	assert.Equal(t, Port(11), compact[0].RangeHi)
	assert.False(t, compact[1].IsRange)
	assert.Equal(t, Port(20), compact[1].Single)
}

func TestExclusionListCompactMergesOverlapping(t *testing.T) {
	a, _ := NewRangeExclusion(10, 20)
	b, _ := NewRangeExclusion(15, 25)
	compact := ExclusionList{a, b}.Compact()
	require.Len(t, compact, 1)
	assert.Equal(t, Port(10), compact[0].RangeLo)
	assert.Equal(t, Port(25), compact[0].RangeHi)
}

func TestExclusionListContains(t *testing.T) {
	r, _ := NewRangeExclusion(100, 110)
	list := ExclusionList{NewSingleExclusion(50), r}
	assert.True(t, list.Contains(50))
	assert.True(t, list.Contains(105))
	assert.False(t, list.Contains(60))
}

package sections

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/analysisview/internal/aggregate"
	"git.home.luguber.info/inful/analysisview/internal/analysis"
)

const cat = analysis.TypeSecurity

func TestBeginRequiresExpandedUnloadedIdle(t *testing.T) {
	var s State
	_, out := Reduce(s, Begin{Category: cat})
	assert.False(t, out.Fetch, "collapsed section does not fetch")

	s, _ = Reduce(s, Toggle{Category: cat})
	s, out = Reduce(s, Begin{Category: cat})
	require.True(t, out.Fetch)
	assert.True(t, out.Section.InFlight)

	_, out = Reduce(s, Begin{Category: cat})
	assert.False(t, out.Fetch, "in-flight guard blocks a second fetch")
}

func TestSucceedSetsLoadedOnlyForCurrentGeneration(t *testing.T) {
	var s State
	s, _ = Reduce(s, Toggle{Category: cat})
	s, begin := Reduce(s, Begin{Category: cat})

	s, _ = Reduce(s, MarkStale{Category: cat})
	s, out := Reduce(s, Succeed{Category: cat, Generation: begin.Section.Generation, Data: aggregate.Empty()})
	assert.True(t, out.Stale)
	assert.False(t, s.Section(cat).Loaded)

	s, begin = Reduce(s, Begin{Category: cat})
	require.True(t, begin.Fetch)
	s, out = Reduce(s, Succeed{Category: cat, Generation: begin.Section.Generation, Data: aggregate.Empty()})
	assert.False(t, out.Stale)
	assert.True(t, s.Section(cat).Loaded)
	assert.NotNil(t, s.Section(cat).Data)
}

func TestFailClearsGuardAndData(t *testing.T) {
	var s State
	s, _ = Reduce(s, Toggle{Category: cat})
	s, begin := Reduce(s, Begin{Category: cat})
	boom := errors.New("boom")

	s, _ = Reduce(s, Fail{Category: cat, Generation: begin.Section.Generation, Err: boom})
	sec := s.Section(cat)
	assert.False(t, sec.Loaded)
	assert.False(t, sec.InFlight)
	assert.Nil(t, sec.Data)
	assert.ErrorIs(t, sec.Err, boom)
}

func TestMarkStaleKeepsExpanded(t *testing.T) {
	var s State
	s, _ = Reduce(s, Toggle{Category: cat})
	s, out := Reduce(s, MarkStale{Category: cat})
	assert.True(t, out.Section.Expanded)
	assert.Equal(t, uint64(1), out.Section.Generation)
}

func TestForceBeginExpands(t *testing.T) {
	s, out := Reduce(State{}, Begin{Category: cat, Force: true})
	require.True(t, out.Fetch)
	assert.True(t, s.Section(cat).Expanded)
}

func TestReduceCopiesOnWrite(t *testing.T) {
	var s State
	s, _ = Reduce(s, Toggle{Category: cat})
	before := s.All()
	_, _ = Reduce(s, Toggle{Category: cat})
	assert.Equal(t, before, s.All())
}

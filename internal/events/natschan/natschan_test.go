package natschan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/analysisview/internal/events"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
)

func TestSubjectRoundTrip(t *testing.T) {
	for _, kind := range events.AllKinds() {
		subject := Subject("analysis", "proj-1", string(kind))
		name, ok := EventName("analysis", "proj-1", subject)
		require.True(t, ok, subject)
		assert.Equal(t, string(kind), name)
	}
	assert.Equal(t, "analysis.proj-1.step:progress", Subject("analysis", "proj-1", "step:progress"))
}

func TestEventNameRejectsOtherProjects(t *testing.T) {
	_, ok := EventName("analysis", "p1", "analysis.p2.step:started")
	assert.False(t, ok)
	_, ok = EventName("analysis", "p1", "analysis.p1.")
	assert.False(t, ok)
}

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("proj-1"))
	assert.False(t, ValidToken(""))
	assert.False(t, ValidToken("a.b"))
	assert.False(t, ValidToken("a b"))
	assert.False(t, ValidToken("*"))
}

func TestConnectFailureIsNetworkError(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "analysis", nil)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNetwork))
}

func TestSubscribeRejectsInvalidProject(t *testing.T) {
	c := New(nil, "analysis", nil)
	_, err := c.Subscribe(t.Context(), "bad.project", func(_ context.Context, _ events.Event) {})
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryValidation))
}

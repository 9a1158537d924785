package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/analysisview/internal/config"
	"git.home.luguber.info/inful/analysisview/internal/retry"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	msg, err := EncodeEnvelope("step:started", []byte(`{"projectId":"p"}`))
	require.NoError(t, err)

	name, payload, err := DecodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, "step:started", name)
	assert.JSONEq(t, `{"projectId":"p"}`, string(payload))
}

func TestDecodeEnvelopeVariants(t *testing.T) {
	name, payload, err := DecodeEnvelope([]byte(`{"type":"analysis-completed"}`))
	require.NoError(t, err)
	assert.Equal(t, "analysis-completed", name)
	assert.Equal(t, "{}", string(payload))

	_, _, err = DecodeEnvelope([]byte(`{"data":{}}`))
	require.Error(t, err)
	_, _, err = DecodeEnvelope([]byte(`nope`))
	require.Error(t, err)
}

func TestMaintainReturnsInitialDialError(t *testing.T) {
	boom := errors.New("refused")
	err := Maintain(t.Context(), "test", retry.DefaultPolicy(), nil, func(context.Context) (func() error, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestMaintainReconnects(t *testing.T) {
	policy := retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 0)
	var dials atomic.Int32
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	err := Maintain(ctx, "test", policy, nil, func(ctx context.Context) (func() error, error) {
		n := dials.Add(1)
		if n == 2 {
			return nil, errors.New("transient")
		}
		return func() error {
			if n >= 3 {
				<-ctx.Done()
				return ctx.Err()
			}
			return errors.New("eof")
		}, nil
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return dials.Load() >= 3 }, 2*time.Second, time.Millisecond)
}

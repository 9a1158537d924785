package events

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/retry"
)

// Dialer opens one stream connection. The returned consume function reads the
// connection until it ends and reports why.
type Dialer func(ctx context.Context) (consume func() error, err error)

// Maintain dials once synchronously, so configuration errors surface to the caller,
// then keeps the stream alive in the background until ctx is done. Reconnect delays
// follow policy; the failure count resets after every successful dial.
func Maintain(ctx context.Context, transport string, policy retry.Policy, logger *slog.Logger, dial Dialer) error {
	if logger == nil {
		logger = slog.Default()
	}
	consume, err := dial(ctx)
	if err != nil {
		return err
	}

	go func() {
		failures := 0
		for {
			err := consume()
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Event stream disconnected", logfields.Transport(transport), logfields.Error(err))
			for {
				failures++
				timer := time.NewTimer(policy.Delay(failures))
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				consume, err = dial(ctx)
				if err == nil {
					logger.Info("Event stream reconnected", logfields.Transport(transport), logfields.Attempt(failures))
					failures = 0
					break
				}
				logger.Warn("Event stream reconnect failed", logfields.Transport(transport), logfields.Attempt(failures), logfields.Error(err))
			}
		}
	}()
	return nil
}

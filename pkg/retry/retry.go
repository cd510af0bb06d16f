// Package retry dials the service's startup dependencies (broker, database)
// with jittered exponential backoff. Delivery-time retry policy is owned by
// the dispatcher and the flush consumer, not by this package.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Policy bounds the connection attempts made for one target.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy suits broker and database dials at process start.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  5,
		BaseDelay: time.Second,
		MaxDelay:  15 * time.Second,
	}
}

// Connect runs dial until it succeeds, the attempts are exhausted or the
// context is cancelled. Failures are logged against the target name and the
// last dial error is returned wrapped.
func (p Policy) Connect(ctx context.Context, logr *slog.Logger, target string, dial func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("connect %s: %w", target, ctxErr)
		}
		if err = dial(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		if logr != nil {
			logr.Warn("connection attempt failed",
				slog.String("target", target),
				slog.Int("attempt", attempt),
				slog.Duration("next_in", delay),
				slog.Any("error", err))
		}

		timer := time.NewTimer(jittered(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("connect %s: %w", target, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("connect %s after %d attempts: %w", target, attempts, err)
}

// jittered spreads concurrent reconnects by up to 20% either way.
func jittered(d time.Duration) time.Duration {
	delta := int64(float64(d) * 0.2)
	if delta <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*delta)-delta)
}

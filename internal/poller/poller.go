// Package poller drives the periodic poll → hash → publish loop shared by
// the inway and outway roles. The polling step itself (what to fetch, how
// to hash it, what to publish) is supplied by a Poll implementation; Poller
// only owns timing and retry.
//
// Grounded on the teacher's transport.connectLoop
// (internal/transport/grpctransport.go): same cenkalti/backoff/v4 policy,
// same "reset backoff after a clean cycle" rule, same cancellation-on-ctx
// shape.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Poll is implemented by the role-specific polling step (inway config poll
// or outway config poll). A single Poll value is not safe for concurrent
// use; Poller drives it sequentially.
type Poll interface {
	// Do performs one poll cycle: fetch, hash, and publish on change.
	// Returning an error aborts the current tick and triggers backoff; the
	// previously published snapshot remains in force.
	Do(ctx context.Context) error
}

// NewBackOff returns the exponential-backoff policy used by both the
// poller and the broadcaster: 500ms initial interval, 1.5x multiplier,
// 0.5 randomization factor, 60s max interval, retried forever.
func NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.5
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0 // retry forever
	b.Reset()
	return b
}

// Poller periodically invokes a Poll implementation at Interval, retrying
// failures with exponential backoff and resetting the backoff after every
// successful tick.
type Poller struct {
	Poll     Poll
	Interval time.Duration
	Logger   *slog.Logger
}

// New creates a Poller. logger must not be nil.
func New(poll Poll, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{Poll: poll, Interval: interval, Logger: logger}
}

// Run blocks until ctx is cancelled. On each tick it calls Poll.Do; on
// success the tick interval resumes normally, on failure it waits out an
// exponential backoff delay before the next attempt. Run returns nil when
// ctx is cancelled; it never returns a non-nil error (retries are
// unbounded, per spec).
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	b := NewBackOff()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := p.Poll.Do(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			wait := b.NextBackOff()
			p.Logger.Warn("poller: tick failed, backing off",
				slog.Any("error", err),
				slog.Duration("backoff", wait),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		b.Reset()
	}
}

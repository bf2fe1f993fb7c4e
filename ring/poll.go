package ring

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Poller is an optional idle-retry wrapper around Subscriber.Consume, for
// callers who want a reasonable default idle policy instead of writing
// their own busy-loop (spec.md §5: "callers choose their own idle
// policy" — this is one such choice, not a core requirement). Consume
// itself stays wait-free and NoData-returning; Poller only adds backoff
// between calls when NoData keeps coming back.
type Poller struct {
	sub *Subscriber
	bo  func() backoff.BackOff
}

// NewPoller wraps sub with an exponential backoff policy (1ms initial,
// capped at 250ms) built on cenkalti/backoff/v5, the same retry library
// already vendored by the teacher's go.mod.
func NewPoller(sub *Subscriber) *Poller {
	return &Poller{
		sub: sub,
		bo: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			b.Multiplier = 2
			return b
		},
	}
}

// Next blocks, retrying with backoff, until a message is delivered, the
// next message is Truncated, or ctx is canceled. NoData is retried
// internally; it is returned only together with ctx's error when ctx is
// canceled.
func (p *Poller) Next(ctx context.Context, buf []byte) (payloadLen int, publisherID uint16, code Code, err error) {
	bo := p.bo()
	for {
		n, pubID, c := p.sub.Consume(buf)
		if c != NoData {
			return n, pubID, c, nil
		}

		next := bo.NextBackOff()
		if next == backoff.Stop {
			next = 250 * time.Millisecond
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, 0, NoData, ctx.Err()
		case <-timer.C:
		}
	}
}

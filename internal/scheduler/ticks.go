package scheduler

import (
	"context"
	"time"

	"github.com/sweeney/light-scheduler/internal/clock"
)

// DefaultTickOffset is how far past each whole second a tick is delivered.
const DefaultTickOffset = 50 * time.Millisecond

// Ticks returns a channel that receives clk.Now() once shortly after each
// whole second of clk, offset past the boundary. Waits are recomputed from
// clk on every tick, so an NTP-corrected clock keeps ticks on its seconds.
// The channel is closed when ctx is done.
func Ticks(ctx context.Context, clk clock.Clock, offset time.Duration) <-chan time.Time {
	return ticks(ctx, clk, offset, time.After)
}

func ticks(ctx context.Context, clk clock.Clock, offset time.Duration, after func(time.Duration) <-chan time.Time) <-chan time.Time {
	ch := make(chan time.Time)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-after(untilNextTick(clk.Now(), offset)):
			}
			select {
			case ch <- clk.Now():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// untilNextTick is the wait from now to offset past the next second not yet
// ticked. A caller woken at s+offset+jitter waits for s+1+offset.
func untilNextTick(now time.Time, offset time.Duration) time.Duration {
	next := now.Add(-offset).Truncate(time.Second).Add(time.Second + offset)
	return next.Sub(now)
}

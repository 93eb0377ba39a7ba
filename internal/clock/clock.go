// Package clock provides the wall-clock time source in a fixed reference timezone.
package clock

import (
	"context"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // embedded zoneinfo

	"github.com/beevik/ntp"
	"github.com/rs/zerolog/log"
)

// Clock returns the current time in the reference timezone.
type Clock interface {
	Now() time.Time
}

// Syncer is implemented by clocks that can report whether they have been
// synchronized against a remote time source.
type Syncer interface {
	Synced() bool
}

// Synced reports whether c is synchronized. Clocks that do not implement
// Syncer (the OS clock) are assumed synchronized.
func Synced(c Clock) bool {
	if s, ok := c.(Syncer); ok {
		return s.Synced()
	}
	return true
}

// System reads the OS clock.
type System struct {
	loc *time.Location
}

// NewSystem returns a System clock reporting times in loc.
func NewSystem(loc *time.Location) System {
	return System{loc: loc}
}

// Now returns the OS time in the reference timezone.
func (c System) Now() time.Time {
	return time.Now().In(c.loc)
}

// Func adapts a function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}

// LoadLocation resolves a timezone name, treating "" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// NTP corrects the OS clock by the offset measured against an NTP server.
// Until the first successful sync it reports the uncorrected OS time.
type NTP struct {
	server string
	loc    *time.Location
	query  func(host string) (*ntp.Response, error)
	now    func() time.Time

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

// NewNTP returns an NTP clock for server, reporting times in loc.
func NewNTP(server string, loc *time.Location) *NTP {
	return &NTP{
		server: server,
		loc:    loc,
		query:  ntp.Query,
		now:    time.Now,
	}
}

// Now returns the corrected time in the reference timezone.
func (c *NTP) Now() time.Time {
	c.mu.RLock()
	offset := c.offset
	c.mu.RUnlock()
	return c.now().Add(offset).In(c.loc)
}

// Synced reports whether at least one sync has succeeded.
func (c *NTP) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// Offset returns the last measured clock offset.
func (c *NTP) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Sync queries the server once and stores the measured offset.
func (c *NTP) Sync() error {
	resp, err := c.query(c.server)
	if err != nil {
		return fmt.Errorf("ntp query %s: %w", c.server, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("ntp response from %s: %w", c.server, err)
	}

	c.mu.Lock()
	c.offset = resp.ClockOffset
	c.synced = true
	c.mu.Unlock()
	return nil
}

// Run syncs immediately and then every interval until ctx is cancelled.
// Failures are logged and retried at the next interval.
func (c *NTP) Run(ctx context.Context, interval time.Duration) {
	c.syncAndLog()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.syncAndLog()
		}
	}
}

func (c *NTP) syncAndLog() {
	if err := c.Sync(); err != nil {
		log.Warn().Err(err).Str("server", c.server).Msg("ntp sync failed")
		return
	}
	log.Debug().Str("server", c.server).Dur("offset", c.Offset()).Msg("ntp synced")
}

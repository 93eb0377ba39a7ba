// Package scheduler runs the 1 Hz loop that applies the schedule and drives the pin.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-scheduler/internal/clock"
	"github.com/sweeney/light-scheduler/internal/gpio"
	"github.com/sweeney/light-scheduler/internal/light"
	"github.com/sweeney/light-scheduler/internal/logic"
	"github.com/sweeney/light-scheduler/internal/mqtt"
	"github.com/sweeney/light-scheduler/internal/status"
	"github.com/sweeney/light-scheduler/internal/store"
)

// Config holds the collaborators of a Loop.
type Config struct {
	Light     *light.Light
	Store     store.Store
	Clock     clock.Clock
	Pin       gpio.Writer
	Publisher mqtt.Publisher        // optional
	MQTT      mqtt.ConnectionStatus // optional
	Tracker   *status.Tracker       // optional
	Heartbeat time.Duration         // 0 disables

	// Network is polled before each heartbeat; nil skips the refresh.
	Network func() *status.NetworkInfo
}

// Loop applies the stored schedule once per tick.
type Loop struct {
	cfg      Config
	pub      *mqtt.Async
	log      zerolog.Logger
	lastBeat time.Time
	pinErr   bool
}

// New returns a Loop wired to cfg. Events are delivered to cfg.Publisher
// from a separate goroutine so a slow broker never delays a tick.
func New(cfg Config) *Loop {
	var pub mqtt.Publisher = mqtt.Discard{}
	if cfg.Publisher != nil {
		pub = cfg.Publisher
	}
	return &Loop{
		cfg: cfg,
		pub: mqtt.NewAsync(pub, mqtt.DefaultQueueSize),
		log: log.With().Str("component", "scheduler").Logger(),
	}
}

// Run calls Tick for every value received on tick until ctx is cancelled
// or tick is closed. The pin is driven low on the way out, then queued
// events are drained.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time) error {
	defer l.drain()
	defer l.release()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-tick:
			if !ok {
				return nil
			}
			l.Tick(ctx)
		}
	}
}

// Tick performs one iteration. The pin is driven before any event is
// queued for publishing.
func (l *Loop) Tick(ctx context.Context) {
	now := l.cfg.Clock.Now()

	sched, err := store.ReadSchedule(ctx, l.cfg.Store)
	if err != nil {
		l.log.Error().Err(err).Msg("schedule read failed, skipping tick")
		if l.cfg.Tracker != nil {
			l.cfg.Tracker.RecordStorageError()
		}
		sched = logic.Schedule{}
	}

	var transition *logic.Event
	if target, fired := logic.Evaluate(now, sched); fired {
		if prev := l.cfg.Light.Set(target); prev != target {
			e := logic.NewTransition(now, target, logic.SourceSchedule)
			transition = &e
		} else {
			l.log.Debug().Str("state", string(target)).Msg("boundary reached, already in state")
		}
	}

	state := l.cfg.Light.Read()
	l.drive(state)

	if transition != nil {
		l.announce(*transition)
	}

	if l.cfg.Tracker != nil {
		l.cfg.Tracker.Update(state, sched, clock.Synced(l.cfg.Clock))
		if l.cfg.MQTT != nil {
			l.cfg.Tracker.SetMQTTConnected(l.cfg.MQTT.IsConnected())
		}
	}

	l.heartbeat(now)
}

func (l *Loop) drive(state logic.State) {
	if err := l.cfg.Pin.Set(state.IsOn()); err != nil {
		// Log once per failure streak; the loop retries every tick.
		if !l.pinErr {
			l.log.Error().Err(err).Msg("gpio write failed")
		}
		l.pinErr = true
		return
	}
	if l.pinErr {
		l.log.Info().Msg("gpio write recovered")
	}
	l.pinErr = false
}

func (l *Loop) announce(e logic.Event) {
	l.log.Info().Str("event", string(e.Type)).Str("state", string(e.State)).Msg("scheduled transition")
	if l.cfg.Tracker != nil {
		l.cfg.Tracker.Record(e)
	}
	if err := l.pub.Publish(e); err != nil {
		l.log.Warn().Err(err).Msg("publish failed")
	}
}

func (l *Loop) heartbeat(now time.Time) {
	if l.cfg.Heartbeat <= 0 {
		return
	}
	if l.lastBeat.IsZero() {
		l.lastBeat = now
		return
	}
	if now.Sub(l.lastBeat) < l.cfg.Heartbeat {
		return
	}
	l.lastBeat = now

	ev := mqtt.SystemEvent{Timestamp: now, Event: "HEARTBEAT"}
	if l.cfg.Tracker != nil {
		if l.cfg.Network != nil {
			if net := l.cfg.Network(); net != nil {
				l.cfg.Tracker.SetNetwork(net)
			}
		}
		snap := l.cfg.Tracker.Snapshot()
		l.log.Debug().Dur("uptime", snap.Uptime()).Str("light", string(snap.Light)).Msg("heartbeat")
		ev.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
	}
	if err := l.pub.PublishSystem(ev); err != nil {
		l.log.Warn().Err(err).Msg("heartbeat publish failed")
	}
}

// Flush waits until events queued by earlier ticks have been handed to the
// publisher.
func (l *Loop) Flush() {
	l.pub.Flush()
}

func (l *Loop) drain() {
	if err := l.pub.Close(); err != nil {
		l.log.Warn().Err(err).Msg("event queue not drained")
	}
}

func (l *Loop) release() {
	if err := l.cfg.Pin.Set(false); err != nil {
		l.log.Error().Err(err).Msg("gpio release failed")
		return
	}
	l.log.Info().Msg("pin driven low")
}

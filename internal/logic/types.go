// Package logic contains pure business logic for light scheduling.
// This package has NO external dependencies (no GPIO, MQTT, storage, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// State represents the logical state of the light.
type State string

const (
	StateOff State = "OFF"
	StateOn  State = "ON"
)

// IsOn reports whether the state is ON.
func (s State) IsOn() bool {
	return s == StateOn
}

// Toggled returns the opposite state.
func (s State) Toggled() State {
	if s == StateOn {
		return StateOff
	}
	return StateOn
}

// Hour bounds for a schedule boundary.
const (
	MinHour = 0
	MaxHour = 23
)

// ErrHourRange is returned when an hour falls outside [MinHour, MaxHour].
var ErrHourRange = errors.New("hour out of range")

// Hour is an optional hour of the day. The zero value is unset,
// which means "no action at this boundary".
type Hour struct {
	value int8
	set   bool
}

// NoHour is the unset Hour.
var NoHour = Hour{}

// NewHour returns a set Hour, or ErrHourRange if h is not in [0,23].
func NewHour(h int) (Hour, error) {
	if h < MinHour || h > MaxHour {
		return NoHour, fmt.Errorf("%w: %d", ErrHourRange, h)
	}
	return Hour{value: int8(h), set: true}, nil
}

// MustHour is like NewHour but panics on an invalid hour.
func MustHour(h int) Hour {
	hour, err := NewHour(h)
	if err != nil {
		panic(err)
	}
	return hour
}

// Get returns the hour and whether it is set.
func (h Hour) Get() (int, bool) {
	return int(h.value), h.set
}

// IsSet reports whether the hour is set.
func (h Hour) IsSet() bool {
	return h.set
}

// String returns the hour as "HH:00", or "unset".
func (h Hour) String() string {
	if !h.set {
		return "unset"
	}
	return fmt.Sprintf("%02d:00", h.value)
}

// Matches reports whether t is exactly the boundary instant hh:00:00.
// An unset hour never matches.
func (h Hour) Matches(t time.Time) bool {
	if !h.set {
		return false
	}
	return t.Hour() == int(h.value) && t.Minute() == 0 && t.Second() == 0
}

// Schedule holds the daily on/off boundaries. Either may be unset.
type Schedule struct {
	On  Hour
	Off Hour
}

// EventType represents a light transition event.
type EventType string

const (
	EventLightOn  EventType = "LIGHT_ON"
	EventLightOff EventType = "LIGHT_OFF"
)

// Source identifies what caused a transition.
type Source string

const (
	SourceSchedule Source = "SCHEDULE"
	SourceManual   Source = "MANUAL"
)

// Event represents a light transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State
	Source    Source
}

// NewTransition builds the event for a change into state s.
func NewTransition(t time.Time, s State, src Source) Event {
	typ := EventLightOff
	if s.IsOn() {
		typ = EventLightOn
	}
	return Event{Timestamp: t, Type: typ, State: s, Source: src}
}

// EventCounts tracks the number of transitions since startup.
type EventCounts struct {
	ScheduleOn  int
	ScheduleOff int
	ManualOn    int
	ManualOff   int
}

// Add counts e.
func (c *EventCounts) Add(e Event) {
	switch {
	case e.Source == SourceSchedule && e.State.IsOn():
		c.ScheduleOn++
	case e.Source == SourceSchedule:
		c.ScheduleOff++
	case e.State.IsOn():
		c.ManualOn++
	default:
		c.ManualOff++
	}
}

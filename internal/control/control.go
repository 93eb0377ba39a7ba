// Package control implements the manual control surface: it parses form
// submissions, persists schedule changes and toggles the shared light.
package control

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-scheduler/internal/clock"
	"github.com/sweeney/light-scheduler/internal/light"
	"github.com/sweeney/light-scheduler/internal/logic"
	"github.com/sweeney/light-scheduler/internal/mqtt"
	"github.com/sweeney/light-scheduler/internal/store"
)

// Form keys.
const (
	KeyToggle      = "toggle"
	KeyScheduleOn  = "schedule_on"
	KeyScheduleOff = "schedule_off"
)

// ClearHour is the form value that removes a boundary.
const ClearHour = -1

// ParseError is returned for a body that cannot be decoded or carries an
// invalid value. Nothing is mutated when it is returned.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("request parse error: %v", e.Err)
	}
	return fmt.Sprintf("request parse error: %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errAlphabet = errors.New("invalid character in form body")

// Update is a parsed control request.
type Update struct {
	Toggle bool
	// Hours holds only the boundaries present in the request. An unset Hour
	// clears the boundary.
	Hours map[store.Tag]logic.Hour
}

// ParseUpdate decodes a URL-encoded form body.
//
// Unknown keys are ignored and an empty value counts as absent. For repeated
// keys the first value wins. toggle=1 requests a flip; any other integer is a
// no-op. Hours must be in [-1,23], where -1 clears the boundary.
func ParseUpdate(body []byte) (Update, error) {
	for _, c := range body {
		if !formByte(c) {
			return Update{}, &ParseError{Err: fmt.Errorf("%w: %q", errAlphabet, c)}
		}
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return Update{}, &ParseError{Err: err}
	}

	u := Update{Hours: make(map[store.Tag]logic.Hour)}

	if v := values.Get(KeyToggle); v != "" {
		n, err := strconv.ParseInt(v, 10, 8)
		if err != nil {
			return Update{}, &ParseError{Field: KeyToggle, Value: v, Err: err}
		}
		u.Toggle = n == 1
	}

	for _, tag := range []store.Tag{store.TagOn, store.TagOff} {
		v := values.Get(string(tag))
		if v == "" {
			continue
		}
		h, err := parseHour(v)
		if err != nil {
			return Update{}, &ParseError{Field: string(tag), Value: v, Err: err}
		}
		u.Hours[tag] = h
	}
	return u, nil
}

func parseHour(v string) (logic.Hour, error) {
	n, err := strconv.ParseInt(v, 10, 8)
	if err != nil {
		return logic.NoHour, err
	}
	if n == ClearHour {
		return logic.NoHour, nil
	}
	return logic.NewHour(int(n))
}

// formByte reports whether c may appear in an application/x-www-form-urlencoded body.
func formByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', '*', '%', '&', '=', '+', '!', '\'', '(', ')':
		return true
	}
	return false
}

// View is the state shown to a client.
type View struct {
	Light    logic.State
	Schedule logic.Schedule
	Now      time.Time
	Synced   bool
	Next     logic.Boundary
	HasNext  bool
}

// Recorder receives transition events for accounting.
type Recorder interface {
	Record(logic.Event)
}

// Config holds the collaborators of a Service.
type Config struct {
	Light     *light.Light
	Store     store.Store
	Clock     clock.Clock
	Publisher mqtt.Publisher // optional
	Recorder  Recorder       // optional
}

// Service applies control requests.
type Service struct {
	light *light.Light
	store store.Store
	clock clock.Clock
	pub   mqtt.Publisher
	rec   Recorder
	log   zerolog.Logger
}

// New returns a Service wired to cfg.
func New(cfg Config) *Service {
	pub := cfg.Publisher
	if pub == nil {
		pub = mqtt.Discard{}
	}
	return &Service{
		light: cfg.Light,
		store: cfg.Store,
		clock: cfg.Clock,
		pub:   pub,
		rec:   cfg.Recorder,
		log:   log.With().Str("component", "control").Logger(),
	}
}

// Query returns the current view without side effects.
func (s *Service) Query(ctx context.Context) (View, error) {
	sched, err := store.ReadSchedule(ctx, s.store)
	if err != nil {
		return View{}, err
	}
	return s.view(s.light.Read(), sched), nil
}

// Apply persists the requested hours and then toggles the light if asked.
// The schedule is read before anything is written, so any storage failure
// aborts with neither the schedule nor the light changed.
func (s *Service) Apply(ctx context.Context, u Update) (View, error) {
	sched, err := store.ReadSchedule(ctx, s.store)
	if err != nil {
		s.log.Error().Err(err).Msg("schedule read failed")
		return View{}, err
	}

	if len(u.Hours) > 0 {
		if err := s.store.SetHours(ctx, u.Hours); err != nil {
			s.log.Error().Err(err).Msg("schedule write failed")
			return View{}, err
		}
		for tag, h := range u.Hours {
			switch tag {
			case store.TagOn:
				sched.On = h
			case store.TagOff:
				sched.Off = h
			}
			s.log.Info().Str("tag", string(tag)).Str("hour", h.String()).Msg("schedule updated")
		}
	}

	state := s.light.Read()
	if u.Toggle {
		state = s.light.Toggle()
		s.announce(logic.NewTransition(s.clock.Now(), state, logic.SourceManual))
	}
	return s.view(state, sched), nil
}

// Handle parses body and applies it. It is the entry point for HTTP POSTs.
func (s *Service) Handle(ctx context.Context, body []byte) (View, error) {
	u, err := ParseUpdate(body)
	if err != nil {
		s.log.Warn().Err(err).Msg("rejected control request")
		return View{}, err
	}
	return s.Apply(ctx, u)
}

func (s *Service) announce(e logic.Event) {
	s.log.Info().Str("state", string(e.State)).Str("source", string(e.Source)).Msg("light toggled")
	if s.rec != nil {
		s.rec.Record(e)
	}
	if err := s.pub.Publish(e); err != nil {
		s.log.Warn().Err(err).Msg("publish failed")
	}
}

func (s *Service) view(state logic.State, sched logic.Schedule) View {
	now := s.clock.Now()
	next, ok := logic.NextBoundary(now, sched)
	return View{
		Light:    state,
		Schedule: sched,
		Now:      now,
		Synced:   clock.Synced(s.clock),
		Next:     next,
		HasNext:  ok,
	}
}

package control

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/light-scheduler/internal/clock"
	"github.com/sweeney/light-scheduler/internal/light"
	"github.com/sweeney/light-scheduler/internal/logic"
	"github.com/sweeney/light-scheduler/internal/mqtt"
	"github.com/sweeney/light-scheduler/internal/status"
	"github.com/sweeney/light-scheduler/internal/store"
)

var noon = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	light *light.Light
	store *store.Memory
	pub   *mqtt.FakePublisher
	rec   *status.Tracker
}

func newFixture() *fixture {
	f := &fixture{
		light: light.New(),
		store: store.NewMemory(),
		pub:   mqtt.NewFakePublisher(),
		rec:   status.NewTracker(noon, "", status.Config{}),
	}
	f.svc = New(Config{
		Light:     f.light,
		Store:     f.store,
		Clock:     clock.Func(func() time.Time { return noon }),
		Publisher: f.pub,
		Recorder:  f.rec,
	})
	return f
}

func TestParseUpdate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		toggle bool
		hours  map[store.Tag]int // -1 means cleared
	}{
		{"empty body", "", false, nil},
		{"toggle", "toggle=1", true, nil},
		{"toggle zero is no-op", "toggle=0", false, nil},
		{"toggle two is no-op", "toggle=2", false, nil},
		{"toggle negative is no-op", "toggle=-1", false, nil},
		{"schedule on", "schedule_on=6", false, map[store.Tag]int{store.TagOn: 6}},
		{"schedule off", "schedule_off=22", false, map[store.Tag]int{store.TagOff: 22}},
		{"both bounds", "schedule_on=0&schedule_off=23", false, map[store.Tag]int{store.TagOn: 0, store.TagOff: 23}},
		{"clear", "schedule_on=-1", false, map[store.Tag]int{store.TagOn: -1}},
		{"empty value is absent", "schedule_on=&toggle=", false, nil},
		{"unknown keys ignored", "foo=bar&schedule_off=5", false, map[store.Tag]int{store.TagOff: 5}},
		{"first value wins", "schedule_on=3&schedule_on=4", false, map[store.Tag]int{store.TagOn: 3}},
		{"everything", "toggle=1&schedule_on=7&schedule_off=8", true, map[store.Tag]int{store.TagOn: 7, store.TagOff: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ParseUpdate([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u.Toggle != tt.toggle {
				t.Errorf("Toggle: got %v, want %v", u.Toggle, tt.toggle)
			}
			if len(u.Hours) != len(tt.hours) {
				t.Fatalf("Hours: got %v, want %v", u.Hours, tt.hours)
			}
			for tag, want := range tt.hours {
				h, ok := u.Hours[tag]
				if !ok {
					t.Fatalf("missing %s", tag)
				}
				got, set := h.Get()
				if want == -1 {
					if set {
						t.Errorf("%s: got %d, want cleared", tag, got)
					}
					continue
				}
				if !set || got != want {
					t.Errorf("%s: got %v, want %d", tag, h, want)
				}
			}
		})
	}
}

func TestParseUpdateRejects(t *testing.T) {
	bodies := []string{
		"schedule_on=24",
		"schedule_off=-2",
		"schedule_on=abc",
		"schedule_on=6.5",
		"schedule_on=200",
		"toggle=yes",
		"toggle=999",
		"schedule_on=%zz",
		"schedule_on=6;toggle=1",
		"schedule_on=6\n",
		"schedule_on=<6>",
		"toggle=1&schedule_off=99",
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			_, err := ParseUpdate([]byte(body))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
		})
	}
}

func TestParseErrorRange(t *testing.T) {
	_, err := ParseUpdate([]byte("schedule_off=24"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Field != "schedule_off" || pe.Value != "24" {
		t.Errorf("got field=%q value=%q", pe.Field, pe.Value)
	}
	if !errors.Is(err, logic.ErrHourRange) {
		t.Errorf("expected ErrHourRange in chain, got %v", err)
	}
}

func TestTogglesParity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for n := 1; n <= 9; n++ {
		v, err := f.svc.Handle(ctx, []byte("toggle=1"))
		if err != nil {
			t.Fatalf("toggle %d: %v", n, err)
		}
		want := logic.StateOff
		if n%2 == 1 {
			want = logic.StateOn
		}
		if v.Light != want {
			t.Errorf("after %d toggles: got %s, want %s", n, v.Light, want)
		}
	}

	events := f.pub.Events()
	if len(events) != 9 {
		t.Fatalf("expected 9 events, got %d", len(events))
	}
	for _, e := range events {
		if e.Source != logic.SourceManual {
			t.Errorf("expected MANUAL source, got %s", e.Source)
		}
		if !e.Timestamp.Equal(noon) {
			t.Errorf("Timestamp: got %v, want %v", e.Timestamp, noon)
		}
	}
	counts := f.rec.Snapshot().Counts
	if counts.ManualOn != 5 || counts.ManualOff != 4 {
		t.Errorf("counts: got %+v", counts)
	}
}

func TestScheduleReadsBack(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for h := 0; h <= 23; h++ {
		if _, err := f.svc.Apply(ctx, Update{Hours: map[store.Tag]logic.Hour{store.TagOn: logic.MustHour(h)}}); err != nil {
			t.Fatalf("set %d: %v", h, err)
		}
		v, err := f.svc.Query(ctx)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if got, ok := v.Schedule.On.Get(); !ok || got != h {
			t.Errorf("On: got %v, want %d", v.Schedule.On, h)
		}
	}
}

func TestClearBoundary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Handle(ctx, []byte("schedule_on=6&schedule_off=22")); err != nil {
		t.Fatal(err)
	}
	v, err := f.svc.Handle(ctx, []byte("schedule_on=-1"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Schedule.On.IsSet() {
		t.Errorf("On should be cleared, got %v", v.Schedule.On)
	}
	if h, _ := v.Schedule.Off.Get(); h != 22 {
		t.Errorf("Off should be untouched, got %v", v.Schedule.Off)
	}
}

func TestMalformedLeavesStateUnchanged(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Handle(ctx, []byte("schedule_on=6&schedule_off=22")); err != nil {
		t.Fatal(err)
	}

	// A valid toggle next to an invalid hour must not be applied.
	_, err := f.svc.Handle(ctx, []byte("toggle=1&schedule_on=30"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}

	v, err := f.svc.Query(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v.Light != logic.StateOff {
		t.Errorf("Light: got %s, want OFF", v.Light)
	}
	if h, _ := v.Schedule.On.Get(); h != 6 {
		t.Errorf("On: got %v, want 6", v.Schedule.On)
	}
	if len(f.pub.Events()) != 0 {
		t.Error("no event expected")
	}
}

func TestStorageFailureDoesNotToggle(t *testing.T) {
	f := newFixture()
	f.store.FailWrites(errors.New("disk full"))

	_, err := f.svc.Handle(context.Background(), []byte("toggle=1&schedule_on=6"))
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if f.light.Read() != logic.StateOff {
		t.Error("light toggled despite storage failure")
	}
	if len(f.pub.Events()) != 0 {
		t.Error("no event expected")
	}
}

func TestStorageReadFailureDoesNotToggle(t *testing.T) {
	f := newFixture()
	f.store.FailReads(errors.New("io error"))

	_, err := f.svc.Handle(context.Background(), []byte("toggle=1"))
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if f.light.Read() != logic.StateOff {
		t.Error("light toggled despite storage failure")
	}
}

func TestStorageReadFailureLeavesScheduleUnchanged(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.Handle(ctx, []byte("schedule_on=7")); err != nil {
		t.Fatal(err)
	}
	f.store.FailReads(errors.New("io error"))

	_, err := f.svc.Handle(ctx, []byte("schedule_on=6&schedule_off=20&toggle=1"))
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}

	f.store.FailReads(nil)
	sched, err := store.ReadSchedule(ctx, f.store)
	if err != nil {
		t.Fatal(err)
	}
	if h, _ := sched.On.Get(); h != 7 || sched.Off.IsSet() {
		t.Errorf("schedule changed by failed request: %+v", sched)
	}
	if f.light.Read() != logic.StateOff {
		t.Error("light toggled despite storage failure")
	}
}

func TestWriteViewMergesRequestedHours(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.Handle(ctx, []byte("schedule_on=7&schedule_off=19")); err != nil {
		t.Fatal(err)
	}

	v, err := f.svc.Handle(ctx, []byte("schedule_off=-1"))
	if err != nil {
		t.Fatal(err)
	}
	if h, _ := v.Schedule.On.Get(); h != 7 {
		t.Errorf("On: got %v, want 07:00", v.Schedule.On)
	}
	if v.Schedule.Off.IsSet() {
		t.Errorf("Off: got %v, want unset", v.Schedule.Off)
	}
}

func TestToggleWithoutHoursSkipsWrite(t *testing.T) {
	f := newFixture()
	f.store.FailWrites(errors.New("read-only"))

	v, err := f.svc.Handle(context.Background(), []byte("toggle=1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Light != logic.StateOn {
		t.Errorf("Light: got %s, want ON", v.Light)
	}
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.pub.FailPublish(errors.New("broker down"))

	v, err := f.svc.Handle(context.Background(), []byte("toggle=1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Light != logic.StateOn {
		t.Errorf("Light: got %s, want ON", v.Light)
	}
}

func TestQueryView(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	v, err := f.svc.Query(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v.HasNext {
		t.Error("no next boundary expected with empty schedule")
	}
	if !v.Now.Equal(noon) {
		t.Errorf("Now: got %v, want %v", v.Now, noon)
	}
	if !v.Synced {
		t.Error("plain clock should report synced")
	}

	v, err = f.svc.Handle(ctx, []byte("schedule_on=6&schedule_off=22"))
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC)
	if !v.HasNext || !v.Next.At.Equal(want) || v.Next.State != logic.StateOff {
		t.Errorf("Next: got %+v (ok=%v), want OFF at %v", v.Next, v.HasNext, want)
	}
}

func TestConcurrentToggles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	const workers, each = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				if _, err := f.svc.Handle(ctx, []byte("toggle=1")); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	// 200 toggles: even.
	if f.light.Read() != logic.StateOff {
		t.Errorf("Light: got %s, want OFF", f.light.Read())
	}
}

func TestRestartResetsLightKeepsSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "light.db")
	ctx := context.Background()
	fixed := clock.Func(func() time.Time { return noon })

	db, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	svc := New(Config{Light: light.New(), Store: db, Clock: fixed})
	if _, err := svc.Handle(ctx, []byte("toggle=1&schedule_on=6&schedule_off=22")); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = store.OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	svc = New(Config{Light: light.New(), Store: db, Clock: fixed})

	v, err := svc.Query(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v.Light != logic.StateOff {
		t.Errorf("Light after restart: got %s, want OFF", v.Light)
	}
	on, _ := v.Schedule.On.Get()
	off, _ := v.Schedule.Off.Get()
	if on != 6 || off != 22 {
		t.Errorf("Schedule after restart: got on=%d off=%d, want 6/22", on, off)
	}
}

package mqtt

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-scheduler/internal/logic"
)

var (
	// ErrQueueFull is returned when the Async queue cannot take another event.
	ErrQueueFull = errors.New("mqtt: publish queue full")
	// ErrQueueClosed is returned by Async after Close.
	ErrQueueClosed = errors.New("mqtt: publish queue closed")
)

// DefaultQueueSize is the number of events an Async holds before dropping.
const DefaultQueueSize = 64

// drainTimeout bounds how long Close waits for queued events.
const drainTimeout = 2 * time.Second

type job struct {
	event   *logic.Event
	system  *SystemEvent
	flushed chan struct{}
}

// Async hands events to a wrapped Publisher on its own goroutine, so callers
// never wait on broker I/O. Publish and PublishSystem return immediately;
// when the queue is full the event is dropped and ErrQueueFull returned.
type Async struct {
	next Publisher

	mu     sync.Mutex
	closed bool
	jobs   chan job
	done   chan struct{}
}

// NewAsync starts the delivery goroutine. size <= 0 uses DefaultQueueSize.
func NewAsync(next Publisher, size int) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{
		next: next,
		jobs: make(chan job, size),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.jobs {
		switch {
		case j.flushed != nil:
			close(j.flushed)
		case j.event != nil:
			if err := a.next.Publish(*j.event); err != nil {
				log.Warn().Err(err).Str("event", string(j.event.Type)).Msg("publish failed")
			}
		case j.system != nil:
			if err := a.next.PublishSystem(*j.system); err != nil {
				log.Warn().Err(err).Str("event", j.system.Event).Msg("system publish failed")
			}
		}
	}
}

func (a *Async) enqueue(j job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrQueueClosed
	}
	select {
	case a.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish queues a light event.
func (a *Async) Publish(event logic.Event) error {
	return a.enqueue(job{event: &event})
}

// PublishSystem queues a system event.
func (a *Async) PublishSystem(event SystemEvent) error {
	return a.enqueue(job{system: &event})
}

// Flush blocks until every event queued before the call has been handed to
// the wrapped publisher.
func (a *Async) Flush() {
	ch := make(chan struct{})
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.jobs <- job{flushed: ch}
	a.mu.Unlock()
	<-ch
}

// IsConnected reports the wrapped publisher's connection state when it has one.
func (a *Async) IsConnected() bool {
	if cs, ok := a.next.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// Close stops accepting events and waits a bounded time for the queue to
// drain. The wrapped publisher is left open.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-time.After(drainTimeout):
		return errors.New("mqtt: publish queue drain timed out")
	}
}

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweeney/light-scheduler/internal/logic"
)

// Memory is a non-persistent Store. It backs tests and ":memory:" databases,
// and can be told to fail reads or writes.
type Memory struct {
	mu       sync.RWMutex
	hours    map[Tag]logic.Hour
	readErr  error
	writeErr error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{hours: make(map[Tag]logic.Hour)}
}

// FailReads makes every subsequent GetHour return err (nil restores normal behaviour).
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// FailWrites makes every subsequent SetHour/SetHours return err.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// GetHour returns the hour stored under tag.
func (m *Memory) GetHour(_ context.Context, tag Tag) (logic.Hour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.readErr != nil {
		return logic.NoHour, fmt.Errorf("%w: get %s: %w", ErrStorage, tag, m.readErr)
	}
	return m.hours[tag], nil
}

// SetHour stores h under tag.
func (m *Memory) SetHour(ctx context.Context, tag Tag, h logic.Hour) error {
	return m.SetHours(ctx, map[Tag]logic.Hour{tag: h})
}

// SetHours stores every entry, or none if writes are failing.
func (m *Memory) SetHours(_ context.Context, hours map[Tag]logic.Hour) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return fmt.Errorf("%w: set: %w", ErrStorage, m.writeErr)
	}
	for tag, h := range hours {
		if !h.IsSet() {
			delete(m.hours, tag)
			continue
		}
		m.hours[tag] = h
	}
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

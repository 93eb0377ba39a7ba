package gpio

import "sync"

// FakeWriter is a test double that records every value driven onto the line.
// It is safe for concurrent use.
type FakeWriter struct {
	mu     sync.Mutex
	values []bool
	setErr error
	closed bool
}

// NewFakeWriter creates a FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Set records on, or returns the configured error.
func (f *FakeWriter) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.values = append(f.values, on)
	return nil
}

// Close records a final low and marks the writer closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = append(f.values, false)
	f.closed = true
	return nil
}

// FailSets makes Set return err (nil restores normal behaviour).
func (f *FakeWriter) FailSets(err error) {
	f.mu.Lock()
	f.setErr = err
	f.mu.Unlock()
}

// Values returns a copy of every recorded value.
func (f *FakeWriter) Values() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.values...)
}

// Last returns the most recent value and whether any was recorded.
func (f *FakeWriter) Last() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return false, false
	}
	return f.values[len(f.values)-1], true
}

// Closed reports whether Close was called.
func (f *FakeWriter) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded values and errors.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = nil
	f.setErr = nil
	f.closed = false
}

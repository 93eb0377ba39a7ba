package ota

import (
	"io"
	"sync"
)

// FakeUpdater records images for testing.
type FakeUpdater struct {
	mu     sync.Mutex
	images [][]byte
	err    error
}

// NewFakeUpdater creates a FakeUpdater.
func NewFakeUpdater() *FakeUpdater {
	return &FakeUpdater{}
}

// Apply reads the whole image and records it.
func (f *FakeUpdater) Apply(image io.Reader) error {
	data, err := io.ReadAll(image)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.images = append(f.images, data)
	return f.err
}

// Fail makes subsequent Apply calls return err after consuming the image.
func (f *FakeUpdater) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Images returns the recorded images.
func (f *FakeUpdater) Images() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.images...)
}

// FakeRestarter records restart requests instead of restarting.
type FakeRestarter struct {
	mu      sync.Mutex
	reasons []string
}

// Restart records reason.
func (f *FakeRestarter) Restart(reason string) {
	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	f.mu.Unlock()
}

// Reasons returns the recorded reasons.
func (f *FakeRestarter) Reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reasons...)
}

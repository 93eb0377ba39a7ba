// Package status provides a thread-safe status tracker for the light-scheduler daemon.
// It is read by the HTTP JSON endpoint and by MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/light-scheduler/internal/logic"
)

// NetworkInfo contains network state as reported by the host helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	HTTPAddr     string
	Database     string
	GPIOChip     string
	GPIOLine     int
	Timezone     string
	NTPServer    string
	TickOffsetMs int64
	HeartbeatMs  int64
	Broker       string
	TopicPrefix  string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	Light         logic.State
	Schedule      logic.Schedule
	Counts        logic.EventCounts
	StorageErrors int
	TimeSynced    bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time, boot ID and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			Light:     logic.StateOff,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update sets the light state, schedule and clock sync status.
// Called from the scheduler loop on every tick.
func (t *Tracker) Update(light logic.State, sched logic.Schedule, synced bool) {
	t.mu.Lock()
	t.snap.Light = light
	t.snap.Schedule = sched
	t.snap.TimeSynced = synced
	t.mu.Unlock()
}

// Record counts a light transition.
func (t *Tracker) Record(e logic.Event) {
	t.mu.Lock()
	t.snap.Counts.Add(e)
	t.mu.Unlock()
}

// RecordStorageError counts a failed schedule read.
func (t *Tracker) RecordStorageError() {
	t.mu.Lock()
	t.snap.StorageErrors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}

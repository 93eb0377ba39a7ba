package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/light-scheduler/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	Light         string       `json:"light"`
	Schedule      ScheduleJSON `json:"schedule"`
	TimeSynced    bool         `json:"time_synced"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"transition_counts"`
	StorageErrors int          `json:"storage_errors"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ScheduleJSON holds the boundaries; unset hours are null.
type ScheduleJSON struct {
	On  *int `json:"on"`
	Off *int `json:"off"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	ScheduleOn  int `json:"schedule_on"`
	ScheduleOff int `json:"schedule_off"`
	ManualOn    int `json:"manual_on"`
	ManualOff   int `json:"manual_off"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HTTPAddr     string `json:"http_addr"`
	Database     string `json:"database"`
	GPIOChip     string `json:"gpio_chip"`
	GPIOLine     int    `json:"gpio_line"`
	Timezone     string `json:"timezone"`
	NTPServer    string `json:"ntp_server,omitempty"`
	TickOffsetMs int64  `json:"tick_offset_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker,omitempty"`
	TopicPrefix  string `json:"topic_prefix,omitempty"`
}

func hourPtr(h logic.Hour) *int {
	v, ok := h.Get()
	if !ok {
		return nil
	}
	return &v
}

func buildInner(snap Snapshot) StatusInner {
	light := string(snap.Light)
	if light == "" {
		light = string(logic.StateOff)
	}

	inner := StatusInner{
		BootID:        snap.BootID,
		Light:         light,
		Schedule:      ScheduleJSON{On: hourPtr(snap.Schedule.On), Off: hourPtr(snap.Schedule.Off)},
		TimeSynced:    snap.TimeSynced,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			ScheduleOn:  snap.Counts.ScheduleOn,
			ScheduleOff: snap.Counts.ScheduleOff,
			ManualOn:    snap.Counts.ManualOn,
			ManualOff:   snap.Counts.ManualOff,
		},
		StorageErrors: snap.StorageErrors,
		Config: ConfigJSON{
			HTTPAddr:     snap.Config.HTTPAddr,
			Database:     snap.Config.Database,
			GPIOChip:     snap.Config.GPIOChip,
			GPIOLine:     snap.Config.GPIOLine,
			Timezone:     snap.Config.Timezone,
			NTPServer:    snap.Config.NTPServer,
			TickOffsetMs: snap.Config.TickOffsetMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			TopicPrefix:  snap.Config.TopicPrefix,
		},
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

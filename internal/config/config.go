// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/light-scheduler/internal/clock"
	"github.com/sweeney/light-scheduler/internal/gpio"
	"github.com/sweeney/light-scheduler/internal/mqtt"
)

// Config represents the daemon configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Clock     ClockConfig     `yaml:"clock"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	OTA       OTAConfig       `yaml:"ota"`
	Log       LogConfig       `yaml:"log"`
}

// HTTPConfig contains the control server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // listen address; "" disables the server
}

// DatabaseConfig contains schedule storage settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // ":memory:" keeps the schedule in RAM
}

// GPIOConfig selects the output line driving the relay.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	Line      int    `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`
}

// ClockConfig contains time source settings.
type ClockConfig struct {
	Timezone    string   `yaml:"timezone"`
	NTPServer   string   `yaml:"ntp_server"` // "" uses the OS clock
	NTPInterval Duration `yaml:"ntp_interval"`
}

// SchedulerConfig contains loop settings.
type SchedulerConfig struct {
	TickOffset Duration `yaml:"tick_offset"` // delay past each whole second
	Heartbeat  Duration `yaml:"heartbeat"`   // 0 disables
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// OTAConfig contains update endpoint settings.
type OTAConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// Defaults.
const (
	DefaultHTTPAddr    = ":80"
	DefaultDBPath      = "/var/lib/light-scheduler/schedule.db"
	DefaultGPIOChip    = gpio.DefaultChip
	DefaultGPIOLine    = gpio.DefaultLine
	DefaultTimezone    = "UTC"
	DefaultNTPServer   = "ntp.nict.jp"
	DefaultNTPInterval = time.Hour
	DefaultTickOffset  = 50 * time.Millisecond
	DefaultHeartbeat   = 15 * time.Minute
	DefaultTopicPrefix = mqtt.DefaultTopicPrefix
	DefaultClientID    = "light-scheduler"
	DefaultLogLevel    = "info"
)

// Duration is a wrapper around time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		HTTP:     HTTPConfig{Addr: DefaultHTTPAddr},
		Database: DatabaseConfig{Path: DefaultDBPath},
		GPIO:     GPIOConfig{Chip: DefaultGPIOChip, Line: DefaultGPIOLine},
		Clock:    ClockConfig{NTPServer: DefaultNTPServer},
		Scheduler: SchedulerConfig{
			Heartbeat: Duration(DefaultHeartbeat),
		},
		OTA: OTAConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file. An empty path returns Default().
//
// Keys missing from the file keep their default values, so a file can set
// a key to an empty string to disable a feature (http.addr, clock.ntp_server).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDBPath
	}
	if cfg.GPIO.Chip == "" {
		cfg.GPIO.Chip = DefaultGPIOChip
	}
	if cfg.Clock.Timezone == "" {
		cfg.Clock.Timezone = DefaultTimezone
	}
	if cfg.Clock.NTPInterval == 0 {
		cfg.Clock.NTPInterval = Duration(DefaultNTPInterval)
	}
	if cfg.Scheduler.TickOffset == 0 {
		cfg.Scheduler.TickOffset = Duration(DefaultTickOffset)
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultClientID
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.GPIO.Line < 0 {
		return fmt.Errorf("gpio.line: must not be negative, got %d", c.GPIO.Line)
	}
	if d := c.Scheduler.TickOffset.Duration(); d <= 0 || d > 500*time.Millisecond {
		return fmt.Errorf("scheduler.tick_offset: must be in (0, 500ms], got %s", d)
	}
	if c.Scheduler.Heartbeat < 0 {
		return fmt.Errorf("scheduler.heartbeat: must not be negative")
	}
	if _, err := clock.LoadLocation(c.Clock.Timezone); err != nil {
		return fmt.Errorf("clock.timezone: %w", err)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}

var envVarRe = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(input string) string {
	return envVarRe.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

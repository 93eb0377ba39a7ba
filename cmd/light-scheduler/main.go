// Command light-scheduler drives a relay on a daily on/off schedule and
// serves a small control page.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/light-scheduler/internal/config"
)

var Commit string

var flags struct {
	configPath string
	dbPath     string
	logLevel   string

	httpAddr  string
	line      int
	broker    string
	heartbeat time.Duration
}

var rootCmd = &cobra.Command{
	Use:           "light-scheduler",
	Short:         "Network-controllable light scheduler",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Commit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to YAML configuration file")
	pf.StringVar(&flags.dbPath, "db", "", "Schedule database path (\":memory:\" for none)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	sf := serveCmd.Flags()
	sf.StringVar(&flags.httpAddr, "http", "", "HTTP listen address (empty disables)")
	sf.IntVar(&flags.line, "line", 0, "GPIO line offset driving the relay")
	sf.StringVar(&flags.broker, "broker", "", "MQTT broker address (empty disables)")
	sf.DurationVar(&flags.heartbeat, "heartbeat", 0, "Heartbeat interval (0 to disable)")

	rootCmd.AddCommand(serveCmd, scheduleCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies any flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)
	return cfg, nil
}

// applyFlags overrides cfg with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("db") {
		cfg.Database.Path = flags.dbPath
	}
	if changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if changed("http") {
		cfg.HTTP.Addr = flags.httpAddr
	}
	if changed("line") {
		cfg.GPIO.Line = flags.line
	}
	if changed("broker") {
		cfg.MQTT.Broker = flags.broker
	}
	if changed("heartbeat") {
		cfg.Scheduler.Heartbeat = config.Duration(flags.heartbeat)
	}
}

func setupLogging(level string, useJSON bool, colors bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

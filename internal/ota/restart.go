package ota

import (
	"os"

	"github.com/rs/zerolog/log"
)

// ExecRestarter re-executes the current binary with the same argv and
// environment. Before runs first (publish RESTART, close MQTT). If exec
// fails the process exits non-zero and the supervisor restarts it.
type ExecRestarter struct {
	Before func(reason string)
}

// Restart does not return.
func (r ExecRestarter) Restart(reason string) {
	if r.Before != nil {
		r.Before(reason)
	}

	exe, err := os.Executable()
	if err != nil {
		log.Error().Err(err).Msg("resolve executable")
		os.Exit(1)
	}
	log.Warn().Str("reason", reason).Str("exe", exe).Msg("restarting")

	if err := execSelf(exe, os.Args, os.Environ()); err != nil {
		log.Error().Err(err).Msg("exec failed, exiting")
	}
	os.Exit(1)
}

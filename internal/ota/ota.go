// Package ota replaces the running firmware image and restarts the daemon.
package ota

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/selfupdate"
	"github.com/rs/zerolog/log"
)

// Updater writes a new image in place of the current one.
type Updater interface {
	Apply(image io.Reader) error
}

// Restarter restarts the process. In production it does not return.
type Restarter interface {
	Restart(reason string)
}

// UpdateError wraps an updater failure.
type UpdateError struct {
	Err error
}

func (e *UpdateError) Error() string { return "update failed: " + e.Err.Error() }

func (e *UpdateError) Unwrap() error { return e.Err }

// Result describes one update attempt.
type Result struct {
	Bytes    int64
	Duration time.Duration
	Err      error // nil or *UpdateError
}

// OK reports whether the image was applied.
func (r Result) OK() bool { return r.Err == nil }

// Trigger runs an update and then restarts.
type Trigger struct {
	updater   Updater
	restarter Restarter
	now       func() time.Time
}

// NewTrigger returns a Trigger using u and r.
func NewTrigger(u Updater, r Restarter) *Trigger {
	return &Trigger{updater: u, restarter: r, now: time.Now}
}

// Run streams image into the updater. It does not restart.
func (t *Trigger) Run(ctx context.Context, image io.Reader) Result {
	start := t.now()
	cr := &countingReader{r: image, ctx: ctx}

	err := t.updater.Apply(cr)
	res := Result{Bytes: cr.n, Duration: t.now().Sub(start)}
	if err != nil {
		res.Err = &UpdateError{Err: err}
		log.Error().Err(err).Int64("bytes", cr.n).Msg("ota update failed")
		return res
	}
	log.Info().Int64("bytes", cr.n).Dur("took", res.Duration).Msg("ota update applied")
	return res
}

// Restart hands over to the restarter, regardless of the update outcome.
func (t *Trigger) Restart(res Result) {
	reason := "OTA"
	if !res.OK() {
		reason = "OTA_FAILED"
	}
	t.restarter.Restart(reason)
}

type countingReader struct {
	r   io.Reader
	ctx context.Context
	n   int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ErrEmptyImage is returned when the image stream is empty.
var ErrEmptyImage = errors.New("empty image")

// SelfUpdater replaces the executable at TargetPath ("" means the running
// binary) using minio/selfupdate, which rolls back on a failed swap.
type SelfUpdater struct {
	TargetPath string
}

// Apply implements Updater.
func (u SelfUpdater) Apply(image io.Reader) error {
	opts := selfupdate.Options{TargetPath: u.TargetPath}
	if err := opts.CheckPermissions(); err != nil {
		return fmt.Errorf("check permissions: %w", err)
	}

	br := bufio.NewReader(image)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyImage
		}
		return fmt.Errorf("read image: %w", err)
	}
	if err := selfupdate.Apply(br, opts); err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("apply: %w (rollback failed: %v)", err, rerr)
		}
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}

// Package store persists the light schedule so it survives restarts.
//
// An absent key is a valid "no action" state and is returned as an unset
// logic.Hour with a nil error. Storage failures wrap ErrStorage and must not
// be treated as absence.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/sweeney/light-scheduler/internal/logic"
)

// ErrStorage wraps every persistence read/write failure.
var ErrStorage = errors.New("storage error")

// Tag is a fixed persistence key.
type Tag string

const (
	TagOn  Tag = "schedule_on"
	TagOff Tag = "schedule_off"
)

// Store is durable key/hour persistence.
type Store interface {
	// GetHour returns the hour stored under tag, or an unset Hour if absent.
	GetHour(ctx context.Context, tag Tag) (logic.Hour, error)

	// SetHour stores h under tag. Storing an unset Hour removes the key.
	SetHour(ctx context.Context, tag Tag, h logic.Hour) error

	// SetHours stores every entry atomically: either all are written or none.
	SetHours(ctx context.Context, hours map[Tag]logic.Hour) error

	// Close releases resources.
	Close() error
}

// ReadSchedule reads both boundaries from s.
func ReadSchedule(ctx context.Context, s Store) (logic.Schedule, error) {
	on, err := s.GetHour(ctx, TagOn)
	if err != nil {
		return logic.Schedule{}, err
	}
	off, err := s.GetHour(ctx, TagOff)
	if err != nil {
		return logic.Schedule{}, err
	}
	return logic.Schedule{On: on, Off: off}, nil
}

// sortedTags returns the keys of hours in a stable order.
func sortedTags(hours map[Tag]logic.Hour) []Tag {
	tags := make([]Tag, 0, len(hours))
	for tag := range hours {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

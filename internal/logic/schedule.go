package logic

import "time"

// Evaluate applies the schedule at instant now, which must already be in the
// reference timezone. It returns the target state and whether a boundary fired.
//
// The ON boundary is checked first and the OFF boundary second, so when both
// hours are equal OFF wins.
func Evaluate(now time.Time, sched Schedule) (State, bool) {
	var (
		target State
		fired  bool
	)
	if sched.On.Matches(now) {
		target, fired = StateOn, true
	}
	if sched.Off.Matches(now) {
		target, fired = StateOff, true
	}
	return target, fired
}

// Boundary is the next scheduled transition.
type Boundary struct {
	At    time.Time
	State State
}

// NextBoundary returns the first boundary strictly after now, within the next
// 24 hours. It returns false when neither hour is set.
func NextBoundary(now time.Time, sched Schedule) (Boundary, bool) {
	var (
		best  Boundary
		found bool
	)
	consider := func(h Hour, s State) {
		hh, ok := h.Get()
		if !ok {
			return
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), hh, 0, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		// Equal instants: OFF wins, mirroring Evaluate.
		if !found || at.Before(best.At) || (at.Equal(best.At) && s == StateOff) {
			best, found = Boundary{At: at, State: s}, true
		}
	}
	consider(sched.On, StateOn)
	consider(sched.Off, StateOff)
	return best, found
}

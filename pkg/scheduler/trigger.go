package scheduler

import (
	"errors"
	"time"
)

// Trigger describes when a recurring schedule first fires and how often
// it repeats. Initial may be zero; Period must be positive. Work that
// runs once is expressed with ScheduleOnce, never with a zero Period.
//
// A Trigger is an immutable value owned by the caller; the Service keeps
// no reference back to it.
type Trigger struct {
	Initial time.Duration
	Period  time.Duration
}

// Every returns a Trigger that fires immediately and then every period.
func Every(period time.Duration) Trigger {
	return Trigger{Period: period}
}

// NewTrigger returns a Trigger with an initial delay and a repeat period.
func NewTrigger(initial, period time.Duration) Trigger {
	return Trigger{Initial: initial, Period: period}
}

var (
	errNegativeInitial   = errors.New("scheduler: trigger initial delay must be >= 0")
	errNonPositivePeriod = errors.New("scheduler: trigger period must be > 0")
)

// Validate reports whether the trigger is usable.
func (t Trigger) Validate() error {
	if t.Initial < 0 {
		return errNegativeInitial
	}
	if t.Period <= 0 {
		return errNonPositivePeriod
	}
	return nil
}

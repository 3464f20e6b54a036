package sim

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTime is matched by every InvalidTimeError through errors.Is.
var ErrInvalidTime = errors.New("sim: invalid time")

// ErrReentrantRun is returned when Run is called while the engine is already
// running, typically from inside an event callback.
var ErrReentrantRun = errors.New("sim: Run called while the engine is running")

// InvalidTimeError reports an attempt to schedule an event in the past, with a
// negative delay, or beyond the representable time range.
type InvalidTimeError struct {
	Now       VTime
	Requested VTime
	Delay     time.Duration
	Reason    string
}

func (e *InvalidTimeError) Error() string {
	if e.Reason == "negative delay" {
		return fmt.Sprintf("sim: cannot schedule with negative delay %s at %s",
			e.Delay, e.Now)
	}

	return fmt.Sprintf("sim: cannot schedule at %s, now %s: %s",
		e.Requested, e.Now, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidTime) hold.
func (e *InvalidTimeError) Is(target error) bool {
	return target == ErrInvalidTime
}

// CallbackError wraps an error returned by an event callback. It aborts Run.
type CallbackError struct {
	Time  VTime
	Event uint64
	Err   error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("sim: event %d @ %s failed: %v", e.Event, e.Time, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

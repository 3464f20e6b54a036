package sim

import "time"

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	Now() VTime
}

// EventScheduler can be used to schedule future events.
type EventScheduler interface {
	TimeTeller

	// Schedule registers cb to run delay after the current time.
	Schedule(delay time.Duration, cb Callback) (EventHandle, error)

	// ScheduleAt registers cb to run at an absolute time no earlier than
	// Now().
	ScheduleAt(t VTime, cb Callback) (EventHandle, error)

	// ScheduleNow registers cb to run at the current time, after every event
	// already scheduled for the current time.
	ScheduleNow(cb Callback) (EventHandle, error)

	// Cancel prevents the referenced event from firing. Cancelling an event
	// that already fired, was already cancelled, or is unknown is a no-op.
	Cancel(h EventHandle)
}

// A SimulationEndHandler is a handler that is called when the simulation is
// torn down.
type SimulationEndHandler interface {
	Handle(now VTime)
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	Hookable
	EventScheduler

	// Run processes events until no event is left or the stop time is
	// reached.
	Run() error

	// Stop sets the time beyond which Run does not advance.
	Stop(at VTime)

	// Pause blocks the simulation between two events until Continue is
	// called.
	Pause()

	// Continue resumes a paused simulation.
	Continue()

	// Destroy drops all pending events and resets the clock.
	Destroy()

	// IsPending tells if the referenced event is still waiting to fire.
	IsPending(h EventHandle) bool

	// PendingEvents returns the number of events waiting to fire.
	PendingEvents() int

	// RegisterSimulationEndHandler registers a handler that runs when the
	// engine is destroyed.
	RegisterSimulationEndHandler(handler SimulationEndHandler)
}

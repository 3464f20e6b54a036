package sim

// Callback is the action carried by an event. Returning an error aborts the
// simulation run.
type Callback func() error

// An EventHandle refers to a scheduled event. It can only be used to query or
// cancel that event. The zero EventHandle refers to no event.
type EventHandle struct {
	seq uint64
}

// ID returns the sequence id of the event the handle refers to.
func (h EventHandle) ID() uint64 {
	return h.seq
}

// IsZero tells if the handle refers to no event.
func (h EventHandle) IsZero() bool {
	return h.seq == 0
}

// event is owned by the engine from scheduling until it fires or is
// cancelled. The sequence id doubles as the event's identity; the engine
// never hands out the same sequence id twice.
type event struct {
	time      VTime
	seq       uint64
	callback  Callback
	cancelled bool
}

// before reports the (time, seq) ordering used by the event queue.
func (e *event) before(o *event) bool {
	if e.time != o.time {
		return e.time < o.time
	}

	return e.seq < o.seq
}

// EventInfo describes an event to hooks. It is passed as HookCtx.Item.
type EventInfo struct {
	Seq  uint64
	Time VTime
}

func (e *event) info() EventInfo {
	return EventInfo{Seq: e.seq, Time: e.time}
}

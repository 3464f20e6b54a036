package sim

import (
	"sync"
	"sync/atomic"
	"time"
)

// A SerialEngine is an Engine that always runs events one after another, in
// (time, sequence id) order. Two runs that schedule the same events in the
// same order fire them in the same order.
type SerialEngine struct {
	*HookableBase

	timeLock sync.RWMutex
	now      VTime
	stopAt   VTime
	hasStop  bool

	queue eventQueue

	stateLock   sync.Mutex
	pending     map[uint64]*event
	nextSeq     uint64
	tearingDown bool

	running atomic.Bool

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	simulationEndHandlers []SimulationEndHandler
}

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine() *SerialEngine {
	e := new(SerialEngine)
	e.HookableBase = NewHookableBase()
	e.queue = newHeapEventQueue()
	e.pending = make(map[uint64]*event)

	return e
}

// Schedule registers cb to run delay after the current time.
func (e *SerialEngine) Schedule(
	delay time.Duration,
	cb Callback,
) (EventHandle, error) {
	now := e.readNow()

	if delay < 0 {
		return EventHandle{}, &InvalidTimeError{
			Now:    now,
			Delay:  delay,
			Reason: "negative delay",
		}
	}

	if addOverflows(now, delay) {
		return EventHandle{}, &InvalidTimeError{
			Now:       now,
			Requested: MaxVTime,
			Delay:     delay,
			Reason:    "time overflow",
		}
	}

	return e.insert(now.Add(delay), cb), nil
}

// ScheduleAt registers cb to run at time t.
func (e *SerialEngine) ScheduleAt(t VTime, cb Callback) (EventHandle, error) {
	now := e.readNow()
	if t < now {
		return EventHandle{}, &InvalidTimeError{
			Now:       now,
			Requested: t,
			Reason:    "time in the past",
		}
	}

	return e.insert(t, cb), nil
}

// ScheduleNow registers cb to run at the current time.
func (e *SerialEngine) ScheduleNow(cb Callback) (EventHandle, error) {
	return e.insert(e.readNow(), cb), nil
}

func (e *SerialEngine) insert(t VTime, cb Callback) EventHandle {
	if cb == nil {
		panic("sim: scheduling a nil callback")
	}

	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	if e.tearingDown {
		return EventHandle{}
	}

	e.nextSeq++
	evt := &event{
		time:     t,
		seq:      e.nextSeq,
		callback: cb,
	}
	e.pending[evt.seq] = evt
	e.queue.Push(evt)

	return EventHandle{seq: evt.seq}
}

// Cancel prevents the referenced event from firing.
func (e *SerialEngine) Cancel(h EventHandle) {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	evt, found := e.pending[h.seq]
	if !found {
		return
	}

	evt.cancelled = true
	delete(e.pending, h.seq)
}

// IsPending tells if the referenced event is still waiting to fire.
func (e *SerialEngine) IsPending(h EventHandle) bool {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	_, found := e.pending[h.seq]

	return found
}

// PendingEvents returns the number of events that are scheduled and not
// cancelled.
func (e *SerialEngine) PendingEvents() int {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	return len(e.pending)
}

// Now returns the time of the event being processed, or of the last event
// processed.
func (e *SerialEngine) Now() VTime {
	return e.readNow()
}

func (e *SerialEngine) readNow() VTime {
	e.timeLock.RLock()
	t := e.now
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t VTime) {
	e.timeLock.Lock()
	e.now = t
	e.timeLock.Unlock()
}

// Stop sets the last time at which events may fire. Events scheduled for
// exactly that time still fire.
func (e *SerialEngine) Stop(at VTime) {
	e.timeLock.Lock()
	e.stopAt = at
	e.hasStop = true
	e.timeLock.Unlock()
}

// StopTime returns the stop time and whether one is set.
func (e *SerialEngine) StopTime() (VTime, bool) {
	e.timeLock.RLock()
	defer e.timeLock.RUnlock()

	return e.stopAt, e.hasStop
}

// IsRunning tells if Run is currently executing.
func (e *SerialEngine) IsRunning() bool {
	return e.running.Load()
}

// Run processes all the events until the queue drains or the stop time is
// reached. An error returned by a callback stops the loop and is returned
// wrapped in a CallbackError.
func (e *SerialEngine) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrReentrantRun
	}
	defer e.running.Store(false)

	for {
		e.pauseLock.Lock()

		evt := e.nextEvent()
		if evt == nil {
			e.pauseLock.Unlock()
			return nil
		}

		err := e.fire(evt)

		e.pauseLock.Unlock()

		if err != nil {
			return err
		}
	}
}

// nextEvent pops the next event to process, or returns nil when the run is
// over.
func (e *SerialEngine) nextEvent() *event {
	head := e.queue.Peek()
	if head == nil {
		return nil
	}

	stopAt, hasStop := e.StopTime()
	if hasStop && head.time > stopAt {
		if stopAt > e.readNow() {
			e.writeNow(stopAt)
		}

		return nil
	}

	evt := e.queue.Pop()

	e.stateLock.Lock()
	if !evt.cancelled {
		delete(e.pending, evt.seq)
	}
	e.stateLock.Unlock()

	return evt
}

func (e *SerialEngine) fire(evt *event) error {
	now := e.readNow()
	if evt.time < now {
		panic("sim: cannot run event in the past")
	}

	e.writeNow(evt.time)

	if evt.cancelled {
		return nil
	}

	hookCtx := HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt.info(),
	}
	e.InvokeHook(hookCtx)

	err := evt.callback()
	if err != nil {
		return &CallbackError{Time: evt.time, Event: evt.seq, Err: err}
	}

	hookCtx.Pos = HookPosAfterEvent
	e.InvokeHook(hookCtx)

	return nil
}

// Pause prevents the SerialEngine to trigger more events.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue allows the SerialEngine to trigger more events.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// RegisterSimulationEndHandler registers a handler that is called by Destroy.
func (e *SerialEngine) RegisterSimulationEndHandler(
	handler SimulationEndHandler,
) {
	e.simulationEndHandlers = append(e.simulationEndHandlers, handler)
}

// Destroy calls the simulation end handlers, then drops every pending event
// without firing it and resets the clock and the stop time. Scheduling from an
// end handler is silently ignored. Sequence ids keep growing across Destroy,
// so handles from a previous run never match a new event.
func (e *SerialEngine) Destroy() {
	if e.running.Load() {
		panic("sim: cannot destroy a running engine")
	}

	e.stateLock.Lock()
	e.tearingDown = true
	e.stateLock.Unlock()

	now := e.readNow()
	for _, h := range e.simulationEndHandlers {
		h.Handle(now)
	}
	e.simulationEndHandlers = nil

	e.queue.Clear()

	e.stateLock.Lock()
	clear(e.pending)
	e.tearingDown = false
	e.stateLock.Unlock()

	e.timeLock.Lock()
	e.now = 0
	e.stopAt = 0
	e.hasStop = false
	e.timeLock.Unlock()
}

var _ Engine = (*SerialEngine)(nil)

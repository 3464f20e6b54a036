package flowexport

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/xid"
	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/sim"
	"github.com/tebeka/atexit"
)

// EventTraceWriter is a monitor hook that stores flow creations, losses and
// duplicate or unmatched receptions into a CSV file.
type EventTraceWriter struct {
	lock sync.Mutex

	path string
	out  io.WriteCloser

	lines      []string
	bufferSize int
}

// NewEventTraceWriter creates a writer that stores into path.csv. An empty
// path picks a unique name.
func NewEventTraceWriter(path string) *EventTraceWriter {
	return &EventTraceWriter{
		path:       path,
		bufferSize: 1000,
	}
}

// newEventTraceWriterTo creates a writer on an already opened output.
func newEventTraceWriterTo(out io.WriteCloser) *EventTraceWriter {
	w := &EventTraceWriter{out: out, bufferSize: 1000}
	w.writeHeader()

	return w
}

// Init creates the CSV file. It fails if the file already exists. The buffer
// is flushed and the file closed when the program exits through atexit.
func (w *EventTraceWriter) Init() error {
	if w.path == "" {
		w.path = "flowsim_events_" + xid.New().String()
	}

	filename := w.path + ".csv"
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("flowexport: file %s already exists", filename)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("flowexport: %w", err)
	}

	w.out = file
	w.writeHeader()

	atexit.Register(func() {
		if err := w.Close(); err != nil {
			panic(err)
		}
	})

	return nil
}

func (w *EventTraceWriter) writeHeader() {
	fmt.Fprintf(w.out, "Kind, FlowID, PacketID, Time, Detail\n")
}

// Func implements sim.Hook.
func (w *EventTraceWriter) Func(ctx sim.HookCtx) {
	var line string

	switch item := ctx.Item.(type) {
	case flow.FlowStats:
		line = fmt.Sprintf("flow_created, %d, , %d, %s",
			item.FlowID, int64(item.TimeFirstTxPacket), item.Key)
	case flow.LostPacket:
		line = fmt.Sprintf("packet_lost, %d, %d, %d, %s",
			item.FlowID, item.PacketID, int64(item.SendTime), item.Age)
	case flow.PacketDescriptor:
		kind := "duplicate_rx"
		if ctx.Pos == flow.HookPosUnmatchedRx {
			kind = "unmatched_rx"
		}

		line = fmt.Sprintf("%s, , %d, %d, %s",
			kind, item.ID, int64(item.SendTime), flow.KeyOf(item))
	default:
		return
	}

	w.write(line)
}

func (w *EventTraceWriter) write(line string) {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.lines = append(w.lines, line)
	if len(w.lines) >= w.bufferSize {
		w.flushLocked()
	}
}

// Flush writes the buffered lines into the file.
func (w *EventTraceWriter) Flush() {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.flushLocked()
}

func (w *EventTraceWriter) flushLocked() {
	if w.out == nil {
		return
	}

	for _, l := range w.lines {
		fmt.Fprintln(w.out, l)
	}

	w.lines = nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *EventTraceWriter) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.out == nil {
		return nil
	}

	w.flushLocked()
	err := w.out.Close()
	w.out = nil

	return err
}

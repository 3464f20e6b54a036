// Package flowexport writes flow monitor snapshots in the formats simulation
// scripts consume: ns-3 style XML, CSV, SQLite tables and text reports.
package flowexport

import (
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/sim"
)

// A Snapshot is the read-only view of a monitor that exporters serialize.
type Snapshot struct {
	RunID string
	Now   sim.VTime
	Flows []flow.FlowStats
}

// FlowSource is what a snapshot is taken from.
type FlowSource interface {
	SortedFlowStats() []flow.FlowStats
}

// TakeSnapshot captures the flows of a monitor at the current time.
func TakeSnapshot(
	runID string,
	clock sim.TimeTeller,
	source FlowSource,
) Snapshot {
	return Snapshot{
		RunID: runID,
		Now:   clock.Now(),
		Flows: source.SortedFlowStats(),
	}
}

// An Exporter writes a snapshot somewhere.
type Exporter interface {
	Export(s Snapshot) error
}

// WriterFactory creates an exporter that writes into w.
type WriterFactory func(w io.Writer) Exporter

// fileExporter creates the file on each export.
type fileExporter struct {
	path    string
	factory WriterFactory
}

// ToFile returns an exporter that (re)creates path and exports into it.
func ToFile(path string, factory WriterFactory) Exporter {
	return &fileExporter{path: path, factory: factory}
}

func (e *fileExporter) Export(s Snapshot) (err error) {
	f, err := os.Create(e.path)
	if err != nil {
		return fmt.Errorf("flowexport: %w", err)
	}

	defer func() {
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
	}()

	return e.factory(f).Export(s)
}

// ExportAll runs every exporter and returns the first error.
func ExportAll(s Snapshot, exporters ...Exporter) error {
	for _, e := range exporters {
		if err := e.Export(s); err != nil {
			return err
		}
	}

	return nil
}

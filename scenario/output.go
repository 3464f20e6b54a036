package scenario

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/sarchlab/flowsim/flowexport"
)

func resolve(dir, name string) string {
	if name == "" || dir == "" || filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(dir, name)
}

// Exporters returns the file and table exporters the output section asks
// for. Tables are printed to stdout.
func (o OutputSpec) Exporters(dir string, stdout io.Writer) []flowexport.Exporter {
	var exporters []flowexport.Exporter

	if o.XML != "" {
		exporters = append(exporters,
			flowexport.ToFile(resolve(dir, o.XML), flowexport.NewXMLWriter))
	}

	if o.CSV != "" {
		exporters = append(exporters,
			flowexport.ToFile(resolve(dir, o.CSV), flowexport.NewCSVWriter))
	}

	if o.Table {
		exporters = append(exporters, flowexport.NewTableWriter(stdout))
	}

	return exporters
}

// SQLitePath returns the database path without its ".sqlite3" extension, or
// "" when no database is requested.
func (o OutputSpec) SQLitePath(dir string) string {
	return strings.TrimSuffix(resolve(dir, o.SQLite), ".sqlite3")
}

// EventsPath returns the event trace path without its ".csv" extension, or
// "" when no trace is requested.
func (o OutputSpec) EventsPath(dir string) string {
	return strings.TrimSuffix(resolve(dir, o.Events), ".csv")
}

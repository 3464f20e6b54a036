package flowexport

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sarchlab/flowsim/flow"
)

// TableWriter prints a human-readable report, one line per flow followed by
// the run summary.
type TableWriter struct {
	w io.Writer
}

// NewTableWriter creates a TableWriter.
func NewTableWriter(w io.Writer) Exporter {
	return &TableWriter{w: w}
}

// Export prints the report.
func (t *TableWriter) Export(s Snapshot) error {
	tw := tabwriter.NewWriter(t.w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Run %s at %s\n\n", s.RunID, s.Now)
	fmt.Fprintln(tw, "Flow\tKey\tTx\tRx\tLost\tDup\tThroughput\tDelay\tJitter\tDelivery\t")

	for _, f := range s.Flows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%s\t%v\t%v\t%.2f%%\t\n",
			f.FlowID,
			f.Key,
			f.TxPackets,
			f.RxPackets,
			f.LostPackets,
			f.DuplicatePackets,
			formatRate(f.ThroughputBps()),
			f.MeanDelay(),
			f.MeanJitter(),
			f.DeliveryRatio()*100,
		)
	}

	sum := flow.Summarize(s.Flows)

	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Flows:\t%d\n", sum.Flows)
	fmt.Fprintf(tw, "Packets:\t%d sent, %d received, %d lost\n",
		sum.TxPackets, sum.RxPackets, sum.LostPackets)
	fmt.Fprintf(tw, "Throughput:\t%s aggregate, %s mean, %s stddev\n",
		formatRate(sum.AggregateThroughputBps),
		formatRate(sum.MeanThroughputBps),
		formatRate(sum.StdDevThroughputBps))
	fmt.Fprintf(tw, "Delay:\t%v mean, %v stddev\n", sum.MeanDelay, sum.StdDevDelay)
	fmt.Fprintf(tw, "Jitter:\t%v mean\n", sum.MeanJitter)
	fmt.Fprintf(tw, "Delivery:\t%.2f%%\n", sum.DeliveryRatio*100)

	return tw.Flush()
}

func formatRate(bps float64) string {
	switch {
	case bps >= 1e9:
		return fmt.Sprintf("%.2f Gbps", bps/1e9)
	case bps >= 1e6:
		return fmt.Sprintf("%.2f Mbps", bps/1e6)
	case bps >= 1e3:
		return fmt.Sprintf("%.2f Kbps", bps/1e3)
	default:
		return fmt.Sprintf("%.0f bps", bps)
	}
}

package flowexport

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{
	"FlowID", "Source", "Destination", "Protocol", "SrcPort", "DstPort",
	"TxPackets", "RxPackets", "TxBytes", "RxBytes", "LostPackets",
	"DuplicatePackets", "DelaySumNs", "JitterSumNs", "TimeFirstTxNs",
	"TimeLastRxNs", "ThroughputBps", "MeanDelayNs", "MeanJitterNs",
	"DeliveryRatio",
}

// CSVWriter writes one row per flow, with the derived metrics appended.
type CSVWriter struct {
	w io.Writer
}

// NewCSVWriter creates a CSVWriter.
func NewCSVWriter(w io.Writer) Exporter {
	return &CSVWriter{w: w}
}

// Export writes the header and the flows.
func (c *CSVWriter) Export(s Snapshot) error {
	cw := csv.NewWriter(c.w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	i := func(v int64) string { return strconv.FormatInt(v, 10) }
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

	for _, fs := range s.Flows {
		row := []string{
			u(uint64(fs.FlowID)),
			fs.Key.Src.String(),
			fs.Key.Dst.String(),
			fs.Key.Protocol.String(),
			u(uint64(fs.Key.SrcPort)),
			u(uint64(fs.Key.DstPort)),
			u(fs.TxPackets),
			u(fs.RxPackets),
			u(fs.TxBytes),
			u(fs.RxBytes),
			u(fs.LostPackets),
			u(fs.DuplicatePackets),
			i(int64(fs.DelaySum)),
			i(int64(fs.JitterSum)),
			i(int64(fs.TimeFirstTxPacket)),
			i(int64(fs.TimeLastRxPacket)),
			f(fs.ThroughputBps()),
			i(int64(fs.MeanDelay())),
			i(int64(fs.MeanJitter())),
			f(fs.DeliveryRatio()),
		}

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

package flowexport

import (
	"github.com/sarchlab/flowsim/datarecording"
)

// FlowTableName is the table DBWriter stores flow records in.
const FlowTableName = "flows"

type flowRow struct {
	RunID            string
	SnapshotTimeNs   int64
	FlowID           uint32
	Source           string
	Destination      string
	Protocol         uint8
	SrcPort          uint16
	DstPort          uint16
	TxPackets        uint64
	RxPackets        uint64
	TxBytes          uint64
	RxBytes          uint64
	LostPackets      uint64
	DuplicatePackets uint64
	TimesForwarded   uint64
	DelaySumNs       int64
	JitterSumNs      int64
	LastDelayNs      int64
	FirstTxNs        int64
	LastTxNs         int64
	FirstRxNs        int64
	LastRxNs         int64
	ThroughputBps    float64
}

// DBWriter stores snapshots into a DataRecorder. Each export appends one row
// per flow, so several snapshots of the same run can share a database.
type DBWriter struct {
	recorder     datarecording.DataRecorder
	tableCreated bool
}

// NewDBWriter creates a DBWriter on top of a recorder.
func NewDBWriter(recorder datarecording.DataRecorder) *DBWriter {
	return &DBWriter{recorder: recorder}
}

// Export inserts the flows and flushes the recorder.
func (d *DBWriter) Export(s Snapshot) error {
	if !d.tableCreated {
		if err := d.recorder.CreateTable(FlowTableName, flowRow{}); err != nil {
			return err
		}

		d.tableCreated = true
	}

	for _, f := range s.Flows {
		row := flowRow{
			RunID:            s.RunID,
			SnapshotTimeNs:   int64(s.Now),
			FlowID:           uint32(f.FlowID),
			Source:           f.Key.Src.String(),
			Destination:      f.Key.Dst.String(),
			Protocol:         uint8(f.Key.Protocol),
			SrcPort:          f.Key.SrcPort,
			DstPort:          f.Key.DstPort,
			TxPackets:        f.TxPackets,
			RxPackets:        f.RxPackets,
			TxBytes:          f.TxBytes,
			RxBytes:          f.RxBytes,
			LostPackets:      f.LostPackets,
			DuplicatePackets: f.DuplicatePackets,
			TimesForwarded:   f.TimesForwarded,
			DelaySumNs:       int64(f.DelaySum),
			JitterSumNs:      int64(f.JitterSum),
			LastDelayNs:      int64(f.LastDelay),
			FirstTxNs:        int64(f.TimeFirstTxPacket),
			LastTxNs:         int64(f.TimeLastTxPacket),
			FirstRxNs:        int64(f.TimeFirstRxPacket),
			LastRxNs:         int64(f.TimeLastRxPacket),
			ThroughputBps:    f.ThroughputBps(),
		}

		if err := d.recorder.InsertData(FlowTableName, row); err != nil {
			return err
		}
	}

	return d.recorder.Flush()
}

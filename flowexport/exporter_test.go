package flowexport

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/flowsim/datarecording"
	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/sim"
)

type failingExporter struct{ err error }

func (e failingExporter) Export(Snapshot) error { return e.err }

type countingExporter struct{ n int }

func (e *countingExporter) Export(Snapshot) error {
	e.n++
	return nil
}

var _ = Describe("Snapshot", func() {
	It("should hold the flows ordered by id", func() {
		s := sampleSnapshot()

		Expect(s.RunID).To(Equal("test"))
		Expect(s.Now).To(Equal(sim.VTime(0)))
		Expect(s.Flows).To(HaveLen(2))
		Expect(s.Flows[0].FlowID).To(Equal(flow.FlowID(1)))
		Expect(s.Flows[1].FlowID).To(Equal(flow.FlowID(2)))
		Expect(s.Flows[0].DelaySum).To(Equal(120 * time.Millisecond))
	})

	It("should stop at the first failing exporter", func() {
		boom := errors.New("boom")
		after := &countingExporter{}

		err := ExportAll(Snapshot{}, &countingExporter{}, failingExporter{boom}, after)

		Expect(err).To(MatchError(boom))
		Expect(after.n).To(Equal(0))
	})
})

var _ = Describe("XMLWriter", func() {
	It("should write the ns-3 layout", func() {
		buf := new(bytes.Buffer)

		Expect(NewXMLWriter(buf).Export(sampleSnapshot())).To(Succeed())

		out := buf.String()
		Expect(out).To(HavePrefix(xml.Header))
		Expect(out).To(ContainSubstring(`<FlowMonitor>`))
		Expect(out).To(ContainSubstring(`flowId="1"`))
		Expect(out).To(ContainSubstring(`timeFirstTxPacket="+1000000000ns"`))
		Expect(out).To(ContainSubstring(`delaySum="+120000000ns"`))
		Expect(out).To(ContainSubstring(`jitterSum="+20000000ns"`))
		Expect(out).To(ContainSubstring(`<Ipv4FlowClassifier>`))
		Expect(out).To(ContainSubstring(
			`sourceAddress="10.0.0.3" destinationAddress="10.0.0.2" protocol="17"`))
	})

	It("should be parseable", func() {
		buf := new(bytes.Buffer)
		Expect(NewXMLWriter(buf).Export(sampleSnapshot())).To(Succeed())

		var doc xmlFlowMonitor
		Expect(xml.Unmarshal(buf.Bytes(), &doc)).To(Succeed())
		Expect(doc.FlowStats).To(HaveLen(2))
		Expect(doc.FlowStats[1].LostPackets).To(BeZero())
		Expect(doc.FlowStats[1].TxPackets).To(Equal(uint64(1)))
		Expect(doc.Classifier[0].SourcePort).To(Equal(uint16(5000)))
	})

	It("should write the non-empty histogram bins", func() {
		buf := new(bytes.Buffer)
		Expect(NewXMLWriter(buf).Export(sampleSnapshot())).To(Succeed())

		var doc xmlFlowMonitor
		Expect(xml.Unmarshal(buf.Bytes(), &doc)).To(Succeed())

		f := doc.FlowStats[0]
		Expect(f.DelayHistogram.NBins).To(Equal(71))
		Expect(f.DelayHistogram.Bins).To(Equal([]xmlBin{
			{Index: 50, Start: "0.05", Width: "0.001", Count: 1},
			{Index: 70, Start: "0.07", Width: "0.001", Count: 1},
		}))
		Expect(f.JitterHistogram.Bins).To(Equal([]xmlBin{
			{Index: 20, Start: "0.02", Width: "0.001", Count: 1},
		}))
		Expect(f.PacketSizeHistogram.Bins).To(Equal([]xmlBin{
			{Index: 50, Start: "1000", Width: "20", Count: 2},
		}))

		Expect(doc.FlowStats[1].DelayHistogram.NBins).To(BeZero())
		Expect(doc.FlowStats[1].DelayHistogram.Bins).To(BeEmpty())
		Expect(buf.String()).To(ContainSubstring(`timesForwarded="0"`))
	})
})

var _ = Describe("CSVWriter", func() {
	It("should write a header and one row per flow", func() {
		buf := new(bytes.Buffer)
		Expect(NewCSVWriter(buf).Export(sampleSnapshot())).To(Succeed())

		records, err := csv.NewReader(buf).ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(3))
		Expect(records[0]).To(Equal(csvHeader))
		Expect(records[1][0]).To(Equal("1"))
		Expect(records[1][1]).To(Equal("10.0.0.1"))
		Expect(records[1][3]).To(Equal("UDP"))
		Expect(records[1][6]).To(Equal("2"))
		Expect(records[1][17]).To(Equal("60000000"))
		Expect(records[2][19]).To(Equal("0.000000"))
	})
})

var _ = Describe("TableWriter", func() {
	It("should print each flow and the summary", func() {
		buf := new(bytes.Buffer)
		Expect(NewTableWriter(buf).Export(sampleSnapshot())).To(Succeed())

		out := buf.String()
		Expect(out).To(ContainSubstring("Run test"))
		Expect(out).To(ContainSubstring("10.0.0.1:5000 -> 10.0.0.2:9 (UDP)"))
		Expect(out).To(ContainSubstring("100.00%"))
		Expect(out).To(ContainSubstring("3 sent, 2 received, 0 lost"))
	})

	It("should format rates", func() {
		Expect(formatRate(12)).To(Equal("12 bps"))
		Expect(formatRate(1500)).To(Equal("1.50 Kbps"))
		Expect(formatRate(2e6)).To(Equal("2.00 Mbps"))
		Expect(formatRate(3.25e9)).To(Equal("3.25 Gbps"))
	})
})

var _ = Describe("ToFile", func() {
	It("should create the file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "flows.xml")

		Expect(ToFile(path, NewXMLWriter).Export(sampleSnapshot())).To(Succeed())

		content, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("<FlowMonitor>"))
	})

	It("should report a missing directory", func() {
		path := filepath.Join(GinkgoT().TempDir(), "missing", "flows.xml")

		err := ToFile(path, NewXMLWriter).Export(sampleSnapshot())

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("DBWriter", func() {
	It("should append one row per flow and export", func() {
		path := filepath.Join(GinkgoT().TempDir(), "flows")
		recorder, err := datarecording.New(path)
		Expect(err).NotTo(HaveOccurred())
		defer recorder.Close()

		w := NewDBWriter(recorder)
		Expect(w.Export(sampleSnapshot())).To(Succeed())
		Expect(w.Export(sampleSnapshot())).To(Succeed())

		Expect(recorder.ListTables()).To(ContainElement(FlowTableName))

		info, err := os.Stat(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Size()).To(BeNumerically(">", 0))
	})
})

var _ = Describe("EventTraceWriter", func() {
	It("should record monitor anomalies", func() {
		buf := &nopCloser{}
		w := newEventTraceWriterTo(buf)

		engine := sim.NewSerialEngine()
		monitor := flow.NewMonitor(engine, nil)
		monitor.AcceptHook(w)

		p := udpPacket(7, "10.0.0.1", "10.0.0.2", 0)
		Expect(monitor.OnTx(p)).To(Succeed())
		Expect(monitor.OnRx(p, sim.FromSeconds(0.01))).To(Succeed())
		Expect(monitor.OnRx(p, sim.FromSeconds(0.02))).To(Succeed())
		Expect(monitor.OnRx(udpPacket(9, "10.0.0.1", "10.0.0.2", 0),
			sim.FromSeconds(0.03))).To(Succeed())
		Expect(monitor.OnTx(udpPacket(8, "10.0.0.1", "10.0.0.2", 0))).To(Succeed())
		Expect(monitor.CheckForLostPackets(-1)).To(Equal(1))

		Expect(w.Close()).To(Succeed())
		Expect(buf.closed).To(BeTrue())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(5))
		Expect(lines[0]).To(HavePrefix("Kind"))
		Expect(lines[1]).To(HavePrefix("flow_created, 1"))
		Expect(lines[2]).To(HavePrefix("duplicate_rx, , 7"))
		Expect(lines[3]).To(HavePrefix("unmatched_rx, , 9"))
		Expect(lines[4]).To(HavePrefix("packet_lost, 1, 8"))
	})
})

type nopCloser struct {
	bytes.Buffer
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

package flowexport

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/sarchlab/flowsim/flow"
)

type xmlFlowMonitor struct {
	XMLName    xml.Name            `xml:"FlowMonitor"`
	FlowStats  []xmlFlowStats      `xml:"FlowStats>Flow"`
	Classifier []xmlClassifierFlow `xml:"Ipv4FlowClassifier>Flow"`
}

type xmlFlowStats struct {
	FlowID            flow.FlowID `xml:"flowId,attr"`
	TimeFirstTxPacket string      `xml:"timeFirstTxPacket,attr"`
	TimeFirstRxPacket string      `xml:"timeFirstRxPacket,attr"`
	TimeLastTxPacket  string      `xml:"timeLastTxPacket,attr"`
	TimeLastRxPacket  string      `xml:"timeLastRxPacket,attr"`
	DelaySum          string      `xml:"delaySum,attr"`
	JitterSum         string      `xml:"jitterSum,attr"`
	LastDelay         string      `xml:"lastDelay,attr"`
	TxBytes           uint64      `xml:"txBytes,attr"`
	RxBytes           uint64      `xml:"rxBytes,attr"`
	TxPackets         uint64      `xml:"txPackets,attr"`
	RxPackets         uint64      `xml:"rxPackets,attr"`
	LostPackets       uint64      `xml:"lostPackets,attr"`
	DuplicatePackets  uint64      `xml:"duplicatePackets,attr"`
	TimesForwarded    uint64      `xml:"timesForwarded,attr"`

	DelayHistogram      xmlHistogram `xml:"delayHistogram"`
	JitterHistogram     xmlHistogram `xml:"jitterHistogram"`
	PacketSizeHistogram xmlHistogram `xml:"packetSizeHistogram"`
}

type xmlHistogram struct {
	NBins int      `xml:"nBins,attr"`
	Bins  []xmlBin `xml:"bin"`
}

type xmlBin struct {
	Index int    `xml:"index,attr"`
	Start string `xml:"start,attr"`
	Width string `xml:"width,attr"`
	Count uint64 `xml:"count,attr"`
}

type xmlClassifierFlow struct {
	FlowID             flow.FlowID `xml:"flowId,attr"`
	SourceAddress      string      `xml:"sourceAddress,attr"`
	DestinationAddress string      `xml:"destinationAddress,attr"`
	Protocol           uint8       `xml:"protocol,attr"`
	SourcePort         uint16      `xml:"sourcePort,attr"`
	DestinationPort    uint16      `xml:"destinationPort,attr"`
}

// XMLWriter writes snapshots in the layout of ns-3's flow monitor XML files.
type XMLWriter struct {
	w io.Writer
}

// NewXMLWriter creates an XMLWriter.
func NewXMLWriter(w io.Writer) Exporter {
	return &XMLWriter{w: w}
}

func nanos(d int64) string {
	return "+" + strconv.FormatInt(d, 10) + "ns"
}

// histogram lists the non-empty bins. Bounds are divided by unit, so that
// nanosecond histograms are written in seconds.
func histogram(h flow.Histogram, unit float64) xmlHistogram {
	out := xmlHistogram{NBins: h.NumBins()}
	width := strconv.FormatFloat(h.BinWidth/unit, 'g', -1, 64)

	for i := 0; i < h.NumBins(); i++ {
		if h.Count(i) == 0 {
			continue
		}

		out.Bins = append(out.Bins, xmlBin{
			Index: i,
			Start: strconv.FormatFloat(h.BinStart(i)/unit, 'g', -1, 64),
			Width: width,
			Count: h.Count(i),
		})
	}

	return out
}

// Export writes the snapshot as one FlowMonitor document.
func (x *XMLWriter) Export(s Snapshot) error {
	doc := xmlFlowMonitor{}

	for _, f := range s.Flows {
		doc.FlowStats = append(doc.FlowStats, xmlFlowStats{
			FlowID:            f.FlowID,
			TimeFirstTxPacket: f.TimeFirstTxPacket.String(),
			TimeFirstRxPacket: f.TimeFirstRxPacket.String(),
			TimeLastTxPacket:  f.TimeLastTxPacket.String(),
			TimeLastRxPacket:  f.TimeLastRxPacket.String(),
			DelaySum:          nanos(int64(f.DelaySum)),
			JitterSum:         nanos(int64(f.JitterSum)),
			LastDelay:         nanos(int64(f.LastDelay)),
			TxBytes:           f.TxBytes,
			RxBytes:           f.RxBytes,
			TxPackets:         f.TxPackets,
			RxPackets:         f.RxPackets,
			LostPackets:       f.LostPackets,
			DuplicatePackets:  f.DuplicatePackets,
			TimesForwarded:    f.TimesForwarded,

			DelayHistogram:      histogram(f.DelayHistogram, 1e9),
			JitterHistogram:     histogram(f.JitterHistogram, 1e9),
			PacketSizeHistogram: histogram(f.PacketSizeHistogram, 1),
		})

		doc.Classifier = append(doc.Classifier, xmlClassifierFlow{
			FlowID:             f.FlowID,
			SourceAddress:      f.Key.Src.String(),
			DestinationAddress: f.Key.Dst.String(),
			Protocol:           uint8(f.Key.Protocol),
			SourcePort:         f.Key.SrcPort,
			DestinationPort:    f.Key.DstPort,
		})
	}

	if _, err := io.WriteString(x.w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(x.w)
	enc.Indent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return err
	}

	_, err := io.WriteString(x.w, "\n")

	return err
}

package simulation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/flowexport"
	"github.com/sarchlab/flowsim/monitoring"
	"github.com/sarchlab/flowsim/netmodel"
	"github.com/sarchlab/flowsim/sim"
	"github.com/sarchlab/flowsim/traffic"
)

func twoNodeTopology(loss float64) *netmodel.Topology {
	topo := netmodel.NewTopology()

	_, err := topo.AddNode("n0", netip.MustParseAddr("10.1.1.1"))
	Expect(err).NotTo(HaveOccurred())
	_, err = topo.AddNode("n1", netip.MustParseAddr("10.1.1.2"))
	Expect(err).NotTo(HaveOccurred())

	Expect(topo.Connect("n0", "n1", netmodel.LinkConfig{
		Delay:    2 * time.Millisecond,
		DataRate: 5 * netmodel.Mbps,
		LossRate: loss,
	})).To(Succeed())

	return topo
}

func echoSource(maxPackets uint64) *traffic.CBRSource {
	return &traffic.CBRSource{
		Src:        netip.MustParseAddr("10.1.1.1"),
		Dst:        netip.MustParseAddr("10.1.1.2"),
		SrcPort:    49153,
		DstPort:    9,
		Protocol:   flow.ProtocolUDP,
		PacketSize: 1024,
		Interval:   time.Second,
		Start:      sim.FromSeconds(2),
		MaxPackets: maxPackets,
	}
}

var _ = Describe("Builder", func() {
	It("should reject a monitor port without monitoring", func() {
		_, err := MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		Expect(err).To(HaveOccurred())
	})

	It("should reject a non-positive per-hop delay", func() {
		_, err := MakeBuilder().WithoutMonitoring().WithMaxPerHopDelay(0).Build()
		Expect(err).To(HaveOccurred())
	})

	It("should reject zero histogram bin widths", func() {
		_, err := MakeBuilder().
			WithoutMonitoring().
			WithHistogramBinWidths(flow.HistogramBinWidths{}).
			Build()
		Expect(err).To(HaveOccurred())
	})

	It("should configure the flow monitor", func() {
		s, err := MakeBuilder().
			WithoutMonitoring().
			WithEventLogging().
			WithMaxPerHopDelay(time.Second).
			WithHistogramBinWidths(flow.HistogramBinWidths{
				Delay:      time.Microsecond,
				Jitter:     time.Microsecond,
				PacketSize: 1,
			}).
			Build()
		Expect(err).NotTo(HaveOccurred())
		defer s.Terminate()

		Expect(s.GetFlowMonitor().HistogramBinWidths().PacketSize).
			To(Equal(uint32(1)))

		Expect(s.ID()).NotTo(BeEmpty())
		Expect(s.GetFlowMonitor().MaxPerHopDelay()).To(Equal(time.Second))
		Expect(s.GetFlowMonitor().Classifier()).To(BeIdenticalTo(s.GetClassifier()))
		Expect(s.GetMonitor()).To(BeNil())
		Expect(s.GetEngine().NumHooks()).To(Equal(1))
	})

	It("should track the simulated time with one hook", func() {
		s, err := MakeBuilder().Build()
		Expect(err).NotTo(HaveOccurred())
		defer s.Terminate()

		hooks := s.GetEngine().NumHooks()

		s.Stop(sim.FromSeconds(1))
		Expect(s.GetEngine().NumHooks()).To(Equal(hooks + 1))

		s.Stop(sim.FromSeconds(2))
		Expect(s.GetEngine().NumHooks()).To(Equal(hooks + 1))

		rec := httptest.NewRecorder()
		s.GetMonitor().Router().ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/api/progress", nil))

		var bars []monitoring.ProgressBar
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Total).To(Equal(uint64(sim.FromSeconds(2))))
	})

	It("should serve the monitor when enabled", func() {
		s, err := MakeBuilder().Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.GetMonitor()).NotTo(BeNil())
		Expect(s.Terminate()).To(Succeed())
	})
})

var _ = Describe("Simulation", func() {
	var (
		dir string
		s   *Simulation
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		var err error
		s, err = MakeBuilder().
			WithoutMonitoring().
			WithOutputFileName(filepath.Join(dir, "run")).
			Build()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(s.Terminate()).To(Succeed())
	})

	It("should need a network before traffic", func() {
		Expect(s.AddSource(echoSource(1))).To(MatchError(ErrNoNetwork))
	})

	It("should measure an echo-like flow end to end", func() {
		s.BuildNetwork(twoNodeTopology(0), 1)
		Expect(s.AddSource(echoSource(3))).To(Succeed())
		Expect(s.GetSources()).To(HaveLen(1))

		Expect(s.Run()).To(Succeed())

		stats := s.GetFlowMonitor().SortedFlowStats()
		Expect(stats).To(HaveLen(1))
		f := stats[0]
		Expect(f.TxPackets).To(Equal(uint64(3)))
		Expect(f.RxPackets).To(Equal(uint64(3)))
		Expect(f.TimeFirstTxPacket).To(Equal(sim.FromSeconds(2)))
		Expect(f.JitterSum).To(BeZero())

		// 1024 bytes at 5 Mbps take 1638400ns, plus 2ms on the wire.
		Expect(f.MeanDelay()).To(Equal(3638400 * time.Nanosecond))
		Expect(s.GetNetwork().Stats().Delivered).To(Equal(uint64(3)))
	})

	It("should count packets lost on the link", func() {
		s.BuildNetwork(twoNodeTopology(1), 1)
		Expect(s.AddSource(echoSource(4))).To(Succeed())
		Expect(s.Run()).To(Succeed())

		Expect(s.GetFlowMonitor().InFlight()).To(Equal(4))

		// The run ends with the last send at 5s, so that packet is still
		// young enough to be in flight.
		s.GetFlowMonitor().SetMaxPerHopDelay(time.Millisecond)
		Expect(s.CheckForLostPackets()).To(Equal(3))
		Expect(s.GetFlowMonitor().InFlight()).To(Equal(1))

		f, found := s.GetFlowMonitor().FlowStatsOf(1)
		Expect(found).To(BeTrue())
		Expect(f.LostPackets).To(Equal(uint64(3)))
		Expect(f.LossRatio()).To(Equal(0.75))
	})

	It("should stop at the stop time", func() {
		s.BuildNetwork(twoNodeTopology(0), 1)
		Expect(s.AddSource(echoSource(0))).To(Succeed())

		s.Stop(sim.FromSeconds(10))
		Expect(s.Run()).To(Succeed())

		Expect(s.GetEngine().Now()).To(Equal(sim.FromSeconds(10)))
		f, _ := s.GetFlowMonitor().FlowStatsOf(1)
		Expect(f.TxPackets).To(Equal(uint64(9)))
	})

	It("should export snapshots", func() {
		s.BuildNetwork(twoNodeTopology(0), 1)
		Expect(s.AddSource(echoSource(2))).To(Succeed())
		Expect(s.Run()).To(Succeed())

		buf := new(bytes.Buffer)
		Expect(s.Export(flowexport.NewXMLWriter(buf))).To(Succeed())
		Expect(buf.String()).To(ContainSubstring(`txPackets="2"`))

		snapshot := s.Snapshot()
		Expect(snapshot.RunID).To(Equal(s.ID()))
		Expect(snapshot.Flows).To(HaveLen(1))
	})

	It("should create the database lazily", func() {
		_, err := os.Stat(filepath.Join(dir, "run.sqlite3"))
		Expect(os.IsNotExist(err)).To(BeTrue())

		s.BuildNetwork(twoNodeTopology(0), 1)
		Expect(s.AddSource(echoSource(2))).To(Succeed())
		Expect(s.Run()).To(Succeed())
		Expect(s.ExportToDataRecorder()).To(Succeed())

		recorder, err := s.GetDataRecorder()
		Expect(err).NotTo(HaveOccurred())
		Expect(recorder.ListTables()).To(ContainElement(flowexport.FlowTableName))

		_, err = os.Stat(filepath.Join(dir, "run.sqlite3"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should leave loss checks to the caller on terminate", func() {
		s.BuildNetwork(twoNodeTopology(1), 1)
		Expect(s.AddSource(echoSource(2))).To(Succeed())
		Expect(s.Run()).To(Succeed())

		lost := 0
		s.GetFlowMonitor().AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			if ctx.Pos == flow.HookPosPacketLost {
				lost++
			}
		}))
		s.GetFlowMonitor().SetMaxPerHopDelay(time.Nanosecond)

		Expect(s.Terminate()).To(Succeed())
		Expect(lost).To(BeZero())
	})

	It("should clear everything on terminate", func() {
		s.BuildNetwork(twoNodeTopology(0), 1)
		Expect(s.AddSource(echoSource(2))).To(Succeed())
		Expect(s.Run()).To(Succeed())

		Expect(s.Terminate()).To(Succeed())

		Expect(s.GetFlowMonitor().SortedFlowStats()).To(BeEmpty())
		Expect(s.GetClassifier().NumFlows()).To(BeZero())
		Expect(s.GetEngine().Now()).To(Equal(sim.VTime(0)))
		Expect(s.GetEngine().PendingEvents()).To(BeZero())
	})
})

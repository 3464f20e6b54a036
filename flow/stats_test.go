package flow

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/flowsim/sim"
)

var _ = Describe("FlowStats", func() {
	It("should compute throughput over first tx to last rx", func() {
		f := FlowStats{
			RxPackets:         10,
			RxBytes:           125000,
			TimeFirstTxPacket: sim.FromSeconds(1),
			TimeLastRxPacket:  sim.FromSeconds(2),
		}

		Expect(f.ThroughputBps()).To(BeNumerically("~", 1e6))
		Expect(f.Duration()).To(Equal(time.Second))
	})

	It("should guard the zero cases", func() {
		empty := FlowStats{}
		Expect(empty.ThroughputBps()).To(BeZero())
		Expect(empty.MeanDelay()).To(BeZero())
		Expect(empty.MeanJitter()).To(BeZero())
		Expect(empty.DeliveryRatio()).To(BeZero())
		Expect(empty.LossRatio()).To(BeZero())
		Expect(empty.Duration()).To(BeZero())

		instant := FlowStats{
			TxPackets:         1,
			RxPackets:         1,
			RxBytes:           100,
			TimeFirstTxPacket: sim.FromSeconds(3),
			TimeLastRxPacket:  sim.FromSeconds(3),
		}
		tp := instant.ThroughputBps()
		Expect(math.IsNaN(tp) || math.IsInf(tp, 0)).To(BeFalse())
		Expect(tp).To(BeZero())
		Expect(instant.DeliveryRatio()).To(Equal(1.0))
	})
})

var _ = Describe("Summarize", func() {
	It("should summarize nothing", func() {
		s := Summarize(nil)
		Expect(s).To(Equal(Summary{}))
	})

	It("should aggregate flows", func() {
		flows := []FlowStats{
			{
				TxPackets: 10, RxPackets: 10, TxBytes: 1000, RxBytes: 1000,
				DelaySum:          100 * time.Millisecond,
				TimeFirstTxPacket: 0,
				TimeLastRxPacket:  sim.FromSeconds(1),
			},
			{
				TxPackets: 10, RxPackets: 10, TxBytes: 1000, RxBytes: 1000,
				DelaySum:          300 * time.Millisecond,
				TimeFirstTxPacket: 0,
				TimeLastRxPacket:  sim.FromSeconds(1),
			},
			{TxPackets: 5, LostPackets: 5, TxBytes: 500},
		}

		s := Summarize(flows)

		Expect(s.Flows).To(Equal(3))
		Expect(s.TxPackets).To(Equal(uint64(25)))
		Expect(s.RxPackets).To(Equal(uint64(20)))
		Expect(s.LostPackets).To(Equal(uint64(5)))
		Expect(s.AggregateThroughputBps).To(BeNumerically("~", 16000))
		Expect(s.MeanDelay).To(BeNumerically("~", 20*time.Millisecond, time.Microsecond))
		Expect(s.StdDevDelay).To(BeNumerically(">", 0))
		Expect(s.DeliveryRatio).To(BeNumerically("~", 0.8))
	})

	It("should not produce NaN for a single flow", func() {
		s := Summarize([]FlowStats{{
			TxPackets: 1, RxPackets: 1, RxBytes: 10,
			DelaySum:         time.Millisecond,
			TimeLastRxPacket: sim.FromSeconds(1),
		}})

		Expect(s.StdDevThroughputBps).To(BeZero())
		Expect(s.StdDevDelay).To(BeZero())
		Expect(s.MeanDelay).To(Equal(time.Millisecond))
	})
})

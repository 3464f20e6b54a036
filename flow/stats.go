package flow

import (
	"time"

	"github.com/sarchlab/flowsim/sim"
)

// FlowStats is the accumulated record of one flow. Values returned by the
// Monitor are snapshots; modifying them does not affect the monitor.
type FlowStats struct {
	FlowID FlowID
	Key    FlowKey

	TxPackets uint64
	RxPackets uint64
	TxBytes   uint64
	RxBytes   uint64

	// LostPackets counts packets declared lost by CheckForLostPackets.
	LostPackets uint64

	// DuplicatePackets counts receptions of a packet that was already
	// received. They are not part of RxPackets, RxBytes or the delay sums.
	DuplicatePackets uint64

	DelaySum  time.Duration
	JitterSum time.Duration
	LastDelay time.Duration

	// TimesForwarded counts how often the received packets were forwarded
	// by intermediate nodes.
	TimesForwarded uint64

	// Histograms of the matched receptions. Delay and jitter are in
	// nanoseconds, packet sizes in bytes.
	DelayHistogram      Histogram
	JitterHistogram     Histogram
	PacketSizeHistogram Histogram

	TimeFirstTxPacket sim.VTime
	TimeLastTxPacket  sim.VTime
	TimeFirstRxPacket sim.VTime
	TimeLastRxPacket  sim.VTime
}

func (s FlowStats) clone() FlowStats {
	s.DelayHistogram = s.DelayHistogram.clone()
	s.JitterHistogram = s.JitterHistogram.clone()
	s.PacketSizeHistogram = s.PacketSizeHistogram.clone()

	return s
}

// ThroughputBps returns the received bits per second between the first
// transmission and the last reception. It is 0 when nothing was received or
// the interval is empty.
func (s FlowStats) ThroughputBps() float64 {
	if s.RxPackets == 0 {
		return 0
	}

	interval := s.TimeLastRxPacket.Sub(s.TimeFirstTxPacket)
	if interval <= 0 {
		return 0
	}

	return float64(s.RxBytes) * 8 / interval.Seconds()
}

// MeanDelay returns DelaySum/RxPackets, or 0 when nothing was received.
func (s FlowStats) MeanDelay() time.Duration {
	if s.RxPackets == 0 {
		return 0
	}

	return s.DelaySum / time.Duration(s.RxPackets)
}

// MeanJitter returns JitterSum/(RxPackets-1). A flow with at most one
// received packet has no jitter.
func (s FlowStats) MeanJitter() time.Duration {
	if s.RxPackets <= 1 {
		return 0
	}

	return s.JitterSum / time.Duration(s.RxPackets-1)
}

// DeliveryRatio returns RxPackets/TxPackets, or 0 when nothing was sent.
func (s FlowStats) DeliveryRatio() float64 {
	if s.TxPackets == 0 {
		return 0
	}

	return float64(s.RxPackets) / float64(s.TxPackets)
}

// LossRatio returns LostPackets/TxPackets, or 0 when nothing was sent.
func (s FlowStats) LossRatio() float64 {
	if s.TxPackets == 0 {
		return 0
	}

	return float64(s.LostPackets) / float64(s.TxPackets)
}

// Duration returns the time between the first transmission and the last
// reception, or 0 when nothing was received.
func (s FlowStats) Duration() time.Duration {
	if s.RxPackets == 0 || s.TimeLastRxPacket < s.TimeFirstTxPacket {
		return 0
	}

	return s.TimeLastRxPacket.Sub(s.TimeFirstTxPacket)
}

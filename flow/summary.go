package flow

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a set of flow records.
type Summary struct {
	Flows       int
	TxPackets   uint64
	RxPackets   uint64
	LostPackets uint64
	TxBytes     uint64
	RxBytes     uint64

	// AggregateThroughputBps is the sum of per-flow throughputs.
	AggregateThroughputBps float64
	MeanThroughputBps      float64
	StdDevThroughputBps    float64

	// MeanDelay weighs each flow's mean delay by its received packets.
	MeanDelay   time.Duration
	StdDevDelay time.Duration
	MeanJitter  time.Duration

	DeliveryRatio float64
}

// Summarize computes totals and the spread of per-flow throughput and delay.
// Flows that received nothing are excluded from the delay figures.
func Summarize(flows []FlowStats) Summary {
	s := Summary{Flows: len(flows)}
	if len(flows) == 0 {
		return s
	}

	throughputs := make([]float64, 0, len(flows))
	var delays, jitters, weights []float64

	for _, f := range flows {
		s.TxPackets += f.TxPackets
		s.RxPackets += f.RxPackets
		s.LostPackets += f.LostPackets
		s.TxBytes += f.TxBytes
		s.RxBytes += f.RxBytes

		tp := f.ThroughputBps()
		throughputs = append(throughputs, tp)
		s.AggregateThroughputBps += tp

		if f.RxPackets > 0 {
			delays = append(delays, f.MeanDelay().Seconds())
			jitters = append(jitters, f.MeanJitter().Seconds())
			weights = append(weights, float64(f.RxPackets))
		}
	}

	s.MeanThroughputBps, s.StdDevThroughputBps = meanStdDev(throughputs, nil)

	meanDelay, stdDelay := meanStdDev(delays, weights)
	s.MeanDelay = secondsToDuration(meanDelay)
	s.StdDevDelay = secondsToDuration(stdDelay)

	meanJitter, _ := meanStdDev(jitters, weights)
	s.MeanJitter = secondsToDuration(meanJitter)

	if s.TxPackets > 0 {
		s.DeliveryRatio = float64(s.RxPackets) / float64(s.TxPackets)
	}

	return s
}

// meanStdDev guards gonum's NaN results for empty and single-sample inputs.
func meanStdDev(x, weights []float64) (float64, float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}

	return stat.MeanStdDev(x, weights)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

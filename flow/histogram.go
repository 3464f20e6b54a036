package flow

import (
	"fmt"
	"math"
	"time"
)

// A Histogram counts values in bins of equal width. Bin i covers
// [i*BinWidth, (i+1)*BinWidth). Negative values land in bin 0.
type Histogram struct {
	BinWidth float64

	counts []uint64
}

// NewHistogram creates an empty histogram. It panics if binWidth is not
// positive.
func NewHistogram(binWidth float64) Histogram {
	if !(binWidth > 0) || math.IsInf(binWidth, 0) {
		panic(fmt.Sprintf("flow: invalid histogram bin width %g", binWidth))
	}

	return Histogram{BinWidth: binWidth}
}

// AddValue counts one value.
func (h *Histogram) AddValue(v float64) {
	index := 0
	if v > 0 {
		index = int(math.Floor(v / h.BinWidth))
	}

	if index >= len(h.counts) {
		grown := make([]uint64, index+1)
		copy(grown, h.counts)
		h.counts = grown
	}

	h.counts[index]++
}

// NumBins returns the number of bins up to the highest non-empty one.
func (h Histogram) NumBins() int {
	return len(h.counts)
}

// Count returns the number of values in bin i.
func (h Histogram) Count(i int) uint64 {
	if i < 0 || i >= len(h.counts) {
		return 0
	}

	return h.counts[i]
}

// BinStart returns the lower bound of bin i.
func (h Histogram) BinStart(i int) float64 {
	return float64(i) * h.BinWidth
}

// Total returns the number of values counted.
func (h Histogram) Total() uint64 {
	var total uint64
	for _, c := range h.counts {
		total += c
	}

	return total
}

func (h Histogram) clone() Histogram {
	if h.counts != nil {
		h.counts = append([]uint64(nil), h.counts...)
	}

	return h
}

// HistogramBinWidths configures the per-flow histograms. Delay and jitter
// histograms count nanoseconds, the packet size histogram counts bytes.
type HistogramBinWidths struct {
	Delay      time.Duration
	Jitter     time.Duration
	PacketSize uint32
}

// DefaultHistogramBinWidths are 1ms for delays and jitter and 20 bytes for
// packet sizes.
var DefaultHistogramBinWidths = HistogramBinWidths{
	Delay:      time.Millisecond,
	Jitter:     time.Millisecond,
	PacketSize: 20,
}

// Validate checks that every width is positive.
func (w HistogramBinWidths) Validate() error {
	if w.Delay <= 0 || w.Jitter <= 0 || w.PacketSize == 0 {
		return fmt.Errorf("histogram bin widths must be positive, got %+v", w)
	}

	return nil
}

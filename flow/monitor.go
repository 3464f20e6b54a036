package flow

import (
	"sync"
	"time"

	"github.com/sarchlab/flowsim/sim"
	"golang.org/x/exp/slices"
)

// DefaultMaxPerHopDelay is the loss timeout used by
// CheckForLostPacketsDefault unless configured otherwise.
const DefaultMaxPerHopDelay = 10 * time.Second

// A Probe observes packets leaving their source and arriving at their
// destination.
type Probe interface {
	OnTx(p PacketDescriptor) error
	OnRx(p PacketDescriptor, rxTime sim.VTime) error
}

// A ForwardProbe is a Probe that is also told when an intermediate node
// forwards a packet.
type ForwardProbe interface {
	Probe
	OnForward(p PacketDescriptor) error
}

// Hook positions raised by the Monitor.
var (
	// HookPosFlowCreated fires when a packet opens a new flow. Item is the
	// FlowStats of the new flow.
	HookPosFlowCreated = &sim.HookPos{Name: "FlowCreated"}

	// HookPosPacketLost fires for every packet declared lost. Item is a
	// LostPacket.
	HookPosPacketLost = &sim.HookPos{Name: "PacketLost"}

	// HookPosDuplicateRx fires when an already received packet is received
	// again. Item is the PacketDescriptor.
	HookPosDuplicateRx = &sim.HookPos{Name: "DuplicateRx"}

	// HookPosUnmatchedRx fires when a packet is received that is not in
	// flight, either because its transmission was never observed or because
	// it was already declared lost. Item is the PacketDescriptor.
	HookPosUnmatchedRx = &sim.HookPos{Name: "UnmatchedRx"}
)

// LostPacket describes a packet declared lost.
type LostPacket struct {
	PacketID uint64
	FlowID   FlowID
	SendTime sim.VTime
	Age      time.Duration
}

type inFlightPacket struct {
	flowID    FlowID
	sendTime  sim.VTime
	forwarded uint64
}

type flowRecord struct {
	FlowStats
	delayed uint64
}

// A Monitor keeps per-flow statistics from Tx and Rx probes. Statistics only
// grow until Reset is called.
type Monitor struct {
	*sim.HookableBase

	lock       sync.RWMutex
	clock      sim.TimeTeller
	classifier *Classifier

	flows     map[FlowID]*flowRecord
	inFlight  map[uint64]inFlightPacket
	delivered map[uint64]struct{}

	maxPerHopDelay time.Duration
	binWidths      HistogramBinWidths
}

// NewMonitor creates a Monitor that reads the current time from clock and
// assigns flows with classifier. A nil classifier gets a fresh one.
func NewMonitor(clock sim.TimeTeller, classifier *Classifier) *Monitor {
	if classifier == nil {
		classifier = NewClassifier()
	}

	return &Monitor{
		HookableBase:   sim.NewHookableBase(),
		clock:          clock,
		classifier:     classifier,
		flows:          make(map[FlowID]*flowRecord),
		inFlight:       make(map[uint64]inFlightPacket),
		delivered:      make(map[uint64]struct{}),
		maxPerHopDelay: DefaultMaxPerHopDelay,
		binWidths:      DefaultHistogramBinWidths,
	}
}

// Classifier returns the classifier used by the monitor.
func (m *Monitor) Classifier() *Classifier {
	return m.classifier
}

// SetMaxPerHopDelay sets the timeout used by CheckForLostPacketsDefault.
func (m *Monitor) SetMaxPerHopDelay(d time.Duration) {
	m.lock.Lock()
	m.maxPerHopDelay = d
	m.lock.Unlock()
}

// MaxPerHopDelay returns the timeout used by CheckForLostPacketsDefault.
func (m *Monitor) MaxPerHopDelay() time.Duration {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.maxPerHopDelay
}

// SetHistogramBinWidths sets the bin widths of the histograms of flows
// created from now on.
func (m *Monitor) SetHistogramBinWidths(w HistogramBinWidths) error {
	if err := w.Validate(); err != nil {
		return err
	}

	m.lock.Lock()
	m.binWidths = w
	m.lock.Unlock()

	return nil
}

// HistogramBinWidths returns the bin widths used for new flows.
func (m *Monitor) HistogramBinWidths() HistogramBinWidths {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.binWidths
}

// OnTx records that a packet was sent.
func (m *Monitor) OnTx(p PacketDescriptor) error {
	id, created, err := m.classifier.classify(p)
	if err != nil {
		return err
	}

	m.lock.Lock()

	rec := m.recordOf(id, p)
	if rec.TxPackets == 0 {
		rec.TimeFirstTxPacket = p.SendTime
	}
	if p.SendTime > rec.TimeLastTxPacket {
		rec.TimeLastTxPacket = p.SendTime
	}
	rec.TxPackets++
	rec.TxBytes += uint64(p.Size)

	m.inFlight[p.ID] = inFlightPacket{flowID: id, sendTime: p.SendTime}

	snapshot := rec.clone()
	m.lock.Unlock()

	if created {
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosFlowCreated,
			Item:   snapshot,
		})
	}

	return nil
}

// OnRx records that a packet arrived at its destination at rxTime. The first
// reception of a tracked packet contributes its delay and jitter; later
// receptions of the same packet only count as duplicates.
func (m *Monitor) OnRx(p PacketDescriptor, rxTime sim.VTime) error {
	id, created, err := m.classifier.classify(p)
	if err != nil {
		return err
	}

	m.lock.Lock()

	rec := m.recordOf(id, p)

	if _, seen := m.delivered[p.ID]; seen {
		rec.DuplicatePackets++
		m.lock.Unlock()

		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosDuplicateRx,
			Item:   p,
		})

		return nil
	}

	if rec.RxPackets == 0 {
		rec.TimeFirstRxPacket = rxTime
	}
	if rxTime > rec.TimeLastRxPacket {
		rec.TimeLastRxPacket = rxTime
	}
	rec.RxPackets++
	rec.RxBytes += uint64(p.Size)

	sent, tracked := m.inFlight[p.ID]
	if tracked {
		m.accountDelay(rec, rxTime.Sub(sent.sendTime), p.Size)
		rec.TimesForwarded += sent.forwarded
		delete(m.inFlight, p.ID)
		m.delivered[p.ID] = struct{}{}
	}

	snapshot := rec.clone()
	m.lock.Unlock()

	if created {
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosFlowCreated,
			Item:   snapshot,
		})
	}

	if !tracked {
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosUnmatchedRx,
			Item:   p,
		})
	}

	return nil
}

// OnForward records that an intermediate node forwarded a packet. Packets
// that are not in flight are ignored.
func (m *Monitor) OnForward(p PacketDescriptor) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	sent, tracked := m.inFlight[p.ID]
	if !tracked {
		return nil
	}

	sent.forwarded++
	m.inFlight[p.ID] = sent

	return nil
}

func (m *Monitor) accountDelay(
	rec *flowRecord,
	delay time.Duration,
	size uint32,
) {
	if rec.delayed > 0 {
		jitter := delay - rec.LastDelay
		if jitter < 0 {
			jitter = -jitter
		}
		rec.JitterSum += jitter
		rec.JitterHistogram.AddValue(float64(jitter))
	}

	rec.DelayHistogram.AddValue(float64(delay))
	rec.PacketSizeHistogram.AddValue(float64(size))

	rec.DelaySum += delay
	rec.LastDelay = delay
	rec.delayed++
}

func (m *Monitor) recordOf(id FlowID, p PacketDescriptor) *flowRecord {
	rec, found := m.flows[id]
	if !found {
		rec = &flowRecord{FlowStats: FlowStats{
			FlowID: id,
			Key:    KeyOf(p),

			DelayHistogram:      NewHistogram(float64(m.binWidths.Delay)),
			JitterHistogram:     NewHistogram(float64(m.binWidths.Jitter)),
			PacketSizeHistogram: NewHistogram(float64(m.binWidths.PacketSize)),
		}}
		m.flows[id] = rec
	}

	return rec
}

// CheckForLostPackets declares lost every sent packet that has not been
// received and was sent more than timeout ago. It returns the number of
// packets declared lost by this call.
func (m *Monitor) CheckForLostPackets(timeout time.Duration) int {
	now := m.clock.Now()

	m.lock.Lock()

	var expired []uint64
	for pktID, sent := range m.inFlight {
		if now.Sub(sent.sendTime) > timeout {
			expired = append(expired, pktID)
		}
	}
	slices.Sort(expired)

	lost := make([]LostPacket, 0, len(expired))
	for _, pktID := range expired {
		sent := m.inFlight[pktID]
		m.flows[sent.flowID].LostPackets++
		delete(m.inFlight, pktID)

		lost = append(lost, LostPacket{
			PacketID: pktID,
			FlowID:   sent.flowID,
			SendTime: sent.sendTime,
			Age:      now.Sub(sent.sendTime),
		})
	}

	m.lock.Unlock()

	for _, l := range lost {
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosPacketLost,
			Item:   l,
		})
	}

	return len(lost)
}

// CheckForLostPacketsDefault runs CheckForLostPackets with MaxPerHopDelay.
func (m *Monitor) CheckForLostPacketsDefault() int {
	return m.CheckForLostPackets(m.MaxPerHopDelay())
}

// InFlight returns the number of sent packets that are neither received nor
// declared lost.
func (m *Monitor) InFlight() int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return len(m.inFlight)
}

// GetFlowStats returns a snapshot of every flow record.
func (m *Monitor) GetFlowStats() map[FlowID]FlowStats {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make(map[FlowID]FlowStats, len(m.flows))
	for id, rec := range m.flows {
		out[id] = rec.clone()
	}

	return out
}

// SortedFlowStats returns a snapshot of every flow record, ordered by FlowID.
func (m *Monitor) SortedFlowStats() []FlowStats {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make([]FlowStats, 0, len(m.flows))
	for _, rec := range m.flows {
		out = append(out, rec.clone())
	}

	slices.SortFunc(out, func(a, b FlowStats) int {
		return int(a.FlowID) - int(b.FlowID)
	})

	return out
}

// FlowStatsOf returns the record of one flow.
func (m *Monitor) FlowStatsOf(id FlowID) (FlowStats, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	rec, found := m.flows[id]
	if !found {
		return FlowStats{}, false
	}

	return rec.clone(), true
}

// Reset clears every record, the in-flight table and the classifier.
func (m *Monitor) Reset() {
	m.lock.Lock()
	m.flows = make(map[FlowID]*flowRecord)
	m.inFlight = make(map[uint64]inFlightPacket)
	m.delivered = make(map[uint64]struct{})
	m.lock.Unlock()

	m.classifier.Reset()
}

var _ ForwardProbe = (*Monitor)(nil)

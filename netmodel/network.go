// Package netmodel provides a static wired network that carries packets over
// point-to-point links on top of the simulation engine.
package netmodel

import (
	"fmt"
	"sync"

	"github.com/iti/rngstream"
	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/sim"
	"github.com/sirupsen/logrus"
)

// HookPosPacketDropped fires when a link loses a packet. Item is a
// DroppedPacket.
var HookPosPacketDropped = &sim.HookPos{Name: "PacketDropped"}

// DroppedPacket describes a packet lost on a link.
type DroppedPacket struct {
	Packet flow.PacketDescriptor
	From   string
	To     string
	Time   sim.VTime
}

// Stats counts what happened to the packets handed to the network.
type Stats struct {
	Sent      uint64
	Delivered uint64
	Dropped   uint64
}

// channel is one direction of a link. It transmits one packet at a time.
type channel struct {
	from, to  int64
	cfg       LinkConfig
	busyUntil sim.VTime
	rng       *rngstream.RngStream
}

func (c *channel) drops() bool {
	if c.cfg.LossRate <= 0 {
		return false
	}

	return c.rng.RandU01() < c.cfg.LossRate
}

// Network moves packets between the nodes of a topology. Each packet follows
// the shortest-delay route. Every link direction serializes packets in FIFO
// order and then adds its propagation delay.
type Network struct {
	*sim.HookableBase

	engine sim.EventScheduler
	logger logrus.FieldLogger

	topo   *Topology
	routes *routeTable

	lock     sync.Mutex
	channels map[[2]int64]*channel
	probes   []flow.Probe
	stats    Stats
}

// Topology returns the topology the network was built on.
func (n *Network) Topology() *Topology {
	return n.topo
}

// AddProbe registers a probe that is told about every sent and delivered
// packet.
func (n *Network) AddProbe(p flow.Probe) {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.probes = append(n.probes, p)
}

// Stats returns the packet counters.
func (n *Network) Stats() Stats {
	n.lock.Lock()
	defer n.lock.Unlock()

	return n.stats
}

// Route returns the names of the nodes a packet from src to dst visits.
func (n *Network) Route(src, dst string) ([]string, error) {
	a, ok := n.topo.NodeByName(src)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, src)
	}

	b, ok := n.topo.NodeByName(dst)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, dst)
	}

	ids, err := n.routes.route(a.ID, b.ID)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = n.topo.nodes[id].Name
	}

	return names, nil
}

// Send injects a packet at its source node at the current time. The send
// time of the packet is overwritten with the current time. Probes see the
// packet before Send returns; delivery happens in later events.
func (n *Network) Send(p flow.PacketDescriptor) error {
	if err := p.Validate(); err != nil {
		return err
	}

	src, ok := n.topo.NodeByAddr(p.Src)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, p.Src)
	}

	dst, ok := n.topo.NodeByAddr(p.Dst)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, p.Dst)
	}

	hops, err := n.routes.route(src.ID, dst.ID)
	if err != nil {
		return err
	}

	p.SendTime = n.engine.Now()

	for _, probe := range n.probeList() {
		if err := probe.OnTx(p); err != nil {
			return err
		}
	}

	n.lock.Lock()
	n.stats.Sent++
	n.lock.Unlock()

	if len(hops) == 1 {
		_, err = n.engine.ScheduleNow(func() error {
			return n.deliver(p)
		})

		return err
	}

	return n.forward(p, hops)
}

func (n *Network) probeList() []flow.Probe {
	n.lock.Lock()
	defer n.lock.Unlock()

	return n.probes
}

// forward puts the packet on the link from hops[0] to hops[1].
func (n *Network) forward(p flow.PacketDescriptor, hops []int64) error {
	now := n.engine.Now()

	n.lock.Lock()

	ch := n.channels[[2]int64{hops[0], hops[1]}]

	start := now
	if ch.busyUntil > start {
		start = ch.busyUntil
	}
	txEnd := start.Add(ch.cfg.DataRate.TransmissionTime(p.Size))
	ch.busyUntil = txEnd

	dropped := ch.drops()
	if dropped {
		n.stats.Dropped++
	}

	n.lock.Unlock()

	if dropped {
		n.reportDrop(p, ch, now)
		return nil
	}

	rest := hops[1:]
	_, err := n.engine.ScheduleAt(txEnd.Add(ch.cfg.Delay), func() error {
		if len(rest) == 1 {
			return n.deliver(p)
		}

		if err := n.reportForward(p); err != nil {
			return err
		}

		return n.forward(p, rest)
	})

	return err
}

// reportForward tells the probes that care that an intermediate node passes
// the packet on.
func (n *Network) reportForward(p flow.PacketDescriptor) error {
	for _, probe := range n.probeList() {
		fp, ok := probe.(flow.ForwardProbe)
		if !ok {
			continue
		}

		if err := fp.OnForward(p); err != nil {
			return err
		}
	}

	return nil
}

func (n *Network) reportDrop(p flow.PacketDescriptor, ch *channel, now sim.VTime) {
	from := n.topo.nodes[ch.from].Name
	to := n.topo.nodes[ch.to].Name

	n.logger.WithFields(logrus.Fields{
		"packet": p.ID,
		"from":   from,
		"to":     to,
		"time":   now.Seconds(),
	}).Debug("packet dropped on link")

	n.InvokeHook(sim.HookCtx{
		Domain: n,
		Pos:    HookPosPacketDropped,
		Item: DroppedPacket{
			Packet: p,
			From:   from,
			To:     to,
			Time:   now,
		},
	})
}

func (n *Network) deliver(p flow.PacketDescriptor) error {
	now := n.engine.Now()

	n.lock.Lock()
	n.stats.Delivered++
	n.lock.Unlock()

	for _, probe := range n.probeList() {
		if err := probe.OnRx(p, now); err != nil {
			return err
		}
	}

	return nil
}

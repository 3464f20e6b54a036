// Package scenario loads simulation scenarios from YAML files and applies them
// to a simulation.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/netmodel"
	"github.com/sarchlab/flowsim/sim"
	"github.com/sarchlab/flowsim/simulation"
	"github.com/sarchlab/flowsim/traffic"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "10ms" or "1.5s" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*d = Duration(parsed)

	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Rate is a link data rate written as "5Mbps" in YAML.
type Rate netmodel.DataRate

// UnmarshalYAML parses a data rate.
func (r *Rate) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := netmodel.ParseDataRate(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*r = Rate(parsed)

	return nil
}

// MarshalYAML writes the rate with its unit.
func (r Rate) MarshalYAML() (any, error) {
	return netmodel.DataRate(r).String(), nil
}

// NodeSpec declares a node.
type NodeSpec struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// LinkSpec declares a point-to-point link.
type LinkSpec struct {
	A        string   `yaml:"a"`
	B        string   `yaml:"b"`
	Delay    Duration `yaml:"delay"`
	DataRate Rate     `yaml:"data_rate"`
	Loss     float64  `yaml:"loss"`
}

// FlowSpec declares a constant-bit-rate traffic source.
type FlowSpec struct {
	Src        string   `yaml:"src"`
	Dst        string   `yaml:"dst"`
	SrcPort    uint16   `yaml:"src_port"`
	DstPort    uint16   `yaml:"dst_port"`
	Protocol   string   `yaml:"protocol"`
	PacketSize uint32   `yaml:"packet_size"`
	Interval   Duration `yaml:"interval"`
	Start      Duration `yaml:"start"`
	Stop       Duration `yaml:"stop"`
	MaxPackets uint64   `yaml:"max_packets"`
}

// protocol defaults to UDP.
func (f FlowSpec) protocol() (flow.Protocol, error) {
	if f.Protocol == "" {
		return flow.ProtocolUDP, nil
	}

	return flow.ParseProtocol(f.Protocol)
}

// OutputSpec names the files the results are written to. Relative names are
// placed in the output directory. Empty names are skipped.
type OutputSpec struct {
	XML    string `yaml:"xml"`
	CSV    string `yaml:"csv"`
	SQLite string `yaml:"sqlite"`
	Events string `yaml:"events"`
	Table  bool   `yaml:"table"`
}

// HistogramSpec overrides the bin widths of the per-flow histograms. Zero
// keeps the default.
type HistogramSpec struct {
	DelayBinWidth      Duration `yaml:"delay_bin_width"`
	JitterBinWidth     Duration `yaml:"jitter_bin_width"`
	PacketSizeBinWidth uint32   `yaml:"packet_size_bin_width"`
}

// binWidths merges the overrides into the defaults.
func (h HistogramSpec) binWidths() flow.HistogramBinWidths {
	w := flow.DefaultHistogramBinWidths

	if h.DelayBinWidth > 0 {
		w.Delay = time.Duration(h.DelayBinWidth)
	}

	if h.JitterBinWidth > 0 {
		w.Jitter = time.Duration(h.JitterBinWidth)
	}

	if h.PacketSizeBinWidth > 0 {
		w.PacketSize = h.PacketSizeBinWidth
	}

	return w
}

// A Scenario describes a complete run.
type Scenario struct {
	Name        string        `yaml:"name"`
	Seed        uint64        `yaml:"seed"`
	StopTime    Duration      `yaml:"stop_time"`
	LossTimeout Duration      `yaml:"loss_timeout"`
	Histograms  HistogramSpec `yaml:"histograms"`
	Nodes       []NodeSpec    `yaml:"nodes"`
	Links       []LinkSpec    `yaml:"links"`
	Flows       []FlowSpec    `yaml:"flows"`
	Output      OutputSpec    `yaml:"output"`
}

// Load reads a scenario file. Unknown keys are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	return Parse(data)
}

// Parse decodes a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}

	return &s, nil
}

// Validate reports every problem of the scenario at once.
func (s *Scenario) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.StopTime < 0 {
		fail("stop_time must not be negative")
	}

	if s.LossTimeout < 0 {
		fail("loss_timeout must not be negative")
	}

	if s.Histograms.DelayBinWidth < 0 || s.Histograms.JitterBinWidth < 0 {
		fail("histogram bin widths must not be negative")
	}

	if len(s.Nodes) == 0 {
		fail("at least one node is required")
	}

	names := make(map[string]bool)
	addrs := make(map[netip.Addr]string)

	for i, n := range s.Nodes {
		prefix := fmt.Sprintf("nodes[%d]", i)

		if n.Name == "" {
			fail("%s: name is required", prefix)
		} else if names[n.Name] {
			fail("%s: duplicate node name %q", prefix, n.Name)
		}
		names[n.Name] = true

		addr, err := netip.ParseAddr(n.Address)
		if err != nil || !addr.Unmap().Is4() {
			fail("%s: %q is not an IPv4 address", prefix, n.Address)
			continue
		}

		addr = addr.Unmap()
		if other, found := addrs[addr]; found {
			fail("%s: address %s already used by %q", prefix, addr, other)
		}
		addrs[addr] = n.Name
	}

	for i, l := range s.Links {
		prefix := fmt.Sprintf("links[%d]", i)

		for _, end := range []string{l.A, l.B} {
			if !names[end] {
				fail("%s: unknown node %q", prefix, end)
			}
		}

		if l.A == l.B {
			fail("%s: a link needs two different nodes", prefix)
		}

		if l.Delay < 0 {
			fail("%s: delay must not be negative", prefix)
		}

		if !(l.Loss >= 0 && l.Loss <= 1) {
			fail("%s: loss must be within [0, 1]", prefix)
		}
	}

	for i, f := range s.Flows {
		prefix := fmt.Sprintf("flows[%d]", i)

		for _, end := range []string{f.Src, f.Dst} {
			if !names[end] {
				fail("%s: unknown node %q", prefix, end)
			}
		}

		proto, err := f.protocol()
		if err != nil {
			fail("%s: %v", prefix, err)
		}

		hasPorts := proto == flow.ProtocolTCP || proto == flow.ProtocolUDP
		if hasPorts && (f.SrcPort == 0 || f.DstPort == 0) {
			fail("%s: %s flows need src_port and dst_port", prefix, proto)
		}

		if f.PacketSize == 0 {
			fail("%s: packet_size must be positive", prefix)
		}

		if f.Interval <= 0 {
			fail("%s: interval must be positive", prefix)
		}

		if f.Start < 0 {
			fail("%s: start must not be negative", prefix)
		}

		if f.Stop != 0 && f.Stop < f.Start {
			fail("%s: stop is before start", prefix)
		}

		if s.StopTime == 0 && f.Stop == 0 && f.MaxPackets == 0 {
			fail("%s: never ends, set stop, max_packets or stop_time", prefix)
		}
	}

	return errors.Join(errs...)
}

// Topology builds the network topology of the scenario.
func (s *Scenario) Topology() (*netmodel.Topology, error) {
	topo := netmodel.NewTopology()

	for _, n := range s.Nodes {
		addr, err := netip.ParseAddr(n.Address)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.Name, err)
		}

		if _, err := topo.AddNode(n.Name, addr); err != nil {
			return nil, err
		}
	}

	for _, l := range s.Links {
		err := topo.Connect(l.A, l.B, netmodel.LinkConfig{
			Delay:    time.Duration(l.Delay),
			DataRate: netmodel.DataRate(l.DataRate),
			LossRate: l.Loss,
		})
		if err != nil {
			return nil, err
		}
	}

	return topo, nil
}

// Sources builds one traffic source per flow.
func (s *Scenario) Sources(topo *netmodel.Topology) ([]*traffic.CBRSource, error) {
	sources := make([]*traffic.CBRSource, 0, len(s.Flows))

	for i, f := range s.Flows {
		src, ok := topo.NodeByName(f.Src)
		if !ok {
			return nil, fmt.Errorf("flows[%d]: %w: %s", i, netmodel.ErrUnknownNode, f.Src)
		}

		dst, ok := topo.NodeByName(f.Dst)
		if !ok {
			return nil, fmt.Errorf("flows[%d]: %w: %s", i, netmodel.ErrUnknownNode, f.Dst)
		}

		proto, err := f.protocol()
		if err != nil {
			return nil, fmt.Errorf("flows[%d]: %w", i, err)
		}

		source := &traffic.CBRSource{
			Src:        src.Addr,
			Dst:        dst.Addr,
			SrcPort:    f.SrcPort,
			DstPort:    f.DstPort,
			Protocol:   proto,
			PacketSize: f.PacketSize,
			Interval:   time.Duration(f.Interval),
			Start:      sim.FromDuration(time.Duration(f.Start)),
			MaxPackets: f.MaxPackets,
		}
		if f.Stop > 0 {
			source.Stop = sim.FromDuration(time.Duration(f.Stop))
		}

		sources = append(sources, source)
	}

	return sources, nil
}

// Apply validates the scenario and builds its network, traffic and stop time
// into the simulation.
func (s *Scenario) Apply(sm *simulation.Simulation) error {
	if err := s.Validate(); err != nil {
		return err
	}

	topo, err := s.Topology()
	if err != nil {
		return err
	}

	err = sm.GetFlowMonitor().SetHistogramBinWidths(s.Histograms.binWidths())
	if err != nil {
		return err
	}

	sm.BuildNetwork(topo, s.Seed)

	sources, err := s.Sources(topo)
	if err != nil {
		return err
	}

	for _, src := range sources {
		if err := sm.AddSource(src); err != nil {
			return err
		}
	}

	if s.StopTime > 0 {
		sm.Stop(sim.FromDuration(time.Duration(s.StopTime)))
	}

	if s.LossTimeout > 0 {
		sm.GetFlowMonitor().SetMaxPerHopDelay(time.Duration(s.LossTimeout))
	}

	return nil
}

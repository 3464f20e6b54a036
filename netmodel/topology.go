package netmodel

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// Errors reported while building a topology or sending packets.
var (
	ErrUnknownNode    = errors.New("unknown node")
	ErrUnknownAddress = errors.New("unknown address")
	ErrDuplicateNode  = errors.New("duplicate node")
	ErrNoRoute        = errors.New("no route")
)

// A Node is a host or router with one IPv4 address.
type Node struct {
	ID   int64
	Name string
	Addr netip.Addr
}

// LinkConfig describes a point-to-point link. Both directions share the same
// configuration but transmit independently.
type LinkConfig struct {
	Delay    time.Duration
	DataRate DataRate
	LossRate float64
}

// A Link connects two nodes.
type Link struct {
	A, B string
	LinkConfig
}

// Topology is a static set of nodes and links.
type Topology struct {
	nodes  []Node
	byName map[string]int64
	byAddr map[netip.Addr]int64
	links  []Link
	adj    map[[2]int64]int
}

// NewTopology creates an empty topology.
func NewTopology() *Topology {
	return &Topology{
		byName: make(map[string]int64),
		byAddr: make(map[netip.Addr]int64),
		adj:    make(map[[2]int64]int),
	}
}

// AddNode adds a node. Names and addresses must be unique and the address
// must be IPv4.
func (t *Topology) AddNode(name string, addr netip.Addr) (Node, error) {
	addr = addr.Unmap()

	if name == "" {
		return Node{}, errors.New("node name is empty")
	}

	if !addr.Is4() {
		return Node{}, fmt.Errorf("node %s: %s is not an IPv4 address", name, addr)
	}

	if _, found := t.byName[name]; found {
		return Node{}, fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}

	if other, found := t.byAddr[addr]; found {
		return Node{}, fmt.Errorf("%w: %s shares %s with %s",
			ErrDuplicateNode, name, addr, t.nodes[other].Name)
	}

	n := Node{ID: int64(len(t.nodes)), Name: name, Addr: addr}
	t.nodes = append(t.nodes, n)
	t.byName[name] = n.ID
	t.byAddr[addr] = n.ID

	return n, nil
}

// Connect links two existing nodes.
func (t *Topology) Connect(a, b string, cfg LinkConfig) error {
	na, ok := t.byName[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, a)
	}

	nb, ok := t.byName[b]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, b)
	}

	switch {
	case na == nb:
		return fmt.Errorf("link %s-%s connects a node to itself", a, b)
	case cfg.Delay < 0:
		return fmt.Errorf("link %s-%s has a negative delay", a, b)
	case !cfg.DataRate.valid():
		return fmt.Errorf("link %s-%s has invalid data rate %g",
			a, b, float64(cfg.DataRate))
	case !(cfg.LossRate >= 0 && cfg.LossRate <= 1):
		return fmt.Errorf("link %s-%s has loss rate %g outside [0, 1]",
			a, b, cfg.LossRate)
	}

	if _, found := t.adj[[2]int64{na, nb}]; found {
		return fmt.Errorf("nodes %s and %s are already linked", a, b)
	}

	idx := len(t.links)
	t.links = append(t.links, Link{A: a, B: b, LinkConfig: cfg})
	t.adj[[2]int64{na, nb}] = idx
	t.adj[[2]int64{nb, na}] = idx

	return nil
}

// Nodes returns all nodes in the order they were added.
func (t *Topology) Nodes() []Node {
	return append([]Node(nil), t.nodes...)
}

// Links returns all links in the order they were added.
func (t *Topology) Links() []Link {
	return append([]Link(nil), t.links...)
}

// NodeByName finds a node by name.
func (t *Topology) NodeByName(name string) (Node, bool) {
	id, found := t.byName[name]
	if !found {
		return Node{}, false
	}

	return t.nodes[id], true
}

// NodeByAddr finds the node that owns an address.
func (t *Topology) NodeByAddr(addr netip.Addr) (Node, bool) {
	id, found := t.byAddr[addr.Unmap().WithZone("")]
	if !found {
		return Node{}, false
	}

	return t.nodes[id], true
}

func (t *Topology) link(from, to int64) (int, bool) {
	idx, found := t.adj[[2]int64{from, to}]
	return idx, found
}

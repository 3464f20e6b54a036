package flow

import (
	"fmt"
	"net/netip"
)

// FlowID identifies a flow within one monitoring run. IDs start at 1 and are
// handed out in the order flows are first seen.
type FlowID uint32

// A FlowKey is the 5-tuple that defines a flow. Flows are directional: the
// reverse direction of a conversation is a different flow.
type FlowKey struct {
	Src      netip.Addr
	Dst      netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol Protocol
}

// KeyOf builds the normalized flow key of a valid packet. IPv4-mapped IPv6
// addresses are unmapped, zones are dropped and port-less protocols get zero
// ports, so equal 5-tuples always produce equal keys.
func KeyOf(p PacketDescriptor) FlowKey {
	k := FlowKey{
		Src:      normalizeAddr(p.Src),
		Dst:      normalizeAddr(p.Dst),
		Protocol: p.Protocol,
	}

	if p.Protocol.hasPorts() {
		k.SrcPort = p.SrcPort
		k.DstPort = p.DstPort
	}

	return k
}

func normalizeAddr(a netip.Addr) netip.Addr {
	return a.Unmap().WithZone("")
}

func (k FlowKey) String() string {
	if !k.Protocol.hasPorts() {
		return fmt.Sprintf("%s -> %s (%s)", k.Src, k.Dst, k.Protocol)
	}

	return fmt.Sprintf("%s -> %s (%s)",
		netip.AddrPortFrom(k.Src, k.SrcPort),
		netip.AddrPortFrom(k.Dst, k.DstPort),
		k.Protocol)
}

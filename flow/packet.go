package flow

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"

	"github.com/sarchlab/flowsim/sim"
)

// Protocol is the IP protocol number of a packet.
type Protocol uint8

// Protocols with dedicated handling. Other protocol numbers are accepted and
// classified without ports.
const (
	ProtocolICMP Protocol = 1
	ProtocolTCP  Protocol = 6
	ProtocolUDP  Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case ProtocolICMP:
		return "ICMP"
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	default:
		return strconv.Itoa(int(p))
	}
}

// ParseProtocol converts a protocol name ("udp", "TCP") or number into a
// Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "icmp", "ICMP":
		return ProtocolICMP, nil
	case "tcp", "TCP":
		return ProtocolTCP, nil
	case "udp", "UDP":
		return ProtocolUDP, nil
	}

	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("flow: unknown protocol %q", s)
	}

	return Protocol(n), nil
}

// hasPorts tells if the 5-tuple of this protocol carries ports.
func (p Protocol) hasPorts() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// A PacketDescriptor is the metadata of one simulated packet. It is created
// when the packet is sent and never modified afterward.
type PacketDescriptor struct {
	ID       uint64
	Size     uint32
	Src      netip.Addr
	Dst      netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol Protocol
	SendTime sim.VTime
}

// ErrInvalidPacket is matched by every InvalidPacketError through errors.Is.
var ErrInvalidPacket = errors.New("flow: invalid packet")

// InvalidPacketError reports a packet descriptor that cannot be classified.
type InvalidPacketError struct {
	PacketID uint64
	Reason   string
}

func (e *InvalidPacketError) Error() string {
	return fmt.Sprintf("flow: invalid packet %d: %s", e.PacketID, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidPacket) hold.
func (e *InvalidPacketError) Is(target error) bool {
	return target == ErrInvalidPacket
}

// Validate checks that the descriptor has everything needed to build its
// flow key.
func (p PacketDescriptor) Validate() error {
	reason := ""

	switch {
	case !p.Src.IsValid():
		reason = "missing source address"
	case !p.Dst.IsValid():
		reason = "missing destination address"
	case p.Protocol == 0:
		reason = "missing protocol"
	case p.Protocol.hasPorts() && p.SrcPort == 0:
		reason = "missing source port"
	case p.Protocol.hasPorts() && p.DstPort == 0:
		reason = "missing destination port"
	}

	if reason != "" {
		return &InvalidPacketError{PacketID: p.ID, Reason: reason}
	}

	return nil
}

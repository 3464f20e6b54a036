// Package traffic provides packet sources that drive a network.
package traffic

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/idgen"
	"github.com/sarchlab/flowsim/sim"
)

// A Sender accepts packets at the current simulated time.
type Sender interface {
	Send(p flow.PacketDescriptor) error
}

// CBRSource sends fixed-size packets at a constant interval. Sending starts
// at Start and continues while the current time is before Stop and fewer
// than MaxPackets packets were sent. A zero Stop or MaxPackets is unbounded.
type CBRSource struct {
	Src, Dst         netip.Addr
	SrcPort, DstPort uint16
	Protocol         flow.Protocol
	PacketSize       uint32
	Interval         time.Duration
	Start, Stop      sim.VTime
	MaxPackets       uint64

	engine sim.EventScheduler
	out    Sender
	ids    idgen.Generator
	sent   uint64
}

// Validate checks the source parameters.
func (s *CBRSource) Validate() error {
	var errs []error

	if !s.Src.IsValid() {
		errs = append(errs, errors.New("source address is not set"))
	}

	if !s.Dst.IsValid() {
		errs = append(errs, errors.New("destination address is not set"))
	}

	if s.PacketSize == 0 {
		errs = append(errs, errors.New("packet size must be positive"))
	}

	if s.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}

	if s.Stop != 0 && s.Stop < s.Start {
		errs = append(errs, fmt.Errorf("stop %s is before start %s", s.Stop, s.Start))
	}

	return errors.Join(errs...)
}

// Install schedules the first packet of the source. Every sent packet
// schedules the next one.
func (s *CBRSource) Install(
	engine sim.EventScheduler,
	out Sender,
	ids idgen.Generator,
) error {
	if err := s.Validate(); err != nil {
		return err
	}

	s.engine = engine
	s.out = out
	s.ids = ids
	s.sent = 0

	_, err := engine.ScheduleAt(s.Start, s.tick)

	return err
}

// Sent returns the number of packets sent so far.
func (s *CBRSource) Sent() uint64 {
	return s.sent
}

func (s *CBRSource) done(now sim.VTime) bool {
	if s.Stop != 0 && now >= s.Stop {
		return true
	}

	return s.MaxPackets != 0 && s.sent >= s.MaxPackets
}

func (s *CBRSource) tick() error {
	now := s.engine.Now()
	if s.done(now) {
		return nil
	}

	err := s.out.Send(flow.PacketDescriptor{
		ID:       s.ids.Generate(),
		Size:     s.PacketSize,
		Src:      s.Src,
		Dst:      s.Dst,
		SrcPort:  s.SrcPort,
		DstPort:  s.DstPort,
		Protocol: s.Protocol,
		SendTime: now,
	})
	if err != nil {
		return err
	}

	s.sent++

	if s.done(now.Add(s.Interval)) {
		return nil
	}

	_, err = s.engine.Schedule(s.Interval, s.tick)

	return err
}

package traffic

import (
	"errors"
	"net/netip"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/idgen"
	"github.com/sarchlab/flowsim/sim"
)

type collectingSender struct {
	packets []flow.PacketDescriptor
	err     error
}

func (c *collectingSender) Send(p flow.PacketDescriptor) error {
	if c.err != nil {
		return c.err
	}

	c.packets = append(c.packets, p)

	return nil
}

var _ = Describe("CBRSource", func() {
	var (
		engine *sim.SerialEngine
		out    *collectingSender
		ids    *idgen.Sequential
		source *CBRSource
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		out = &collectingSender{}
		ids = idgen.New()
		source = &CBRSource{
			Src:        netip.MustParseAddr("10.0.0.1"),
			Dst:        netip.MustParseAddr("10.0.0.2"),
			SrcPort:    49153,
			DstPort:    9,
			Protocol:   flow.ProtocolUDP,
			PacketSize: 512,
			Interval:   100 * time.Millisecond,
			Start:      sim.FromSeconds(1),
		}
	})

	It("should stop after MaxPackets", func() {
		source.MaxPackets = 4

		Expect(source.Install(engine, out, ids)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(out.packets).To(HaveLen(4))
		Expect(source.Sent()).To(Equal(uint64(4)))
		for i, p := range out.packets {
			Expect(p.ID).To(Equal(uint64(i + 1)))
			Expect(p.Size).To(Equal(uint32(512)))
			Expect(p.SendTime).To(Equal(
				sim.FromSeconds(1).Add(time.Duration(i) * 100 * time.Millisecond)))
		}
		Expect(engine.PendingEvents()).To(BeZero())
	})

	It("should not send at or after Stop", func() {
		source.Stop = sim.FromSeconds(1.5)

		Expect(source.Install(engine, out, ids)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(out.packets).To(HaveLen(5))
		Expect(out.packets[4].SendTime).To(Equal(sim.FromSeconds(1.4)))
	})

	It("should keep sending until the engine stops", func() {
		engine.Stop(sim.FromSeconds(2))

		Expect(source.Install(engine, out, ids)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(out.packets).To(HaveLen(11))
	})

	It("should share the id generator between sources", func() {
		other := *source
		other.SrcPort = 49154
		source.MaxPackets = 2
		other.MaxPackets = 2

		Expect(source.Install(engine, out, ids)).To(Succeed())
		Expect(other.Install(engine, out, ids)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(out.packets).To(HaveLen(4))
		Expect(ids.Last()).To(Equal(uint64(4)))
		Expect(out.packets[0].SrcPort).To(Equal(uint16(49153)))
		Expect(out.packets[1].SrcPort).To(Equal(uint16(49154)))
	})

	It("should abort the run when sending fails", func() {
		out.err = errors.New("no route")

		Expect(source.Install(engine, out, ids)).To(Succeed())

		err := engine.Run()
		Expect(errors.Is(err, out.err)).To(BeTrue())
	})

	It("should reject invalid parameters", func() {
		source.Interval = 0
		source.PacketSize = 0
		source.Stop = sim.FromSeconds(0.5)

		err := source.Install(engine, out, ids)

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("interval"))
		Expect(err.Error()).To(ContainSubstring("packet size"))
		Expect(err.Error()).To(ContainSubstring("before start"))
	})

	It("should not start in the past", func() {
		_, err := engine.Schedule(2*time.Second, func() error {
			return source.Install(engine, out, ids)
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(MatchError(sim.ErrInvalidTime))
	})
})

package flow

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/flowsim/sim"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var _ = Describe("AnomalyLogger", func() {
	var (
		hook    *test.Hook
		monitor *Monitor
	)

	BeforeEach(func() {
		var logger *logrus.Logger
		logger, hook = test.NewNullLogger()
		logger.SetLevel(logrus.DebugLevel)

		monitor = NewMonitor(sim.NewSerialEngine(), nil)
		monitor.AcceptHook(NewAnomalyLogger(logger))
	})

	It("should warn about duplicate and unmatched receptions", func() {
		p := udpPacket(1, "10.0.0.1", 5000, "10.0.0.2", 9)
		Expect(monitor.OnTx(p)).To(Succeed())
		Expect(monitor.OnRx(p, 10)).To(Succeed())
		Expect(monitor.OnRx(p, 20)).To(Succeed())
		Expect(monitor.OnRx(udpPacket(2, "10.0.0.1", 5000, "10.0.0.2", 9), 30)).
			To(Succeed())

		var warnings []string
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel {
				warnings = append(warnings, e.Message)
			}
		}

		Expect(warnings).To(Equal([]string{
			"duplicate reception",
			"reception of a packet not in flight",
		}))
		Expect(hook.AllEntries()[0].Message).To(Equal("new flow"))
	})
})

package sim

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("VTime", func() {
	It("should convert from seconds exactly", func() {
		Expect(FromSeconds(1.05)).To(Equal(VTime(1050000000)))
		Expect(FromSeconds(1.05).Sub(FromSeconds(1))).
			To(Equal(50 * time.Millisecond))
	})

	It("should add durations", func() {
		Expect(FromSeconds(1).Add(time.Millisecond)).
			To(Equal(VTime(1001000000)))
		Expect(FromDuration(time.Second)).To(Equal(FromSeconds(1)))
	})

	It("should format like ns-3", func() {
		Expect(FromSeconds(1.5).String()).To(Equal("+1500000000ns"))
		Expect(FromSeconds(1.5).Seconds()).To(BeNumerically("~", 1.5))
	})

	It("should detect overflow", func() {
		Expect(addOverflows(MaxVTime-1, 2)).To(BeTrue())
		Expect(addOverflows(MaxVTime-1, 1)).To(BeFalse())
		Expect(addOverflows(MaxVTime, 0)).To(BeFalse())
	})
})

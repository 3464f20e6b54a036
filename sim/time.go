package sim

import (
	"math"
	"strconv"
	"time"
)

// VTime is a point in simulated time, counted in nanoseconds from the start
// of the simulation.
type VTime int64

// MaxVTime is the largest representable simulated time.
const MaxVTime = VTime(math.MaxInt64)

// FromSeconds converts a time expressed in seconds into a VTime. The value is
// rounded to the nearest nanosecond.
func FromSeconds(s float64) VTime {
	return VTime(math.Round(s * 1e9))
}

// FromDuration converts a duration measured from the epoch into a VTime.
func FromDuration(d time.Duration) VTime {
	return VTime(d)
}

// Add returns t+d.
func (t VTime) Add(d time.Duration) VTime {
	return t + VTime(d)
}

// Sub returns the duration t-u.
func (t VTime) Sub(u VTime) time.Duration {
	return time.Duration(t - u)
}

// Seconds returns the time as a floating point number of seconds.
func (t VTime) Seconds() float64 {
	return float64(t) / 1e9
}

// String formats the time the way ns-3 prints it, e.g. "+1050000000ns".
func (t VTime) String() string {
	if t < 0 {
		return strconv.FormatInt(int64(t), 10) + "ns"
	}

	return "+" + strconv.FormatInt(int64(t), 10) + "ns"
}

// addOverflows tells if t+d cannot be represented.
func addOverflows(t VTime, d time.Duration) bool {
	return d > 0 && t > MaxVTime-VTime(d)
}

package netmodel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DataRate is a link capacity in bits per second. Zero means unlimited.
type DataRate float64

// Common data rates.
const (
	Bps  DataRate = 1
	Kbps          = 1e3 * Bps
	Mbps          = 1e6 * Bps
	Gbps          = 1e9 * Bps
)

var rateUnits = []struct {
	name  string
	scale DataRate
}{
	{"Gbps", Gbps},
	{"Mbps", Mbps},
	{"Kbps", Kbps},
	{"bps", Bps},
}

// ParseDataRate parses rates such as "5Mbps", "1.5 Gbps" or "800kbps". A bare
// number is taken as bits per second.
func ParseDataRate(s string) (DataRate, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	scale := Bps

	for _, u := range rateUnits {
		suffix := strings.ToLower(u.name)
		if strings.HasSuffix(str, suffix) {
			str = strings.TrimSpace(strings.TrimSuffix(str, suffix))
			scale = u.scale

			break
		}
	}

	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid data rate %q", s)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("data rate %q is not finite", s)
	}

	if v < 0 {
		return 0, fmt.Errorf("negative data rate %q", s)
	}

	return DataRate(v) * scale, nil
}

// TransmissionTime returns how long it takes to put size bytes on a link of
// this rate.
func (r DataRate) TransmissionTime(size uint32) time.Duration {
	if !r.valid() || r == 0 {
		return 0
	}

	bits := float64(size) * 8

	return time.Duration(math.Round(bits * float64(time.Second) / float64(r)))
}

func (r DataRate) String() string {
	for _, u := range rateUnits {
		if r >= u.scale {
			return strconv.FormatFloat(float64(r/u.scale), 'g', -1, 64) + u.name
		}
	}

	return strconv.FormatFloat(float64(r), 'g', -1, 64) + "bps"
}

func (r DataRate) valid() bool {
	v := float64(r)
	return v >= 0 && !math.IsInf(v, 0)
}

package netmodel

import (
	"fmt"

	"github.com/iti/rngstream"
	"github.com/sarchlab/flowsim/sim"
	"github.com/sirupsen/logrus"
)

// Builder can build networks.
type Builder struct {
	engine sim.EventScheduler
	seed   uint64
	logger logrus.FieldLogger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		logger: logrus.StandardLogger(),
	}
}

// WithEngine sets the engine that schedules packet transmissions.
func (b Builder) WithEngine(engine sim.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithSeed sets the seed of the link loss streams. Two networks built over
// the same topology with the same seed drop the same packets.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger logrus.FieldLogger) Builder {
	b.logger = logger
	return b
}

// Build creates a network over the topology.
func (b Builder) Build(topo *Topology) *Network {
	if b.engine == nil {
		panic("netmodel: engine is not set")
	}

	n := &Network{
		HookableBase: sim.NewHookableBase(),
		engine:       b.engine,
		logger:       b.logger,
		topo:         topo,
		routes:       newRouteTable(topo),
		channels:     make(map[[2]int64]*channel),
	}

	for _, l := range topo.links {
		a := topo.byName[l.A]
		z := topo.byName[l.B]

		n.channels[[2]int64{a, z}] = b.newChannel(a, z, l)
		n.channels[[2]int64{z, a}] = b.newChannel(z, a, l)
	}

	return n
}

// Bounds of the two rngstream generator components.
const (
	seedModulus1 = 4294967087
	seedModulus2 = 4294944443
)

func (b Builder) newChannel(from, to int64, l Link) *channel {
	c := &channel{from: from, to: to, cfg: l.LinkConfig}

	if l.LossRate > 0 {
		c.rng = rngstream.New(fmt.Sprintf("link-%d-%d", from, to))
		if !c.rng.SetSeed(streamSeed(b.seed, from, to)) {
			panic("netmodel: invalid link stream seed")
		}
	}

	return c
}

// streamSeed derives the six seed words of a link direction from the network
// seed. Every word is nonzero and below its component modulus.
func streamSeed(seed uint64, from, to int64) []uint64 {
	state := seed ^ uint64(from)<<32 ^ uint64(to)
	words := make([]uint64, 6)

	for i := range words {
		x := splitMix64(&state)

		modulus := uint64(seedModulus1)
		if i >= 3 {
			modulus = seedModulus2
		}

		words[i] = x%(modulus-1) + 1
	}

	return words
}

func splitMix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb

	return z ^ (z >> 31)
}

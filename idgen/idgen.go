// Package idgen provides deterministic packet id generators.
package idgen

import "sync/atomic"

// Generator produces unique identifiers.
type Generator interface {
	Generate() uint64
}

// Sequential hands out 1, 2, 3, ... It is safe for concurrent use, but ids
// are only reproducible across runs when a single goroutine draws them.
type Sequential struct {
	next atomic.Uint64
}

// New returns a sequential generator whose first emitted id is 1.
func New() *Sequential {
	return &Sequential{}
}

// Generate returns the next id.
func (g *Sequential) Generate() uint64 {
	return g.next.Add(1)
}

// Last returns the most recently generated id, or 0 if none was generated.
func (g *Sequential) Last() uint64 {
	return g.next.Load()
}

// Reset makes the generator start over from 1.
func (g *Sequential) Reset() {
	g.next.Store(0)
}

var _ Generator = (*Sequential)(nil)

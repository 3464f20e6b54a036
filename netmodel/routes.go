package netmodel

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// hopCost keeps zero-delay links from producing zero-cost cycles and makes
// fewer hops win between equal-delay paths.
const hopCost = 1.0

// routeTable computes shortest-delay paths over a topology and caches one
// shortest path tree per source node.
type routeTable struct {
	lock  sync.Mutex
	topo  *Topology
	graph *simple.WeightedUndirectedGraph
	trees map[int64]path.Shortest
}

func newRouteTable(topo *Topology) *routeTable {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))

	for _, n := range topo.nodes {
		g.AddNode(simple.Node(n.ID))
	}

	numLinks := float64(len(topo.links) + 1)
	for i, l := range topo.links {
		a := topo.byName[l.A]
		b := topo.byName[l.B]

		// Weights are nanoseconds plus a hop cost. The index term breaks ties
		// between otherwise equal paths the same way on every run.
		w := float64(l.Delay.Nanoseconds()) + hopCost +
			float64(i+1)/(numLinks*numLinks)

		g.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(a),
			T: simple.Node(b),
			W: w,
		})
	}

	return &routeTable{
		topo:  topo,
		graph: g,
		trees: make(map[int64]path.Shortest),
	}
}

func (r *routeTable) tree(from int64) path.Shortest {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, found := r.trees[from]
	if !found {
		t = path.DijkstraFrom(simple.Node(from), r.graph)
		r.trees[from] = t
	}

	return t
}

// route returns the node ids from src to dst, both included.
func (r *routeTable) route(src, dst int64) ([]int64, error) {
	if src == dst {
		return []int64{src}, nil
	}

	nodes, _ := r.tree(src).To(dst)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w from %s to %s", ErrNoRoute,
			r.topo.nodes[src].Name, r.topo.nodes[dst].Name)
	}

	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}

	return ids, nil
}

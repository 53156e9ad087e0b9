// Package topology builds the miner graph a simulation runs on.
package topology

import (
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Type selects a graph generator.
type Type int

const (
	Complete Type = iota + 1
	Geometric
	Lobster
	Static
)

var (
	ErrUnknownType  = errors.New("unknown topology type")
	ErrInvalidGraph = errors.New("invalid topology")
)

// maxGeometricAttempts bounds resampling of a disconnected geometric graph.
const maxGeometricAttempts = 1000

func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "COMPLETE", "FULL":
		return Complete, nil
	case "GEOMETRIC", "GEOMETRIC_UNIFORM_DELAY":
		return Geometric, nil
	case "LOBSTER", "LOBSTER_UNIFORM_DELAY":
		return Lobster, nil
	case "STATIC":
		return Static, nil
	}
	return 0, errors.Wrapf(ErrUnknownType, "%q", s)
}

func (t Type) String() string {
	switch t {
	case Complete:
		return "COMPLETE"
	case Geometric:
		return "GEOMETRIC"
	case Lobster:
		return "LOBSTER"
	case Static:
		return "STATIC"
	}
	return "UNKNOWN"
}

// Edge is one direction of a link.
type Edge struct {
	To    int
	Delay Distribution
}

// Graph is an undirected miner graph over ids 0..Len()-1.
type Graph struct {
	adj [][]Edge
}

func New(n int) *Graph {
	return &Graph{adj: make([][]Edge, n)}
}

func (g *Graph) Len() int {
	return len(g.adj)
}

// AddEdge links a and b in both directions with the same delay law.
func (g *Graph) AddEdge(a, b int, delay Distribution) error {
	if a == b {
		return errors.Wrapf(ErrInvalidGraph, "self loop on %d", a)
	}
	if a < 0 || b < 0 || a >= g.Len() || b >= g.Len() {
		return errors.Wrapf(ErrInvalidGraph, "edge %d-%d outside 0..%d", a, b, g.Len()-1)
	}
	if g.HasEdge(a, b) {
		return nil
	}
	g.adj[a] = insertEdge(g.adj[a], Edge{To: b, Delay: delay})
	g.adj[b] = insertEdge(g.adj[b], Edge{To: a, Delay: delay})
	return nil
}

func insertEdge(edges []Edge, e Edge) []Edge {
	i := sort.Search(len(edges), func(i int) bool { return edges[i].To >= e.To })
	edges = append(edges, Edge{})
	copy(edges[i+1:], edges[i:])
	edges[i] = e
	return edges
}

func (g *Graph) HasEdge(a, b int) bool {
	for _, e := range g.adj[a] {
		if e.To == b {
			return true
		}
	}
	return false
}

// Neighbors returns the edges leaving i, ordered by peer id.
func (g *Graph) Neighbors(i int) []Edge {
	return g.adj[i]
}

// Connected reports whether every miner can reach every other.
func (g *Graph) Connected() bool {
	if g.Len() == 0 {
		return false
	}
	visited := make([]bool, g.Len())
	stack := []int{0}
	visited[0] = true
	count := 1
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.adj[i] {
			if !visited[e.To] {
				visited[e.To] = true
				count++
				stack = append(stack, e.To)
			}
		}
	}
	return count == g.Len()
}

// Diameter is the longest shortest path in hops.
func (g *Graph) Diameter() int {
	diameter := 0
	for src := 0; src < g.Len(); src++ {
		dist := make([]int, g.Len())
		for i := range dist {
			dist[i] = -1
		}
		dist[src] = 0
		queue := []int{src}
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			for _, e := range g.adj[i] {
				if dist[e.To] < 0 {
					dist[e.To] = dist[i] + 1
					if dist[e.To] > diameter {
						diameter = dist[e.To]
					}
					queue = append(queue, e.To)
				}
			}
		}
	}
	return diameter
}

// NewComplete links every pair of n miners.
func NewComplete(n int, delay Distribution) *Graph {
	g := New(n)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			_ = g.AddEdge(a, b, delay)
		}
	}
	return g
}

// NewGeometric scatters n miners on the unit square and links those closer
// than radius, resampling until the graph is connected.
func NewGeometric(n int, radius float64, delay Distribution, rng *rand.Rand) (*Graph, error) {
	if n < 1 {
		return nil, errors.Wrapf(ErrInvalidGraph, "geometric graph needs miners, got %d", n)
	}
	for attempt := 0; attempt < maxGeometricAttempts; attempt++ {
		xs, ys := make([]float64, n), make([]float64, n)
		for i := 0; i < n; i++ {
			xs[i], ys[i] = rng.Float64(), rng.Float64()
		}
		g := New(n)
		for a := 0; a < n; a++ {
			for b := a + 1; b < n; b++ {
				if math.Hypot(xs[a]-xs[b], ys[a]-ys[b]) <= radius {
					_ = g.AddEdge(a, b, delay)
				}
			}
		}
		if g.Connected() {
			return g, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidGraph,
		"no connected geometric graph with %d miners and radius %v after %d attempts", n, radius, maxGeometricAttempts)
}

// NewLobster builds a random lobster: a backbone path of expected length
// backbone, legs hanging off it with probability p1 and leaves off the legs
// with probability p2. Lobsters are trees, so always connected.
func NewLobster(backbone int, p1, p2 float64, delay Distribution, rng *rand.Rand) (*Graph, error) {
	if backbone < 1 {
		return nil, errors.Wrapf(ErrInvalidGraph, "lobster needs a backbone, got %d", backbone)
	}
	if p1 < 0 || p1 >= 1 || p2 < 0 || p2 >= 1 {
		return nil, errors.Wrapf(ErrInvalidGraph, "lobster probabilities must be in [0,1), got %v, %v", p1, p2)
	}

	length := int(2*rng.Float64()*float64(backbone) + 0.5)
	if length < 1 {
		length = 1
	}
	var edges [][2]int
	n := length
	for i := 1; i < length; i++ {
		edges = append(edges, [2]int{i - 1, i})
	}
	for i := 0; i < length; i++ {
		for rng.Float64() < p1 {
			leg := n
			n++
			edges = append(edges, [2]int{i, leg})
			for rng.Float64() < p2 {
				edges = append(edges, [2]int{leg, n})
				n++
			}
		}
	}
	return NewStatic(n, edges, delay)
}

// NewStatic builds a graph from an explicit edge list and rejects it unless
// it is connected.
func NewStatic(n int, edges [][2]int, delay Distribution) (*Graph, error) {
	g := New(n)
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1], delay); err != nil {
			return nil, err
		}
	}
	if !g.Connected() {
		return nil, errors.Wrapf(ErrInvalidGraph, "static graph with %d miners is not connected", n)
	}
	return g, nil
}

// Spec describes a graph to generate.
type Spec struct {
	Type   Type
	Miners int
	Radius float64  // geometric
	P1, P2 float64  // lobster
	Edges  [][2]int // static
	Delay  Distribution
}

// Build generates the graph described by s.
func Build(s Spec, rng *rand.Rand) (*Graph, error) {
	if err := s.Delay.Validate(); err != nil {
		return nil, errors.Wrap(err, "edge delay")
	}
	switch s.Type {
	case Complete:
		if s.Miners < 1 {
			return nil, errors.Wrapf(ErrInvalidGraph, "complete graph needs miners, got %d", s.Miners)
		}
		return NewComplete(s.Miners, s.Delay), nil
	case Geometric:
		return NewGeometric(s.Miners, s.Radius, s.Delay, rng)
	case Lobster:
		return NewLobster(s.Miners, s.P1, s.P2, s.Delay, rng)
	case Static:
		return NewStatic(s.Miners, s.Edges, s.Delay)
	}
	return nil, errors.Wrapf(ErrUnknownType, "%d", int(s.Type))
}

package pathing

import (
	"container/heap"
	"errors"
	"math"

	"github.com/example/ride-sharing/internal/models"
	"github.com/example/ride-sharing/internal/roadgraph"
)

// Unreachable is the distance of a place not yet reached.
const Unreachable = math.MaxInt32

// DefaultMaxPathLength bounds the number of places in a returned path.
const DefaultMaxPathLength = 100

var (
	ErrNoPath      = errors.New("no path")
	ErrPathTooLong = errors.New("path exceeds maximum length")
)

// Network is the read-only view of the road graph the engine needs.
type Network interface {
	NumPlaces() int
	Edges(id models.PlaceID) []roadgraph.Edge
}

type Reach struct {
	Place models.PlaceID
	Cost  int
}

type Path struct {
	Places []models.PlaceID
	Cost   int
}

// Engine answers shortest-path queries over a Network. Queries allocate
// per-call state only and never modify the network.
//
// Equal tentative distances are popped in the order they were pushed, so
// among several equal-cost paths the one discovered first wins.
type Engine struct {
	net        Network
	maxPathLen int
}

type Option func(*Engine)

// WithMaxPathLength sets the path length guard; n <= 0 disables it.
func WithMaxPathLength(n int) Option {
	return func(e *Engine) { e.maxPathLen = n }
}

func New(net Network, opts ...Option) *Engine {
	e := &Engine{net: net, maxPathLen: DefaultMaxPathLength}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ReachableWithinCost runs Dijkstra from src and returns every place whose
// best cost is <= bound, in the order the places are finalized.
func (e *Engine) ReachableWithinCost(src models.PlaceID, bound int) []Reach {
	n := e.net.NumPlaces()
	if bound < 0 || !valid(src, n) {
		return nil
	}
	dist := newDistances(n)
	done := make([]bool, n)
	pq := &queue{}
	dist[src] = 0
	pq.add(src, 0)

	var out []Reach
	for pq.Len() > 0 {
		it := heap.Pop(pq).(item)
		if it.dist > bound {
			break
		}
		if done[it.place] || it.dist > dist[it.place] {
			continue
		}
		done[it.place] = true
		out = append(out, Reach{Place: it.place, Cost: it.dist})
		for _, edge := range e.net.Edges(it.place) {
			nd := addCost(it.dist, edge.Cost)
			if nd <= bound && nd < dist[edge.To] {
				dist[edge.To] = nd
				pq.add(edge.To, nd)
			}
		}
	}
	return out
}

// ShortestPath returns the cheapest path from src to dst, both inclusive.
func (e *Engine) ShortestPath(src, dst models.PlaceID) (Path, error) {
	n := e.net.NumPlaces()
	if !valid(src, n) || !valid(dst, n) {
		return Path{}, ErrNoPath
	}
	dist := newDistances(n)
	parent := make([]models.PlaceID, n)
	for i := range parent {
		parent[i] = -1
	}
	done := make([]bool, n)
	pq := &queue{}
	dist[src] = 0
	pq.add(src, 0)

	for pq.Len() > 0 {
		it := heap.Pop(pq).(item)
		if done[it.place] || it.dist > dist[it.place] {
			continue
		}
		done[it.place] = true
		if it.place == dst {
			break
		}
		for _, edge := range e.net.Edges(it.place) {
			nd := addCost(it.dist, edge.Cost)
			if nd < dist[edge.To] {
				dist[edge.To] = nd
				parent[edge.To] = it.place
				pq.add(edge.To, nd)
			}
		}
	}
	if dist[dst] == Unreachable {
		return Path{}, ErrNoPath
	}

	var places []models.PlaceID
	for cur := dst; cur != -1; cur = parent[cur] {
		places = append(places, cur)
		if e.maxPathLen > 0 && len(places) > e.maxPathLen {
			return Path{}, ErrPathTooLong
		}
		if cur == src {
			break
		}
	}
	for i, j := 0, len(places)-1; i < j; i, j = i+1, j-1 {
		places[i], places[j] = places[j], places[i]
	}
	return Path{Places: places, Cost: dist[dst]}, nil
}

// IsSubPath reports whether inner occurs as a contiguous run inside outer.
func IsSubPath(outer, inner []models.PlaceID) bool {
	if len(inner) > len(outer) {
		return false
	}
	for i := 0; i+len(inner) <= len(outer); i++ {
		match := true
		for j := range inner {
			if outer[i+j] != inner[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// addCost saturates at Unreachable instead of overflowing.
func addCost(a, b int) int {
	if a >= Unreachable || b >= Unreachable || a > Unreachable-b {
		return Unreachable
	}
	return a + b
}

func newDistances(n int) []int {
	d := make([]int, n)
	for i := range d {
		d[i] = Unreachable
	}
	return d
}

func valid(id models.PlaceID, n int) bool { return id >= 0 && int(id) < n }

type item struct {
	place models.PlaceID
	dist  int
	seq   int
}

// queue is a binary min-heap on (dist, seq).
type queue struct {
	items []item
	next  int
}

func (q *queue) add(p models.PlaceID, d int) {
	heap.Push(q, item{place: p, dist: d, seq: q.next})
	q.next++
}

func (q *queue) Len() int { return len(q.items) }

func (q *queue) Less(i, j int) bool {
	if q.items[i].dist != q.items[j].dist {
		return q.items[i].dist < q.items[j].dist
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *queue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *queue) Push(x any) { q.items = append(q.items, x.(item)) }

func (q *queue) Pop() any {
	old := q.items
	n := len(old)
	it := old[n-1]
	q.items = old[:n-1]
	return it
}

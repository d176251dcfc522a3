package roadgraph

import (
	"errors"

	"github.com/example/ride-sharing/internal/models"
)

var (
	ErrNegativeCost = errors.New("road cost must be >= 0")
	ErrEmptyName    = errors.New("place name must not be empty")
)

// Edge is a directed road leaving a place.
type Edge struct {
	To   models.PlaceID
	Cost int
}

// Place is a named node. Places are never removed, so a *Place handed out
// by the graph stays valid for the graph's lifetime.
type Place struct {
	ID       models.PlaceID
	Name     string
	Outgoing []Edge
}

// Graph is a directed weighted road network keyed by place name. Places and
// edges keep their insertion order. Graph is not safe for concurrent use.
type Graph struct {
	places []*Place
	byName map[string]models.PlaceID
	edges  int
}

func New() *Graph {
	return &Graph{byName: make(map[string]models.PlaceID)}
}

// GetOrCreatePlace returns the place with this exact name, creating it on
// first reference.
func (g *Graph) GetOrCreatePlace(name string) *Place {
	if id, ok := g.byName[name]; ok {
		return g.places[id]
	}
	p := &Place{ID: models.PlaceID(len(g.places)), Name: name}
	g.places = append(g.places, p)
	g.byName[name] = p.ID
	return p
}

// Lookup resolves a name without creating it.
func (g *Graph) Lookup(name string) (*Place, bool) {
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.places[id], true
}

// Place returns the place for a handle, or nil if the handle is unknown.
func (g *Graph) Place(id models.PlaceID) *Place {
	if id < 0 || int(id) >= len(g.places) {
		return nil
	}
	return g.places[id]
}

func (g *Graph) Name(id models.PlaceID) string {
	if p := g.Place(id); p != nil {
		return p.Name
	}
	return ""
}

// AddRoad appends a directed edge from -> to. Duplicates and self loops are
// kept as separate edges.
func (g *Graph) AddRoad(from, to string, cost int) error {
	if from == "" || to == "" {
		return ErrEmptyName
	}
	if cost < 0 {
		return ErrNegativeCost
	}
	src := g.GetOrCreatePlace(from)
	dst := g.GetOrCreatePlace(to)
	src.Outgoing = append(src.Outgoing, Edge{To: dst.ID, Cost: cost})
	g.edges++
	return nil
}

// Places lists every place in creation order.
func (g *Graph) Places() []*Place {
	out := make([]*Place, len(g.places))
	copy(out, g.places)
	return out
}

// Edges returns the outgoing edges of a place in insertion order. The slice
// is owned by the graph and must not be modified.
func (g *Graph) Edges(id models.PlaceID) []Edge {
	p := g.Place(id)
	if p == nil {
		return nil
	}
	return p.Outgoing
}

func (g *Graph) NumPlaces() int { return len(g.places) }

func (g *Graph) NumEdges() int { return g.edges }

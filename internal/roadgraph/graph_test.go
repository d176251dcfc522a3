package roadgraph

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestGetOrCreatePlaceIdentity(t *testing.T) {
	g := New()
	a1 := g.GetOrCreatePlace("A")
	a2 := g.GetOrCreatePlace("A")
	if a1 != a2 {
		t.Fatalf("expected same place for equal names")
	}
	if g.NumPlaces() != 1 {
		t.Fatalf("expected 1 place, got %d", g.NumPlaces())
	}
	if g.GetOrCreatePlace("a") == a1 {
		t.Fatalf("name comparison must be byte-exact")
	}
}

func TestAddRoadGrowsPlaces(t *testing.T) {
	g := New()
	if err := g.AddRoad("A", "B", 5); err != nil {
		t.Fatal(err)
	}
	if g.NumPlaces() != 2 {
		t.Fatalf("expected 2 places, got %d", g.NumPlaces())
	}
	if err := g.AddRoad("B", "C", 3); err != nil {
		t.Fatal(err)
	}
	if g.NumPlaces() != 3 || g.NumEdges() != 2 {
		t.Fatalf("got places=%d edges=%d", g.NumPlaces(), g.NumEdges())
	}
	b, _ := g.Lookup("B")
	if len(b.Outgoing) != 1 {
		t.Fatalf("graph must be directed; B has %d edges", len(b.Outgoing))
	}
}

func TestAddRoadKeepsDuplicatesInOrder(t *testing.T) {
	g := New()
	_ = g.AddRoad("A", "B", 5)
	_ = g.AddRoad("A", "C", 1)
	_ = g.AddRoad("A", "B", 2)
	_ = g.AddRoad("A", "A", 0)
	a, _ := g.Lookup("A")
	got := g.Edges(a.ID)
	want := []struct {
		to   string
		cost int
	}{{"B", 5}, {"C", 1}, {"B", 2}, {"A", 0}}
	if len(got) != len(want) {
		t.Fatalf("expected %d edges, got %d", len(want), len(got))
	}
	for i, w := range want {
		if g.Name(got[i].To) != w.to || got[i].Cost != w.cost {
			t.Errorf("edge %d: got %s(%d), want %s(%d)", i, g.Name(got[i].To), got[i].Cost, w.to, w.cost)
		}
	}
}

func TestAddRoadRejectsBadInput(t *testing.T) {
	g := New()
	if err := g.AddRoad("A", "B", -1); !errors.Is(err, ErrNegativeCost) {
		t.Fatalf("expected ErrNegativeCost, got %v", err)
	}
	if err := g.AddRoad("", "B", 1); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if g.NumPlaces() != 0 {
		t.Fatalf("rejected roads must not create places")
	}
}

func TestPlacesInsertionOrder(t *testing.T) {
	g := New()
	_ = g.AddRoad("C", "A", 1)
	g.GetOrCreatePlace("B")
	var names []string
	for _, p := range g.Places() {
		names = append(names, p.Name)
	}
	if strings.Join(names, ",") != "C,A,B" {
		t.Fatalf("unexpected order %v", names)
	}
}

func TestLookupDoesNotCreate(t *testing.T) {
	g := New()
	if _, ok := g.Lookup("X"); ok {
		t.Fatal("unexpected place")
	}
	if g.NumPlaces() != 0 {
		t.Fatal("lookup created a place")
	}
	if g.Place(7) != nil || g.Name(-1) != "" {
		t.Fatal("unknown handles must resolve to nothing")
	}
}

func TestLoadFromSkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"A B 5",
		"",
		"A C ten",
		"B C 3 extra",
		"  C   D   4  ",
		"D E -2",
		"lonely",
	}, "\n")
	g := New()
	loaded, skipped, err := g.LoadFrom(strings.NewReader(input), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if loaded != 2 || skipped != 4 {
		t.Fatalf("loaded=%d skipped=%d", loaded, skipped)
	}
	if g.NumEdges() != 2 {
		t.Fatalf("expected 2 edges, got %d", g.NumEdges())
	}
	if _, ok := g.Lookup("E"); ok {
		t.Fatal("skipped line must not create places")
	}
}

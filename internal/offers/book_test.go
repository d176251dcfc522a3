package offers

import (
	"errors"
	"testing"

	"github.com/example/ride-sharing/internal/roadgraph"
)

type fakeDrivers map[int]bool

func (f fakeDrivers) DriverExists(id int) bool { return f[id] }

func newBook() (*Book, *roadgraph.Graph) {
	g := roadgraph.New()
	return NewBook(fakeDrivers{101: true, 102: true}, g), g
}

func TestCreateOffer(t *testing.T) {
	b, g := newBook()
	o, err := b.Create(1, 101, "A", "D", 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	if o.SeatsLeft != 2 || o.Capacity != 2 {
		t.Fatalf("seats must start at capacity: %+v", o)
	}
	if g.Name(o.Start) != "A" || g.Name(o.End) != "D" {
		t.Fatalf("places not resolved: %+v", o)
	}
	if got, ok := b.Get(1); !ok || got != o {
		t.Fatal("Get must return the created offer")
	}
}

func TestCreateOfferErrors(t *testing.T) {
	b, g := newBook()
	if _, err := b.Create(1, 999, "A", "B", 1, 1); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
	if _, err := b.Create(1, 101, "A", "B", 1, 0); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
	if g.NumPlaces() != 0 || b.Len() != 0 {
		t.Fatal("failed creation must not touch the model")
	}
	if _, err := b.Create(1, 101, "A", "B", 1, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Create(1, 102, "A", "C", 1, 1); !errors.Is(err, ErrDuplicateOffer) {
		t.Fatalf("expected ErrDuplicateOffer, got %v", err)
	}
}

func TestEnumerateNewestFirst(t *testing.T) {
	b, _ := newBook()
	for id := 1; id <= 3; id++ {
		if _, err := b.Create(id, 101, "A", "B", 10, 1); err != nil {
			t.Fatal(err)
		}
	}
	got := b.Enumerate()
	for i, want := range []int{3, 2, 1} {
		if got[i].ID != want {
			t.Fatalf("scan position %d: got %d, want %d", i, got[i].ID, want)
		}
	}
	old := b.Oldest()
	if old[0].ID != 1 || old[2].ID != 3 {
		t.Fatal("Oldest must follow insertion order")
	}
}

func TestDecrementSeatsStopsAtZero(t *testing.T) {
	b, _ := newBook()
	o, _ := b.Create(1, 101, "A", "B", 10, 2)
	prev := o.SeatsLeft
	for i := 0; i < 4; i++ {
		err := b.DecrementSeats(o)
		if o.SeatsLeft > prev || o.SeatsLeft < 0 {
			t.Fatalf("seats must be non-increasing and non-negative: %d", o.SeatsLeft)
		}
		if i >= 2 && !errors.Is(err, ErrNoSeats) {
			t.Fatalf("expected ErrNoSeats once empty, got %v", err)
		}
		prev = o.SeatsLeft
	}
	if b.Open() != 0 || b.Len() != 1 {
		t.Fatal("expired offers remain in the book but are not open")
	}
}

func TestRestoreValidatesSeats(t *testing.T) {
	b, _ := newBook()
	if _, err := b.Restore(1, 101, "A", "B", 1, 2, 3); !errors.Is(err, ErrInvalidSeats) {
		t.Fatalf("expected ErrInvalidSeats, got %v", err)
	}
	o, err := b.Restore(1, 101, "A", "B", 1, 2, 0)
	if err != nil || o.SeatsLeft != 0 {
		t.Fatalf("restore: %+v %v", o, err)
	}
}

package world

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/example/ride-sharing/internal/models"
	"github.com/example/ride-sharing/internal/offers"
	"github.com/example/ride-sharing/internal/pathing"
	"github.com/example/ride-sharing/internal/requests"
	"github.com/example/ride-sharing/internal/storage"
)

type recorder struct {
	got []models.MatchResult
	err error
}

func (r *recorder) Notify(_ context.Context, res models.MatchResult) error {
	r.got = append(r.got, res)
	return r.err
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func scenarioOne(t *testing.T, opts ...Option) *World {
	t.Helper()
	w := New(append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	_, _, err := w.LoadRoads(strings.NewReader("A B 5\nA C 10\nB C 3\nC D 4\nB D 8\n"))
	mustOK(t, err)
	_, err = w.RegisterUser(101, "Ali", "driver")
	mustOK(t, err)
	for _, id := range []int{201, 202, 203} {
		_, err = w.RegisterUser(id, "rider", "passenger")
		mustOK(t, err)
	}
	_, err = w.CreateOffer(1, 101, "A", "D", 10, 2)
	mustOK(t, err)
	_, err = w.CreateRequest(1, 201, "A", "D", 9, 11)
	mustOK(t, err)
	_, err = w.CreateRequest(2, 202, "A", "D", 10, 12)
	mustOK(t, err)
	_, err = w.CreateRequest(3, 203, "A", "C", 11, 13)
	mustOK(t, err)
	return w
}

func TestScenarioOneEndToEnd(t *testing.T) {
	rec := &recorder{}
	w := scenarioOne(t, WithNotifier(rec))
	ctx := context.Background()

	res := w.MatchNext(ctx)
	if !res.Matched || res.OfferID != 1 || res.DriverName != "Ali" || res.Start != "A" || res.End != "D" {
		t.Fatalf("first: %+v", res)
	}
	if seats := w.Offers()[0].SeatsLeft; seats != 1 {
		t.Fatalf("seats after first match = %d", seats)
	}
	if res = w.MatchNext(ctx); !res.Matched || w.Offers()[0].SeatsLeft != 0 {
		t.Fatalf("second: %+v", res)
	}
	if res = w.MatchNext(ctx); res.Matched {
		t.Fatalf("third must decline: %+v", res)
	}
	if w.QueueLen() != 1 {
		t.Fatalf("queue len = %d", w.QueueLen())
	}
	if len(rec.got) != 2 {
		t.Fatalf("notifier saw %d matches, want 2", len(rec.got))
	}
	top := w.TopDrivers(1)
	if len(top) != 1 || top[0].ID != 101 || top[0].CompletedRides != 2 {
		t.Fatalf("top drivers: %+v", top)
	}
	h, err := w.UserHistory(202)
	mustOK(t, err)
	if len(h) != 1 || h[0].OfferID != 1 || h[0].DepartTime != 10 {
		t.Fatalf("history: %+v", h)
	}
}

func TestNotifierFailureDoesNotUndoMatch(t *testing.T) {
	rec := &recorder{err: errors.New("broker down")}
	w := scenarioOne(t, WithNotifier(rec))
	if !w.MatchNext(context.Background()).Matched {
		t.Fatal("match must succeed regardless of notifier errors")
	}
	if w.QueueLen() != 2 {
		t.Fatalf("queue len = %d", w.QueueLen())
	}
}

func TestReachableScenario(t *testing.T) {
	w := New()
	mustOK(t, w.AddRoad("A", "B", 5))
	mustOK(t, w.AddRoad("B", "C", 3))
	mustOK(t, w.AddRoad("C", "D", 4))
	_, _ = w.RegisterUser(1, "d", "driver")
	_, err := w.CreateOffer(7, 1, "A", "D", 0, 1)
	mustOK(t, err)

	got, err := w.Reachable(7, 7)
	mustOK(t, err)
	want := []models.ReachablePlace{{Place: "A", Cost: 0}, {Place: "B", Cost: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if _, err := w.Reachable(99, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown offer: %v", err)
	}
}

func TestRoute(t *testing.T) {
	w := scenarioOne(t)
	r, err := w.Route("A", "D")
	mustOK(t, err)
	if !reflect.DeepEqual(r.Path, []string{"A", "B", "C", "D"}) || r.TotalCost != 12 {
		t.Fatalf("route: %+v", r)
	}
	before := len(w.Graph().Places)
	if _, err := w.Route("A", "Nowhere"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown place: %v", err)
	}
	if len(w.Graph().Places) != before {
		t.Fatal("route must not create places")
	}
	if _, err := w.Route("D", "A"); !errors.Is(err, pathing.ErrNoPath) {
		t.Fatalf("reverse route: %v", err)
	}
}

func TestCreationErrors(t *testing.T) {
	w := New(WithMaxRequests(1))
	_, _ = w.RegisterUser(1, "d", "driver")
	_, _ = w.RegisterUser(2, "p", "passenger")

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"bad role", second(w.RegisterUser(3, "x", "pilot")), ErrInvalidInput},
		{"empty name", second(w.RegisterUser(3, " ", "driver")), ErrInvalidInput},
		{"passenger as driver", second(w.CreateOffer(1, 2, "A", "B", 0, 1)), offers.ErrUnknownDriver},
		{"zero capacity", second(w.CreateOffer(1, 1, "A", "B", 0, 0)), offers.ErrInvalidCapacity},
		{"spaced place", second(w.CreateOffer(1, 1, "New York", "B", 0, 1)), ErrInvalidInput},
		{"driver as passenger", second(w.CreateRequest(1, 1, "A", "B", 0, 1)), requests.ErrUnknownPassenger},
		{"inverted window", second(w.CreateRequest(1, 2, "A", "B", 5, 1)), ErrInvalidInput},
		{"bad rating", w.SetRating(1, 9), ErrInvalidInput},
		{"rating unknown user", w.SetRating(42, 3), ErrNotFound},
		{"negative road", w.AddRoad("A", "B", -1), ErrInvalidInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !errors.Is(c.err, c.want) {
				t.Fatalf("got %v, want %v", c.err, c.want)
			}
		})
	}
	if n := len(w.Graph().Places); n != 0 {
		t.Fatalf("rejected calls created %d places", n)
	}

	_, err := w.CreateRequest(1, 2, "A", "B", 0, 1)
	mustOK(t, err)
	places := len(w.Graph().Places)
	if _, err := w.CreateRequest(2, 2, "X", "Y", 0, 1); !errors.Is(err, requests.ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
	if len(w.Graph().Places) != places {
		t.Fatal("a rejected request must not create places")
	}
}

func second[T any](_ T, err error) error { return err }

func TestCancelRequest(t *testing.T) {
	w := scenarioOne(t)
	r, err := w.CancelRequest(1)
	mustOK(t, err)
	if r.From != "A" || r.To != "D" {
		t.Fatalf("cancelled: %+v", r)
	}
	if _, err := w.CancelRequest(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second cancel: %v", err)
	}
	p := w.PendingRequests()
	if len(p) != 2 || p[0].RequestID != 2 || p[1].RequestID != 3 {
		t.Fatalf("pending: %+v", p)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	w := scenarioOne(t)
	w.MatchNext(context.Background())
	mustOK(t, w.SetRating(101, 4))

	store := storage.NewMemoryStore()
	mustOK(t, w.Save(context.Background(), store))

	fresh := New(WithLogger(zaptest.NewLogger(t)))
	mustOK(t, fresh.Load(context.Background(), store))
	if !reflect.DeepEqual(fresh.Snapshot(), w.Snapshot()) {
		t.Fatalf("restored world differs:\n got %+v\nwant %+v", fresh.Snapshot(), w.Snapshot())
	}

	// The restored world keeps matching where the old one left off.
	res := fresh.MatchNext(context.Background())
	if !res.Matched || res.RequestID != 2 {
		t.Fatalf("restored match: %+v", res)
	}
	if fresh.TopDrivers(1)[0].Rating != 4 {
		t.Fatal("rating must survive a restore")
	}
}

func TestRestoreFailureKeepsCurrentWorld(t *testing.T) {
	w := scenarioOne(t)
	bad := w.Snapshot()
	bad.Offers = append(bad.Offers, models.OfferSummary{OfferID: 9, DriverID: 999, Start: "A", End: "B", Capacity: 1, SeatsLeft: 1})
	if err := w.Restore(bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if w.QueueLen() != 3 || len(w.Offers()) != 1 {
		t.Fatal("failed restore must not touch the live world")
	}
}

func TestRestoreRejectsUnwritablePlaceNames(t *testing.T) {
	cases := map[string]func(s *storage.Snapshot){
		"place":   func(s *storage.Snapshot) { s.Places = append(s.Places, "New York") },
		"road":    func(s *storage.Snapshot) { s.Roads = append(s.Roads, models.Road{From: "New York", To: "B", Cost: 3}) },
		"offer":   func(s *storage.Snapshot) { s.Offers[0].End = "D\tX" },
		"request": func(s *storage.Snapshot) { s.Requests[0].From = "A B" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			w := scenarioOne(t)
			bad := w.Snapshot()
			mutate(bad)
			if err := w.Restore(bad); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if len(w.Graph().Places) != 4 {
				t.Fatal("failed restore must not touch the live world")
			}
		})
	}
}

func TestLoadWithoutSnapshot(t *testing.T) {
	w := New()
	if err := w.Load(context.Background(), storage.NewMemoryStore()); !errors.Is(err, storage.ErrNoSnapshot) {
		t.Fatalf("got %v", err)
	}
}

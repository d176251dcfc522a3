package matcher

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/example/ride-sharing/internal/history"
	"github.com/example/ride-sharing/internal/models"
	"github.com/example/ride-sharing/internal/offers"
	"github.com/example/ride-sharing/internal/pathing"
	"github.com/example/ride-sharing/internal/requests"
	"github.com/example/ride-sharing/internal/roadgraph"
	"github.com/example/ride-sharing/internal/users"
)

type fixture struct {
	t       *testing.T
	graph   *roadgraph.Graph
	users   *users.Registry
	history *history.Store
	book    *offers.Book
	queue   *requests.Queue
	svc     *Service
}

func newFixture(t *testing.T, roads [][3]any) *fixture {
	t.Helper()
	g := roadgraph.New()
	for _, r := range roads {
		if err := g.AddRoad(r[0].(string), r[1].(string), r[2].(int)); err != nil {
			t.Fatal(err)
		}
	}
	reg := users.NewRegistry()
	for _, id := range []int{101, 102} {
		reg.Register(id, "driver", models.RoleDriver)
	}
	for _, id := range []int{201, 202, 203} {
		reg.Register(id, "rider", models.RolePassenger)
	}
	hist := history.NewStore()
	book := offers.NewBook(reg, g)
	q := requests.NewQueue(reg, 0)
	return &fixture{
		t: t, graph: g, users: reg, history: hist, book: book, queue: q,
		svc: &Service{
			Paths:   pathing.New(g),
			Offers:  book,
			Queue:   q,
			Users:   reg,
			History: hist,
			Places:  g,
			Logger:  zaptest.NewLogger(t),
		},
	}
}

func (f *fixture) offer(id, driver int, start, end string, depart, capacity int) *models.RideOffer {
	f.t.Helper()
	o, err := f.book.Create(id, driver, start, end, depart, capacity)
	if err != nil {
		f.t.Fatal(err)
	}
	return o
}

func (f *fixture) request(id, passenger int, from, to string, earliest, latest int) {
	f.t.Helper()
	r := &models.RideRequest{
		ID:          id,
		PassengerID: passenger,
		From:        f.graph.GetOrCreatePlace(from).ID,
		To:          f.graph.GetOrCreatePlace(to).ID,
		Earliest:    earliest,
		Latest:      latest,
	}
	if err := f.queue.Enqueue(r); err != nil {
		f.t.Fatal(err)
	}
}

var diamond = [][3]any{{"A", "B", 5}, {"A", "C", 10}, {"B", "C", 3}, {"C", "D", 4}, {"B", "D", 8}}

func TestMatchNextScenarioSharedRoute(t *testing.T) {
	f := newFixture(t, diamond)
	o := f.offer(1, 101, "A", "D", 10, 2)
	f.request(1, 201, "A", "D", 9, 11)
	f.request(2, 202, "A", "D", 10, 12)
	f.request(3, 203, "A", "C", 11, 13)

	res := f.svc.MatchNext()
	if !res.Matched || res.OfferID != 1 || res.RequestID != 1 || o.SeatsLeft != 1 {
		t.Fatalf("first match: %+v seats=%d", res, o.SeatsLeft)
	}
	if res.DriverID != 101 || res.DriverName != "driver" || res.Start != "A" || res.End != "D" || res.DepartTime != 10 {
		t.Fatalf("match details: %+v", res)
	}
	res = f.svc.MatchNext()
	if !res.Matched || res.RequestID != 2 || o.SeatsLeft != 0 {
		t.Fatalf("second match: %+v seats=%d", res, o.SeatsLeft)
	}
	res = f.svc.MatchNext()
	if res.Matched {
		t.Fatalf("third request must not match: %+v", res)
	}
	if f.queue.Len() != 1 {
		t.Fatalf("declined request must stay queued, len=%d", f.queue.Len())
	}

	driverHist := f.history.ForUser(101)
	if len(driverHist) != 2 {
		t.Fatalf("driver history: %+v", driverHist)
	}
	if h := f.history.ForUser(201); len(h) != 1 || h[0].From != "A" || h[0].To != "D" || h[0].DepartTime != 10 {
		t.Fatalf("passenger history: %+v", h)
	}
	d, _ := f.users.Lookup(101)
	if d.CompletedRides != 2 {
		t.Fatalf("driver completed rides: %d", d.CompletedRides)
	}
}

func TestMatchNextPrefixSubPath(t *testing.T) {
	f := newFixture(t, [][3]any{{"A", "B", 1}, {"B", "C", 1}})
	f.offer(1, 101, "A", "C", 5, 1)
	f.request(1, 201, "A", "B", 5, 5)
	if res := f.svc.MatchNext(); !res.Matched {
		t.Fatal("A->B is a prefix of A->B->C and must match")
	}
	if h := f.history.ForUser(201); len(h) != 1 || h[0].From != "A" || h[0].To != "B" {
		t.Fatalf("history must record the passenger's leg: %+v", h)
	}
}

func TestMatchNextRejectsDivergingRoute(t *testing.T) {
	f := newFixture(t, [][3]any{{"A", "B", 1}, {"A", "C", 1}})
	o := f.offer(1, 101, "A", "B", 5, 1)
	f.request(1, 201, "A", "C", 0, 10)
	if res := f.svc.MatchNext(); res.Matched {
		t.Fatalf("A->C is not on A->B: %+v", res)
	}
	if o.SeatsLeft != 1 {
		t.Fatal("declined match must not take a seat")
	}
}

func TestMatchNextRequeueThenMatch(t *testing.T) {
	f := newFixture(t, [][3]any{{"A", "B", 1}})
	f.offer(1, 101, "A", "B", 20, 1)
	f.request(1, 201, "A", "B", 10, 11)
	if res := f.svc.MatchNext(); res.Matched {
		t.Fatal("depart 20 is outside [10,11]")
	}
	if f.queue.Len() != 1 {
		t.Fatalf("queue length must be unchanged, got %d", f.queue.Len())
	}
	f.offer(2, 102, "A", "B", 10, 1)
	res := f.svc.MatchNext()
	if !res.Matched || res.OfferID != 2 || res.RequestID != 1 {
		t.Fatalf("expected match on offer 2: %+v", res)
	}
	if f.queue.Len() != 0 {
		t.Fatal("matched request must leave the queue")
	}
}

func TestMatchNextTakesFirstAdmissibleInScanOrder(t *testing.T) {
	f := newFixture(t, [][3]any{{"A", "B", 1}, {"B", "C", 1}})
	older := f.offer(1, 101, "A", "C", 5, 1)
	chosen := f.offer(2, 101, "A", "C", 6, 1)
	full := f.offer(3, 102, "A", "C", 5, 1)
	late := f.offer(4, 102, "A", "C", 50, 1)
	full.SeatsLeft = 0

	f.request(1, 201, "B", "C", 5, 6)
	res := f.svc.MatchNext()
	if !res.Matched || res.OfferID != chosen.ID {
		t.Fatalf("expected offer %d, got %+v", chosen.ID, res)
	}
	if older.SeatsLeft != 1 || late.SeatsLeft != 1 || full.SeatsLeft != 0 || chosen.SeatsLeft != 0 {
		t.Fatal("only the chosen offer may lose a seat")
	}
}

func TestMatchNextWindowIsInclusive(t *testing.T) {
	f := newFixture(t, [][3]any{{"A", "B", 1}})
	f.offer(1, 101, "A", "B", 7, 2)
	f.request(1, 201, "A", "B", 7, 9)
	f.request(2, 202, "A", "B", 3, 7)
	if !f.svc.MatchNext().Matched || !f.svc.MatchNext().Matched {
		t.Fatal("departure on either window edge must match")
	}
}

func TestMatchNextEmptyQueue(t *testing.T) {
	f := newFixture(t, nil)
	if res := f.svc.MatchNext(); res.Matched {
		t.Fatal("empty queue cannot match")
	}
}

func TestMatchNextDisconnectedGraph(t *testing.T) {
	f := newFixture(t, [][3]any{{"A", "B", 1}})
	f.offer(1, 101, "X", "Y", 5, 1)
	f.request(1, 201, "A", "B", 0, 10)
	if res := f.svc.MatchNext(); res.Matched {
		t.Fatal("offer without a route cannot match")
	}
	f.offer(2, 101, "A", "B", 5, 1)
	f.request(2, 202, "B", "Z", 0, 10)
	f.queue.ExtractMin()
	if res := f.svc.MatchNext(); res.Matched {
		t.Fatal("passenger without a route cannot match")
	}
	if f.queue.Len() != 1 {
		t.Fatalf("unroutable request stays queued, len=%d", f.queue.Len())
	}
}

func TestMatchNextSamePlaceRequest(t *testing.T) {
	f := newFixture(t, [][3]any{{"A", "B", 1}})
	f.offer(1, 101, "A", "B", 5, 1)
	f.request(1, 201, "B", "B", 5, 5)
	if res := f.svc.MatchNext(); !res.Matched {
		t.Fatal("a single-place trip on the driver path is a sub-path")
	}
}

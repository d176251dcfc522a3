package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/ride-sharing/internal/history"
	"github.com/example/ride-sharing/internal/matcher"
	"github.com/example/ride-sharing/internal/models"
	"github.com/example/ride-sharing/internal/observability"
	"github.com/example/ride-sharing/internal/offers"
	"github.com/example/ride-sharing/internal/pathing"
	"github.com/example/ride-sharing/internal/requests"
	"github.com/example/ride-sharing/internal/roadgraph"
	"github.com/example/ride-sharing/internal/storage"
	"github.com/example/ride-sharing/internal/users"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Notifier receives every successful match after the world lock is released.
type Notifier interface {
	Notify(ctx context.Context, res models.MatchResult) error
}

type Option func(*World)

func WithMaxRequests(n int) Option { return func(w *World) { w.maxRequests = n } }

func WithMaxPathLength(n int) Option { return func(w *World) { w.maxPathLength = n } }

func WithLogger(l *zap.Logger) Option { return func(w *World) { w.logger = l } }

func WithNotifier(n Notifier) Option {
	return func(w *World) { w.notifiers = append(w.notifiers, n) }
}

// state is every store of one world. Restore builds a new state and swaps it
// in whole.
type state struct {
	graph   *roadgraph.Graph
	users   *users.Registry
	history *history.Store
	book    *offers.Book
	queue   *requests.Queue
	paths   *pathing.Engine
	matcher *matcher.Service
}

// World owns the road graph, users, offers, requests and history, and
// serializes every operation on them with a single mutex.
type World struct {
	mu sync.Mutex
	st *state

	maxRequests   int
	maxPathLength int
	logger        *zap.Logger
	notifiers     []Notifier
}

func New(opts ...Option) *World {
	w := &World{
		maxRequests:   requests.DefaultMaxRequests,
		maxPathLength: pathing.DefaultMaxPathLength,
	}
	for _, o := range opts {
		o(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	w.st = w.newState()
	return w
}

func (w *World) newState() *state {
	st := &state{
		graph:   roadgraph.New(),
		users:   users.NewRegistry(),
		history: history.NewStore(),
	}
	st.book = offers.NewBook(st.users, st.graph)
	st.queue = requests.NewQueue(st.users, w.maxRequests)
	st.paths = pathing.New(st.graph, pathing.WithMaxPathLength(w.maxPathLength))
	st.matcher = &matcher.Service{
		Paths:   st.paths,
		Offers:  st.book,
		Queue:   st.queue,
		Users:   st.users,
		History: st.history,
		Places:  st.graph,
		Logger:  w.logger.Named("matcher"),
	}
	return st
}

func (w *World) RegisterUser(id int, name, role string) (models.User, error) {
	r, ok := models.ParseRole(role)
	if !ok {
		return models.User{}, fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}
	if strings.TrimSpace(name) == "" {
		return models.User{}, fmt.Errorf("%w: empty name", ErrInvalidInput)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.st.users.Register(id, name, r), nil
}

// SetRating accepts ratings from 0 to 5.
func (w *World) SetRating(userID, rating int) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("%w: rating %d", ErrInvalidInput, rating)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.st.users.SetRating(userID, rating); err != nil {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

func (w *World) TopDrivers(k int) []models.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.users.TopDrivers(k)
}

func (w *World) UserHistory(userID int) ([]models.HistoryEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.st.users.Lookup(userID); !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return w.st.history.ForUser(userID), nil
}

func (w *World) AddRoad(from, to string, cost int) error {
	if err := checkPlaceNames(from, to); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.st.graph.AddRoad(from, to, cost); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// LoadRoads adds every well-formed line of a road file.
func (w *World) LoadRoads(r io.Reader) (loaded, skipped int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.graph.LoadFrom(r, w.logger.Named("roads"))
}

func (w *World) CreateOffer(offerID, driverID int, start, end string, departTime, capacity int) (models.OfferSummary, error) {
	if err := checkPlaceNames(start, end); err != nil {
		return models.OfferSummary{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	o, err := w.st.book.Create(offerID, driverID, start, end, departTime, capacity)
	if err != nil {
		return models.OfferSummary{}, fmt.Errorf("offer %d: %w", offerID, err)
	}
	observability.OpenOffers.Set(float64(w.st.book.Open()))
	w.logger.Debug("offer created", zap.Int("offer_id", offerID), zap.Int("driver_id", driverID))
	return w.st.offerSummary(o), nil
}

// Offers lists every offer in scan order, including those without seats.
func (w *World) Offers() []models.OfferSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	all := w.st.book.Enumerate()
	out := make([]models.OfferSummary, 0, len(all))
	for _, o := range all {
		out = append(out, w.st.offerSummary(o))
	}
	return out
}

// CreateRequest queues a ride request. Places are created only once the
// request is known to be admissible.
func (w *World) CreateRequest(requestID, passengerID int, from, to string, earliest, latest int) (models.RequestSummary, error) {
	if err := checkPlaceNames(from, to); err != nil {
		return models.RequestSummary{}, err
	}
	if earliest > latest {
		return models.RequestSummary{}, fmt.Errorf("%w: earliest %d after latest %d", ErrInvalidInput, earliest, latest)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.st.queue.CanAdmit(passengerID, requestID); err != nil {
		return models.RequestSummary{}, fmt.Errorf("request %d: %w", requestID, err)
	}
	r := &models.RideRequest{
		ID:          requestID,
		PassengerID: passengerID,
		From:        w.st.graph.GetOrCreatePlace(from).ID,
		To:          w.st.graph.GetOrCreatePlace(to).ID,
		Earliest:    earliest,
		Latest:      latest,
		HeapIndex:   -1,
	}
	if err := w.st.queue.Enqueue(r); err != nil {
		return models.RequestSummary{}, fmt.Errorf("request %d: %w", requestID, err)
	}
	observability.QueueDepth.Set(float64(w.st.queue.Len()))
	return w.st.requestSummary(r), nil
}

func (w *World) CancelRequest(requestID int) (models.RequestSummary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, err := w.st.queue.Remove(requestID)
	if err != nil {
		return models.RequestSummary{}, fmt.Errorf("request %d: %w", requestID, ErrNotFound)
	}
	observability.QueueDepth.Set(float64(w.st.queue.Len()))
	return w.st.requestSummary(r), nil
}

// PendingRequests lists queued requests in the order they will be matched.
func (w *World) PendingRequests() []models.RequestSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	pending := w.st.queue.Pending()
	out := make([]models.RequestSummary, 0, len(pending))
	for _, r := range pending {
		out = append(out, w.st.requestSummary(r))
	}
	return out
}

func (w *World) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.queue.Len()
}

// Reachable lists the places reachable from an offer's start within bound,
// in the order Dijkstra finalizes them.
func (w *World) Reachable(offerID, bound int) ([]models.ReachablePlace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.st.book.Get(offerID)
	if !ok {
		return nil, fmt.Errorf("offer %d: %w", offerID, ErrNotFound)
	}
	reach := w.st.paths.ReachableWithinCost(o.Start, bound)
	out := make([]models.ReachablePlace, 0, len(reach))
	for _, r := range reach {
		out = append(out, models.ReachablePlace{Place: w.st.graph.Name(r.Place), Cost: r.Cost})
	}
	return out, nil
}

// Route resolves both names without creating places.
func (w *World) Route(from, to string) (models.Route, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	src, ok := w.st.graph.Lookup(from)
	if !ok {
		return models.Route{}, fmt.Errorf("place %q: %w", from, ErrNotFound)
	}
	dst, ok := w.st.graph.Lookup(to)
	if !ok {
		return models.Route{}, fmt.Errorf("place %q: %w", to, ErrNotFound)
	}
	p, err := w.st.paths.ShortestPath(src.ID, dst.ID)
	if err != nil {
		return models.Route{}, err
	}
	names := make([]string, len(p.Places))
	for i, id := range p.Places {
		names[i] = w.st.graph.Name(id)
	}
	return models.Route{Path: names, TotalCost: p.Cost}, nil
}

// MatchNext runs one match attempt and then hands a successful result to
// every notifier. Notifier failures are logged and dropped.
func (w *World) MatchNext(ctx context.Context) models.MatchResult {
	w.mu.Lock()
	res := w.st.matcher.MatchNext()
	if res.Matched {
		observability.OpenOffers.Set(float64(w.st.book.Open()))
	}
	w.mu.Unlock()

	if res.Matched {
		for _, n := range w.notifiers {
			if err := n.Notify(ctx, res); err != nil {
				observability.EventsDropped.Inc()
				w.logger.Warn("match notification failed",
					zap.Int("offer_id", res.OfferID),
					zap.Int("request_id", res.RequestID),
					zap.Error(err),
				)
			}
		}
	}
	return res
}

// GraphView is the road network in insertion order.
type GraphView struct {
	Places []string
	Roads  []models.Road
}

func (w *World) Graph() GraphView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return GraphView{Places: w.st.placeNames(), Roads: w.st.roads()}
}

func (w *World) Snapshot() *storage.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.st
	s := &storage.Snapshot{
		Places:  st.placeNames(),
		Roads:   st.roads(),
		History: st.history.All(),
	}
	for _, u := range st.users.All() {
		s.Users = append(s.Users, *u)
	}
	for _, o := range st.book.Oldest() {
		s.Offers = append(s.Offers, st.offerSummary(o))
	}
	for _, r := range st.queue.Pending() {
		s.Requests = append(s.Requests, st.requestSummary(r))
	}
	return s
}

// Restore replaces the whole world with s. Users are rebuilt first, then
// places and roads, offers, pending requests and history. On error the
// current world is left untouched.
func (w *World) Restore(s *storage.Snapshot) error {
	st := w.newState()
	for _, u := range s.Users {
		if _, ok := models.ParseRole(string(u.Role)); !ok {
			return fmt.Errorf("%w: user %d role %q", ErrInvalidInput, u.ID, u.Role)
		}
		st.users.Restore(u)
	}
	for _, name := range s.Places {
		if err := checkPlaceNames(name); err != nil {
			return err
		}
		st.graph.GetOrCreatePlace(name)
	}
	for _, r := range s.Roads {
		if err := checkPlaceNames(r.From, r.To); err != nil {
			return fmt.Errorf("road: %w", err)
		}
		if err := st.graph.AddRoad(r.From, r.To, r.Cost); err != nil {
			return fmt.Errorf("%w: road %s->%s: %v", ErrInvalidInput, r.From, r.To, err)
		}
	}
	for _, o := range s.Offers {
		if err := checkPlaceNames(o.Start, o.End); err != nil {
			return fmt.Errorf("offer %d: %w", o.OfferID, err)
		}
		if _, err := st.book.Restore(o.OfferID, o.DriverID, o.Start, o.End, o.DepartTime, o.Capacity, o.SeatsLeft); err != nil {
			return fmt.Errorf("%w: offer %d: %v", ErrInvalidInput, o.OfferID, err)
		}
	}
	for _, r := range s.Requests {
		if err := checkPlaceNames(r.From, r.To); err != nil {
			return fmt.Errorf("request %d: %w", r.RequestID, err)
		}
		if r.Earliest > r.Latest {
			return fmt.Errorf("%w: request %d window", ErrInvalidInput, r.RequestID)
		}
		if err := st.queue.CanAdmit(r.PassengerID, r.RequestID); err != nil {
			return fmt.Errorf("%w: request %d: %v", ErrInvalidInput, r.RequestID, err)
		}
		req := &models.RideRequest{
			ID:          r.RequestID,
			PassengerID: r.PassengerID,
			From:        st.graph.GetOrCreatePlace(r.From).ID,
			To:          st.graph.GetOrCreatePlace(r.To).ID,
			Earliest:    r.Earliest,
			Latest:      r.Latest,
			HeapIndex:   -1,
		}
		if err := st.queue.Enqueue(req); err != nil {
			return fmt.Errorf("%w: request %d: %v", ErrInvalidInput, r.RequestID, err)
		}
	}
	for _, h := range s.History {
		st.history.Append(h)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.st = st
	observability.OpenOffers.Set(float64(st.book.Open()))
	observability.QueueDepth.Set(float64(st.queue.Len()))
	w.logger.Info("world restored",
		zap.Int("users", st.users.Len()),
		zap.Int("places", st.graph.NumPlaces()),
		zap.Int("roads", st.graph.NumEdges()),
		zap.Int("offers", st.book.Len()),
		zap.Int("requests", st.queue.Len()),
		zap.Int("history", st.history.Len()),
	)
	return nil
}

// Save writes a snapshot of the current world to store.
func (w *World) Save(ctx context.Context, store storage.Store) error {
	return store.Save(ctx, w.Snapshot())
}

// Load restores the world from store.
func (w *World) Load(ctx context.Context, store storage.Store) error {
	s, err := store.Load(ctx)
	if err != nil {
		return err
	}
	return w.Restore(s)
}

func (st *state) offerSummary(o *models.RideOffer) models.OfferSummary {
	return models.OfferSummary{
		OfferID:    o.ID,
		DriverID:   o.DriverID,
		Start:      st.graph.Name(o.Start),
		End:        st.graph.Name(o.End),
		DepartTime: o.DepartTime,
		Capacity:   o.Capacity,
		SeatsLeft:  o.SeatsLeft,
	}
}

func (st *state) requestSummary(r *models.RideRequest) models.RequestSummary {
	return models.RequestSummary{
		RequestID:   r.ID,
		PassengerID: r.PassengerID,
		From:        st.graph.Name(r.From),
		To:          st.graph.Name(r.To),
		Earliest:    r.Earliest,
		Latest:      r.Latest,
	}
}

func (st *state) placeNames() []string {
	places := st.graph.Places()
	out := make([]string, len(places))
	for i, p := range places {
		out[i] = p.Name
	}
	return out
}

// roads lists edges grouped by source place, each group in insertion order.
func (st *state) roads() []models.Road {
	out := make([]models.Road, 0, st.graph.NumEdges())
	for _, p := range st.graph.Places() {
		for _, e := range p.Outgoing {
			out = append(out, models.Road{From: p.Name, To: st.graph.Name(e.To), Cost: e.Cost})
		}
	}
	return out
}

// checkPlaceNames rejects names that the road file format cannot carry.
func checkPlaceNames(names ...string) error {
	for _, n := range names {
		if n == "" || strings.ContainsAny(n, " \t\r\n") {
			return fmt.Errorf("%w: place name %q", ErrInvalidInput, n)
		}
	}
	return nil
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/ride-sharing/internal/dispatch"
	"github.com/example/ride-sharing/internal/geo"
	"github.com/example/ride-sharing/internal/models"
	"github.com/example/ride-sharing/internal/storage"
	"github.com/example/ride-sharing/internal/world"
)

const defaultNearbyLimit = 5

type Options struct {
	World  *world.World
	Store  storage.Store
	Places *geo.Index
	// Finder ranks places for /api/places/nearby; defaults to Places.
	Finder          geo.Finder
	WS              *dispatch.WSRegistry
	Logger          *zap.Logger
	DefaultTopK     int
	CORSAllowOrigin string
}

type Server struct {
	world       *world.World
	store       storage.Store
	places      *geo.Index
	finder      geo.Finder
	ws          *dispatch.WSRegistry
	logger      *zap.Logger
	defaultTopK int
	corsOrigin  string
	mux         *mux.Router
	handler     http.Handler
}

func NewServer(o Options) *Server {
	s := &Server{
		world:       o.World,
		store:       o.Store,
		places:      o.Places,
		finder:      o.Finder,
		ws:          o.WS,
		logger:      o.Logger,
		defaultTopK: o.DefaultTopK,
		corsOrigin:  o.CORSAllowOrigin,
		mux:         mux.NewRouter(),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.places == nil {
		s.places = geo.NewIndex()
	}
	if s.finder == nil {
		s.finder = s.places
	}
	if s.ws == nil {
		s.ws = dispatch.NewWSRegistry(s.logger)
	}
	if s.defaultTopK <= 0 {
		s.defaultTopK = 10
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	s.registerMiddleware()
	s.routes()
	s.handler = s.corsMiddleware(s.mux)
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/graph", s.handleGraph).Methods(http.MethodGet)
	api.HandleFunc("/roads", s.handleAddRoad).Methods(http.MethodPost)
	api.HandleFunc("/users/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/users/top", s.handleTopDrivers).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/history", s.handleUserHistory).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/rating", s.handleSetRating).Methods(http.MethodPost)
	api.HandleFunc("/offers", s.handleCreateOffer).Methods(http.MethodPost)
	api.HandleFunc("/offers", s.handleListOffers).Methods(http.MethodGet)
	api.HandleFunc("/requests", s.handleCreateRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests", s.handleListRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}", s.handleCancelRequest).Methods(http.MethodDelete)
	api.HandleFunc("/reachable", s.handleReachable).Methods(http.MethodGet)
	api.HandleFunc("/route", s.handleRoute).Methods(http.MethodGet)
	api.HandleFunc("/match/next", s.handleMatchNext).Methods(http.MethodPost)
	api.HandleFunc("/storage/save", s.handleSave).Methods(http.MethodPost)
	api.HandleFunc("/storage/load", s.handleLoad).Methods(http.MethodPost)
	api.HandleFunc("/places/nearby", s.handleNearby).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/drivers/{driver_id}", s.handleWS)
	s.mux.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

type okBody struct {
	OK bool `json:"ok"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type placeView struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		s.logger.Debug("healthz write failed", zap.Error(err))
	}
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	g := s.world.Graph()
	places := make([]placeView, 0, len(g.Places))
	for _, p := range s.places.Locate(g.Places) {
		places = append(places, placeView{Name: p.Name, Lat: p.Coord.Lat, Lng: p.Coord.Lng})
	}
	roads := g.Roads
	if roads == nil {
		roads = []models.Road{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"places": places, "roads": roads})
}

type roadBody struct {
	From *string `json:"from"`
	To   *string `json:"to"`
	Cost *int    `json:"cost"`
}

func (s *Server) handleAddRoad(w http.ResponseWriter, r *http.Request) {
	var b roadBody
	if !decodeBody(w, r, &b) || b.From == nil || b.To == nil || b.Cost == nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if err := s.world.AddRoad(*b.From, *b.To, *b.Cost); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, okBody{OK: true})
}

type registerBody struct {
	UserID *int    `json:"userId"`
	Name   *string `json:"name"`
	Role   *string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var b registerBody
	if !decodeBody(w, r, &b) || b.UserID == nil || b.Name == nil || b.Role == nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if _, err := s.world.RegisterUser(*b.UserID, *b.Name, *b.Role); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type driverView struct {
	UserID         int    `json:"userId"`
	Name           string `json:"name"`
	Rating         int    `json:"rating"`
	CompletedRides int    `json:"completedRides"`
}

func (s *Server) handleTopDrivers(w http.ResponseWriter, r *http.Request) {
	k := s.defaultTopK
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorCode(w, http.StatusBadRequest, "invalid_params")
			return
		}
		k = n
	}
	top := s.world.TopDrivers(k)
	out := make([]driverView, 0, len(top))
	for _, u := range top {
		out = append(out, driverView{UserID: u.ID, Name: u.Name, Rating: u.Rating, CompletedRides: u.CompletedRides})
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": out})
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	h, err := s.world.UserHistory(id)
	if errors.Is(err, world.ErrNotFound) {
		writeErrorCode(w, http.StatusNotFound, "user_not_found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": h})
}

type ratingBody struct {
	Rating *int `json:"rating"`
}

func (s *Server) handleSetRating(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var b ratingBody
	if !decodeBody(w, r, &b) || b.Rating == nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body")
		return
	}
	err := s.world.SetRating(id, *b.Rating)
	if errors.Is(err, world.ErrNotFound) {
		writeErrorCode(w, http.StatusNotFound, "user_not_found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type offerBody struct {
	OfferID    *int    `json:"offerId"`
	DriverID   *int    `json:"driverId"`
	Start      *string `json:"start"`
	End        *string `json:"end"`
	DepartTime *int    `json:"departTime"`
	Capacity   *int    `json:"capacity"`
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var b offerBody
	if !decodeBody(w, r, &b) || b.OfferID == nil || b.DriverID == nil || b.Start == nil ||
		b.End == nil || b.DepartTime == nil || b.Capacity == nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body")
		return
	}
	o, err := s.world.CreateOffer(*b.OfferID, *b.DriverID, *b.Start, *b.End, *b.DepartTime, *b.Capacity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "offer": o})
}

func (s *Server) handleListOffers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"offers": s.world.Offers()})
}

type requestBody struct {
	RequestID   *int    `json:"requestId"`
	PassengerID *int    `json:"passengerId"`
	From        *string `json:"from"`
	To          *string `json:"to"`
	Earliest    *int    `json:"earliest"`
	Latest      *int    `json:"latest"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var b requestBody
	if !decodeBody(w, r, &b) || b.RequestID == nil || b.PassengerID == nil || b.From == nil ||
		b.To == nil || b.Earliest == nil || b.Latest == nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body")
		return
	}
	req, err := s.world.CreateRequest(*b.RequestID, *b.PassengerID, *b.From, *b.To, *b.Earliest, *b.Latest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "request": req})
}

func (s *Server) handleListRequests(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"requests": s.world.PendingRequests()})
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	req, err := s.world.CancelRequest(id)
	if errors.Is(err, world.ErrNotFound) {
		writeErrorCode(w, http.StatusNotFound, "request_not_found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "request": req})
}

func (s *Server) handleReachable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("offerId") || !q.Has("costBound") {
		writeErrorCode(w, http.StatusBadRequest, "missing_params")
		return
	}
	offerID, err1 := strconv.Atoi(q.Get("offerId"))
	bound, err2 := strconv.Atoi(q.Get("costBound"))
	if err1 != nil || err2 != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_params")
		return
	}
	reach, err := s.world.Reachable(offerID, bound)
	if errors.Is(err, world.ErrNotFound) {
		writeErrorCode(w, http.StatusNotFound, "offer_not_found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reachable": reach})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		writeErrorCode(w, http.StatusBadRequest, "missing_params")
		return
	}
	route, err := s.world.Route(from, to)
	if errors.Is(err, world.ErrNotFound) {
		writeErrorCode(w, http.StatusNotFound, "place_not_found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleMatchNext(w http.ResponseWriter, r *http.Request) {
	res := s.world.MatchNext(r.Context())
	if !res.Matched {
		writeJSON(w, http.StatusOK, map[string]bool{"matched": false})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.world.Save(r.Context(), s.store); err != nil {
		s.logger.Error("save world", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "save_failed"})
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	err := s.world.Load(r.Context(), s.store)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, okBody{OK: true})
	case errors.Is(err, storage.ErrNoSnapshot):
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "no_snapshot"})
	default:
		s.logger.Error("load world", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "load_failed"})
	}
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("lat") || !q.Has("lng") {
		writeErrorCode(w, http.StatusBadRequest, "missing_params")
		return
	}
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	limit := defaultNearbyLimit
	var err3 error
	if v := q.Get("limit"); v != "" {
		limit, err3 = strconv.Atoi(v)
	}
	if err1 != nil || err2 != nil || err3 != nil || limit < 0 {
		writeErrorCode(w, http.StatusBadRequest, "invalid_params")
		return
	}
	places := s.places.Locate(s.world.Graph().Places)
	out, err := s.finder.Nearby(r.Context(), models.Coord{Lat: lat, Lng: lng}, places, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"places": out})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["driver_id"])
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_params")
		return
	}
	s.ws.ServeDriver(w, r, id)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_params")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

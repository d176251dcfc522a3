package matcher

import (
	"time"

	"go.uber.org/zap"

	"github.com/example/ride-sharing/internal/models"
	"github.com/example/ride-sharing/internal/observability"
	"github.com/example/ride-sharing/internal/pathing"
)

type Paths interface {
	ShortestPath(src, dst models.PlaceID) (pathing.Path, error)
}

type Offers interface {
	Enumerate() []*models.RideOffer
	DecrementSeats(o *models.RideOffer) error
}

type Queue interface {
	ExtractMin() (*models.RideRequest, bool)
	Requeue(r *models.RideRequest) error
	Len() int
}

type Users interface {
	Lookup(id int) (*models.User, bool)
	RecordCompletion(id int) error
}

type History interface {
	Append(e models.HistoryEntry)
}

type PlaceNames interface {
	Name(id models.PlaceID) string
}

// Service pairs the earliest pending request with the first admissible
// offer. It is the only writer of offer seat counts and holds no locks:
// callers serialize MatchNext with every other mutation.
type Service struct {
	Paths   Paths
	Offers  Offers
	Queue   Queue
	Users   Users
	History History
	Places  PlaceNames
	Logger  *zap.Logger
}

// MatchNext consumes the request with the smallest Earliest. On success the
// chosen offer loses a seat and both riders get a history entry; otherwise
// the request is put back and an unmatched result is returned.
func (s *Service) MatchNext() models.MatchResult {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	req, ok := s.Queue.ExtractMin()
	if !ok {
		observability.MatchAttempts.WithLabelValues("empty").Inc()
		return models.MatchResult{}
	}

	var (
		passengerPath []models.PlaceID
		passengerErr  error
		passengerDone bool
		scanned       int
	)
	for _, o := range s.Offers.Enumerate() {
		scanned++
		if o.SeatsLeft <= 0 || o.DepartTime < req.Earliest || o.DepartTime > req.Latest {
			continue
		}
		driver, err := s.Paths.ShortestPath(o.Start, o.End)
		if err != nil {
			continue
		}
		if !passengerDone {
			var p pathing.Path
			p, passengerErr = s.Paths.ShortestPath(req.From, req.To)
			passengerPath = p.Places
			passengerDone = true
		}
		if passengerErr != nil {
			continue
		}
		if !pathing.IsSubPath(driver.Places, passengerPath) {
			continue
		}
		if err := s.Offers.DecrementSeats(o); err != nil {
			continue
		}
		res := s.complete(o, req, log)
		log.Debug("request matched",
			zap.Int("request_id", req.ID),
			zap.Int("offer_id", o.ID),
			zap.Int("offers_scanned", scanned),
		)
		observability.MatchAttempts.WithLabelValues("matched").Inc()
		observability.MatchesTotal.Inc()
		observability.QueueDepth.Set(float64(s.Queue.Len()))
		return res
	}

	if err := s.Queue.Requeue(req); err != nil {
		// The slot freed by ExtractMin is still free, so this is a bug.
		log.Error("requeue failed", zap.Int("request_id", req.ID), zap.Error(err))
	}
	log.Debug("request not matched",
		zap.Int("request_id", req.ID),
		zap.Int("offers_scanned", scanned),
	)
	observability.MatchAttempts.WithLabelValues("requeued").Inc()
	observability.RequeuesTotal.Inc()
	observability.QueueDepth.Set(float64(s.Queue.Len()))
	return models.MatchResult{}
}

func (s *Service) complete(o *models.RideOffer, req *models.RideRequest, log *zap.Logger) models.MatchResult {
	from, to := s.Places.Name(req.From), s.Places.Name(req.To)
	for _, uid := range []int{o.DriverID, req.PassengerID} {
		s.History.Append(models.HistoryEntry{
			UserID:     uid,
			OfferID:    o.ID,
			From:       from,
			To:         to,
			DepartTime: o.DepartTime,
		})
		if err := s.Users.RecordCompletion(uid); err != nil {
			log.Warn("completion for unknown user", zap.Int("user_id", uid), zap.Error(err))
		}
	}

	res := models.MatchResult{
		Matched:     true,
		DriverID:    o.DriverID,
		OfferID:     o.ID,
		Start:       s.Places.Name(o.Start),
		End:         s.Places.Name(o.End),
		DepartTime:  o.DepartTime,
		RequestID:   req.ID,
		PassengerID: req.PassengerID,
	}
	if d, ok := s.Users.Lookup(o.DriverID); ok {
		res.DriverName = d.Name
	}
	return res
}

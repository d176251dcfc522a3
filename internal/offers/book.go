package offers

import (
	"errors"

	"github.com/example/ride-sharing/internal/models"
	"github.com/example/ride-sharing/internal/roadgraph"
)

var (
	ErrUnknownDriver   = errors.New("unknown driver")
	ErrInvalidCapacity = errors.New("capacity must be >= 1")
	ErrDuplicateOffer  = errors.New("offer id already exists")
	ErrNoSeats         = errors.New("offer has no seats left")
	ErrInvalidSeats    = errors.New("seats left out of range")
)

type DriverChecker interface {
	DriverExists(id int) bool
}

type PlaceResolver interface {
	GetOrCreatePlace(name string) *roadgraph.Place
}

// Book owns every outstanding ride offer. Offers are yielded newest first.
// Offers without seats stay in the book; the matcher skips them.
type Book struct {
	drivers DriverChecker
	places  PlaceResolver
	offers  []*models.RideOffer // insertion order
	byID    map[int]*models.RideOffer
}

func NewBook(drivers DriverChecker, places PlaceResolver) *Book {
	return &Book{drivers: drivers, places: places, byID: make(map[int]*models.RideOffer)}
}

func (b *Book) Create(offerID, driverID int, start, end string, departTime, capacity int) (*models.RideOffer, error) {
	if !b.drivers.DriverExists(driverID) {
		return nil, ErrUnknownDriver
	}
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	if _, dup := b.byID[offerID]; dup {
		return nil, ErrDuplicateOffer
	}
	o := &models.RideOffer{
		ID:         offerID,
		DriverID:   driverID,
		Start:      b.places.GetOrCreatePlace(start).ID,
		End:        b.places.GetOrCreatePlace(end).ID,
		DepartTime: departTime,
		Capacity:   capacity,
		SeatsLeft:  capacity,
	}
	b.offers = append(b.offers, o)
	b.byID[offerID] = o
	return o, nil
}

// Restore re-creates a persisted offer with its remaining seats.
func (b *Book) Restore(offerID, driverID int, start, end string, departTime, capacity, seatsLeft int) (*models.RideOffer, error) {
	if seatsLeft < 0 || seatsLeft > capacity {
		return nil, ErrInvalidSeats
	}
	o, err := b.Create(offerID, driverID, start, end, departTime, capacity)
	if err != nil {
		return nil, err
	}
	o.SeatsLeft = seatsLeft
	return o, nil
}

func (b *Book) Get(offerID int) (*models.RideOffer, bool) {
	o, ok := b.byID[offerID]
	return o, ok
}

// Enumerate returns the offers in scan order, newest first.
func (b *Book) Enumerate() []*models.RideOffer {
	out := make([]*models.RideOffer, 0, len(b.offers))
	for i := len(b.offers) - 1; i >= 0; i-- {
		out = append(out, b.offers[i])
	}
	return out
}

// Oldest returns the offers in insertion order, for persistence.
func (b *Book) Oldest() []*models.RideOffer {
	out := make([]*models.RideOffer, len(b.offers))
	copy(out, b.offers)
	return out
}

// DecrementSeats takes one seat from an offer owned by this book.
func (b *Book) DecrementSeats(o *models.RideOffer) error {
	if o.SeatsLeft <= 0 {
		return ErrNoSeats
	}
	o.SeatsLeft--
	return nil
}

func (b *Book) Len() int { return len(b.offers) }

// Open counts offers that still have seats.
func (b *Book) Open() int {
	n := 0
	for _, o := range b.offers {
		if o.SeatsLeft > 0 {
			n++
		}
	}
	return n
}

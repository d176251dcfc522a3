package models

// PlaceID is a stable handle into the road graph's place arena.
type PlaceID int

type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// ParseRole accepts the two role names used on the wire.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleDriver:
		return RoleDriver, true
	case RolePassenger:
		return RolePassenger, true
	}
	return "", false
}

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type User struct {
	ID             int    `json:"userId"`
	Name           string `json:"name"`
	Role           Role   `json:"role"`
	Rating         int    `json:"rating"`
	CompletedRides int    `json:"completedRides"`
}

func (u *User) IsDriver() bool { return u.Role == RoleDriver }

type RideOffer struct {
	ID         int
	DriverID   int
	Start      PlaceID
	End        PlaceID
	DepartTime int
	Capacity   int
	SeatsLeft  int
}

type RideRequest struct {
	ID          int
	PassengerID int
	From        PlaceID
	To          PlaceID
	Earliest    int
	Latest      int

	// HeapIndex is the request's slot in the request queue, -1 when not queued.
	HeapIndex int
}

type HistoryEntry struct {
	UserID     int    `json:"userId"`
	OfferID    int    `json:"offerId"`
	From       string `json:"from"`
	To         string `json:"to"`
	DepartTime int    `json:"departTime"`
}

type MatchResult struct {
	Matched     bool   `json:"matched"`
	DriverID    int    `json:"driverId"`
	DriverName  string `json:"driverName"`
	OfferID     int    `json:"offerId"`
	Start       string `json:"start"`
	End         string `json:"end"`
	DepartTime  int    `json:"departTime"`
	RequestID   int    `json:"requestId"`
	PassengerID int    `json:"passengerId"`
}

// Road is a directed edge referenced by place names.
type Road struct {
	From string `json:"from"`
	To   string `json:"to"`
	Cost int    `json:"cost"`
}

// OfferSummary is an offer with its places resolved to names.
type OfferSummary struct {
	OfferID    int    `json:"offerId"`
	DriverID   int    `json:"driverId"`
	Start      string `json:"start"`
	End        string `json:"end"`
	DepartTime int    `json:"departTime"`
	Capacity   int    `json:"capacity"`
	SeatsLeft  int    `json:"seatsLeft"`
}

// RequestSummary is a queued request with its places resolved to names.
type RequestSummary struct {
	RequestID   int    `json:"requestId"`
	PassengerID int    `json:"passengerId"`
	From        string `json:"from"`
	To          string `json:"to"`
	Earliest    int    `json:"earliest"`
	Latest      int    `json:"latest"`
}

type ReachablePlace struct {
	Place string `json:"place"`
	Cost  int    `json:"cost"`
}

type Route struct {
	Path      []string `json:"path"`
	TotalCost int      `json:"totalCost"`
}

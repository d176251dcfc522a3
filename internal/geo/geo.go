package geo

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/ride-sharing/internal/models"
)

// Fallback coordinates are spread over a small box starting here.
const (
	fallbackLat = 33.6844
	fallbackLng = 73.0479
)

// NamedCoord is a place name with its map position.
type NamedCoord struct {
	Name  string       `json:"name"`
	Coord models.Coord `json:"coord"`
}

// PlaceDistance is a place and its distance from a query point.
type PlaceDistance struct {
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Meters float64 `json:"distanceMeters"`
}

// Finder ranks places by distance from an origin.
type Finder interface {
	Nearby(ctx context.Context, origin models.Coord, places []NamedCoord, limit int) ([]PlaceDistance, error)
}

// Index maps place names to coordinates for map display. Places without a
// configured position get a stable position derived from their name.
type Index struct {
	mu     sync.RWMutex
	coords map[string]models.Coord
}

func NewIndex() *Index {
	return &Index{coords: make(map[string]models.Coord)}
}

func (g *Index) Set(name string, c models.Coord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.coords[name] = c
}

// LoadCSV reads "name,lat,lng" rows. Lines starting with '#' are comments;
// rows that do not parse are logged and skipped.
func (g *Index) LoadCSV(r io.Reader, logger *zap.Logger) (loaded, skipped int, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	for {
		rec, rerr := cr.Read()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			var perr *csv.ParseError
			if errors.As(rerr, &perr) {
				skipped++
				logger.Warn("skipping place row", zap.Error(rerr))
				continue
			}
			return loaded, skipped, fmt.Errorf("read places: %w", rerr)
		}
		name, c, ok := parseRow(rec)
		if !ok {
			skipped++
			logger.Warn("skipping place row", zap.Strings("row", rec))
			continue
		}
		g.Set(name, c)
		loaded++
	}
	return loaded, skipped, nil
}

func parseRow(rec []string) (string, models.Coord, bool) {
	if len(rec) < 3 {
		return "", models.Coord{}, false
	}
	name := strings.TrimSpace(rec[0])
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if name == "" || err1 != nil || err2 != nil {
		return "", models.Coord{}, false
	}
	return name, models.Coord{Lat: lat, Lng: lng}, true
}

// Coord returns the configured position of name, or its fallback position.
func (g *Index) Coord(name string) models.Coord {
	g.mu.RLock()
	c, ok := g.coords[name]
	g.mu.RUnlock()
	if ok {
		return c
	}
	return FallbackCoord(name)
}

// Locate pairs each name with its position.
func (g *Index) Locate(names []string) []NamedCoord {
	out := make([]NamedCoord, len(names))
	for i, n := range names {
		out[i] = NamedCoord{Name: n, Coord: g.Coord(n)}
	}
	return out
}

// FallbackCoord hashes name with djb2 into a box of 0.08 by 0.10 degrees.
func FallbackCoord(name string) models.Coord {
	var h uint64 = 5381
	for i := 0; i < len(name); i++ {
		h = (h << 5) + h + uint64(name[i])
	}
	return models.Coord{
		Lat: fallbackLat + float64(h%1000)/1000.0*0.08,
		Lng: fallbackLng + float64((h/1000)%1000)/1000.0*0.10,
	}
}

// Nearby ranks places by Haversine distance, nearest first. Ties keep the
// input order.
func (g *Index) Nearby(_ context.Context, origin models.Coord, places []NamedCoord, limit int) ([]PlaceDistance, error) {
	out := make([]PlaceDistance, 0, len(places))
	for _, p := range places {
		out = append(out, PlaceDistance{
			Name:   p.Name,
			Lat:    p.Coord.Lat,
			Lng:    p.Coord.Lng,
			Meters: Haversine(origin.Lat, origin.Lng, p.Coord.Lat, p.Coord.Lng),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Meters < out[j].Meters })
	if limit >= 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

package geo

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-sharing/internal/models"
)

// searchRadiusKm bounds GEORADIUS queries; the fallback box is far smaller.
const searchRadiusKm = 500

// GeoClient is the subset of the go-redis client RedisGeo needs.
type GeoClient interface {
	GeoAdd(ctx context.Context, key string, geoLocation ...*redis.GeoLocation) *redis.IntCmd
	GeoRadius(ctx context.Context, key string, longitude, latitude float64, query *redis.GeoRadiusQuery) *redis.GeoLocationCmd
}

// RedisGeo implements Finder with Redis GEO commands. Places are written
// with GEOADD before each query so the set follows the road graph.
type RedisGeo struct {
	client GeoClient
	key    string
}

func NewRedisGeo(client GeoClient, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Nearby(ctx context.Context, origin models.Coord, places []NamedCoord, limit int) ([]PlaceDistance, error) {
	if len(places) == 0 || limit == 0 {
		return []PlaceDistance{}, nil
	}
	locs := make([]*redis.GeoLocation, len(places))
	for i, p := range places {
		locs[i] = &redis.GeoLocation{Name: p.Name, Longitude: p.Coord.Lng, Latitude: p.Coord.Lat}
	}
	if err := r.client.GeoAdd(ctx, r.key, locs...).Err(); err != nil {
		return nil, fmt.Errorf("geoadd %s: %w", r.key, err)
	}
	q := &redis.GeoRadiusQuery{
		Radius:    searchRadiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}
	if limit > 0 {
		q.Count = limit
	}
	res, err := r.client.GeoRadius(ctx, r.key, origin.Lng, origin.Lat, q).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius %s: %w", r.key, err)
	}
	out := make([]PlaceDistance, 0, len(res))
	for _, g := range res {
		out = append(out, PlaceDistance{Name: g.Name, Lat: g.Latitude, Lng: g.Longitude, Meters: g.Dist * 1000})
	}
	return out, nil
}

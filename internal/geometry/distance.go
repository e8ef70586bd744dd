package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"kvadrat/server/config"
	"kvadrat/server/internal/models"
)

// DistanceKm returns the haversine distance between two positions in
// kilometers.
func DistanceKm(a, b models.Position) float64 {
	pa := orb.Point{a.Longitude, a.Latitude}
	pb := orb.Point{b.Longitude, b.Latitude}
	return geo.Distance(pa, pb) / 1000.0
}

// BoundAroundPoint returns a bounding box covering radiusKm around pos,
// used as a cheap SQL prefilter before the exact haversine check.
func BoundAroundPoint(pos models.Position, radiusKm float64) (latMin, latMax, lonMin, lonMax float64) {
	bound := geo.NewBoundAroundPoint(orb.Point{pos.Longitude, pos.Latitude}, radiusKm*1000.0)
	return bound.Min[1], bound.Max[1], bound.Min[0], bound.Max[0]
}

// NearestDistrict resolves a position to the supported district whose center
// is closest. Returns an empty code when no districts are configured.
func NearestDistrict(pos models.Position) string {
	best := ""
	bestDist := -1.0
	for _, d := range config.SupportedDistricts {
		if len(d.Center) != 2 {
			continue
		}
		dist := DistanceKm(pos, models.Position{Latitude: d.Center[0], Longitude: d.Center[1]})
		if bestDist < 0 || dist < bestDist {
			best = d.Code
			bestDist = dist
		}
	}
	return best
}

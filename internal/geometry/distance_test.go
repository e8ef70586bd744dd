package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kvadrat/server/internal/models"
)

func TestDistanceKm(t *testing.T) {
	// Red Square to Tverskoy center, roughly 1.2 km
	redSquare := models.Position{Latitude: 55.7539, Longitude: 37.6208}
	tverskoy := models.Position{Latitude: 55.7652, Longitude: 37.6050}

	d := DistanceKm(redSquare, tverskoy)
	assert.InDelta(t, 1.6, d, 0.5)

	// Symmetric
	assert.InDelta(t, d, DistanceKm(tverskoy, redSquare), 1e-9)

	// Zero distance
	assert.InDelta(t, 0, DistanceKm(redSquare, redSquare), 1e-9)
}

func TestDistanceKmZeroCoordinates(t *testing.T) {
	// The null island is a legitimate position, not a sentinel
	origin := models.Position{Latitude: 0, Longitude: 0}
	offset := models.Position{Latitude: 0, Longitude: 0.018}

	d := DistanceKm(origin, offset)
	assert.Greater(t, d, 1.5)
	assert.Less(t, d, 2.5)
}

func TestBoundAroundPoint(t *testing.T) {
	pos := models.Position{Latitude: 55.75, Longitude: 37.62}
	latMin, latMax, lonMin, lonMax := BoundAroundPoint(pos, 2.0)

	assert.Less(t, latMin, pos.Latitude)
	assert.Greater(t, latMax, pos.Latitude)
	assert.Less(t, lonMin, pos.Longitude)
	assert.Greater(t, lonMax, pos.Longitude)

	// 2 km is roughly 0.018 degrees of latitude
	assert.InDelta(t, 0.018, latMax-pos.Latitude, 0.005)
}

func TestNearestDistrict(t *testing.T) {
	tests := []struct {
		name     string
		pos      models.Position
		expected string
	}{
		{
			name:     "Tverskoy center",
			pos:      models.Position{Latitude: 55.7652, Longitude: 37.6050},
			expected: "tverskoy",
		},
		{
			name:     "Khamovniki center",
			pos:      models.Position{Latitude: 55.7338, Longitude: 37.5850},
			expected: "khamovniki",
		},
		{
			name:     "Far away still resolves to closest",
			pos:      models.Position{Latitude: 55.60, Longitude: 37.50},
			expected: "khamovniki",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NearestDistrict(tt.pos))
		})
	}
}

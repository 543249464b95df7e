// Package geo provides the coordinate types and great-circle distance math
// shared by the route model and the progress tracker. Keeping the geometry
// behind this package lets the tracker's step/arrival logic be tested with
// synthetic coordinates instead of a real mapping engine.
package geo

import (
	"math"
	"time"
)

// EarthRadiusM is the mean earth radius in metres (IUGG).
const EarthRadiusM = 6371008.8

// Point is a single WGS 84 position sample. HorizontalAccuracyM is the
// reported 1-sigma horizontal error radius; zero means "unknown/perfect"
// (synthetic test coordinates). Timestamp is when the fix was taken, not
// when it was delivered.
type Point struct {
	Lat                 float64   `json:"lat"`
	Lon                 float64   `json:"lon"`
	HorizontalAccuracyM float64   `json:"horizontal_accuracy_m,omitempty"`
	Timestamp           time.Time `json:"timestamp,omitzero"`
}

// Haversine returns the great-circle distance between two points in metres.
func Haversine(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLon*sinLon

	return 2 * EarthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceFunc measures the distance in metres between two points. The
// tracker takes one of these so tests can substitute planar or scripted
// geometries; production code passes Haversine.
type DistanceFunc func(a, b Point) float64

// Polyline is an ordered sequence of points traced along a route geometry.
type Polyline []Point

// Terminal returns the last point of the polyline and whether one exists.
func (p Polyline) Terminal() (Point, bool) {
	if len(p) == 0 {
		return Point{}, false
	}
	return p[len(p)-1], true
}

// LengthM returns the summed great-circle length of the polyline in metres.
func (p Polyline) LengthM() float64 {
	var total float64
	for i := 1; i < len(p); i++ {
		total += Haversine(p[i-1], p[i])
	}
	return total
}

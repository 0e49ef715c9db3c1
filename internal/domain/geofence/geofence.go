// Package geofence answers proximity queries against restricted zones.
//
// A query runs in two passes: a bounding-box pre-filter discards zones whose
// box (center ± radius, in degrees) does not contain the point, and the
// survivors are checked with the haversine great-circle distance. The box
// over-approximates the circle so the pre-filter never drops a true intrusion.
package geofence

import (
	"math"

	"github.com/okian/flightguard/internal/domain/model"
)

// Geodesy constants.
const (
	EarthRadiusMiles  = 3959.0
	MilesPerDegreeLat = 69.0

	degToRad = math.Pi / 180
	// minCosLat keeps the longitude span finite near the poles.
	minCosLat = 1e-6
)

// Distance returns the great-circle distance in miles between p and q.
// The formula is symmetric in its arguments and Distance(p, p) == 0.
func Distance(p, q model.Position) float64 {
	lat1 := p.Lat * degToRad
	lat2 := q.Lat * degToRad
	dLat := (q.Lat - p.Lat) * degToRad
	dLng := (q.Lng - p.Lng) * degToRad

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// Rounding can push a a hair outside [0,1].
	a = math.Min(1, math.Max(0, a))
	return 2 * EarthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Box is a latitude/longitude bounding box in degrees.
type Box struct {
	MinLat, MaxLat float64
	CenterLng      float64
	// HalfLng is the longitude half-width; values >= 180 cover every meridian.
	HalfLng float64
}

// BoundingBox returns the pre-filter box for zone.
func BoundingBox(zone model.RestrictedZone) Box {
	dLat := zone.RadiusMiles / MilesPerDegreeLat
	// Use the most poleward latitude inside the box, where a degree of
	// longitude is shortest, so the box always contains the circle.
	edgeLat := math.Min(90, math.Abs(zone.Center.Lat)+dLat)
	cosLat := math.Cos(edgeLat * degToRad)

	half := 180.0
	if cosLat > minCosLat {
		half = math.Min(180, dLat/cosLat)
	}
	return Box{
		MinLat:    zone.Center.Lat - dLat,
		MaxLat:    zone.Center.Lat + dLat,
		CenterLng: zone.Center.Lng,
		HalfLng:   half,
	}
}

// Contains reports whether p lies in the box, handling the antimeridian.
func (b Box) Contains(p model.Position) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.HalfLng >= 180 {
		return true
	}
	return math.Abs(lngDelta(p.Lng, b.CenterLng)) <= b.HalfLng
}

// lngDelta returns a-b wrapped into [-180, 180].
func lngDelta(a, b float64) float64 {
	return math.Mod(a-b+540, 360) - 180
}

// Intrudes reports whether p lies strictly inside zone.
func Intrudes(p model.Position, zone model.RestrictedZone) bool {
	if zone.RadiusMiles <= 0 {
		return false
	}
	if !BoundingBox(zone).Contains(p) {
		return false
	}
	return Distance(p, zone.Center) < zone.RadiusMiles
}

// ZonesNear returns the active zones intruded by point, in input order.
// The result is empty, never nil, when nothing is intruded.
func ZonesNear(point model.Position, zones []model.RestrictedZone) []model.RestrictedZone {
	return NewIndex(zones).ZonesNear(point)
}

// Index is an immutable set of active zones with precomputed boxes. It is
// safe for concurrent use.
type Index struct {
	zones []model.RestrictedZone
	boxes []Box
}

// NewIndex builds an index over the active, positive-radius zones.
func NewIndex(zones []model.RestrictedZone) *Index {
	idx := &Index{
		zones: make([]model.RestrictedZone, 0, len(zones)),
		boxes: make([]Box, 0, len(zones)),
	}
	for _, z := range zones {
		if !z.Active || z.RadiusMiles <= 0 {
			continue
		}
		idx.zones = append(idx.zones, z)
		idx.boxes = append(idx.boxes, BoundingBox(z))
	}
	return idx
}

// Len returns the number of indexed zones.
func (idx *Index) Len() int { return len(idx.zones) }

// Zones returns a copy of the indexed zones.
func (idx *Index) Zones() []model.RestrictedZone {
	out := make([]model.RestrictedZone, len(idx.zones))
	copy(out, idx.zones)
	return out
}

// ZonesNear returns the indexed zones intruded by point.
func (idx *Index) ZonesNear(point model.Position) []model.RestrictedZone {
	out := make([]model.RestrictedZone, 0)
	for i, z := range idx.zones {
		if !idx.boxes[i].Contains(point) {
			continue
		}
		if Distance(point, z.Center) < z.RadiusMiles {
			out = append(out, z)
		}
	}
	return out
}

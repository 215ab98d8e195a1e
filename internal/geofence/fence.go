// Package geofence answers where a fix is relative to the deployment area:
// whether it lies inside a lat/lon box and how far it is from home.
package geofence

import (
	"fmt"

	geo "github.com/kellydunn/golang-geo"
)

// Bounds is an axis-aligned latitude/longitude box in decimal degrees.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Colombia covers the mainland and the San Andrés archipelago.
var Colombia = Bounds{MinLat: -4.23, MaxLat: 13.39, MinLon: -81.73, MaxLon: -66.85}

func (b Bounds) Validate() error {
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return fmt.Errorf("geofence: bounds must satisfy min < max")
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("geofence: bounds out of range")
	}
	return nil
}

// Contains reports whether lat/lon lies inside b, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Fence combines the area box with an optional home point.
type Fence struct {
	bounds Bounds
	home   *geo.Point
}

// New builds a fence. A zero home (0,0) disables distance reporting.
func New(b Bounds, homeLat, homeLon float64) (*Fence, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	f := &Fence{bounds: b}
	if homeLat != 0 || homeLon != 0 {
		f.home = geo.NewPoint(homeLat, homeLon)
	}
	return f, nil
}

// Position describes one fix relative to the fence.
type Position struct {
	Inside bool `json:"inside"`

	// HasHome is false when no home point is configured; DistanceKm and
	// BearingDeg are then zero.
	HasHome    bool    `json:"has_home"`
	DistanceKm float64 `json:"distance_km"`
	BearingDeg float64 `json:"bearing_deg"`
}

func (f *Fence) Locate(lat, lon float64) Position {
	if f == nil {
		return Position{}
	}
	pos := Position{Inside: f.bounds.Contains(lat, lon)}
	if f.home != nil {
		p := geo.NewPoint(lat, lon)
		pos.HasHome = true
		pos.DistanceKm = f.home.GreatCircleDistance(p)
		pos.BearingDeg = normalizeBearing(f.home.BearingTo(p))
	}
	return pos
}

// Distance returns the great-circle distance in km between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.NewPoint(lat1, lon1).GreatCircleDistance(geo.NewPoint(lat2, lon2))
}

func normalizeBearing(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}

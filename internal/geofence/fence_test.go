package geofence

import (
	"math"
	"testing"
)

func TestBounds_Contains(t *testing.T) {
	cases := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"Bogota", 4.7110, -74.0721, true},
		{"Leticia", -4.2153, -69.9406, true},
		{"SanAndres", 12.5847, -81.7006, true},
		{"Quito", -0.1807, -78.4678, true}, // inside the box, outside the border
		{"Havana", 23.1136, -82.3666, false},
		{"Lima", -12.0464, -77.0428, false},
		{"Munich", 48.1173, 11.5167, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Colombia.Contains(tc.lat, tc.lon); got != tc.want {
				t.Fatalf("Contains(%f,%f)=%v want %v", tc.lat, tc.lon, got, tc.want)
			}
		})
	}
}

func TestFence_Locate(t *testing.T) {
	// Bogotá to Medellín is roughly 240 km great-circle.
	f, err := New(Colombia, 4.7110, -74.0721)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	pos := f.Locate(6.2442, -75.5812)
	if !pos.Inside || !pos.HasHome {
		t.Fatalf("pos=%+v", pos)
	}
	if pos.DistanceKm < 230 || pos.DistanceKm > 250 {
		t.Fatalf("distance=%f", pos.DistanceKm)
	}
	// Medellín is north-west of Bogotá.
	if pos.BearingDeg < 270 || pos.BearingDeg > 360 {
		t.Fatalf("bearing=%f", pos.BearingDeg)
	}
}

func TestFence_NoHome(t *testing.T) {
	f, err := New(Colombia, 0, 0)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	pos := f.Locate(4.7110, -74.0721)
	if pos.HasHome || pos.DistanceKm != 0 {
		t.Fatalf("pos=%+v", pos)
	}
	var nilFence *Fence
	if nilFence.Locate(1, 1) != (Position{}) {
		t.Fatalf("nil fence should locate nothing")
	}
}

func TestNew_RejectsBadBounds(t *testing.T) {
	if _, err := New(Bounds{MinLat: 5, MaxLat: 1, MinLon: 0, MaxLon: 1}, 0, 0); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := New(Bounds{MinLat: -95, MaxLat: 1, MinLon: 0, MaxLon: 1}, 0, 0); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestDistance_Symmetric(t *testing.T) {
	a := Distance(4.7110, -74.0721, 3.4516, -76.5320)
	b := Distance(3.4516, -76.5320, 4.7110, -74.0721)
	if math.Abs(a-b) > 1e-9 || a < 290 || a > 320 {
		t.Fatalf("a=%f b=%f", a, b)
	}
}

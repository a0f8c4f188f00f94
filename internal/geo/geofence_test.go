package geo

import (
	"math"
	"testing"
)

// Kathmandu valley center, the default play-area center.
const (
	centerLat = 27.7172
	centerLng = 85.324
)

func TestDistanceZero(t *testing.T) {
	if d := Distance(centerLat, centerLng, centerLat, centerLng); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// One degree of latitude is roughly 111.19 km on a 6371 km sphere.
	d := Distance(27.0, 85.0, 28.0, 85.0)
	if math.Abs(d-111195) > 50 {
		t.Fatalf("expected ~111195m for one degree latitude, got %v", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := Distance(27.7172, 85.324, 27.6710, 85.4298)
	b := Distance(27.6710, 85.4298, 27.7172, 85.324)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("distance not symmetric: %v vs %v", a, b)
	}
}

func TestFenceMonotonic(t *testing.T) {
	fence := Fence{Center: Point{centerLat, centerLng}, RadiusMeters: 2000}

	// ~0.009 degrees latitude is ~1km; ~0.018 is ~2km; ~0.027 is ~3km.
	near := centerLat + 0.009
	edge := centerLat + 0.017
	far := centerLat + 0.027

	if !fence.Contains(near, centerLng) {
		t.Fatalf("point ~1km out should be inside a 2000m fence")
	}
	if !fence.Contains(edge, centerLng) {
		t.Fatalf("point just inside the radius should pass")
	}
	if fence.Contains(far, centerLng) {
		t.Fatalf("point ~3km out must be outside a 2000m fence")
	}

	if fence.DistanceTo(near, centerLng) >= fence.DistanceTo(far, centerLng) {
		t.Fatalf("distances not monotonic with displacement")
	}
}

func TestFenceBoundaryInclusive(t *testing.T) {
	fence := Fence{Center: Point{0, 0}, RadiusMeters: Distance(0, 0, 0.01, 0)}
	if !fence.Contains(0.01, 0) {
		t.Fatalf("distance equal to radius must pass")
	}
}

func TestFenceRejectsInvalidCoordinates(t *testing.T) {
	fence := Fence{Center: Point{centerLat, centerLng}, RadiusMeters: 1e9}
	if fence.Contains(math.NaN(), centerLng) {
		t.Fatalf("NaN latitude must be outside")
	}
	if fence.Contains(centerLat, math.NaN()) {
		t.Fatalf("NaN longitude must be outside")
	}
	if fence.Contains(95, 0) || fence.Contains(0, 181) {
		t.Fatalf("out-of-range coordinates must be outside")
	}
}

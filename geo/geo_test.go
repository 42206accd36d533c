package geo

import (
	"math"
	"strings"
	"testing"
)

func TestDistanceMilesZeroAndSymmetry(t *testing.T) {
	if d := DistanceMiles(40.7128, -74.0060, 40.7128, -74.0060); d != 0 {
		t.Fatalf("distance to self should be 0, got %f", d)
	}

	ab := DistanceMiles(40.7128, -74.0060, 34.0522, -118.2437)
	ba := DistanceMiles(34.0522, -118.2437, 40.7128, -74.0060)
	if ab != ba {
		t.Fatalf("distance not symmetric: %f vs %f", ab, ba)
	}
}

func TestDistanceMilesKnownValues(t *testing.T) {
	// New York to Los Angeles, roughly 2445 miles.
	d := DistanceMiles(40.7128, -74.0060, 34.0522, -118.2437)
	if d < 2440 || d > 2452 {
		t.Fatalf("NYC-LA distance out of range: %f", d)
	}

	// One degree of latitude on the sphere is R*pi/180 miles.
	want := EarthRadiusMiles * math.Pi / 180
	d = DistanceMiles(0, 0, 1, 0)
	if math.Abs(d-want) > 0.001 {
		t.Fatalf("one degree latitude: got %f want %f", d, want)
	}
}

func TestDistanceMilesMonotonic(t *testing.T) {
	prev := 0.0
	for deg := 1.0; deg <= 10; deg++ {
		d := DistanceMiles(0, 0, 0, deg)
		if d <= prev {
			t.Fatalf("distance not increasing with separation at %f deg: %f <= %f", deg, d, prev)
		}
		prev = d
	}
}

func TestEncodeKnownHashes(t *testing.T) {
	if got := Encode(57.64911, 10.40744, 11); got != "u4pruydqqvj" {
		t.Fatalf("encode(57.64911, 10.40744): got %q", got)
	}
	if got := Encode(42.605, -5.603, 5); got != "ezs42" {
		t.Fatalf("encode(42.605, -5.603): got %q", got)
	}
	if got := Encode(57.64911, 10.40744, 5); got != "u4pru" {
		t.Fatalf("shorter precision should be a prefix, got %q", got)
	}
}

func TestBoundsRoundTrip(t *testing.T) {
	hash := Encode(37.7749, -122.4194, 7)
	box, err := Bounds(hash)
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if 37.7749 < box.MinLat || 37.7749 > box.MaxLat {
		t.Fatalf("latitude outside decoded cell: %+v", box)
	}
	if -122.4194 < box.MinLng || -122.4194 > box.MaxLng {
		t.Fatalf("longitude outside decoded cell: %+v", box)
	}

	if _, err := Bounds("abcl"); err == nil {
		t.Fatalf("expected error for invalid geohash character")
	}
}

func TestNeighbors(t *testing.T) {
	center := Encode(37.7749, -122.4194, 6)
	neighbors, err := Neighbors(center)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) != 8 {
		t.Fatalf("expected 8 neighbors away from the poles, got %d", len(neighbors))
	}

	seen := map[string]struct{}{}
	for _, n := range neighbors {
		if len(n) != len(center) {
			t.Fatalf("neighbor %q has wrong precision", n)
		}
		if n == center {
			t.Fatalf("center returned as its own neighbor")
		}
		if _, dup := seen[n]; dup {
			t.Fatalf("duplicate neighbor %q", n)
		}
		seen[n] = struct{}{}
	}

	// A point just across the northern cell boundary must land in a neighbor.
	box, err := Bounds(center)
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	across := Encode(box.MaxLat+1e-9, -122.4194, len(center))
	if _, ok := seen[across]; !ok {
		t.Fatalf("cell across northern boundary %q not among neighbors %v", across, neighbors)
	}
}

func TestPrecisionForRadius(t *testing.T) {
	cases := []struct {
		radius float64
		want   int
	}{
		{0.5, 8},
		{1, 8},
		{5, 6},
		{10, 5},
		{20, 5},
		{50, 4},
		{100, 3},
	}
	for _, c := range cases {
		if got := PrecisionForRadius(c.radius); got != c.want {
			t.Errorf("precision for %.1f mi: got %d want %d", c.radius, got, c.want)
		}
	}
}

func TestCoveringPrefixes(t *testing.T) {
	prefixes := CoveringPrefixes(37.7749, -122.4194, 5)
	if len(prefixes) != 9 {
		t.Fatalf("expected center plus 8 neighbors, got %d", len(prefixes))
	}

	precision := PrecisionForRadius(5)
	center := Encode(37.7749, -122.4194, precision)
	found := false
	for _, p := range prefixes {
		if len(p) != precision {
			t.Fatalf("prefix %q has precision %d, want %d", p, len(p), precision)
		}
		if p == center {
			found = true
		}
	}
	if !found {
		t.Fatalf("center prefix %q missing from %v", center, prefixes)
	}

	// A nearby point must hash under one of the covering prefixes.
	near := Encode(37.7849, -122.4094, precision)
	covered := false
	for _, p := range prefixes {
		if strings.HasPrefix(near, p) {
			covered = true
			break
		}
	}
	if !covered {
		t.Fatalf("nearby point %q not covered by %v", near, prefixes)
	}
}

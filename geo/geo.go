// Package geo provides the spatial primitives behind feed admission:
// great-circle distance, geohash encoding and radius covering prefixes.
// Geohashes are a coarse prefilter only; the authoritative admission test is
// always the exact haversine distance.
package geo

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// EarthRadiusMiles is the canonical sphere radius used for every distance in
// the engine. Multiple constants (3958.8, 3959.0) floated around earlier
// iterations of the product; this is the single unified value and tests
// depend on it.
const EarthRadiusMiles = 3958.7613

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// DistanceMiles returns the haversine great-circle distance between two
// points in miles. Symmetric, zero for identical points and monotonically
// related to angular separation.
func DistanceMiles(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dLng/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMiles * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Encode returns the base-32 geohash of the coordinate at the given
// character precision, using the standard latitude/longitude bit
// interleaving (longitude first).
func Encode(lat, lng float64, precision int) string {
	if precision <= 0 {
		precision = 7
	}

	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0
	isLng := true
	bit, ch := 0, 0

	var hash strings.Builder
	hash.Grow(precision)

	for hash.Len() < precision {
		if isLng {
			mid := (lngMin + lngMax) / 2
			if lng > mid {
				ch = ch<<1 | 1
				lngMin = mid
			} else {
				ch <<= 1
				lngMax = mid
			}
		} else {
			mid := (latMin + latMax) / 2
			if lat > mid {
				ch = ch<<1 | 1
				latMin = mid
			} else {
				ch <<= 1
				latMax = mid
			}
		}
		isLng = !isLng
		bit++
		if bit == 5 {
			hash.WriteByte(base32[ch])
			bit, ch = 0, 0
		}
	}

	return hash.String()
}

// Box is the bounding box of a geohash cell.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Center returns the midpoint of the box.
func (b Box) Center() (lat, lng float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLng + b.MaxLng) / 2
}

// Bounds decodes a geohash back into its cell bounding box.
func Bounds(hash string) (Box, error) {
	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0
	isLng := true

	for _, r := range strings.ToLower(hash) {
		idx := strings.IndexRune(base32, r)
		if idx < 0 {
			return Box{}, fmt.Errorf("invalid geohash character %q in %q", r, hash)
		}
		for bit := 4; bit >= 0; bit-- {
			set := idx>>uint(bit)&1 == 1
			if isLng {
				mid := (lngMin + lngMax) / 2
				if set {
					lngMin = mid
				} else {
					lngMax = mid
				}
			} else {
				mid := (latMin + latMax) / 2
				if set {
					latMin = mid
				} else {
					latMax = mid
				}
			}
			isLng = !isLng
		}
	}

	return Box{MinLat: latMin, MaxLat: latMax, MinLng: lngMin, MaxLng: lngMax}, nil
}

// Neighbors returns the geohashes of the up-to-8 cells adjacent to the given
// cell, at the same precision. Cells beyond the poles are omitted; longitude
// wraps at the antimeridian.
func Neighbors(hash string) ([]string, error) {
	box, err := Bounds(hash)
	if err != nil {
		return nil, err
	}

	centerLat, centerLng := box.Center()
	latSpan := box.MaxLat - box.MinLat
	lngSpan := box.MaxLng - box.MinLng

	seen := map[string]struct{}{hash: {}}
	neighbors := make([]string, 0, 8)

	for _, dLat := range []float64{-1, 0, 1} {
		for _, dLng := range []float64{-1, 0, 1} {
			if dLat == 0 && dLng == 0 {
				continue
			}
			nLat := centerLat + dLat*latSpan
			if nLat > 90 || nLat < -90 {
				continue
			}
			nLng := centerLng + dLng*lngSpan
			if nLng > 180 {
				nLng -= 360
			} else if nLng < -180 {
				nLng += 360
			}
			n := Encode(nLat, nLng, len(hash))
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			neighbors = append(neighbors, n)
		}
	}

	return neighbors, nil
}

// FormatDistance renders a distance for display: "< 0.1 mi" below a tenth,
// one decimal under a mile, whole miles above.
func FormatDistance(miles float64) string {
	switch {
	case miles < 0.1:
		return "< 0.1 mi"
	case miles < 1.0:
		return fmt.Sprintf("%.1f mi", miles)
	default:
		return fmt.Sprintf("%.0f mi", miles)
	}
}

// PrecisionForRadius picks a geohash character precision inversely related
// to the search radius: the wider the radius, the coarser the prefix.
func PrecisionForRadius(radiusMiles float64) int {
	switch {
	case radiusMiles <= 1:
		return 8
	case radiusMiles <= 5:
		return 6
	case radiusMiles <= 20:
		return 5
	case radiusMiles <= 50:
		return 4
	default:
		return 3
	}
}

// CoveringPrefixes returns the geohash prefixes whose cells cover a radius
// search around the center: the center cell plus its 8 neighbors, at the
// precision chosen for the radius. Including the neighbors avoids false
// negatives for points near a cell boundary. The result is a prefilter; the
// exact distance test decides admission.
func CoveringPrefixes(lat, lng, radiusMiles float64) []string {
	precision := PrecisionForRadius(radiusMiles)
	center := Encode(lat, lng, precision)

	prefixes := []string{center}
	if neighbors, err := Neighbors(center); err == nil {
		prefixes = append(prefixes, neighbors...)
	}

	sort.Strings(prefixes)
	return prefixes
}

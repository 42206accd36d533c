package processor

import (
	"math"
	"testing"
	"time"

	"dealspulse/geo"
	"dealspulse/models"
)

const (
	centerLat = 37.7749
	centerLng = -122.4194
)

// dealAtDistance builds an active deal roughly the given number of miles due
// north of the test center.
func dealAtDistance(t *testing.T, id string, miles float64, category models.DealCategory, expiresIn time.Duration) models.Deal {
	t.Helper()
	lat := centerLat + miles/(geo.EarthRadiusMiles*math.Pi/180)
	lng := centerLng
	return models.Deal{
		ID:        id,
		VendorID:  "v-" + id,
		Title:     "deal " + id,
		Category:  category,
		Status:    models.StatusActive,
		Lat:       &lat,
		Lng:       &lng,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(expiresIn),
	}
}

func TestAdmissibleScenarioRadiusAndCategory(t *testing.T) {
	now := time.Now()
	food := models.CategoryFood
	params := models.QueryParams{CenterLat: centerLat, CenterLng: centerLng, RadiusMiles: 5, Category: &food}

	d1 := dealAtDistance(t, "d1", 2, models.CategoryFood, 10*time.Minute)
	d2 := dealAtDistance(t, "d2", 8, models.CategoryRetail, 5*time.Minute)

	if _, ok := Admissible(&d1, params, now); !ok {
		t.Fatalf("d1 (food, 2mi) should be admissible under radius 5 + food filter")
	}
	if _, ok := Admissible(&d2, params, now); ok {
		t.Fatalf("d2 (retail, 8mi) should be rejected")
	}

	// Without the category filter d2 is still out of radius.
	params.Category = nil
	if _, ok := Admissible(&d2, params, now); ok {
		t.Fatalf("d2 should be rejected on distance alone")
	}
}

func TestAdmissibleLiveness(t *testing.T) {
	now := time.Now()
	params := models.QueryParams{CenterLat: centerLat, CenterLng: centerLng, RadiusMiles: 5}

	expired := dealAtDistance(t, "expired", 1, models.CategoryFood, -time.Minute)
	if _, ok := Admissible(&expired, params, now); ok {
		t.Fatalf("expired deal should be rejected")
	}

	pending := dealAtDistance(t, "pending", 1, models.CategoryFood, 10*time.Minute)
	pending.Status = models.StatusPending
	if _, ok := Admissible(&pending, params, now); ok {
		t.Fatalf("pending deal should be rejected")
	}

	ended := dealAtDistance(t, "ended", 1, models.CategoryFood, 10*time.Minute)
	ended.Status = models.StatusEnded
	if _, ok := Admissible(&ended, params, now); ok {
		t.Fatalf("ended deal should be rejected")
	}

	// Liveness is evaluated against the supplied time, not cached: the same
	// deal flips once time passes its expiry.
	short := dealAtDistance(t, "short", 1, models.CategoryFood, time.Minute)
	if _, ok := Admissible(&short, params, now); !ok {
		t.Fatalf("deal should be live before expiry")
	}
	if _, ok := Admissible(&short, params, now.Add(2*time.Minute)); ok {
		t.Fatalf("deal should be rejected after expiry")
	}
}

func TestAdmissibleMissingCoordinates(t *testing.T) {
	now := time.Now()
	params := models.QueryParams{CenterLat: centerLat, CenterLng: centerLng, RadiusMiles: 5}

	d := dealAtDistance(t, "d", 1, models.CategoryFood, 10*time.Minute)
	d.Lat, d.Lng = nil, nil
	if _, ok := Admissible(&d, params, now); ok {
		t.Fatalf("deal without coordinates should be rejected")
	}

	// Vendor profile coordinates are an acceptable fallback.
	lat, lng := centerLat, centerLng
	d.Vendor = &models.VendorProfile{UserID: "v", Lat: &lat, Lng: &lng}
	if _, ok := Admissible(&d, params, now); !ok {
		t.Fatalf("vendor coordinates should make the deal placeable")
	}
}

func TestAdmissibleDeterministic(t *testing.T) {
	now := time.Now()
	params := models.QueryParams{CenterLat: centerLat, CenterLng: centerLng, RadiusMiles: 5}
	d := dealAtDistance(t, "d", 3, models.CategoryFood, 10*time.Minute)

	firstDist, firstOK := Admissible(&d, params, now)
	for i := 0; i < 10; i++ {
		dist, ok := Admissible(&d, params, now)
		if dist != firstDist || ok != firstOK {
			t.Fatalf("admission not deterministic: (%f,%v) vs (%f,%v)", dist, ok, firstDist, firstOK)
		}
	}
}

func TestAdmissibleReturnsDistance(t *testing.T) {
	now := time.Now()
	params := models.QueryParams{CenterLat: centerLat, CenterLng: centerLng, RadiusMiles: 5}
	d := dealAtDistance(t, "d", 2, models.CategoryFood, 10*time.Minute)

	dist, ok := Admissible(&d, params, now)
	if !ok {
		t.Fatalf("deal should be admissible")
	}
	if math.Abs(dist-2) > 0.05 {
		t.Fatalf("distance should be about 2 miles, got %f", dist)
	}
}

package models

import (
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want DealCategory
	}{
		{"food", CategoryFood},
		{"FOOD", CategoryFood},
		{"  salon ", CategorySalon},
		{"fitness", CategoryFitness},
		{"bogus", CategoryOther},
		{"", CategoryOther},
	}
	for _, tc := range cases {
		if got := ParseCategory(tc.in); got != tc.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCategoryDisplayName(t *testing.T) {
	if got := CategoryFood.DisplayName(); got != "Food & Drinks" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := DealCategory("bogus").DisplayName(); got != "Other" {
		t.Fatalf("unknown category should display as Other, got %q", got)
	}
}

func TestDealLiveness(t *testing.T) {
	now := time.Now()
	deal := Deal{Status: StatusActive, ExpiresAt: now.Add(time.Hour)}

	if !deal.IsLive(now) {
		t.Fatal("active unexpired deal should be live")
	}
	if deal.IsLive(now.Add(2 * time.Hour)) {
		t.Fatal("deal past expiry should not be live")
	}
	if !deal.IsExpired(deal.ExpiresAt) {
		t.Fatal("expiry instant itself counts as expired")
	}

	deal.Status = StatusPending
	if deal.IsLive(now) {
		t.Fatal("pending deal should not be live")
	}
}

func TestDealCoordinatesFallback(t *testing.T) {
	deal := Deal{Lat: f64(40.0), Lng: f64(-74.0)}
	lat, lng, ok := deal.Coordinates()
	if !ok || lat != 40.0 || lng != -74.0 {
		t.Fatalf("expected own coordinates, got %v %v %v", lat, lng, ok)
	}

	deal = Deal{Vendor: &VendorProfile{Lat: f64(41.0), Lng: f64(-73.0)}}
	lat, lng, ok = deal.Coordinates()
	if !ok || lat != 41.0 || lng != -73.0 {
		t.Fatalf("expected vendor fallback, got %v %v %v", lat, lng, ok)
	}

	deal = Deal{Lat: f64(40.0), Vendor: &VendorProfile{Lat: f64(41.0), Lng: f64(-73.0)}}
	if _, _, ok := deal.Coordinates(); !ok {
		t.Fatal("partial own coordinates should still fall back to vendor")
	}

	deal = Deal{}
	if _, _, ok := deal.Coordinates(); ok {
		t.Fatal("deal without any coordinates should report no location")
	}
}

func TestQueryParamsEqual(t *testing.T) {
	food := CategoryFood
	salon := CategorySalon

	base := QueryParams{CenterLat: 1, CenterLng: 2, RadiusMiles: 5}
	if !base.Equal(base) {
		t.Fatal("params should equal themselves")
	}

	moved := base
	moved.CenterLat += 0.0001
	if base.Equal(moved) {
		t.Fatal("any center movement breaks equivalence")
	}

	withCat := base
	withCat.Category = &food
	if base.Equal(withCat) {
		t.Fatal("nil vs set category should differ")
	}

	otherCat := base
	otherCat.Category = &salon
	if withCat.Equal(otherCat) {
		t.Fatal("different categories should differ")
	}

	sameCat := base
	f := CategoryFood
	sameCat.Category = &f
	if !withCat.Equal(sameCat) {
		t.Fatal("same category through different pointers should be equal")
	}
}

package models

import (
	"strings"
	"time"
)

// DealStatus is the moderation/lifecycle state of a deal as stored by the
// backend. Only active deals are ever shown in the feed.
type DealStatus string

const (
	StatusPending  DealStatus = "pending"
	StatusActive   DealStatus = "active"
	StatusRejected DealStatus = "rejected"
	StatusEnded    DealStatus = "ended"
)

// DealCategory is the closed set of vendor categories.
type DealCategory string

const (
	CategoryFood          DealCategory = "food"
	CategorySalon         DealCategory = "salon"
	CategoryFitness       DealCategory = "fitness"
	CategoryRetail        DealCategory = "retail"
	CategoryEntertainment DealCategory = "entertainment"
	CategoryServices      DealCategory = "services"
	CategoryOther         DealCategory = "other"
)

var categoryDisplayNames = map[DealCategory]string{
	CategoryFood:          "Food & Drinks",
	CategorySalon:         "Beauty & Salon",
	CategoryFitness:       "Fitness & Wellness",
	CategoryRetail:        "Retail & Shopping",
	CategoryEntertainment: "Entertainment",
	CategoryServices:      "Services",
	CategoryOther:         "Other",
}

// DisplayName returns the human readable label for the category.
func (c DealCategory) DisplayName() string {
	if name, ok := categoryDisplayNames[c]; ok {
		return name
	}
	return categoryDisplayNames[CategoryOther]
}

// ParseCategory maps a backend category string onto the closed set. Unknown
// values fold into CategoryOther rather than failing the whole record.
func ParseCategory(s string) DealCategory {
	c := DealCategory(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categoryDisplayNames[c]; ok {
		return c
	}
	return CategoryOther
}

// VendorProfile carries the vendor fields joined onto a deal row. Lat/Lng are
// pointers because a vendor without coordinates is a legal record that can
// simply never be distance matched.
type VendorProfile struct {
	UserID       string   `json:"user_id"`
	BusinessName string   `json:"business_name,omitempty"`
	LogoURL      string   `json:"logo_url,omitempty"`
	Address      string   `json:"address,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	IsVerified   bool     `json:"is_verified"`
}

// Deal is a vendor-posted, time-limited offer. The engine treats deals as
// immutable values: updates arrive as whole replacement records.
type Deal struct {
	ID            string         `json:"id"`
	VendorID      string         `json:"vendor_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Category      DealCategory   `json:"category"`
	Price         float64        `json:"price"`
	OriginalPrice *float64       `json:"original_price,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	Lat           *float64       `json:"lat,omitempty"`
	Lng           *float64       `json:"lng,omitempty"`
	Geohash       string         `json:"geohash,omitempty"`
	Status        DealStatus     `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	IsPromoted    bool           `json:"is_promoted"`
	Vendor        *VendorProfile `json:"vendor_profile,omitempty"`
}

// IsExpired reports whether the deal's expiry has passed at the given time.
func (d *Deal) IsExpired(now time.Time) bool {
	return !d.ExpiresAt.After(now)
}

// IsLive reports whether the deal is active and unexpired. Liveness is
// evaluated against the supplied time on every call, never cached, because
// time advances independently of any event.
func (d *Deal) IsLive(now time.Time) bool {
	return d.Status == StatusActive && !d.IsExpired(now)
}

// Coordinates returns the deal's placement location. The deal's own
// coordinates win; a deal without them falls back to the joined vendor
// profile. The second return is false when neither carries a location, in
// which case the deal can never be admitted.
func (d *Deal) Coordinates() (lat, lng float64, ok bool) {
	if d.Lat != nil && d.Lng != nil {
		return *d.Lat, *d.Lng, true
	}
	if d.Vendor != nil && d.Vendor.Lat != nil && d.Vendor.Lng != nil {
		return *d.Vendor.Lat, *d.Vendor.Lng, true
	}
	return 0, 0, false
}

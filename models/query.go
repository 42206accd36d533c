package models

// QueryParams are the user-adjustable feed parameters: where the user is,
// how far they are willing to travel and an optional category filter.
type QueryParams struct {
	CenterLat   float64       `json:"center_lat"`
	CenterLng   float64       `json:"center_lng"`
	RadiusMiles float64       `json:"radius_miles"`
	Category    *DealCategory `json:"category,omitempty"`
}

// Equal reports whether two parameter sets are equivalent, meaning no
// refetch or recompute is needed. Equivalence is exact field equality; a
// center that moved by any amount invalidates every stored distance.
func (p QueryParams) Equal(other QueryParams) bool {
	if p.CenterLat != other.CenterLat || p.CenterLng != other.CenterLng || p.RadiusMiles != other.RadiusMiles {
		return false
	}
	if (p.Category == nil) != (other.Category == nil) {
		return false
	}
	if p.Category != nil && *p.Category != *other.Category {
		return false
	}
	return true
}

// FeedEntry pairs a deal with its distance from the query center computed at
// the time of last placement. Distance lives here and not on the Deal
// because it is query relative: a new center invalidates every distance.
type FeedEntry struct {
	Deal          Deal    `json:"deal"`
	DistanceMiles float64 `json:"distance_miles"`
}

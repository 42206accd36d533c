package processor

import (
	"time"

	"dealspulse/geo"
	"dealspulse/models"
)

// Admissible decides whether a deal belongs in the feed under the given
// query parameters, evaluated at the given time. It returns the exact
// distance from the query center alongside the verdict so callers can place
// the entry without recomputing.
//
// The checks run cheapest-first: liveness, category, coordinates, then the
// haversine distance. The decision is deterministic given (deal, params,
// now) and looks at nothing else, which is what makes duplicated and
// reordered events safe to apply.
func Admissible(deal *models.Deal, params models.QueryParams, now time.Time) (distanceMiles float64, ok bool) {
	if deal == nil {
		return 0, false
	}

	if !deal.IsLive(now) {
		return 0, false
	}

	if params.Category != nil && deal.Category != *params.Category {
		return 0, false
	}

	lat, lng, hasCoords := deal.Coordinates()
	if !hasCoords {
		// A deal with no coordinates can never be placed.
		return 0, false
	}

	distance := geo.DistanceMiles(params.CenterLat, params.CenterLng, lat, lng)
	if distance > params.RadiusMiles {
		return distance, false
	}

	return distance, true
}

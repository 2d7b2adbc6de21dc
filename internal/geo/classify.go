package geo

// Proximity describes how close two resolved locations are.
type Proximity string

// Proximity classes.
const (
	ProximitySame   Proximity = "same"
	ProximityNearby Proximity = "nearby"
	ProximityFar    Proximity = "far"
)

// Classify returns the proximity class for a distance in meters.
// Rules:
//   - same:   distance <= sameMaxM
//   - nearby: distance <= nearbyMaxM
//   - far:    anything beyond nearbyMaxM
func Classify(distanceM, sameMaxM, nearbyMaxM float64) Proximity {
	if distanceM <= sameMaxM {
		return ProximitySame
	}
	if distanceM <= nearbyMaxM {
		return ProximityNearby
	}
	return ProximityFar
}

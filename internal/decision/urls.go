package decision

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sells-group/siteverify/internal/evidence"
	"github.com/sells-group/siteverify/internal/geo"
)

// MapsSearchBase is the keyless Google Maps search URL prefix.
const MapsSearchBase = "https://www.google.com/maps/search/?api=1&query="

// MapsURL builds a review URL for the bundle, preferring validator
// coordinates, then geocoder coordinates, then the standardized address,
// then the raw address.
func MapsURL(b evidence.Bundle) string {
	if p := BestPoint(b); p != nil {
		return mapsSearch(fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng))
	}
	if std := strings.TrimSpace(b.Validation.StdAddress); std != "" {
		return mapsSearch(std)
	}
	return mapsSearch(strings.TrimSpace(b.Geocode.AddressRaw))
}

// BestPoint returns the validator point if present, else the geocoder point.
func BestPoint(b evidence.Bundle) *geo.Point {
	if b.Validation.Point != nil {
		return b.Validation.Point
	}
	return b.Geocode.Point
}

func mapsSearch(q string) string {
	return MapsSearchBase + url.QueryEscape(q)
}

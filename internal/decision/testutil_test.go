package decision

import (
	"github.com/sells-group/siteverify/internal/evidence"
	"github.com/sells-group/siteverify/internal/geo"
)

// bundle returns a neutral bundle for id with a successful non-rooftop geocode.
func bundle(id string) evidence.Bundle {
	g := evidence.GeocodeEvidence{
		InputID:      id,
		AddressRaw:   "1 Main St, Austin, TX 78701",
		Status:       evidence.StatusOK,
		Lat:          "30.2672",
		Lng:          "-97.7431",
		Point:        &geo.Point{Lat: 30.2672, Lng: -97.7431},
		LocationType: evidence.LocationApproximate,
	}
	return evidence.Bundle{
		Geocode:    g,
		Normalized: evidence.NeutralNormalized(g),
		StreetView: evidence.NeutralStreetView(id),
		Footprint:  evidence.NeutralFootprint(id),
		Validation: evidence.NeutralValidation(id),
	}
}

// bundleGrid enumerates combinations of every signal that feeds the rules.
func bundleGrid() []evidence.Bundle {
	var out []evidence.Bundle
	for _, nonPhysical := range []bool{false, true} {
		for _, status := range []string{evidence.StatusOK, evidence.StatusZeroResults, "OVER_QUERY_LIMIT"} {
			for _, loc := range []string{evidence.LocationRooftop, evidence.LocationApproximate, ""} {
				for _, fp := range []bool{false, true} {
					for _, sv := range []string{evidence.StatusOK, evidence.StatusZeroResults, "", "UNKNOWN_ERROR"} {
						for _, stale := range []bool{false, true} {
							for _, errs := range [][]string{nil, {"HTTP_500"}} {
								for _, verdict := range []evidence.Verdict{evidence.VerdictNotRun, evidence.VerdictValid, evidence.VerdictInvalid} {
									b := bundle("grid")
									b.Normalized.NonPhysical = nonPhysical
									b.Geocode.Status = status
									b.Geocode.LocationType = loc
									b.Footprint.Present = fp
									b.StreetView.Status = sv
									b.StreetView.Stale = stale
									b.StreetView.ErrorCodes = errs
									b.Validation.Verdict = verdict
									b.Validation.Ran = verdict != evidence.VerdictNotRun
									out = append(out, b)
								}
							}
						}
					}
				}
			}
		}
	}
	return out
}

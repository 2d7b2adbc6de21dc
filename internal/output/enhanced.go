package output

import (
	"encoding/csv"
	"io"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteverify/internal/decision"
	"github.com/sells-group/siteverify/internal/evidence"
)

// enhancedRow is one line of enhanced.csv. Field order is the column order.
type enhancedRow struct {
	InputID           string `csv:"input_id"`
	AddressRaw        string `csv:"input_address_raw"`
	StdAddress        string `csv:"std_address"`
	GeocodeStatus     string `csv:"geocode_status"`
	Lat               string `csv:"lat"`
	Lng               string `csv:"lng"`
	LocationType      string `csv:"location_type"`
	PlaceID           string `csv:"place_id"`
	SVStatus          string `csv:"sv_metadata_status"`
	SVImageDate       string `csv:"sv_image_date"`
	SVStale           string `csv:"sv_stale_flag"`
	FootprintWithinM  string `csv:"footprint_within_m"`
	FootprintPresent  string `csv:"footprint_present_flag"`
	ValidationRan     string `csv:"validation_ran_flag"`
	ValidationVerdict string `csv:"validation_verdict"`
	ValidationPlaceID string `csv:"validation_place_id"`
	ValidationLat     string `csv:"validation_lat"`
	ValidationLng     string `csv:"validation_lng"`
	NonPhysical       string `csv:"non_physical_flag"`
	MapsURL           string `csv:"google_maps_url"`
	FinalFlag         string `csv:"final_flag"`
	ReasonCodes       string `csv:"reason_codes"`
	InputIncorrect    string `csv:"input_incorrect_flag"`
	InputEquivalence  string `csv:"input_equivalence"`
	InputIssueCodes   string `csv:"input_issue_codes"`
	Notes             string `csv:"notes"`
	RunTimestamp      string `csv:"run_timestamp_utc"`
	APIErrorCodes     string `csv:"api_error_codes"`
}

// EnhancedColumns is the fixed header of enhanced.csv.
var EnhancedColumns = []string{
	"input_id", "input_address_raw", "std_address", "geocode_status", "lat", "lng",
	"location_type", "place_id", "sv_metadata_status", "sv_image_date", "sv_stale_flag",
	"footprint_within_m", "footprint_present_flag", "validation_ran_flag",
	"validation_verdict", "validation_place_id", "validation_lat", "validation_lng",
	"non_physical_flag", "google_maps_url", "final_flag", "reason_codes",
	"input_incorrect_flag", "input_equivalence", "input_issue_codes", "notes",
	"run_timestamp_utc", "api_error_codes",
}

func buildEnhancedRow(r decision.Record) enhancedRow {
	b := r.Evidence
	return enhancedRow{
		InputID:           b.Geocode.InputID,
		AddressRaw:        b.Geocode.AddressRaw,
		StdAddress:        b.Validation.StdAddress,
		GeocodeStatus:     b.Geocode.Status,
		Lat:               b.Geocode.Lat,
		Lng:               b.Geocode.Lng,
		LocationType:      b.Geocode.LocationType,
		PlaceID:           b.Geocode.PlaceID,
		SVStatus:          b.StreetView.Status,
		SVImageDate:       b.StreetView.ImageDate,
		SVStale:           evidence.FormatBool(b.StreetView.Stale),
		FootprintWithinM:  b.Footprint.WithinMText(),
		FootprintPresent:  evidence.FormatBool(b.Footprint.Present),
		ValidationRan:     evidence.FormatBool(b.Validation.Ran),
		ValidationVerdict: string(b.Validation.Verdict),
		ValidationPlaceID: b.Validation.PlaceID,
		ValidationLat:     b.Validation.Lat,
		ValidationLng:     b.Validation.Lng,
		NonPhysical:       evidence.FormatBool(b.Normalized.NonPhysical),
		MapsURL:           r.MapsURL,
		FinalFlag:         string(r.FinalFlag),
		ReasonCodes:       r.ReasonCodes(),
		InputIncorrect:    evidence.FormatBool(r.InputIncorrect),
		InputEquivalence:  string(r.InputEquivalence),
		InputIssueCodes:   evidence.JoinCodes(r.InputIssues),
		Notes:             r.Notes,
		RunTimestamp:      r.RunTimestamp,
		APIErrorCodes:     evidence.JoinCodes(r.ErrorCodes),
	}
}

// WriteEnhanced encodes records as enhanced.csv, header first, in record
// order. The header is written even when there are no records.
func WriteEnhanced(w io.Writer, recs []decision.Record) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if err := enc.EncodeHeader(enhancedRow{}); err != nil {
		return eris.Wrap(err, "output: write enhanced header")
	}
	for i, r := range recs {
		if err := enc.Encode(buildEnhancedRow(r)); err != nil {
			return eris.Wrapf(err, "output: write enhanced row %d", i)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "output: flush enhanced")
}

// StageEnhanced renders enhanced.csv into a staged temp file.
func StageEnhanced(path string, recs []decision.Record) (*Staged, error) {
	return Stage(path, func(w io.Writer) error {
		return WriteEnhanced(w, recs)
	})
}

package evidence

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// Table names, used in error messages and join statistics.
const (
	TableGeocode    = "geocode"
	TableNormalized = "normalized"
	TableStreetView = "streetview"
	TableFootprints = "footprints"
	TableValidation = "validation"
)

// Required columns per table. A missing required column aborts the run.
var (
	geocodeRequired    = []string{"input_id", "input_address_raw", "geocode_status", "lat", "lng", "location_type"}
	normalizedRequired = []string{"input_id", "non_physical_flag"}
	streetViewRequired = []string{"input_id", "sv_metadata_status", "sv_image_date", "sv_stale_flag"}
	footprintsRequired = []string{"input_id", "footprint_within_m", "footprint_present_flag"}
	validationRequired = []string{"input_id", "std_address", "validation_ran_flag", "validation_verdict"}
)

type geocodeRow struct {
	InputID      string `csv:"input_id"`
	AddressRaw   string `csv:"input_address_raw"`
	Status       string `csv:"geocode_status"`
	Lat          string `csv:"lat"`
	Lng          string `csv:"lng"`
	LocationType string `csv:"location_type"`
	PlaceID      string `csv:"place_id"`
	ErrorCodes   string `csv:"api_error_codes"`
}

type normalizedRow struct {
	InputID     string `csv:"input_id"`
	AddressRaw  string `csv:"input_address_raw"`
	NonPhysical string `csv:"non_physical_flag"`
}

type streetViewRow struct {
	InputID    string `csv:"input_id"`
	Status     string `csv:"sv_metadata_status"`
	ImageDate  string `csv:"sv_image_date"`
	Stale      string `csv:"sv_stale_flag"`
	ErrorCodes string `csv:"api_error_codes"`
}

type footprintRow struct {
	InputID string `csv:"input_id"`
	WithinM string `csv:"footprint_within_m"`
	Present string `csv:"footprint_present_flag"`
}

type validationRow struct {
	InputID        string `csv:"input_id"`
	StdAddress     string `csv:"std_address"`
	Ran            string `csv:"validation_ran_flag"`
	Verdict        string `csv:"validation_verdict"`
	PlaceID        string `csv:"validation_place_id"`
	Lat            string `csv:"validation_lat"`
	Lng            string `csv:"validation_lng"`
	Replaced       string `csv:"component_replaced_types"`
	SpellCorrected string `csv:"component_spell_corrected_types"`
	Unconfirmed    string `csv:"unconfirmed_component_types"`
	ErrorCodes     string `csv:"api_error_codes"`
}

// ReadGeocode parses geocode.csv, preserving row order.
func ReadGeocode(r io.Reader) ([]GeocodeEvidence, error) {
	rows, err := decodeTable[geocodeRow](r, TableGeocode, geocodeRequired)
	if err != nil {
		return nil, err
	}
	out := make([]GeocodeEvidence, 0, len(rows))
	for _, row := range rows {
		lat := strings.TrimSpace(row.Lat)
		lng := strings.TrimSpace(row.Lng)
		out = append(out, GeocodeEvidence{
			InputID:      row.InputID,
			AddressRaw:   row.AddressRaw,
			Status:       strings.TrimSpace(row.Status),
			Lat:          lat,
			Lng:          lng,
			Point:        ParsePoint(lat, lng),
			LocationType: strings.TrimSpace(row.LocationType),
			PlaceID:      strings.TrimSpace(row.PlaceID),
			ErrorCodes:   SplitCodes(row.ErrorCodes),
		})
	}
	return out, nil
}

// ReadNormalized parses normalized.csv.
func ReadNormalized(r io.Reader) ([]NormalizedEvidence, error) {
	rows, err := decodeTable[normalizedRow](r, TableNormalized, normalizedRequired)
	if err != nil {
		return nil, err
	}
	out := make([]NormalizedEvidence, 0, len(rows))
	for _, row := range rows {
		out = append(out, NormalizedEvidence{
			InputID:     row.InputID,
			AddressRaw:  row.AddressRaw,
			NonPhysical: ParseBool(row.NonPhysical),
		})
	}
	return out, nil
}

// ReadStreetView parses streetview_meta.csv.
func ReadStreetView(r io.Reader) ([]StreetViewEvidence, error) {
	rows, err := decodeTable[streetViewRow](r, TableStreetView, streetViewRequired)
	if err != nil {
		return nil, err
	}
	out := make([]StreetViewEvidence, 0, len(rows))
	for _, row := range rows {
		out = append(out, StreetViewEvidence{
			InputID:    row.InputID,
			Status:     strings.TrimSpace(row.Status),
			ImageDate:  strings.TrimSpace(row.ImageDate),
			Stale:      ParseBool(row.Stale),
			ErrorCodes: SplitCodes(row.ErrorCodes),
		})
	}
	return out, nil
}

// ReadFootprints parses footprints.csv.
func ReadFootprints(r io.Reader) ([]FootprintEvidence, error) {
	rows, err := decodeTable[footprintRow](r, TableFootprints, footprintsRequired)
	if err != nil {
		return nil, err
	}
	out := make([]FootprintEvidence, 0, len(rows))
	for _, row := range rows {
		out = append(out, FootprintEvidence{
			InputID:    row.InputID,
			WithinM:    ParseMeters(row.WithinM),
			WithinMRaw: strings.TrimSpace(row.WithinM),
			Present:    ParseBool(row.Present),
		})
	}
	return out, nil
}

// ReadValidation parses validation.csv. A blank verdict reads as NOT_RUN.
func ReadValidation(r io.Reader) ([]ValidationEvidence, error) {
	rows, err := decodeTable[validationRow](r, TableValidation, validationRequired)
	if err != nil {
		return nil, err
	}
	out := make([]ValidationEvidence, 0, len(rows))
	for _, row := range rows {
		verdict := Verdict(strings.TrimSpace(row.Verdict))
		if verdict == "" {
			verdict = VerdictNotRun
		}
		lat := strings.TrimSpace(row.Lat)
		lng := strings.TrimSpace(row.Lng)
		out = append(out, ValidationEvidence{
			InputID:             row.InputID,
			Ran:                 ParseBool(row.Ran),
			Verdict:             verdict,
			StdAddress:          row.StdAddress,
			PlaceID:             strings.TrimSpace(row.PlaceID),
			Lat:                 lat,
			Lng:                 lng,
			Point:               ParsePoint(lat, lng),
			ReplacedTypes:       SplitCodes(row.Replaced),
			SpellCorrectedTypes: SplitCodes(row.SpellCorrected),
			UnconfirmedTypes:    SplitCodes(row.Unconfirmed),
			ErrorCodes:          SplitCodes(row.ErrorCodes),
		})
	}
	return out, nil
}

// decodeTable reads every row of a headed CSV into T after checking that the
// header carries all required columns.
func decodeTable[T any](r io.Reader, table string, required []string) ([]T, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(SkipBOM(r)))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.Errorf("evidence: %s: missing header row", table)
		}
		return nil, eris.Wrapf(err, "evidence: %s: read header", table)
	}

	if missing := missingColumns(dec.Header(), required); len(missing) > 0 {
		return nil, eris.Errorf("evidence: %s: missing required columns: %s", table, strings.Join(missing, ", "))
	}

	var rows []T
	for {
		var row T
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "evidence: %s: decode line %d", table, len(rows)+2)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func missingColumns(header, required []string) []string {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[h] = struct{}{}
	}
	var missing []string
	for _, col := range required {
		if _, ok := have[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM drops a leading UTF-8 byte order mark so the first header column
// matches its name.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

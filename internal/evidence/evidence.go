// Package evidence loads the upstream enrichment tables and joins them into
// one Bundle per geocoded input.
package evidence

import (
	"strconv"

	"github.com/sells-group/siteverify/internal/geo"
)

// Upstream status values shared by the geocode and street-view stages.
const (
	StatusOK          = "OK"
	StatusZeroResults = "ZERO_RESULTS"
)

// Geocoder precision tiers.
const (
	LocationRooftop           = "ROOFTOP"
	LocationRangeInterpolated = "RANGE_INTERPOLATED"
	LocationGeometricCenter   = "GEOMETRIC_CENTER"
	LocationApproximate       = "APPROXIMATE"
)

// Verdict is the simplified postal validation outcome.
type Verdict string

// Postal validation verdicts.
const (
	VerdictValid       Verdict = "VALID"
	VerdictUnconfirmed Verdict = "UNCONFIRMED"
	VerdictInvalid     Verdict = "INVALID"
	VerdictNotRun      Verdict = "NOT_RUN"
)

// GeocodeEvidence is one row of geocode.csv. It defines the output order.
type GeocodeEvidence struct {
	InputID      string     `json:"input_id"`
	AddressRaw   string     `json:"input_address_raw"`
	Status       string     `json:"geocode_status"`
	Lat          string     `json:"lat"`
	Lng          string     `json:"lng"`
	Point        *geo.Point `json:"-"`
	LocationType string     `json:"location_type"`
	PlaceID      string     `json:"place_id,omitempty"`
	ErrorCodes   []string   `json:"api_error_codes,omitempty"`
}

// NormalizedEvidence is one row of normalized.csv.
type NormalizedEvidence struct {
	InputID     string `json:"input_id"`
	AddressRaw  string `json:"input_address_raw,omitempty"`
	NonPhysical bool   `json:"non_physical_flag"`
}

// StreetViewEvidence is one row of streetview_meta.csv.
type StreetViewEvidence struct {
	InputID    string   `json:"input_id"`
	Status     string   `json:"sv_metadata_status"`
	ImageDate  string   `json:"sv_image_date,omitempty"`
	Stale      bool     `json:"sv_stale_flag"`
	ErrorCodes []string `json:"api_error_codes,omitempty"`
}

// FootprintEvidence is one row of footprints.csv. WithinM is -1 when unknown;
// WithinMRaw keeps the trimmed cell text for the audit columns.
type FootprintEvidence struct {
	InputID    string `json:"input_id"`
	WithinM    int    `json:"footprint_within_m"`
	WithinMRaw string `json:"footprint_within_m_raw,omitempty"`
	Present    bool   `json:"footprint_present_flag"`
}

// WithinMText renders the distance as read. A blank cell renders as "-1".
func (f FootprintEvidence) WithinMText() string {
	if f.WithinMRaw != "" {
		return f.WithinMRaw
	}
	return strconv.Itoa(f.WithinM)
}

// ValidationEvidence is one row of validation.csv.
type ValidationEvidence struct {
	InputID             string     `json:"input_id"`
	Ran                 bool       `json:"validation_ran_flag"`
	Verdict             Verdict    `json:"validation_verdict"`
	StdAddress          string     `json:"std_address,omitempty"`
	PlaceID             string     `json:"validation_place_id,omitempty"`
	Lat                 string     `json:"validation_lat,omitempty"`
	Lng                 string     `json:"validation_lng,omitempty"`
	Point               *geo.Point `json:"-"`
	ReplacedTypes       []string   `json:"component_replaced_types,omitempty"`
	SpellCorrectedTypes []string   `json:"component_spell_corrected_types,omitempty"`
	UnconfirmedTypes    []string   `json:"unconfirmed_component_types,omitempty"`
	ErrorCodes          []string   `json:"api_error_codes,omitempty"`
}

// Bundle is the per-address join of all five upstream stages. Every
// sub-record is always populated; absent upstream rows are neutral defaults.
type Bundle struct {
	Geocode    GeocodeEvidence    `json:"geocode"`
	Normalized NormalizedEvidence `json:"normalized"`
	StreetView StreetViewEvidence `json:"street_view"`
	Footprint  FootprintEvidence  `json:"footprint"`
	Validation ValidationEvidence `json:"validation"`
}

// InputID returns the join key of the bundle.
func (b Bundle) InputID() string { return b.Geocode.InputID }

// NeutralNormalized is used when normalized.csv has no row for the input.
func NeutralNormalized(g GeocodeEvidence) NormalizedEvidence {
	return NormalizedEvidence{InputID: g.InputID, AddressRaw: g.AddressRaw}
}

// NeutralStreetView is used when streetview_meta.csv has no row for the input.
func NeutralStreetView(inputID string) StreetViewEvidence {
	return StreetViewEvidence{InputID: inputID}
}

// NeutralFootprint is used when footprints.csv has no row for the input.
func NeutralFootprint(inputID string) FootprintEvidence {
	return FootprintEvidence{InputID: inputID, WithinM: -1}
}

// NeutralValidation is used when validation.csv has no row for the input.
func NeutralValidation(inputID string) ValidationEvidence {
	return ValidationEvidence{InputID: inputID, Verdict: VerdictNotRun}
}

// ErrorCodes returns the deduplicated, order-preserving union of upstream
// error codes: geocode first, then street view, then validation.
func (b Bundle) ErrorCodes() []string {
	return MergeCodes(b.Geocode.ErrorCodes, b.StreetView.ErrorCodes, b.Validation.ErrorCodes)
}

// NewRequestBundle returns the starting value for decoding a bundle from a
// JSON request, so omitted sub-records keep their neutral defaults.
func NewRequestBundle() Bundle {
	return Bundle{
		Footprint:  NeutralFootprint(""),
		Validation: NeutralValidation(""),
	}
}

// Complete fills what a JSON client may leave out: sub-record ids follow the
// geocode id, and points are parsed from the coordinate strings.
func (b *Bundle) Complete() {
	id := b.Geocode.InputID
	if b.Normalized.InputID == "" {
		b.Normalized.InputID = id
	}
	if b.Normalized.AddressRaw == "" {
		b.Normalized.AddressRaw = b.Geocode.AddressRaw
	}
	if b.StreetView.InputID == "" {
		b.StreetView.InputID = id
	}
	if b.Footprint.InputID == "" {
		b.Footprint.InputID = id
	}
	if b.Validation.InputID == "" {
		b.Validation.InputID = id
	}
	if b.Validation.Verdict == "" {
		b.Validation.Verdict = VerdictNotRun
	}
	if b.Geocode.Point == nil {
		b.Geocode.Point = ParsePoint(b.Geocode.Lat, b.Geocode.Lng)
	}
	if b.Validation.Point == nil {
		b.Validation.Point = ParsePoint(b.Validation.Lat, b.Validation.Lng)
	}
}

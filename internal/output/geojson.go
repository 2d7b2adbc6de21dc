package output

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/siteverify/internal/decision"
)

// ReviewLayer builds a FeatureCollection with one Point per record that has
// coordinates. Validator coordinates win over geocoder coordinates.
func ReviewLayer(recs []decision.Record) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, r := range recs {
		p := decision.BestPoint(r.Evidence)
		if p == nil {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.InputID(),
			Geometry: p.Geom(),
			Properties: map[string]any{
				"input_id":          r.InputID(),
				"final_flag":        string(r.FinalFlag),
				"input_equivalence": string(r.InputEquivalence),
				"reason_codes":      r.ReasonCodes(),
				"google_maps_url":   r.MapsURL,
			},
		})
	}
	return fc
}

// StageGeoJSON renders the review layer for path.
func StageGeoJSON(path string, recs []decision.Record) (*Staged, error) {
	return Stage(path, func(w io.Writer) error {
		data, err := json.Marshal(ReviewLayer(recs))
		if err != nil {
			return eris.Wrap(err, "output: marshal geojson")
		}
		_, err = w.Write(data)
		return eris.Wrap(err, "output: write geojson")
	})
}

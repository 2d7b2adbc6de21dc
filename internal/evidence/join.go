package evidence

import (
	"go.uber.org/zap"
)

// JoinStats reports how secondary-table key collisions were resolved.
type JoinStats struct {
	// Duplicates counts discarded rows per table. The first row seen for an
	// input_id wins; later rows with the same key are dropped.
	Duplicates map[string]int `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
}

// Join produces one Bundle per geocode row, in geocode order. Secondary rows
// without a matching geocode row are ignored; geocode rows without a
// secondary partner receive that table's neutral default. Duplicate geocode
// rows are kept as-is.
func Join(t *Tables) ([]Bundle, JoinStats) {
	stats := JoinStats{Duplicates: make(map[string]int)}

	norm := index(TableNormalized, t.Normalized, func(e NormalizedEvidence) string { return e.InputID }, stats)
	sv := index(TableStreetView, t.StreetView, func(e StreetViewEvidence) string { return e.InputID }, stats)
	fp := index(TableFootprints, t.Footprints, func(e FootprintEvidence) string { return e.InputID }, stats)
	val := index(TableValidation, t.Validation, func(e ValidationEvidence) string { return e.InputID }, stats)

	bundles := make([]Bundle, 0, len(t.Geocode))
	for _, g := range t.Geocode {
		b := Bundle{Geocode: g}

		if n, ok := norm[g.InputID]; ok {
			b.Normalized = n
		} else {
			b.Normalized = NeutralNormalized(g)
		}
		if s, ok := sv[g.InputID]; ok {
			b.StreetView = s
		} else {
			b.StreetView = NeutralStreetView(g.InputID)
		}
		if f, ok := fp[g.InputID]; ok {
			b.Footprint = f
		} else {
			b.Footprint = NeutralFootprint(g.InputID)
		}
		if v, ok := val[g.InputID]; ok {
			b.Validation = v
		} else {
			b.Validation = NeutralValidation(g.InputID)
		}

		bundles = append(bundles, b)
	}

	return bundles, stats
}

// index builds a first-write-wins lookup keyed by input_id. Rows with a blank
// key are skipped.
func index[T any](table string, rows []T, key func(T) string, stats JoinStats) map[string]T {
	m := make(map[string]T, len(rows))
	for _, row := range rows {
		k := key(row)
		if k == "" {
			continue
		}
		if _, exists := m[k]; exists {
			stats.Duplicates[table]++
			zap.L().Warn("evidence: duplicate input_id, keeping first row",
				zap.String("table", table),
				zap.String("input_id", k),
			)
			continue
		}
		m[k] = row
	}
	return m
}

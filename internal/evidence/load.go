package evidence

import (
	"bytes"
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Paths locates the five upstream tables on disk.
type Paths struct {
	Geocode    string
	Normalized string
	StreetView string
	Footprints string
	Validation string
}

// Source is the raw content of one input table, kept for run fingerprinting.
type Source struct {
	Table string
	Path  string
	Data  []byte
}

// Tables holds every parsed upstream table plus the bytes it was parsed from.
type Tables struct {
	Geocode    []GeocodeEvidence
	Normalized []NormalizedEvidence
	StreetView []StreetViewEvidence
	Footprints []FootprintEvidence
	Validation []ValidationEvidence

	// Sources is always in the order geocode, normalized, streetview,
	// footprints, validation.
	Sources []Source
}

// LoadTables reads and parses all five tables concurrently. Any failure
// aborts the whole load and tables not yet read are skipped; there is no
// partial result.
func LoadTables(ctx context.Context, p Paths) (*Tables, error) {
	t := &Tables{Sources: make([]Source, 5)}

	g, gctx := errgroup.WithContext(ctx)

	load := func(idx int, table, path string, parse func(data []byte) error) {
		g.Go(func() error {
			if path == "" {
				return eris.Errorf("evidence: %s: path is required", table)
			}
			if err := gctx.Err(); err != nil {
				return eris.Wrapf(err, "evidence: %s: load cancelled", table)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "evidence: %s: read %s", table, path)
			}
			if err := parse(data); err != nil {
				return err
			}
			t.Sources[idx] = Source{Table: table, Path: path, Data: data}
			return nil
		})
	}

	load(0, TableGeocode, p.Geocode, func(data []byte) (err error) {
		t.Geocode, err = ReadGeocode(bytes.NewReader(data))
		return err
	})
	load(1, TableNormalized, p.Normalized, func(data []byte) (err error) {
		t.Normalized, err = ReadNormalized(bytes.NewReader(data))
		return err
	})
	load(2, TableStreetView, p.StreetView, func(data []byte) (err error) {
		t.StreetView, err = ReadStreetView(bytes.NewReader(data))
		return err
	})
	load(3, TableFootprints, p.Footprints, func(data []byte) (err error) {
		t.Footprints, err = ReadFootprints(bytes.NewReader(data))
		return err
	})
	load(4, TableValidation, p.Validation, func(data []byte) (err error) {
		t.Validation, err = ReadValidation(bytes.NewReader(data))
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Debug("evidence: tables loaded",
		zap.Int("geocode", len(t.Geocode)),
		zap.Int("normalized", len(t.Normalized)),
		zap.Int("streetview", len(t.StreetView)),
		zap.Int("footprints", len(t.Footprints)),
		zap.Int("validation", len(t.Validation)),
	)
	return t, nil
}

package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteverify/internal/config"
	"github.com/sells-group/siteverify/internal/decision"
	"github.com/sells-group/siteverify/internal/evidence"
	"github.com/sells-group/siteverify/internal/resilience"
	"github.com/sells-group/siteverify/internal/store"
)

// useTestConfig installs a default configuration for the duration of t.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "runs.db")
	c.Log = config.LogConfig{Level: "info", Format: "json"}
	c.Server.Port = 8080
	c.Thresholds.StaleYears = 5
	c.Thresholds.FootprintRadiusM = 30
	c.Defaults.CountryIfUSZip = "US"
	c.CachePolicy.LatLngTTLDays = 30
	p := decision.DefaultEquivalencePolicy()
	c.Equivalence.SamePlaceM = p.SamePlaceM
	c.Equivalence.NearbyM = p.NearbyM
	c.Equivalence.MajorComponents = p.MajorComponents
	c.Decide.AnchorTimestamp = "2025-01-01T00:00:00+00:00"

	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
	return c
}

func writeInputs(t *testing.T, dir string) evidence.Paths {
	t.Helper()
	files := map[string]string{
		"geocode.csv": "input_id,input_address_raw,geocode_status,lat,lng,location_type,place_id,api_error_codes\n" +
			"a1,\"1 Main St, Austin, TX\",OK,30.2672,-97.7431,ROOFTOP,,\n" +
			"a2,PO Box 5,OK,30.1,-97.1,APPROXIMATE,,\n" +
			"a3,Nowhere,ZERO_RESULTS,,,,,\n",
		"normalized.csv": "input_id,input_address_raw,non_physical_flag\n" +
			"a2,PO Box 5,true\n",
		"streetview_meta.csv": "input_id,sv_metadata_status,sv_image_date,sv_stale_flag,api_error_codes\n" +
			"a1,OK,2022-07,false,\n",
		"footprints.csv": "input_id,footprint_within_m,footprint_present_flag\n" +
			"a1,3,true\n",
		"validation.csv": "input_id,std_address,validation_ran_flag,validation_verdict\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return evidence.Paths{
		Geocode:    filepath.Join(dir, "geocode.csv"),
		Normalized: filepath.Join(dir, "normalized.csv"),
		StreetView: filepath.Join(dir, "streetview_meta.csv"),
		Footprints: filepath.Join(dir, "footprints.csv"),
		Validation: filepath.Join(dir, "validation.csv"),
	}
}

func fixedNow() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestRunDecide_EndToEnd(t *testing.T) {
	useTestConfig(t)
	dir := t.TempDir()
	paths := writeInputs(t, dir)

	params := decideParams{
		Paths:   paths,
		Output:  filepath.Join(dir, "out", "enhanced.csv"),
		Summary: filepath.Join(dir, "out", "summary.json"),
		GeoJSON: filepath.Join(dir, "out", "review.geojson"),
		Now:     fixedNow,
	}
	res, err := runDecide(context.Background(), params)
	require.NoError(t, err)
	assert.Empty(t, res.RunID, "no store configured")
	assert.Len(t, res.OutputSHA256, 64)
	assert.True(t, strings.HasPrefix(res.Summary.RunKey, decision.RunKeyPrefix))
	assert.Equal(t, "2025-01-01T00:00:00Z", res.Summary.RunTimestamp)
	assert.Equal(t, 3, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.FinalFlagCounts["VALID_LOCATION"])
	assert.Equal(t, 1, res.Summary.FinalFlagCounts["NON_PHYSICAL_ADDRESS"])
	assert.Equal(t, 1, res.Summary.FinalFlagCounts["INVALID_ADDRESS"])

	f, err := os.Open(params.Output)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "input_id", rows[0][0])
	assert.Equal(t, []string{"a1", "a2", "a3"}, []string{rows[1][0], rows[2][0], rows[3][0]})

	summary, err := os.ReadFile(params.Summary)
	require.NoError(t, err)
	var s map[string]any
	require.NoError(t, json.Unmarshal(summary, &s))
	assert.Equal(t, res.Summary.RunKey, s["run_key"])

	_, err = os.Stat(params.GeoJSON)
	assert.NoError(t, err)
}

func TestRunDecide_Reproducible(t *testing.T) {
	useTestConfig(t)
	dir := t.TempDir()
	paths := writeInputs(t, dir)

	out1 := filepath.Join(dir, "one.csv")
	out2 := filepath.Join(dir, "two.csv")
	r1, err := runDecide(context.Background(), decideParams{Paths: paths, Output: out1, Now: fixedNow})
	require.NoError(t, err)
	r2, err := runDecide(context.Background(), decideParams{Paths: paths, Output: out2, Now: time.Now})
	require.NoError(t, err)

	assert.Equal(t, r1.Summary.RunKey, r2.Summary.RunKey)
	assert.Equal(t, r1.OutputSHA256, r2.OutputSHA256)

	b1, err := os.ReadFile(out1)
	require.NoError(t, err)
	b2, err := os.ReadFile(out2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestRunDecide_RecordsRunHistory(t *testing.T) {
	useTestConfig(t)
	dir := t.TempDir()
	paths := writeInputs(t, dir)

	params := decideParams{Paths: paths, Output: filepath.Join(dir, "enhanced.csv"), Now: fixedNow, OpenStore: initStore}
	r1, err := runDecide(context.Background(), params)
	require.NoError(t, err)
	require.NotEmpty(t, r1.RunID)
	r2, err := runDecide(context.Background(), params)
	require.NoError(t, err)
	require.NotEmpty(t, r2.RunID)

	ctx := context.Background()
	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	cmp, err := store.LoadComparison(ctx, st, r1.RunID, r2.RunID)
	require.NoError(t, err)
	assert.True(t, cmp.Identical())
	assert.Equal(t, 3, cmp.UnchangedCount)
}

func TestRunDecide_StoreFailureDoesNotFailRun(t *testing.T) {
	useTestConfig(t)
	dir := t.TempDir()
	paths := writeInputs(t, dir)

	params := decideParams{
		Paths:  paths,
		Output: filepath.Join(dir, "enhanced.csv"),
		Now:    fixedNow,
		OpenStore: func(context.Context) (store.Store, error) {
			return nil, eris.New("database offline")
		},
	}
	res, err := runDecide(context.Background(), params)
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.FileExists(t, params.Output)
}

func TestRunDecide_MissingColumnWritesNothing(t *testing.T) {
	useTestConfig(t)
	dir := t.TempDir()
	paths := writeInputs(t, dir)
	require.NoError(t, os.WriteFile(paths.Footprints, []byte("input_id,footprint_present_flag\na1,true\n"), 0o644))

	out := filepath.Join(dir, "enhanced.csv")
	_, err := runDecide(context.Background(), decideParams{Paths: paths, Output: out, Now: fixedNow})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "footprint_within_m")
	assert.NoFileExists(t, out)
}

func TestRunDecide_MissingFile(t *testing.T) {
	useTestConfig(t)
	dir := t.TempDir()
	paths := writeInputs(t, dir)
	paths.Validation = filepath.Join(dir, "nope.csv")

	_, err := runDecide(context.Background(), decideParams{Paths: paths, Output: filepath.Join(dir, "enhanced.csv"), Now: fixedNow})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestPrintDecideResult(t *testing.T) {
	var buf strings.Builder
	printDecideResult(&buf, &decideResult{
		Summary: decision.Summarize("rk1:abc", "2025-01-01T00:00:00Z", []decision.Record{
			{FinalFlag: decision.FlagValidLocation, InputEquivalence: decision.EquivalenceSame},
		}, evidence.JoinStats{}),
		OutputSHA256: "deadbeef",
		RunID:        "run-1",
	})

	out := buf.String()
	assert.Contains(t, out, "Classified 1 addresses (run key rk1:abc)")
	assert.Contains(t, out, "VALID_LOCATION")
	assert.Contains(t, out, "Output sha256: deadbeef")
	assert.Contains(t, out, "Run id: run-1")
}

func TestRunDecide_FailedSideArtifactWritesNothing(t *testing.T) {
	useTestConfig(t)
	dir := t.TempDir()
	paths := writeInputs(t, dir)
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	tests := []struct {
		name    string
		summary string
		geojson string
	}{
		{"summary", filepath.Join(blocker, "summary.json"), ""},
		{"geojson", filepath.Join(dir, "ok", "summary.json"), filepath.Join(blocker, "review.geojson")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, "out", tt.name+".csv")
			_, err := runDecide(context.Background(), decideParams{
				Paths:   paths,
				Output:  out,
				Summary: tt.summary,
				GeoJSON: tt.geojson,
				Now:     fixedNow,
			})
			require.Error(t, err)
			assert.NoFileExists(t, out)
			assert.NoFileExists(t, filepath.Join(dir, "ok", "summary.json"))
		})
	}
}

func TestRunDecide_FootprintDistanceVerbatim(t *testing.T) {
	useTestConfig(t)
	dir := t.TempDir()
	paths := writeInputs(t, dir)
	require.NoError(t, os.WriteFile(paths.Footprints, []byte(
		"input_id,footprint_within_m,footprint_present_flag\n"+
			"a1,12.7,true\n"+
			"a2,n/a,false\n"), 0o644))

	out := filepath.Join(dir, "enhanced.csv")
	_, err := runDecide(context.Background(), decideParams{Paths: paths, Output: out, Now: fixedNow})
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	col := -1
	for i, h := range rows[0] {
		if h == "footprint_within_m" {
			col = i
		}
	}
	require.NotEqual(t, -1, col)
	assert.Equal(t, "12.7", rows[1][col])
	assert.Equal(t, "n/a", rows[2][col])
	assert.Equal(t, "-1", rows[3][col], "no footprint row")
}

// flakyStore fails the first CreateRun and SaveOutcomes call with a
// transient error.
type flakyStore struct {
	store.Store
	createCalls int
	saveCalls   int
	savedRunID  string
}

func (f *flakyStore) CreateRun(ctx context.Context, run *store.RunRecord) error {
	f.createCalls++
	if f.createCalls == 1 {
		return resilience.NewTransientError(eris.New("database is busy"))
	}
	return f.Store.CreateRun(ctx, run)
}

func (f *flakyStore) SaveOutcomes(ctx context.Context, runID string, outcomes []store.Outcome) (int64, error) {
	f.saveCalls++
	if f.saveCalls == 1 {
		return 0, resilience.NewTransientError(eris.New("database is busy"))
	}
	f.savedRunID = runID
	return f.Store.SaveOutcomes(ctx, runID, outcomes)
}

func TestRunDecide_RetriesTransientStoreErrors(t *testing.T) {
	useTestConfig(t)
	dir := t.TempDir()
	paths := writeInputs(t, dir)

	var flaky *flakyStore
	params := decideParams{
		Paths:  paths,
		Output: filepath.Join(dir, "enhanced.csv"),
		Now:    fixedNow,
		OpenStore: func(ctx context.Context) (store.Store, error) {
			st, err := initStore(ctx)
			if err != nil {
				return nil, err
			}
			flaky = &flakyStore{Store: st}
			return flaky, nil
		},
	}
	res, err := runDecide(context.Background(), params)
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, flaky.createCalls)
	assert.Equal(t, 2, flaky.saveCalls)
	assert.Equal(t, res.RunID, flaky.savedRunID)

	ctx := context.Background()
	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close()
	outcomes, err := st.ListOutcomes(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, outcomes, 3)
}

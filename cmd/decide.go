package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteverify/internal/decision"
	"github.com/sells-group/siteverify/internal/evidence"
	"github.com/sells-group/siteverify/internal/output"
	"github.com/sells-group/siteverify/internal/resilience"
	"github.com/sells-group/siteverify/internal/store"
)

var (
	decideGeocode    string
	decideNormalized string
	decideStreetView string
	decideFootprints string
	decideValidation string
	decideOutput     string
	decideSummary    string
	decideGeoJSON    string
	decideNoStore    bool
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Classify every geocoded address and write enhanced.csv",
	Long:  "Joins the five upstream evidence tables on input_id, assigns a final flag, reason codes and input-equivalence verdict per address, and writes the enhanced CSV with a QA summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("decide"); err != nil {
			return err
		}

		params := decideParams{
			Paths: evidence.Paths{
				Geocode:    decideGeocode,
				Normalized: decideNormalized,
				StreetView: decideStreetView,
				Footprints: decideFootprints,
				Validation: decideValidation,
			},
			Output:  decideOutput,
			Summary: decideSummary,
			GeoJSON: decideGeoJSON,
			Now:     time.Now,
		}
		if !decideNoStore {
			params.OpenStore = initStore
		}

		res, err := runDecide(cmd.Context(), params)
		if err != nil {
			return err
		}
		printDecideResult(os.Stdout, res)
		return nil
	},
}

// decideParams are the inputs of one decide run.
type decideParams struct {
	Paths   evidence.Paths
	Output  string
	Summary string
	GeoJSON string
	Now     func() time.Time
	// OpenStore is nil when run history is disabled.
	OpenStore func(ctx context.Context) (store.Store, error)
}

// decideResult describes what a decide run produced.
type decideResult struct {
	Summary      decision.Summary
	OutputSHA256 string
	RunID        string
}

func runDecide(ctx context.Context, p decideParams) (*decideResult, error) {
	log := zap.L().With(zap.String("command", "decide"))

	tables, err := evidence.LoadTables(ctx, p.Paths)
	if err != nil {
		return nil, err
	}
	bundles, joinStats := evidence.Join(tables)

	ts, err := decision.RunTimestamp(cfg.Decide.AnchorTimestamp, p.Now)
	if err != nil {
		return nil, err
	}
	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		return nil, err
	}
	runKey := decision.RunKey(tables.Sources, fingerprint)

	recs := decision.DecideAll(bundles, decision.Options{Policy: cfg.Policy(), Timestamp: ts})

	summary := decision.Summarize(runKey, ts, recs, joinStats)

	// Every artifact is staged before any is renamed into place; enhanced.csv
	// commits last.
	var staged []*output.Staged
	defer func() {
		for _, s := range staged {
			s.Discard()
		}
	}()
	if p.Summary != "" {
		s, err := output.StageSummary(p.Summary, summary)
		if err != nil {
			return nil, eris.Wrap(err, "decide: write summary")
		}
		staged = append(staged, s)
	}
	if p.GeoJSON != "" {
		s, err := output.StageGeoJSON(p.GeoJSON, recs)
		if err != nil {
			return nil, eris.Wrap(err, "decide: write geojson")
		}
		staged = append(staged, s)
	}
	enhanced, err := output.StageEnhanced(p.Output, recs)
	if err != nil {
		return nil, eris.Wrap(err, "decide: write enhanced csv")
	}
	staged = append(staged, enhanced)
	if err := output.CommitAll(staged...); err != nil {
		return nil, eris.Wrap(err, "decide: commit outputs")
	}
	digest := enhanced.SHA256

	res := &decideResult{Summary: summary, OutputSHA256: digest}
	if p.OpenStore != nil {
		res.RunID = recordRun(ctx, p.OpenStore, summary, p.Output, digest, recs)
	}

	log.Info("decide complete",
		zap.String("run_key", runKey),
		zap.String("run_timestamp_utc", ts),
		zap.Int("total", summary.Total),
		zap.Any("final_flag_counts", summary.FinalFlagCounts),
		zap.String("output", p.Output),
	)
	return res, nil
}

// recordRun persists the run digest. Failures are logged and never fail the
// run; the returned id is empty when nothing was stored.
func recordRun(ctx context.Context, open func(context.Context) (store.Store, error), summary decision.Summary, outputPath, digest string, recs []decision.Record) string {
	st, err := open(ctx)
	if err != nil {
		zap.L().Warn("decide: run history unavailable", zap.Error(err))
		return ""
	}
	defer st.Close() //nolint:errcheck

	run := store.NewRunRecord(summary, outputPath, digest)
	err = resilience.Do(ctx, resilience.StoreRetryConfig(cfg.Store.ConnectAttempts, "create_run"), func(ctx context.Context) error {
		return st.CreateRun(ctx, run)
	})
	if err != nil {
		zap.L().Warn("decide: record run failed", zap.Error(err))
		return ""
	}

	outcomes := store.OutcomesFromRecords(recs)
	err = resilience.Do(ctx, resilience.StoreRetryConfig(cfg.Store.ConnectAttempts, "save_outcomes"), func(ctx context.Context) error {
		_, err := st.SaveOutcomes(ctx, run.ID, outcomes)
		return err
	})
	if err != nil {
		zap.L().Warn("decide: record outcomes failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	return run.ID
}

func printDecideResult(w io.Writer, res *decideResult) {
	s := res.Summary
	_, _ = fmt.Fprintf(w, "Classified %d addresses (run key %s)\n", s.Total, s.RunKey)
	for _, f := range decision.AllFinalFlags() {
		_, _ = fmt.Fprintf(w, "  %-22s %d\n", f, s.FinalFlagCounts[string(f)])
	}
	_, _ = fmt.Fprintf(w, "Output sha256: %s\n", res.OutputSHA256)
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run id: %s\n", res.RunID)
	}
}

func init() {
	decideCmd.Flags().StringVar(&decideGeocode, "geocode", "data/geocode.csv", "path to geocode.csv")
	decideCmd.Flags().StringVar(&decideNormalized, "normalized", "data/normalized.csv", "path to normalized.csv")
	decideCmd.Flags().StringVar(&decideStreetView, "streetview", "data/streetview_meta.csv", "path to streetview_meta.csv")
	decideCmd.Flags().StringVar(&decideFootprints, "footprints", "data/footprints.csv", "path to footprints.csv")
	decideCmd.Flags().StringVar(&decideValidation, "validation", "data/validation.csv", "path to validation.csv")
	decideCmd.Flags().StringVar(&decideOutput, "output", "data/enhanced.csv", "path to write enhanced.csv")
	decideCmd.Flags().StringVar(&decideSummary, "summary", "data/logs/decision_summary.json", "path to write the QA summary (.json, .yaml or .yml); empty disables it")
	decideCmd.Flags().StringVar(&decideGeoJSON, "geojson", "", "optional path to write a GeoJSON review layer")
	decideCmd.Flags().BoolVar(&decideNoStore, "no-store", false, "do not record the run in run history")
	rootCmd.AddCommand(decideCmd)
}

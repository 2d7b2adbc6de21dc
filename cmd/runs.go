package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/siteverify/internal/decision"
	"github.com/sells-group/siteverify/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect decide run history",
	Long:  "Commands for listing, viewing, and comparing recorded decide runs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("runs")
	},
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decide runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runKey, _ := cmd.Flags().GetString("run-key")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{RunKey: runKey, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs compare --

var runsCompareCmd = &cobra.Command{
	Use:   "compare <run-id> <other-run-id>",
	Short: "Check whether two runs are byte-identical and list changed inputs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cmp, err := store.LoadComparison(ctx, st, args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "runs compare")
		}

		maxRows, _ := cmd.Flags().GetInt("max-changes")
		formatComparison(os.Stdout, cmp, maxRows)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("run-key", "", "only list runs with this run key")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCompareCmd.Flags().Int("max-changes", 50, "max number of changed inputs to print (0 prints all)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsCompareCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN_KEY\tRUN_TIMESTAMP\tTOTAL\tVALID\tREVIEW\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------------\t-----\t-----\t------\t-------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			truncateKey(r.RunKey),
			r.RunTimestamp,
			r.Total,
			r.FinalFlagCounts[string(decision.FlagValidLocation)],
			r.FinalFlagCounts[string(decision.FlagNeedsHumanReview)],
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatComparison writes a comparison report to w. maxRows <= 0 prints every
// change.
func formatComparison(out io.Writer, c *store.Comparison, maxRows int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Runs:\t%s vs %s\n", truncateID(c.Base), truncateID(c.Other))
	_, _ = fmt.Fprintf(w, "Same run key:\t%s\n", yesNo(c.SameRunKey))
	_, _ = fmt.Fprintf(w, "Same output bytes:\t%s\n", yesNo(c.SameOutput))
	_, _ = fmt.Fprintf(w, "Unchanged inputs:\t%d\n", c.UnchangedCount)
	_, _ = fmt.Fprintf(w, "Changed inputs:\t%d\n", len(c.Changed))
	_ = w.Flush()

	if len(c.Changed) == 0 {
		return
	}

	changes := c.Changed
	if maxRows > 0 && len(changes) > maxRows {
		changes = changes[:maxRows]
	}

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INPUT_ID\tBEFORE\tAFTER")
	for _, ch := range changes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", ch.InputID, describeOutcome(ch.Before), describeOutcome(ch.After))
	}
	_ = w.Flush()

	if rest := len(c.Changed) - len(changes); rest > 0 {
		_, _ = fmt.Fprintf(out, "... and %d more\n", rest)
	}
}

func describeOutcome(o *store.Outcome) string {
	if o == nil {
		return "(absent)"
	}
	return o.FinalFlag + "/" + o.InputEquivalence
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// truncateID returns the first 8 characters of an id for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateKey shortens a run key to its prefix and first 12 hex digits.
func truncateKey(key string) string {
	const keep = len(decision.RunKeyPrefix) + 12
	if len(key) > keep {
		return key[:keep]
	}
	return key
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteverify/internal/normalize"
	"github.com/sells-group/siteverify/internal/output"
)

var (
	normalizeInput  string
	normalizeOutput string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize a raw address CSV into normalized.csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("normalize"); err != nil {
			return err
		}

		n, schema, err := runNormalize(normalizeInput, normalizeOutput, cfg.Defaults.CountryIfUSZip)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Normalized %d rows using schema mode: %s\n", n, schema)
		return nil
	},
}

func runNormalize(inputPath, outputPath, defaultCountry string) (int, normalize.Schema, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return 0, "", eris.Wrapf(err, "normalize: open %s", inputPath)
	}
	defer f.Close() //nolint:errcheck

	rows, schema, err := normalize.New(defaultCountry).Normalize(f)
	if err != nil {
		return 0, "", err
	}

	if _, err := output.WriteFileAtomic(outputPath, func(w io.Writer) error {
		return normalize.Write(w, rows)
	}); err != nil {
		return 0, "", err
	}

	zap.L().Info("normalize complete",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("rows", len(rows)),
	)
	return len(rows), schema, nil
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeInput, "input", "", "path to the raw address CSV")
	normalizeCmd.Flags().StringVar(&normalizeOutput, "output", "data/normalized.csv", "path to write normalized.csv")
	_ = normalizeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(normalizeCmd)
}

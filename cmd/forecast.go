package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/vintage-cli/internal/forecast"
	"github.com/sells-group/vintage-cli/internal/model"
	"github.com/sells-group/vintage-cli/internal/report"
	"github.com/sells-group/vintage-cli/internal/revision"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast from the latest vintage with revision-aware bounds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		ctx := cmd.Context()

		input, _ := cmd.Flags().GetString("input")
		fromStore, _ := cmd.Flags().GetBool("from-store")
		outDir, _ := cmd.Flags().GetString("outdir")
		h, _ := cmd.Flags().GetInt("h")
		if outDir == "" {
			outDir = cfg.Report.OutDir
		}

		table, err := loadTable(ctx, input, fromStore)
		if err != nil {
			return err
		}
		analysis, err := revision.Analyze(table, revisionOptions())
		if err != nil {
			return err
		}
		fc, err := forecast.Forecast(table, analysis.Summary, forecastOptions(h))
		if err != nil {
			return err
		}

		if err := report.WriteFile(filepath.Join(outDir, report.ForecastFile), func(w io.Writer) error {
			return report.WriteForecast(w, fc)
		}); err != nil {
			return err
		}

		formatForecast(os.Stdout, fc)
		return nil
	},
}

// formatForecast writes forecast rows as a table.
func formatForecast(out io.Writer, fc *model.ForecastResult) {
	_, _ = fmt.Fprintf(out, "Based on vintage %s (%s, %d months of history)\n\n",
		fc.BasedOnVintageDate.Format("2006-01-02"), fc.Method, fc.HistoryLength)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "H\tMONTH\tFORECAST\tLOWER\tUPPER\tBAND")
	_, _ = fmt.Fprintln(w, "-\t-----\t--------\t-----\t-----\t----")
	for _, r := range fc.Rows {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.1f\t%.1f\t%.1f\t%s\n",
			r.HorizonIndex,
			model.FormatMonth(r.ObservationDate),
			r.PointForecast,
			r.LowerBound,
			r.UpperBound,
			r.BandSource,
		)
	}
	_ = w.Flush()
}

func init() {
	forecastCmd.Flags().String("input", "", "consolidated CSV (default report.consolidated_file)")
	forecastCmd.Flags().Bool("from-store", false, "read the consolidated table from the configured store")
	forecastCmd.Flags().String("outdir", "", "directory for the forecast CSV (default report.out_dir)")
	forecastCmd.Flags().Int("h", 0, "forecast horizon in months (default forecast.horizon)")
	rootCmd.AddCommand(forecastCmd)
}

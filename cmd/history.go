package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vintage-cli/internal/model"
	"github.com/sells-group/vintage-cli/internal/report"
	"github.com/sells-group/vintage-cli/internal/revision"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show every published estimate of one observation month",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		ctx := cmd.Context()

		input, _ := cmd.Flags().GetString("input")
		fromStore, _ := cmd.Flags().GetBool("from-store")
		monthFlag, _ := cmd.Flags().GetString("month")
		outDir, _ := cmd.Flags().GetString("outdir")

		month, ok := model.ParseMonth(strings.TrimSpace(monthFlag))
		if !ok {
			return eris.Errorf("history: --month must be YYYY-MM, got %q", monthFlag)
		}

		table, err := loadTable(ctx, input, fromStore)
		if err != nil {
			return err
		}
		tr, err := revision.Trace(table, month)
		if err != nil {
			return err
		}

		if outDir != "" {
			path := filepath.Join(outDir, fmt.Sprintf(report.TrajectoryFile, model.FormatMonth(month)))
			if err := report.WriteFile(path, func(w io.Writer) error {
				return report.WriteTrajectory(w, tr)
			}); err != nil {
				return err
			}
		}

		formatTrajectory(os.Stdout, tr)
		return nil
	},
}

// formatTrajectory writes one month's vintages followed by its revision totals.
func formatTrajectory(out io.Writer, tr *revision.Trajectory) {
	_, _ = fmt.Fprintf(out, "Observation month %s\n\n", model.FormatMonth(tr.ObservationDate))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VINTAGE\tAGE\tVALUE\tCHANGE\tSOURCE")
	_, _ = fmt.Fprintln(w, "-------\t---\t-----\t------\t------")
	for _, p := range tr.Points {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%g\t%+g\t%s\n",
			p.VintageDate.Format("2006-01-02"),
			p.VintageAgeMonths,
			p.Value,
			p.Change,
			p.SourceFile,
		)
	}
	_, _ = fmt.Fprintf(w, "\nFirst:\t%g\n", tr.First)
	_, _ = fmt.Fprintf(w, "Latest:\t%g\n", tr.Latest)
	_, _ = fmt.Fprintf(w, "Total revision:\t%+g\n", tr.TotalRevision)
	_, _ = fmt.Fprintf(w, "Range:\t%g (%g to %g)\n", tr.Range, tr.Min, tr.Max)
	_ = w.Flush()
}

func init() {
	historyCmd.Flags().String("input", "", "consolidated CSV (default report.consolidated_file)")
	historyCmd.Flags().Bool("from-store", false, "read the consolidated table from the configured store")
	historyCmd.Flags().String("month", "", "observation month, YYYY-MM")
	historyCmd.Flags().String("outdir", "", "also write the trajectory CSV to this directory")
	_ = historyCmd.MarkFlagRequired("month")
	rootCmd.AddCommand(historyCmd)
}

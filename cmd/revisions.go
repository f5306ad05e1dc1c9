package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/vintage-cli/internal/model"
	"github.com/sells-group/vintage-cli/internal/report"
	"github.com/sells-group/vintage-cli/internal/revision"
)

var revisionsCmd = &cobra.Command{
	Use:   "revisions",
	Short: "Summarize how estimates are revised as vintages age",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		ctx := cmd.Context()

		input, _ := cmd.Flags().GetString("input")
		fromStore, _ := cmd.Flags().GetBool("from-store")
		outDir, _ := cmd.Flags().GetString("outdir")
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

		if err := report.WriteFile(filepath.Join(outDir, report.SummaryFile), func(w io.Writer) error {
			return report.WriteSummary(w, analysis.Summary)
		}); err != nil {
			return err
		}
		if err := report.WriteFile(filepath.Join(outDir, report.RevisionsFile), func(w io.Writer) error {
			return report.WriteRevisions(w, analysis.Records)
		}); err != nil {
			return err
		}

		formatSummary(os.Stdout, analysis.Summary)
		if analysis.NegativeAgeSkipped > 0 {
			fmt.Fprintf(os.Stdout, "\nExcluded %d revisions published before their observation month.\n", analysis.NegativeAgeSkipped)
		}
		return nil
	},
}

// formatSummary writes the revision buckets as a table; low-confidence buckets
// are flagged.
func formatSummary(out io.Writer, s *model.RevisionSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AGE\tMEAN_ABS\tMEDIAN_ABS\tP90_ABS\tMEAN\tN\t")
	_, _ = fmt.Fprintln(w, "---\t--------\t----------\t-------\t----\t-\t")
	for _, b := range s.Buckets {
		flag := ""
		if b.LowConfidence {
			flag = "low confidence"
		}
		_, _ = fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%s\n",
			b.VintageAgeMonths,
			b.MeanAbsRevision,
			b.MedianAbsRevision,
			b.P90AbsRevision,
			b.MeanRevision,
			b.N,
			flag,
		)
	}
	_ = w.Flush()
}

func init() {
	revisionsCmd.Flags().String("input", "", "consolidated CSV (default report.consolidated_file)")
	revisionsCmd.Flags().Bool("from-store", false, "read the consolidated table from the configured store")
	revisionsCmd.Flags().String("outdir", "", "directory for revision reports (default report.out_dir)")
	rootCmd.AddCommand(revisionsCmd)
}

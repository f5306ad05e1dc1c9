package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vintage-cli/internal/report"
	"github.com/sells-group/vintage-cli/internal/store"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge raw vintage files into one consolidated table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		ctx := cmd.Context()

		rawDir, _ := cmd.Flags().GetString("raw-dir")
		out, _ := cmd.Flags().GetString("out")
		save, _ := cmd.Flags().GetBool("save")
		if rawDir == "" {
			rawDir = cfg.Ingest.RawDir
		}
		if out == "" {
			out = cfg.Report.ConsolidatedFile
		}

		res, err := ingestDir(ctx, rawDir)
		if err != nil {
			return err
		}

		rows := res.Table.Rows()
		if err := report.WriteFile(out, func(w io.Writer) error {
			return report.WriteConsolidated(w, rows)
		}); err != nil {
			return err
		}

		if save {
			st, err := store.Open(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			n, err := st.SaveObservations(ctx, rows)
			if err != nil {
				return err
			}
			zap.L().Info("saved consolidated table", zap.Int64("rows", n), zap.String("driver", cfg.Store.Driver))
		}

		formatIngestSummary(os.Stdout, res, out)
		return nil
	},
}

// formatIngestSummary writes the per-vintage coverage of a consolidate pass.
func formatIngestSummary(out io.Writer, res *ingestResult, path string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VINTAGE\tROWS\tSOURCES")
	_, _ = fmt.Fprintln(w, "-------\t----\t-------")
	for _, v := range res.Table.Vintages() {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", v.VintageDate.Format("2006-01-02"), v.Rows, strings.Join(v.Sources, ","))
	}
	_, _ = fmt.Fprintf(w, "\nFiles:\t%d\n", len(res.Files))
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", len(res.Batch.Failures))
	for _, f := range res.Batch.Failures {
		_, _ = fmt.Fprintf(w, "  %s:\t%s\n", f.Source, f.Reason)
	}
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", res.Table.Len())
	_, _ = fmt.Fprintf(w, "Skipped rows:\t%d\n", res.Batch.SkippedRows())
	_, _ = fmt.Fprintf(w, "Conflicts:\t%d\n", len(res.Table.Conflicts()))
	_, _ = fmt.Fprintf(w, "Written:\t%s\n", path)
	_ = w.Flush()
}

func init() {
	consolidateCmd.Flags().String("raw-dir", "", "directory of raw vintage files (default ingest.raw_dir)")
	consolidateCmd.Flags().String("out", "", "consolidated CSV path (default report.consolidated_file)")
	consolidateCmd.Flags().Bool("save", false, "also persist the table to the configured store")
	rootCmd.AddCommand(consolidateCmd)
}

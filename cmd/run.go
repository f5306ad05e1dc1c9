package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/vintage-cli/internal/forecast"
	"github.com/sells-group/vintage-cli/internal/model"
	"github.com/sells-group/vintage-cli/internal/report"
	"github.com/sells-group/vintage-cli/internal/revision"
	"github.com/sells-group/vintage-cli/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consolidate, analyze revisions, forecast and write every report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		ctx := cmd.Context()

		rawDir, _ := cmd.Flags().GetString("raw-dir")
		outDir, _ := cmd.Flags().GetString("outdir")
		noStore, _ := cmd.Flags().GetBool("no-store")
		if rawDir == "" {
			rawDir = cfg.Ingest.RawDir
		}
		if outDir == "" {
			outDir = cfg.Report.OutDir
		}

		var st store.Store
		if !noStore {
			s, err := store.Open(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			st = s
		}

		m, err := runPipeline(ctx, st, rawDir, outDir)
		if err != nil {
			return err
		}
		formatManifest(os.Stdout, m)
		return nil
	},
}

// runPipeline runs the full consolidation and analysis and writes every artifact
// to outDir. st may be nil, in which case nothing is persisted. A forecast refused
// for lack of history is recorded in the manifest rather than failing the run.
func runPipeline(ctx context.Context, st store.Store, rawDir, outDir string) (*report.Manifest, error) {
	log := zap.L().With(zap.String("component", "run"))

	var run *model.IngestRun
	if st != nil {
		r, err := st.StartRun(ctx, rawDir)
		if err != nil {
			return nil, err
		}
		run = r
	}
	fail := func(err error) (*report.Manifest, error) {
		if run != nil {
			if ferr := st.FailRun(context.WithoutCancel(ctx), run.ID, err); ferr != nil {
				log.Error("failed to record run failure", zap.String("run_id", run.ID), zap.Error(ferr))
			}
		}
		return nil, err
	}

	res, err := ingestDir(ctx, rawDir)
	if err != nil {
		return fail(err)
	}
	analysis, err := revision.Analyze(res.Table, revisionOptions())
	if err != nil {
		return fail(err)
	}

	opts := forecastOptions(0)
	m := &report.Manifest{
		GeneratedAt:           time.Now().UTC(),
		Files:                 baseNames(res.Files),
		Failures:              res.Batch.Failures,
		Rows:                  res.Table.Len(),
		SkippedRows:           res.Batch.SkippedRows(),
		Conflicts:             res.Table.Conflicts(),
		LowConfidenceVintages: res.Batch.LowConfidenceDates(),
		NegativeAgeSkipped:    analysis.NegativeAgeSkipped,
		AgeBasis:              cfg.Revision.AgeBasis,
		Forecast:              &report.ForecastInfo{Horizon: opts.Horizon},
	}
	if run != nil {
		m.RunID = run.ID
	}
	for _, b := range analysis.Summary.LowConfidenceBuckets() {
		m.LowConfidenceBuckets = append(m.LowConfidenceBuckets, b.VintageAgeMonths)
	}

	fc, err := forecast.Forecast(res.Table, analysis.Summary, opts)
	switch {
	case errors.Is(err, forecast.ErrInsufficientHistory):
		log.Warn("forecast skipped", zap.Error(err))
		m.Forecast.Error = err.Error()
		fc = nil
	case err != nil:
		return fail(err)
	default:
		m.Forecast.BasedOnVintageDate = fc.BasedOnVintageDate.Format(model.DateLayout)
		m.Forecast.Method = fc.Method
		m.Forecast.ResidualSD = fc.ResidualSD
		m.Forecast.InterpolatedPoints = fc.InterpolatedPoints
	}

	rows := res.Table.Rows()
	artifacts := map[string]func(io.Writer) error{
		cfg.Report.ConsolidatedFile: func(w io.Writer) error { return report.WriteConsolidated(w, rows) },
		filepath.Join(outDir, report.SummaryFile): func(w io.Writer) error {
			return report.WriteSummary(w, analysis.Summary)
		},
		filepath.Join(outDir, report.RevisionsFile): func(w io.Writer) error {
			return report.WriteRevisions(w, analysis.Records)
		},
	}
	if fc != nil {
		artifacts[filepath.Join(outDir, report.ForecastFile)] = func(w io.Writer) error {
			return report.WriteForecast(w, fc)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	for path, write := range artifacts {
		path, write := path, write
		m.Artifacts = append(m.Artifacts, path)
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			return report.WriteFile(path, write)
		})
	}
	if cfg.Report.XLSX {
		path := filepath.Join(outDir, report.WorkbookFile)
		m.Artifacts = append(m.Artifacts, path)
		g.Go(func() error {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return eris.Wrapf(err, "create dir %s", outDir)
			}
			return report.WriteWorkbook(path, rows, analysis.Summary, fc)
		})
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	var saved int64
	if st != nil {
		if saved, err = st.SaveObservations(ctx, rows); err != nil {
			return fail(err)
		}
	}

	manifestPath := filepath.Join(outDir, report.ManifestFile)
	m.Artifacts = append(m.Artifacts, manifestPath)
	sort.Strings(m.Artifacts)
	if err := report.WriteFile(manifestPath, func(w io.Writer) error {
		return report.WriteManifest(w, m)
	}); err != nil {
		return fail(err)
	}

	if run != nil {
		result := &model.RunResult{
			Files:         len(res.Files),
			Parsed:        len(res.Batch.Records),
			Failed:        len(res.Batch.Failures),
			Rows:          res.Table.Len(),
			RowsSaved:     int(saved),
			Conflicts:     len(m.Conflicts),
			SkippedRows:   m.SkippedRows,
			LowConfidence: len(m.LowConfidenceVintages),
		}
		if err := st.CompleteRun(ctx, run.ID, result); err != nil {
			return nil, err
		}
	}

	log.Info("run complete",
		zap.String("run_id", m.RunID),
		zap.Int("rows", m.Rows),
		zap.Int("artifacts", len(m.Artifacts)),
	)
	return m, nil
}

// formatManifest prints a short summary of a finished run.
func formatManifest(out io.Writer, m *report.Manifest) {
	_, _ = fmt.Fprintf(out, "Files: %d (failed %d)\n", len(m.Files), len(m.Failures))
	_, _ = fmt.Fprintf(out, "Rows: %d (skipped %d, conflicts %d)\n", m.Rows, m.SkippedRows, len(m.Conflicts))
	if len(m.LowConfidenceVintages) > 0 {
		_, _ = fmt.Fprintf(out, "Low-confidence vintage dates: %v\n", m.LowConfidenceVintages)
	}
	if len(m.LowConfidenceBuckets) > 0 {
		_, _ = fmt.Fprintf(out, "Low-confidence revision ages: %v\n", m.LowConfidenceBuckets)
	}
	if m.Forecast != nil && m.Forecast.Error != "" {
		_, _ = fmt.Fprintf(out, "Forecast skipped: %s\n", m.Forecast.Error)
	}
	for _, a := range m.Artifacts {
		_, _ = fmt.Fprintf(out, "Wrote %s\n", a)
	}
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func init() {
	runCmd.Flags().String("raw-dir", "", "directory of raw vintage files (default ingest.raw_dir)")
	runCmd.Flags().String("outdir", "", "directory for reports (default report.out_dir)")
	runCmd.Flags().Bool("no-store", false, "skip persisting the table and run record")
	rootCmd.AddCommand(runCmd)
}

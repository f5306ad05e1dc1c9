// Package report writes consolidation and analysis artifacts.
package report

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vintage-cli/internal/fetcher"
	"github.com/sells-group/vintage-cli/internal/model"
	"github.com/sells-group/vintage-cli/internal/revision"
)

// Column layouts. Downstream tools depend on the leading columns; new columns
// are only ever appended.
var (
	ConsolidatedColumns = []string{"observation_date", "value", "vintage_date", "source_file"}
	SummaryColumns      = []string{"vintage_age_months", "mean_abs_revision", "median_abs_revision", "n", "low_confidence", "mean_revision", "p90_abs_revision"}
	ForecastColumns     = []string{"horizon_index", "observation_date", "point_forecast", "lower_bound", "upper_bound", "based_on_vintage_date", "band_source"}
	RevisionColumns     = []string{"observation_date", "vintage_date", "previous_vintage_date", "vintage_age_months", "revision_value", "cumulative_revision"}
	TrajectoryColumns   = []string{"observation_date", "vintage_date", "vintage_age_months", "value", "change", "source_file"}
)

// Default artifact file names inside an output directory.
const (
	SummaryFile    = "revision_summary.csv"
	RevisionsFile  = "revisions.csv"
	ForecastFile   = "forecast.csv"
	WorkbookFile   = "vintages.xlsx"
	ManifestFile   = "run_manifest.yaml"
	TrajectoryFile = "trajectory_%s.csv"
)

// WriteFile creates path (and its parent directories) and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "report: create dir %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "report: write rows")
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(model.DateLayout)
}

// WriteConsolidated writes the consolidated table, one row per key.
func WriteConsolidated(w io.Writer, rows []model.VintageObservation) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{formatDate(r.ObservationDate), formatFloat(r.Value), formatDate(r.VintageDate), r.SourceFile}
	}
	return writeCSV(w, ConsolidatedColumns, out)
}

// WriteSummary writes revision buckets ordered by age.
func WriteSummary(w io.Writer, s *model.RevisionSummary) error {
	var out [][]string
	if s != nil {
		for _, b := range s.Buckets {
			out = append(out, []string{
				strconv.Itoa(b.VintageAgeMonths),
				formatFloat(b.MeanAbsRevision),
				formatFloat(b.MedianAbsRevision),
				strconv.Itoa(b.N),
				strconv.FormatBool(b.LowConfidence),
				formatFloat(b.MeanRevision),
				formatFloat(b.P90AbsRevision),
			})
		}
	}
	return writeCSV(w, SummaryColumns, out)
}

// WriteRevisions writes per-pair revision detail.
func WriteRevisions(w io.Writer, records []model.RevisionRecord) error {
	out := make([][]string, len(records))
	for i, r := range records {
		out[i] = []string{
			formatDate(r.ObservationDate),
			formatDate(r.VintageDate),
			formatDate(r.PreviousVintageDate),
			strconv.Itoa(r.VintageAgeMonths),
			formatFloat(r.RevisionValue),
			formatFloat(r.CumulativeRevision),
		}
	}
	return writeCSV(w, RevisionColumns, out)
}

// WriteForecast writes forecast rows in horizon order.
func WriteForecast(w io.Writer, f *model.ForecastResult) error {
	var out [][]string
	if f != nil {
		for _, r := range f.Rows {
			out = append(out, []string{
				strconv.Itoa(r.HorizonIndex),
				formatDate(r.ObservationDate),
				formatFloat(r.PointForecast),
				formatFloat(r.LowerBound),
				formatFloat(r.UpperBound),
				formatDate(r.BasedOnVintageDate),
				string(r.BandSource),
			})
		}
	}
	return writeCSV(w, ForecastColumns, out)
}

// WriteTrajectory writes every vintage of one observation month.
func WriteTrajectory(w io.Writer, tr *revision.Trajectory) error {
	out := make([][]string, len(tr.Points))
	for i, p := range tr.Points {
		out[i] = []string{
			formatDate(tr.ObservationDate),
			formatDate(p.VintageDate),
			strconv.Itoa(p.VintageAgeMonths),
			formatFloat(p.Value),
			formatFloat(p.Change),
			p.SourceFile,
		}
	}
	return writeCSV(w, TrajectoryColumns, out)
}

var consolidatedDateLayouts = []string{model.DateLayout, "2006-01-02 15:04:05", "2006-01"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range consolidatedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ReadConsolidated parses a consolidated table file. Columns are matched by name
// so extra columns are tolerated.
func ReadConsolidated(ctx context.Context, r io.Reader) ([]model.VintageObservation, error) {
	rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "report: read consolidated")
	}
	if len(rows) == 0 {
		return nil, eris.New("report: consolidated file is empty")
	}

	idx := make(map[string]int)
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range ConsolidatedColumns {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("report: consolidated file missing column %q", col)
		}
	}
	cell := func(row []string, col string) string {
		if i := idx[col]; i < len(row) {
			return row[i]
		}
		return ""
	}

	out := make([]model.VintageObservation, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		obsDate, ok := parseDate(cell(row, "observation_date"))
		if !ok {
			return nil, eris.Errorf("report: line %d: bad observation_date %q", line, cell(row, "observation_date"))
		}
		vintDate, ok := parseDate(cell(row, "vintage_date"))
		if !ok {
			return nil, eris.Errorf("report: line %d: bad vintage_date %q", line, cell(row, "vintage_date"))
		}
		v, err := strconv.ParseFloat(cell(row, "value"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "report: line %d: bad value", line)
		}
		out = append(out, model.VintageObservation{
			ObservationDate: model.MonthStart(obsDate),
			Value:           v,
			VintageDate:     model.DateOnly(vintDate),
			SourceFile:      cell(row, "source_file"),
		})
	}
	return out, nil
}

// ReadConsolidatedFile opens and parses a consolidated table file.
func ReadConsolidatedFile(ctx context.Context, path string) ([]model.VintageObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadConsolidated(ctx, f)
}

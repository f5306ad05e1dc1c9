package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/vintage-cli/internal/model"
)

// Workbook sheet names.
const (
	SheetConsolidated = "consolidated"
	SheetSummary      = "revision_summary"
	SheetForecast     = "forecast"
)

// WriteWorkbook writes the consolidated table, revision summary and forecast as
// sheets of one XLSX file. A nil summary or forecast produces a header-only sheet.
func WriteWorkbook(path string, rows []model.VintageObservation, summary *model.RevisionSummary, fc *model.ForecastResult) error {
	f := xlsx.NewFile()

	sheet, err := addSheet(f, SheetConsolidated, ConsolidatedColumns)
	if err != nil {
		return err
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(formatDate(r.ObservationDate))
		row.AddCell().SetFloat(r.Value)
		row.AddCell().SetString(formatDate(r.VintageDate))
		row.AddCell().SetString(r.SourceFile)
	}

	sheet, err = addSheet(f, SheetSummary, SummaryColumns)
	if err != nil {
		return err
	}
	if summary != nil {
		for _, b := range summary.Buckets {
			row := sheet.AddRow()
			row.AddCell().SetInt(b.VintageAgeMonths)
			row.AddCell().SetFloat(b.MeanAbsRevision)
			row.AddCell().SetFloat(b.MedianAbsRevision)
			row.AddCell().SetInt(b.N)
			row.AddCell().SetBool(b.LowConfidence)
			row.AddCell().SetFloat(b.MeanRevision)
			row.AddCell().SetFloat(b.P90AbsRevision)
		}
	}

	sheet, err = addSheet(f, SheetForecast, ForecastColumns)
	if err != nil {
		return err
	}
	if fc != nil {
		for _, r := range fc.Rows {
			row := sheet.AddRow()
			row.AddCell().SetInt(r.HorizonIndex)
			row.AddCell().SetString(formatDate(r.ObservationDate))
			row.AddCell().SetFloat(r.PointForecast)
			row.AddCell().SetFloat(r.LowerBound)
			row.AddCell().SetFloat(r.UpperBound)
			row.AddCell().SetString(formatDate(r.BasedOnVintageDate))
			row.AddCell().SetString(string(r.BandSource))
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func addSheet(f *xlsx.File, name string, header []string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "report: add sheet %s", name)
	}
	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}
	return sheet, nil
}

package vintage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/vintage-cli/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const onsVintage = `"Title","UK Job Vacancies (thousands) - Total"
"CDID","AP2Y"
"Source dataset ID","LMS"
"PreUnit",""
"Unit","Thousands"
"Release date","12-07-2022"
"Next release","16 August 2022"
"Important notes",""
"2001","680"
"2001 Q2","682"
"2022 APR","1295"
"2022 MAY","1290"
"2022 JUN","1294"
"2022 JUL",""
`

func TestParse_ONSGeneratorFile(t *testing.T) {
	rec, err := Parse(context.Background(), strings.NewReader(onsVintage), "ap2y_v117.csv", Options{})
	require.NoError(t, err)

	assert.Equal(t, date(2022, 7, 12), rec.VintageDate)
	assert.Equal(t, model.DateSourceHeader, rec.DateSource)
	assert.False(t, rec.LowConfidenceDate)
	assert.Equal(t, "AP2Y", rec.Metadata["CDID"])
	assert.Equal(t, 1, rec.Skipped)
	assert.Equal(t, 2, rec.Ignored)
	require.Len(t, rec.Observations, 3)
	assert.Equal(t, model.Observation{Date: date(2022, 4, 1), Value: 1295}, rec.Observations[0])
	assert.Equal(t, model.Observation{Date: date(2022, 6, 1), Value: 1294}, rec.Observations[2])
}

func TestParse_HeaderDateLayouts(t *testing.T) {
	tests := []struct {
		key, value string
		want       time.Time
	}{
		{"Release date", "12 July 2022", date(2022, 7, 12)},
		{"Release date", "2 August 2022", date(2022, 8, 2)},
		{"Last updated", "05 Sep 2023", date(2023, 9, 5)},
		{"Date", "2021-11-16", date(2021, 11, 16)},
		{"release DATE", "16-11-2021", date(2021, 11, 16)},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			input := `"` + tt.key + `","` + tt.value + `"` + "\n\"2022 JUN\",\"1294\"\n"
			rec, err := Parse(context.Background(), strings.NewReader(input), "x.csv", Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.VintageDate)
		})
	}
}

func TestParse_ReleaseDatePreferredOverLastUpdated(t *testing.T) {
	input := "Last updated,01 January 2020\nRelease date,12 July 2022\n2022 JUN,1294\n"
	rec, err := Parse(context.Background(), strings.NewReader(input), "x.csv", Options{})
	require.NoError(t, err)
	assert.Equal(t, date(2022, 7, 12), rec.VintageDate)
}

func TestParse_FilenameDateFallback(t *testing.T) {
	input := "Title,Vacancies\n2022 JUN,1294\n"
	rec, err := Parse(context.Background(), strings.NewReader(input), "ap2y_v117_2022-07-12.csv", Options{
		FallbackDate: date(2030, 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, date(2022, 7, 12), rec.VintageDate)
	assert.Equal(t, model.DateSourceFilename, rec.DateSource)
	assert.True(t, rec.LowConfidenceDate)
}

func TestParse_CallerFallbackIsLowConfidence(t *testing.T) {
	input := "Title,Vacancies\n2022 JUN,1294\n"
	rec, err := Parse(context.Background(), strings.NewReader(input), "ap2y_latest.csv", Options{
		FallbackDate: time.Date(2022, 8, 1, 15, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, date(2022, 8, 1), rec.VintageDate)
	assert.Equal(t, model.DateSourceFallback, rec.DateSource)
	assert.True(t, rec.LowConfidenceDate)
}

func TestParse_NoVintageDate(t *testing.T) {
	input := "Title,Vacancies\n2022 JUN,1294\n"
	_, err := Parse(context.Background(), strings.NewReader(input), "ap2y_latest.csv", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedVintageFile))
	assert.Contains(t, err.Error(), "no vintage date")
}

func TestParse_ZeroValidRows(t *testing.T) {
	input := "Release date,12 July 2022\n2022 JUN,x\n2022 JUL,..\n2021,1200\n"
	_, err := Parse(context.Background(), strings.NewReader(input), "bad.csv", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedVintageFile))

	var me *MalformedError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "bad.csv", me.Source)
	assert.Contains(t, me.Reason, "2 skipped, 1 ignored")
}

func TestParse_NotATable(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader("<html><body>rate limited</body></html>"), "page.csv", Options{
		FallbackDate: date(2022, 1, 1),
	})
	assert.True(t, errors.Is(err, ErrMalformedVintageFile))
}

func TestParse_AlternateMonthKeys(t *testing.T) {
	input := "Release date,2022-07-12\n2022 M05,1290\n2022-06,1294.5\n2022 jul,1300\n2022-13,1\n"
	rec, err := Parse(context.Background(), strings.NewReader(input), "x.csv", Options{})
	require.NoError(t, err)
	require.Len(t, rec.Observations, 3)
	assert.Equal(t, date(2022, 5, 1), rec.Observations[0].Date)
	assert.InDelta(t, 1294.5, rec.Observations[1].Value, 1e-9)
	assert.Equal(t, date(2022, 7, 1), rec.Observations[2].Date)
	assert.Equal(t, 1, rec.Ignored) // 2022-13 is not a period
}

func TestParse_DuplicatePeriodKeepsLast(t *testing.T) {
	input := "Release date,2022-07-12\n2022 JUN,1294\n2022 JUN,1296\n"
	rec, err := Parse(context.Background(), strings.NewReader(input), "x.csv", Options{})
	require.NoError(t, err)
	require.Len(t, rec.Observations, 1)
	assert.Equal(t, 1296.0, rec.Observations[0].Value)
}

func TestParse_Windows1252AndBOM(t *testing.T) {
	// 0xA3 is the pound sign in Windows-1252 and invalid as a lone UTF-8 byte.
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Title,Cost \xA3m\nRelease date,12 July 2022\n2022 JUN,1294\n")...)
	rec, err := Parse(context.Background(), strings.NewReader(string(input)), "x.csv", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Cost £m", rec.Metadata["Title"])
	assert.Equal(t, date(2022, 7, 12), rec.VintageDate)
}

func TestParseFile_CSVWithModTimeFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ap2y_latest.csv")
	require.NoError(t, os.WriteFile(path, []byte("Title,Vacancies\n2022 JUN,1294\n"), 0o644))
	mt := time.Date(2022, 9, 13, 9, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mt, mt))

	rec, err := ParseFile(context.Background(), path, Options{UseModTime: true})
	require.NoError(t, err)
	assert.Equal(t, "ap2y_latest.csv", rec.Source)
	assert.Equal(t, date(2022, 9, 13), rec.VintageDate)
	assert.Equal(t, model.DateSourceFallback, rec.DateSource)
}

func TestParseFile_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("data")
	require.NoError(t, err)
	for _, r := range [][]string{
		{"Title", "Vacancies"},
		{"Release date", "12 July 2022"},
		{"2022 MAY", "1290"},
		{"2022 JUN", "1294"},
	} {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "ap2y_v117.xlsx")
	require.NoError(t, f.Save(path))

	rec, err := ParseFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, date(2022, 7, 12), rec.VintageDate)
	assert.Len(t, rec.Observations, 2)
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), Options{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformedVintageFile))
}

func TestSplitHeader_StopsAtWideRow(t *testing.T) {
	rows := [][]string{
		{"Title", "Vacancies"},
		{"PreUnit", ""},
		{"Period", "Value", "Flag"},
		{"2022 JUN", "1"},
	}
	meta, body := splitHeader(rows)
	assert.Equal(t, map[string]string{"Title": "Vacancies", "PreUnit": ""}, meta)
	assert.Len(t, body, 2)
}

func TestFilenameVintageDate(t *testing.T) {
	d, ok := FilenameVintageDate("data/raw/ap2y_v117_2022-07-12.csv")
	assert.True(t, ok)
	assert.Equal(t, date(2022, 7, 12), d)

	_, ok = FilenameVintageDate("ap2y_latest_unknown.csv")
	assert.False(t, ok)
}

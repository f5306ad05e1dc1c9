package report

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vintage-cli/internal/model"
	"github.com/sells-group/vintage-cli/internal/revision"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleRows() []model.VintageObservation {
	return []model.VintageObservation{
		{ObservationDate: day(2022, 6, 1), Value: 100, VintageDate: day(2022, 1, 1), SourceFile: "a.csv"},
		{ObservationDate: day(2022, 6, 1), Value: 102.5, VintageDate: day(2022, 7, 1), SourceFile: "b.csv"},
	}
}

func TestWriteConsolidated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteConsolidated(&buf, sampleRows()))
	assert.Equal(t,
		"observation_date,value,vintage_date,source_file\n"+
			"2022-06-01,100,2022-01-01,a.csv\n"+
			"2022-06-01,102.5,2022-07-01,b.csv\n",
		buf.String())
}

func TestReadConsolidated_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteConsolidated(&buf, sampleRows()))

	got, err := ReadConsolidated(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), got)
}

func TestReadConsolidated_AlternateLayoutsAndColumnOrder(t *testing.T) {
	input := "\ufeffsource_file,vintage_date,value,observation_date,extra\n" +
		"x.csv,2022-07-12 00:00:00,1294,2022-06,foo\n"
	got, err := ReadConsolidated(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.VintageObservation{
		ObservationDate: day(2022, 6, 1),
		Value:           1294,
		VintageDate:     day(2022, 7, 12),
		SourceFile:      "x.csv",
	}, got[0])
}

func TestReadConsolidated_Errors(t *testing.T) {
	tests := []struct {
		name, input, want string
	}{
		{"empty", "", "empty"},
		{"missing column", "observation_date,value,vintage_date\n", "source_file"},
		{"bad date", "observation_date,value,vintage_date,source_file\nJune,1,2022-07-12,a\n", "line 2"},
		{"bad value", "observation_date,value,vintage_date,source_file\n2022-06-01,x,2022-07-12,a\n", "bad value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadConsolidated(context.Background(), strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteSummary(t *testing.T) {
	s := &model.RevisionSummary{Buckets: []model.RevisionBucket{
		{VintageAgeMonths: 1, MeanAbsRevision: 2.5, MedianAbsRevision: 2.5, N: 1, MeanRevision: 2.5, P90AbsRevision: 2.5, LowConfidence: true},
		{VintageAgeMonths: 2, MeanAbsRevision: 1.25, MedianAbsRevision: 1, N: 4, MeanRevision: -0.5, P90AbsRevision: 3.1},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))
	assert.Equal(t,
		"vintage_age_months,mean_abs_revision,median_abs_revision,n,low_confidence,mean_revision,p90_abs_revision\n"+
			"1,2.5,2.5,1,true,2.5,2.5\n"+
			"2,1.25,1,4,false,-0.5,3.1\n",
		buf.String())
}

func TestWriteForecast(t *testing.T) {
	fc := &model.ForecastResult{Rows: []model.ForecastRow{{
		HorizonIndex:       1,
		ObservationDate:    day(2024, 1, 1),
		PointForecast:      950.25,
		LowerBound:         940,
		UpperBound:         960.5,
		BasedOnVintageDate: day(2024, 2, 13),
		BandSource:         model.BandRevision,
	}}}
	var buf bytes.Buffer
	require.NoError(t, WriteForecast(&buf, fc))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "horizon_index,observation_date,point_forecast,lower_bound,upper_bound,based_on_vintage_date"))
	assert.Equal(t, "1,2024-01-01,950.25,940,960.5,2024-02-13,revision", lines[1])
}

func TestWriteForecast_Nil(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteForecast(&buf, nil))
	assert.Equal(t, strings.Join(ForecastColumns, ",")+"\n", buf.String())
}

func TestWriteRevisions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRevisions(&buf, []model.RevisionRecord{{
		ObservationDate:     day(2022, 6, 1),
		VintageDate:         day(2022, 7, 1),
		PreviousVintageDate: day(2022, 1, 1),
		VintageAgeMonths:    1,
		RevisionValue:       2.5,
		CumulativeRevision:  2.5,
	}}))
	assert.Contains(t, buf.String(), "2022-06-01,2022-07-01,2022-01-01,1,2.5,2.5\n")
}

func TestWriteTrajectory(t *testing.T) {
	tr := &revision.Trajectory{
		ObservationDate: day(2022, 4, 1),
		Points: []revision.TrajectoryPoint{
			{VintageDate: day(2022, 5, 17), Value: 1295, SourceFile: "v1.csv", VintageAgeMonths: 1},
			{VintageDate: day(2022, 6, 14), Value: 1290, SourceFile: "v2.csv", VintageAgeMonths: 2, Change: -5},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTrajectory(&buf, tr))
	assert.Equal(t,
		"observation_date,vintage_date,vintage_age_months,value,change,source_file\n"+
			"2022-04-01,2022-05-17,1,1295,0,v1.csv\n"+
			"2022-04-01,2022-06-14,2,1290,-5,v2.csv\n",
		buf.String())
}

func TestWriteFile_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "out.csv")
	require.NoError(t, WriteFile(path, func(w io.Writer) error {
		return WriteConsolidated(w, sampleRows())
	}))

	got, err := ReadConsolidatedFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReadConsolidatedFile_Missing(t *testing.T) {
	_, err := ReadConsolidatedFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

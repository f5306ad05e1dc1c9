package revision

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/vintage-cli/internal/consolidate"
	"github.com/sells-group/vintage-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func vo(obsY int, obsM time.Month, value float64, vintage time.Time) model.VintageObservation {
	return model.VintageObservation{
		ObservationDate: day(obsY, obsM, 1),
		Value:           value,
		VintageDate:     vintage,
		SourceFile:      "ap2y_" + vintage.Format(model.DateLayout) + ".csv",
	}
}

func scenarioA() *consolidate.Table {
	return consolidate.FromObservations([]model.VintageObservation{
		vo(2022, 6, 100.0, day(2022, 1, 1)),
		vo(2022, 6, 102.5, day(2022, 7, 1)),
	})
}

func TestAnalyze_TwoVintagesObservationBasis(t *testing.T) {
	a, err := Analyze(scenarioA(), Options{})
	require.NoError(t, err)

	require.Len(t, a.Records, 1)
	r := a.Records[0]
	assert.Equal(t, day(2022, 6, 1), r.ObservationDate)
	assert.Equal(t, day(2022, 7, 1), r.VintageDate)
	assert.Equal(t, day(2022, 1, 1), r.PreviousVintageDate)
	assert.Equal(t, 1, r.VintageAgeMonths)
	assert.Equal(t, 2.5, r.RevisionValue)
	assert.Equal(t, 2.5, r.CumulativeRevision)
}

func TestAnalyze_TwoVintagesFirstReleaseBasis(t *testing.T) {
	a, err := Analyze(scenarioA(), Options{AgeBasis: AgeFirstRelease})
	require.NoError(t, err)

	require.Len(t, a.Records, 1)
	assert.Equal(t, 6, a.Records[0].VintageAgeMonths)
	assert.Equal(t, 2.5, a.Records[0].RevisionValue)
}

func TestAnalyze_SingleSampleBucketIsKeptAndFlagged(t *testing.T) {
	tbl := consolidate.FromObservations([]model.VintageObservation{
		vo(2022, 5, 1290, day(2022, 5, 17)),
		vo(2022, 5, 1294, day(2022, 6, 14)),
		// June and July each have a single vintage and contribute nothing.
		vo(2022, 6, 1300, day(2022, 7, 12)),
		vo(2022, 7, 1280, day(2022, 8, 16)),
	})

	a, err := Analyze(tbl, Options{MinBucketSize: 2})
	require.NoError(t, err)
	require.Len(t, a.Summary.Buckets, 1)

	b, ok := a.Summary.Bucket(1)
	require.True(t, ok)
	assert.Equal(t, 1, b.N)
	assert.True(t, b.LowConfidence)
	assert.Equal(t, 4.0, b.MeanAbsRevision)
	assert.Equal(t, []model.RevisionBucket{b}, a.Summary.LowConfidenceBuckets())
}

func TestAnalyze_RevisionChainSums(t *testing.T) {
	tbl := consolidate.FromObservations([]model.VintageObservation{
		vo(2022, 3, 100, day(2022, 4, 12)),
		vo(2022, 3, 102.5, day(2022, 5, 17)),
		vo(2022, 3, 101.25, day(2022, 6, 14)),
	})
	a, err := Analyze(tbl, Options{})
	require.NoError(t, err)
	require.Len(t, a.Records, 2)

	sum := a.Records[0].RevisionValue + a.Records[1].RevisionValue
	assert.Equal(t, 101.25-100, sum)
	assert.Equal(t, sum, a.Records[1].CumulativeRevision)
}

func TestAnalyze_AgesAreNonNegative(t *testing.T) {
	tbl := consolidate.FromObservations([]model.VintageObservation{
		// A mis-dated vintage published before the month it describes.
		vo(2022, 8, 1, day(2022, 6, 1)),
		vo(2022, 8, 2, day(2022, 7, 1)),
		vo(2022, 8, 3, day(2022, 9, 13)),
		vo(2022, 7, 5, day(2022, 8, 16)),
		vo(2022, 7, 6, day(2022, 9, 13)),
	})
	a, err := Analyze(tbl, Options{})
	require.NoError(t, err)

	for _, r := range a.Records {
		assert.GreaterOrEqual(t, r.VintageAgeMonths, 0)
	}
	assert.Equal(t, 1, a.NegativeAgeSkipped)
	assert.Len(t, a.Records, 2)
}

func TestAnalyze_Deterministic(t *testing.T) {
	var rows []model.VintageObservation
	for v := 0; v < 6; v++ {
		vintage := day(2022, time.Month(v+1), 15)
		for m := 0; m <= v; m++ {
			rows = append(rows, vo(2021, time.Month(12-m), 1000+float64(v*m)*0.37, vintage))
		}
	}
	tbl := consolidate.FromObservations(rows)

	a1, err := Analyze(tbl, Options{})
	require.NoError(t, err)
	a2, err := Analyze(tbl, Options{})
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}

func TestAnalyze_EmptyTable(t *testing.T) {
	_, err := Analyze(consolidate.Merge(nil), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, consolidate.ErrEmptyTable))
}

func TestAnalyze_UnknownBasis(t *testing.T) {
	_, err := Analyze(scenarioA(), Options{AgeBasis: "elapsed_days"})
	assert.Error(t, err)
}

func TestSummarize_Statistics(t *testing.T) {
	records := []model.RevisionRecord{
		{VintageAgeMonths: 2, RevisionValue: -4},
		{VintageAgeMonths: 1, RevisionValue: 1},
		{VintageAgeMonths: 1, RevisionValue: -3},
		{VintageAgeMonths: 1, RevisionValue: 2},
		{VintageAgeMonths: 1, RevisionValue: -6},
	}
	s := Summarize(records, 2)
	require.Len(t, s.Buckets, 2)

	b1 := s.Buckets[0]
	assert.Equal(t, 1, b1.VintageAgeMonths)
	assert.Equal(t, 4, b1.N)
	assert.InDelta(t, 3.0, b1.MeanAbsRevision, 1e-12)
	assert.InDelta(t, 2.5, b1.MedianAbsRevision, 1e-12)
	assert.InDelta(t, -1.5, b1.MeanRevision, 1e-12)
	// abs sorted: 1 2 3 6; rank 2.7 -> 3 + 0.7*3
	assert.InDelta(t, 5.1, b1.P90AbsRevision, 1e-12)
	assert.False(t, b1.LowConfidence)

	b2 := s.Buckets[1]
	assert.Equal(t, 2, b2.VintageAgeMonths)
	assert.True(t, b2.LowConfidence)
	assert.Equal(t, 4.0, b2.MedianAbsRevision)
}

func TestSummarize_CountsShrinkWithAge(t *testing.T) {
	var rows []model.VintageObservation
	// Twelve monthly vintages; older months have been revised more often.
	for v := 1; v <= 12; v++ {
		vintage := day(2022, time.Month(v), 20)
		for m := 1; m <= v; m++ {
			rows = append(rows, vo(2022, time.Month(m), float64(v+m), vintage))
		}
	}
	a, err := Analyze(consolidate.FromObservations(rows), Options{})
	require.NoError(t, err)

	for i := 1; i < len(a.Summary.Buckets); i++ {
		assert.LessOrEqual(t, a.Summary.Buckets[i].N, a.Summary.Buckets[i-1].N)
	}
}

func TestQuantile(t *testing.T) {
	assert.Equal(t, 0.0, quantile(nil, 0.5))
	assert.Equal(t, 7.0, quantile([]float64{7}, 0.9))
	assert.Equal(t, 2.0, quantile([]float64{1, 2, 3}, 0.5))
}

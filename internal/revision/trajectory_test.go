package revision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vintage-cli/internal/consolidate"
	"github.com/sells-group/vintage-cli/internal/model"
)

func TestTrace(t *testing.T) {
	tbl := consolidate.FromObservations([]model.VintageObservation{
		vo(2022, 4, 1295, day(2022, 5, 17)),
		vo(2022, 4, 1290, day(2022, 6, 14)),
		vo(2022, 4, 1301, day(2022, 7, 12)),
		vo(2022, 5, 1294, day(2022, 6, 14)),
	})

	tr, err := Trace(tbl, day(2022, 4, 15))
	require.NoError(t, err)
	assert.Equal(t, day(2022, 4, 1), tr.ObservationDate)
	require.Len(t, tr.Points, 3)
	assert.Equal(t, 1, tr.Points[0].VintageAgeMonths)
	assert.Equal(t, 0.0, tr.Points[0].Change)
	assert.Equal(t, -5.0, tr.Points[1].Change)
	assert.Equal(t, 1295.0, tr.First)
	assert.Equal(t, 1301.0, tr.Latest)
	assert.Equal(t, 6.0, tr.TotalRevision)
	assert.Equal(t, 1290.0, tr.Min)
	assert.Equal(t, 1301.0, tr.Max)
	assert.Equal(t, 11.0, tr.Range)
	assert.Equal(t, 11.0, tr.LargestStep)
	assert.Equal(t, day(2022, 7, 12), tr.LargestStepVintage)
}

func TestTrace_SingleVintage(t *testing.T) {
	tbl := consolidate.FromObservations([]model.VintageObservation{vo(2022, 5, 1294, day(2022, 6, 14))})
	tr, err := Trace(tbl, day(2022, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, tr.Range)
	assert.Equal(t, 0.0, tr.LargestStep)
	assert.True(t, tr.LargestStepVintage.IsZero())
}

func TestTrace_UnknownMonth(t *testing.T) {
	_, err := Trace(scenarioA(), day(2019, 1, 1))
	assert.True(t, errors.Is(err, ErrUnknownObservation))
}
